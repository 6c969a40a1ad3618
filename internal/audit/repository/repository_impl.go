package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/sponsornet/internal/audit/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

// List pages newest first. A trailing ".*" on the action matches the whole
// family, e.g. "payment.*".
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	q := db.WithContext(ctx).Model(&domain.AuditLog{})

	switch action := strings.TrimSpace(filter.Action); {
	case strings.HasSuffix(action, ".*"):
		q = q.Where("action LIKE ?", strings.TrimSuffix(action, "*")+"%")
	case action != "":
		q = q.Where("action = ?", action)
	}
	if v := strings.TrimSpace(filter.TargetType); v != "" {
		q = q.Where("target_type = ?", v)
	}
	if v := strings.TrimSpace(filter.TargetID); v != "" {
		q = q.Where("target_id = ?", v)
	}
	if c := filter.Cursor; c != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit + 1)
	}

	var logs []*domain.AuditLog
	err := q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "created_at"}, Desc: true},
		{Column: clause.Column{Name: "id"}, Desc: true},
	}}).Find(&logs).Error
	return logs, err
}
