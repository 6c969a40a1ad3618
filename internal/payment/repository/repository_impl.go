package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const paymentColumns = `id, node_id, package_id, amount, external_tx_id, method, status, phone,
	reference, failure_reason, metadata, created_at, updated_at, completed_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO node_payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.NodeID,
		p.PackageID,
		p.Amount,
		p.ExternalTxID,
		p.Method,
		p.Status,
		p.Phone,
		p.Reference,
		p.FailureReason,
		p.Metadata,
		p.CreatedAt,
		p.UpdatedAt,
		p.CompletedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM node_payments
		 WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByExternalTxID(ctx context.Context, db *gorm.DB, externalTxID string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM node_payments
		 WHERE external_tx_id = ?
		 LIMIT 1`,
		externalTxID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Transition(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	from []domain.Status,
	to domain.Status,
	reason *string,
	at time.Time,
) (bool, error) {
	var completedAt *time.Time
	if to.IsTerminal() {
		completedAt = &at
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE node_payments
		 SET status = ?,
			failure_reason = COALESCE(?, failure_reason),
			completed_at = COALESCE(?, completed_at),
			updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to,
		reason,
		completedAt,
		at,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CountSuccessful(ctx context.Context, db *gorm.DB, nodeID snowflake.ID, excludeID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM node_payments
		 WHERE node_id = ? AND status = ? AND id <> ?`,
		nodeID,
		domain.StatusSuccessful,
		excludeID,
	).Scan(&count).Error
	return count, err
}

// ListStale reads candidates without claiming them. Each one is closed by
// its own status CAS, so overlapping sweeps fail a payment once.
func (r *repo) ListStale(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Table("node_payments").
		Where("status IN ? AND created_at < ?", domain.OpenStatuses, before).
		Order("created_at, id").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payment_ref, status,
			payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, payment_ref, status,
			payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.PaymentRef,
		event.Status,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
