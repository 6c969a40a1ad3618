package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/sponsornet/internal/catalog/domain"
	"gorm.io/gorm"
)

type Service interface {
	GetByNode(ctx context.Context, tx *gorm.DB, nodeID snowflake.ID) (*NodePackage, error)
	UpsertPending(ctx context.Context, tx *gorm.DB, nodeID, packageID snowflake.ID) error
	// Activate makes pkg the node's active package, replacing whatever row
	// the node held before.
	Activate(ctx context.Context, tx *gorm.DB, nodeID snowflake.ID, pkg catalogdomain.Package) (NodePackage, error)
	CancelPending(ctx context.Context, tx *gorm.DB, nodeID, packageID snowflake.ID) (bool, error)
	// ExpireDue moves up to limit active packages past their expiry to
	// EXPIRED and returns how many rows changed.
	ExpireDue(ctx context.Context, limit int) (int, error)
}

var (
	ErrInvalidNodeID    = errors.New("invalid_node_id")
	ErrInvalidPackageID = errors.New("invalid_package_id")
)
