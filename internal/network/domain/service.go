package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type RegisterNodeRequest struct {
	UserID      string `json:"user_id"`
	SponsorCode string `json:"sponsor_code"`
}

// RegisterNodeInput is the resolved form of RegisterNodeRequest used inside
// a transaction.
type RegisterNodeInput struct {
	UserID      snowflake.ID
	Username    string
	SponsorCode string
}

type RegisterNodeResult struct {
	Node      Node      `json:"node"`
	Placement Placement `json:"placement"`
}

type Service interface {
	// Register opens the transaction around RegisterNode.
	Register(ctx context.Context, req RegisterNodeRequest) (RegisterNodeResult, error)
	RegisterNode(ctx context.Context, tx *gorm.DB, in RegisterNodeInput) (RegisterNodeResult, error)

	FindPosition(ctx context.Context, tx *gorm.DB, sponsorID snowflake.ID) (Placement, error)
	OptimizePlacement(ctx context.Context, tx *gorm.DB, sponsorID snowflake.ID) (Placement, error)
	PreviewPlacement(ctx context.Context, sponsorID string) (Placement, error)
	LegVolumes(ctx context.Context, tx *gorm.DB, sponsorID snowflake.ID) ([]LegVolume, error)

	GetNode(ctx context.Context, id string) (Node, error)
	GetNodeByUserID(ctx context.Context, userID snowflake.ID) (Node, error)
	// Activate flips the node to ACTIVE inside the caller's transaction.
	Activate(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
}
