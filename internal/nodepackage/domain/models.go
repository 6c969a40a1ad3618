package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusUpgraded  Status = "UPGRADED"
	StatusCancelled Status = "CANCELLED"
	StatusPaused    Status = "PAUSED"
)

// NodePackage assigns a package to a node. Each node has a single row that
// is rewritten on every new purchase.
type NodePackage struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	NodeID      snowflake.ID `gorm:"not null;uniqueIndex" json:"node_id"`
	PackageID   snowflake.ID `gorm:"not null" json:"package_id"`
	Status      Status       `gorm:"type:text;not null" json:"status"`
	ActivatedAt *time.Time   `json:"activated_at,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (NodePackage) TableName() string { return "node_packages" }

func (p NodePackage) IsActive() bool { return p.Status == StatusActive }
