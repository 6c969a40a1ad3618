package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Position is a slot under a parent in the placement tree.
type Position string

const (
	PositionOne   Position = "ONE"
	PositionTwo   Position = "TWO"
	PositionThree Position = "THREE"
	PositionLeft  Position = "LEFT"
	PositionRight Position = "RIGHT"
)

type TreeMode string

const (
	TreeModeTernary TreeMode = "ternary"
	TreeModeBinary  TreeMode = "binary"
)

// ParseTreeMode falls back to ternary for unknown values.
func ParseTreeMode(value string) TreeMode {
	if strings.EqualFold(strings.TrimSpace(value), string(TreeModeBinary)) {
		return TreeModeBinary
	}
	return TreeModeTernary
}

// Positions returns the slots of the mode in priority order.
func (m TreeMode) Positions() []Position {
	if m == TreeModeBinary {
		return []Position{PositionLeft, PositionRight}
	}
	return []Position{PositionOne, PositionTwo, PositionThree}
}

func (m TreeMode) DefaultPosition() Position {
	return m.Positions()[0]
}

type NodeStatus string

const (
	NodeStatusInactive NodeStatus = "INACTIVE"
	NodeStatusActive   NodeStatus = "ACTIVE"
)

// Node is a participant's position in both the sponsor chain and the
// placement tree. The two structures are independent.
type Node struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID    `gorm:"not null;uniqueIndex" json:"user_id"`
	SponsorID        *snowflake.ID   `json:"sponsor_id,omitempty"`
	ParentID         *snowflake.ID   `json:"parent_id,omitempty"`
	Position         Position        `gorm:"type:text;not null" json:"position"`
	Status           NodeStatus      `gorm:"type:text;not null" json:"status"`
	AvailableBalance decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"available_balance"`
	Level            int             `gorm:"not null" json:"level"`
	ReferralCode     string          `gorm:"type:text;not null;uniqueIndex" json:"referral_code"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

func (Node) TableName() string { return "nodes" }

func (n Node) IsActive() bool { return n.Status == NodeStatusActive }

// ChildSlot is an occupied slot in the placement tree.
type ChildSlot struct {
	ID       snowflake.ID
	ParentID snowflake.ID
	Position Position
}

const (
	ReasonRoot         = "root"
	ReasonOpenLegSlot  = "open_leg_slot"
	ReasonWeakerLeg    = "weaker_leg"
	ReasonBalancedLegs = "balanced_legs"
	ReasonBreadthFirst = "breadth_first"
	ReasonFallback     = "fallback_default"
)

// Placement is where a new node goes. A nil ParentID places the node at a
// tree root.
type Placement struct {
	ParentID *snowflake.ID `json:"parent_id,omitempty"`
	Position Position      `json:"position"`
	Level    int           `json:"level"`
	Reason   string        `json:"reason"`
}

// LegVolume is the weighted activity under one of the sponsor's direct slots.
type LegVolume struct {
	RootID   snowflake.ID    `json:"root_id"`
	Position Position        `json:"position"`
	Volume   decimal.Decimal `json:"volume"`
	Nodes    int             `json:"nodes"`
}
