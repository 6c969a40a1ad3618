package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type User struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Username   string       `gorm:"type:text;not null;uniqueIndex" json:"username"`
	Email      string       `gorm:"type:text" json:"email,omitempty"`
	Phone      string       `gorm:"type:text" json:"phone,omitempty"`
	Verified   bool         `gorm:"not null;default:false" json:"verified"`
	VerifiedAt *time.Time   `json:"verified_at,omitempty"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }
