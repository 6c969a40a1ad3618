package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service is the narrow user directory the network engine depends on.
type Service interface {
	GetUser(ctx context.Context, id snowflake.ID) (User, error)
	// SetVerified flags the user inside the caller's transaction. Calling it
	// for an already verified user is a no-op.
	SetVerified(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
}

var (
	ErrInvalidID = errors.New("invalid_user_id")
	ErrNotFound  = errors.New("user_not_found")
)
