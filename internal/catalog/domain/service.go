package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service is the read-only package catalog.
type Service interface {
	GetPackage(ctx context.Context, id snowflake.ID) (Package, error)
	ListPackages(ctx context.Context) ([]Package, error)
}

var (
	ErrInvalidID = errors.New("invalid_package_id")
	ErrNotFound  = errors.New("package_not_found")
)
