package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Distribute pays each configured sponsor level inside tx. It performs
	// no duplicate check; callers invoke it once per successful payment.
	Distribute(ctx context.Context, tx *gorm.DB, in Input) (Result, error)
	ListByPayment(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) ([]Commission, error)
}
