package guard

import (
	"errors"
	"time"
)

var (
	ErrStaleWindowTooShort = errors.New("payment_stale_window_too_short")
	ErrInvalidBatchSize    = errors.New("invalid_batch_size")
	ErrTimeoutTooLong      = errors.New("job_timeout_exceeds_interval")
)

// MinPaymentStaleWindow is the shortest age at which an open payment may be
// failed automatically. Mobile money confirmations routinely take minutes.
const MinPaymentStaleWindow = 15 * time.Minute

const MaxBatchSize = 5000

func EnsurePaymentStaleWindow(window time.Duration) error {
	if window < MinPaymentStaleWindow {
		return ErrStaleWindowTooShort
	}
	return nil
}

func EnsureBatchSize(size int) error {
	if size <= 0 || size > MaxBatchSize {
		return ErrInvalidBatchSize
	}
	return nil
}

func EnsureJobTimeout(timeout, interval time.Duration) error {
	if timeout > interval {
		return ErrTimeoutTooLong
	}
	return nil
}
