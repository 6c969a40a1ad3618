package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/sponsornet/internal/audit/domain"
	"github.com/smallbiznis/sponsornet/internal/authorization"
	catalogdomain "github.com/smallbiznis/sponsornet/internal/catalog/domain"
	ledgerdomain "github.com/smallbiznis/sponsornet/internal/ledger/domain"
	networkdomain "github.com/smallbiznis/sponsornet/internal/network/domain"
	nodepackagedomain "github.com/smallbiznis/sponsornet/internal/nodepackage/domain"
	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
	userdomain "github.com/smallbiznis/sponsornet/internal/user/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "processing_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code attached to request
// logs. It mirrors mapError without building the payload.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		return payload.Type, "internal"
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidAction,
	networkdomain.ErrInvalidNodeID,
	networkdomain.ErrInvalidUserID,
	ledgerdomain.ErrInvalidNodeID,
	ledgerdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidStatementType,
	ledgerdomain.ErrInvalidStatementStatus,
	ledgerdomain.ErrInvalidReference,
	ledgerdomain.ErrInvalidPageToken,
	ledgerdomain.ErrInsufficientBalance,
	ledgerdomain.ErrWithdrawalLimitExceeded,
	catalogdomain.ErrInvalidID,
	userdomain.ErrInvalidID,
	nodepackagedomain.ErrInvalidNodeID,
	nodepackagedomain.ErrInvalidPackageID,
	paymentdomain.ErrInvalidPaymentID,
	paymentdomain.ErrInvalidNodeID,
	paymentdomain.ErrInvalidPackageID,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidMethod,
	paymentdomain.ErrInvalidExternalTxID,
	paymentdomain.ErrInvalidStatus,
	paymentdomain.ErrInvalidUpgrade,
	paymentdomain.ErrInvalidProvider,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidEvent,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, paymentdomain.ErrDuplicateTransaction),
		errors.Is(err, paymentdomain.ErrConfirmationInProgress),
		errors.Is(err, networkdomain.ErrNodeAlreadyExists),
		errors.Is(err, networkdomain.ErrPlacementConflict),
		errors.Is(err, networkdomain.ErrNoAvailablePosition):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, paymentdomain.ErrDuplicateTransaction):
		return paymentdomain.ErrDuplicateTransaction.Error()
	case errors.Is(err, paymentdomain.ErrConfirmationInProgress):
		return paymentdomain.ErrConfirmationInProgress.Error()
	case errors.Is(err, networkdomain.ErrNodeAlreadyExists):
		return networkdomain.ErrNodeAlreadyExists.Error()
	case errors.Is(err, networkdomain.ErrNoAvailablePosition):
		return networkdomain.ErrNoAvailablePosition.Error()
	case errors.Is(err, networkdomain.ErrPlacementConflict):
		return networkdomain.ErrPlacementConflict.Error()
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, networkdomain.ErrNodeNotFound),
		errors.Is(err, networkdomain.ErrSponsorNotFound),
		errors.Is(err, ledgerdomain.ErrNodeNotFound),
		errors.Is(err, ledgerdomain.ErrStatementNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case ledgerdomain.ErrInsufficientBalance.Error(),
		ledgerdomain.ErrWithdrawalLimitExceeded.Error():
		return "amount"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case ledgerdomain.ErrInsufficientBalance.Error():
		return "insufficient balance"
	case ledgerdomain.ErrWithdrawalLimitExceeded.Error():
		return "daily withdrawal limit exceeded"
	default:
		return "invalid value"
	}
}
