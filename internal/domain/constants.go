package domain

import "time"

// Payout limits and defaults.
const (
	MinPayoutAmount      = int64(1)
	MaxPayoutAmount      = int64(100_000)
	MaxDescriptionLength = 144

	DefaultPayoutTTL = 300 * time.Second
	// MaxExpiresIn caps a caller supplied claim window, in seconds.
	MaxExpiresIn = int64(365 * 24 * 60 * 60)

	RateLimitMaxPayouts = 10
	RateLimitWindow     = time.Hour
)

// Payout statuses
const (
	PayoutStatusPending   = "pending"
	PayoutStatusCompleted = "completed"
	PayoutStatusExpired   = "expired"
	PayoutStatusError     = "error"
)

// PayoutStatuses lists every status a payout can hold, in display order.
var PayoutStatuses = []string{
	PayoutStatusPending,
	PayoutStatusCompleted,
	PayoutStatusExpired,
	PayoutStatusError,
}

// IsValidPayoutStatus reports whether status is one of PayoutStatuses.
func IsValidPayoutStatus(status string) bool {
	for _, s := range PayoutStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Machine-readable error codes placed in data.error of the response envelope.
const (
	CodeValidationError         = "VALIDATION_ERROR"
	CodeInvalidAmount           = "INVALID_AMOUNT"
	CodeDescriptionTooLong      = "DESCRIPTION_TOO_LONG"
	CodeInvalidCallbackURL      = "INVALID_CALLBACK_URL"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeInsufficientBalance     = "INSUFFICIENT_BALANCE"
	CodeProjectNotFound         = "PROJECT_NOT_FOUND"
	CodePayoutNotFound          = "PAYOUT_NOT_FOUND"
	CodeInvalidStatus           = "INVALID_STATUS"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	CodeGatewayTimeout          = "GATEWAY_TIMEOUT"
	CodeRequestTimeout          = "REQUEST_TIMEOUT"
	CodeInternalError           = "INTERNAL_ERROR"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeTooManyRequests         = "TOO_MANY_REQUESTS"
	CodeNotFound                = "NOT_FOUND"
)

// Callback event names.
const (
	EventPayoutCreated       = "payout.created"
	EventPayoutStatusChanged = "payout.status_changed"
	EventPayoutExpired       = "payout.expired"
)
