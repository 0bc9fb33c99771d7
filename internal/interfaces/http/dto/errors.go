package dto

import (
	"errors"
	"net/http"

	"github.com/crm/backend/internal/domain/shared"
	"github.com/crm/backend/internal/domain/worksync"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
)

// Input error codes
const (
	ErrCodeBadRequest       = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput     = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON      = "ERR_INVALID_JSON"
	ErrCodeMalformedWebhook = "ERR_MALFORMED_WEBHOOK"
	ErrCodePayloadTooLarge  = "ERR_PAYLOAD_TOO_LARGE"
)

// Issue tracker error codes
const (
	// ErrCodeUpstreamUnavailable is used when the tracker cannot be reached or fails
	ErrCodeUpstreamUnavailable = "ERR_UPSTREAM_UNAVAILABLE"
	// ErrCodeUpstreamRateLimited is used when the tracker throttles us
	ErrCodeUpstreamRateLimited = "ERR_UPSTREAM_RATE_LIMITED"
	// ErrCodeUpstreamAuth is used when the tracker rejects the configured credentials
	ErrCodeUpstreamAuth = "ERR_UPSTREAM_AUTH"
	// ErrCodeRateLimited is used when our own rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,

	ErrCodeBadRequest:       http.StatusBadRequest,
	ErrCodeInvalidInput:     http.StatusBadRequest,
	ErrCodeInvalidJSON:      http.StatusBadRequest,
	ErrCodeMalformedWebhook: http.StatusBadRequest,
	ErrCodePayloadTooLarge:  http.StatusRequestEntityTooLarge,

	ErrCodeUpstreamUnavailable: http.StatusBadGateway,
	ErrCodeUpstreamRateLimited: http.StatusServiceUnavailable,
	ErrCodeUpstreamAuth:        http.StatusBadGateway,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps shared domain error codes to API codes
var LegacyErrorCodeMapping = map[string]string{
	shared.CodeNotFound:            ErrCodeNotFound,
	shared.CodeAlreadyExists:       ErrCodeAlreadyExists,
	shared.CodeInvalidInput:        ErrCodeInvalidInput,
	shared.CodeInvalidState:        ErrCodeInvalidState,
	shared.CodeUnauthorized:        ErrCodeUnauthorized,
	shared.CodeConcurrencyConflict: ErrCodeConcurrencyConflict,
	shared.CodeUpstreamUnavailable: ErrCodeUpstreamUnavailable,
	shared.CodeUpstreamRateLimited: ErrCodeUpstreamRateLimited,
	"VALIDATION_ERROR":             ErrCodeValidation,
	"BAD_REQUEST":                  ErrCodeBadRequest,
	"INTERNAL_ERROR":               ErrCodeInternal,
}

// NormalizeErrorCode converts a legacy error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}

// sentinelCodes maps sync sentinels to API codes, checked in order
var sentinelCodes = []struct {
	err     error
	code    string
	message string
}{
	{worksync.ErrMalformedEvent, ErrCodeMalformedWebhook, "Malformed webhook payload"},
	{worksync.ErrInvalidEntityType, ErrCodeValidationFormat, "Unknown entity type"},
	{worksync.ErrInvalidStatus, ErrCodeValidationFormat, "Status is not allowed for this entity type"},
	{worksync.ErrMissingIssueKey, ErrCodeValidationRequired, "Issue key is required"},
	{worksync.ErrMissingProjectKey, ErrCodeValidationRequired, "Project key is required"},
	{worksync.ErrEntityNotFound, ErrCodeNotFound, "Entity not found"},
	{worksync.ErrCompanyNotFound, ErrCodeNotFound, "Company not found"},
	{worksync.ErrIssueNotFound, ErrCodeNotFound, "Issue not found in tracker"},
	{worksync.ErrLinkNotFound, ErrCodeNotFound, "Issue is not linked to this entity"},
	{worksync.ErrIssueAlreadyLinked, ErrCodeAlreadyExists, "Issue is already linked to an entity"},
	{worksync.ErrStaleStatus, ErrCodeConcurrencyConflict, "Entity was modified concurrently"},
	{worksync.ErrTrackerRateLimited, ErrCodeUpstreamRateLimited, "Issue tracker is rate limiting requests"},
	{worksync.ErrTrackerAuthRejected, ErrCodeUpstreamAuth, "Issue tracker rejected the service credentials"},
	{worksync.ErrTrackerUnavailable, ErrCodeUpstreamUnavailable, "Issue tracker is unavailable"},
}

// ErrorCodeFor resolves err to an API error code and client-safe message.
// Unrecognized errors resolve to ErrCodeInternal.
func ErrorCodeFor(err error) (code, message string) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return NormalizeErrorCode(domainErr.Code), domainErr.Message
	}
	if worksync.IsTransitionNotFound(err) {
		return ErrCodeInvalidState, err.Error()
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code, s.message
		}
	}
	return ErrCodeInternal, "An unexpected error occurred"
}
