// Package cerrors defines the Conductor's sentinel errors, grouped by
// concern, and a Kind helper used to classify failures for DLQ and
// metrics purposes.
package cerrors

import stderrors "errors"

// Validation errors
var (
	ErrMissingRequestID = stderrors.New("request id is required")
	ErrUnknownRequestType = stderrors.New("unknown request type")
	ErrInvalidPayload    = stderrors.New("invalid request payload")
)

// Plugin errors
var (
	ErrPluginUnavailable  = stderrors.New("plugin unavailable")
	ErrPluginNotFound     = stderrors.New("plugin not found")
	ErrPluginAlreadyExists = stderrors.New("plugin already registered")
	ErrPluginInitFailed   = stderrors.New("plugin initialization failed")
)

// Isolation errors
var (
	ErrIsolationTimeout = stderrors.New("isolated execution timed out")
	ErrIsolationFailure = stderrors.New("isolated execution failed")
	ErrMemoryLimitHit   = stderrors.New("isolated execution exceeded memory limit")
)

// Health errors
var (
	ErrHealthCheckFailed = stderrors.New("health check failed")
)

// Refusal errors
var (
	ErrRefusalRequired = stderrors.New("request must be refused")
)

// Resource/scaling errors
var (
	ErrResourceAnomaly    = stderrors.New("resource anomaly detected")
	ErrEmergencyCondition = stderrors.New("emergency resource condition")
)

// Routing errors
var (
	ErrNoRouteAvailable = stderrors.New("no route available for request")
	ErrDLQEntryExpired  = stderrors.New("dead-letter entry exceeded max retries")
)

// Kind classifies an error into one of the taxonomy's broad buckets. The
// router does not call it: it decides DLQ eligibility from its own pipeline
// (invalid routes and open breakers return before the DLQ is reached).
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrMissingRequestID), stderrors.Is(err, ErrUnknownRequestType), stderrors.Is(err, ErrInvalidPayload):
		return "validation"
	case stderrors.Is(err, ErrPluginUnavailable), stderrors.Is(err, ErrPluginNotFound), stderrors.Is(err, ErrPluginAlreadyExists), stderrors.Is(err, ErrPluginInitFailed):
		return "plugin"
	case stderrors.Is(err, ErrIsolationTimeout), stderrors.Is(err, ErrIsolationFailure), stderrors.Is(err, ErrMemoryLimitHit):
		return "isolation"
	case stderrors.Is(err, ErrHealthCheckFailed):
		return "health"
	case stderrors.Is(err, ErrRefusalRequired):
		return "refusal"
	case stderrors.Is(err, ErrResourceAnomaly), stderrors.Is(err, ErrEmergencyCondition):
		return "resource"
	case stderrors.Is(err, ErrNoRouteAvailable), stderrors.Is(err, ErrDLQEntryExpired):
		return "routing"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error is worth retrying via the DLQ.
func Retryable(err error) bool {
	switch Kind(err) {
	case "validation", "refusal":
		return false
	default:
		return true
	}
}
