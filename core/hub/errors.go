// Package hub is the routing entry point: it resolves the tenant, classifies
// the message into a handler kind, fetches or builds the crew, and invokes
// it under a timeout, returning a structured result with routing metadata.
package hub

import "errors"

// Failure taxonomy surfaced to callers.
var (
	// ErrTenantUnresolved means no domain could be determined. Terminal:
	// the caller must supply explicit hints or fix the channel mapping.
	ErrTenantUnresolved = errors.New("tenant unresolved")
	// ErrHandlerNotFound means the resolved domain declares no such handler.
	ErrHandlerNotFound = errors.New("handler not found")
	// ErrConfiguration means a configuration layer is missing or malformed.
	ErrConfiguration = errors.New("configuration error")
	// ErrHandlerConstructionFailed means the factory failed for a reason
	// other than missing declarations.
	ErrHandlerConstructionFailed = errors.New("handler construction failed")
	// ErrHandlerExecutionFailed means the handler ran but failed or timed
	// out. Surfaced in-band on the RoutedResult, never as a panic.
	ErrHandlerExecutionFailed = errors.New("handler execution failed")
	// ErrCacheUnavailable means the shared cache tier is unreachable.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// ClientCorrectable reports whether the caller can fix the failure by
// changing the request. Everything else is transient or operational.
func ClientCorrectable(err error) bool {
	return errors.Is(err, ErrTenantUnresolved) || errors.Is(err, ErrHandlerNotFound)
}

// errorType names a taxonomy member for result metadata and metrics labels.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrTenantUnresolved):
		return "tenant_unresolved"
	case errors.Is(err, ErrHandlerNotFound):
		return "handler_not_found"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrHandlerConstructionFailed):
		return "handler_construction_failed"
	case errors.Is(err, ErrHandlerExecutionFailed):
		return "handler_execution_failed"
	case errors.Is(err, ErrCacheUnavailable):
		return "cache_unavailable"
	default:
		return "internal_error"
	}
}
