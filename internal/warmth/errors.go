package warmth

import "fmt"

// ValidationError marks input rejected before any network attempt: an
// empty/malformed contact ID, or a service payload that failed schema
// validation at the decode boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// errEmptyID fails fast on blank contact IDs without touching the network.
func errEmptyID() error {
	return &ValidationError{Field: "entity id", Reason: "must not be empty"}
}

// TransportError wraps a failure talking to the scoring service: network
// error, timeout, open circuit, or a non-2xx response. Always recoverable;
// the cache is left untouched by any transport failure.
type TransportError struct {
	Op     string // e.g. "recompute", "recompute bulk", "switch mode"
	Status int    // HTTP status if a response was received, else 0
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
