/*
errors.go - Centralized error taxonomy for the persistence core

ERROR CATEGORIES:
  1. NotFound   - record or lookup absent; a normal non-fatal return
  2. Conflict   - duplicate unique key; surfaced to the user, never retried
  3. Transport  - backend unreachable; triggers failover, retried once,
                  never surfaced unless the fallback also fails

USAGE:
  Domain packages wrap these with context and callers classify with
  errors.Is / the helpers below:

    if docstore.IsNotFound(err) { ... }

SEE ALSO:
  - failover.go: Trips on IsTransport
  - ledger/errors.go: Domain errors wrapping Conflict
*/
package docstore

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a record or lookup is absent.
	// This is expected behavior, not a fault.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a unique-key invariant would be violated.
	ErrConflict = errors.New("conflict: duplicate unique key")

	// ErrTransport is returned when a backend is unreachable or misbehaving
	// at the transport level. The failover controller trips on this.
	ErrTransport = errors.New("backend transport fault")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// TransportError carries the operation and collection that hit a transport
// fault, for the failover log.
type TransportError struct {
	Op         string
	Collection string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport fault during %s on %q: %v", e.Op, e.Collection, e.Err)
}

func (e *TransportError) Unwrap() error { return ErrTransport }

// Transport wraps err as a transport fault.
func Transport(op, collection string, err error) error {
	return &TransportError{Op: op, Collection: collection, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool  { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool  { return errors.Is(err, ErrConflict) }
func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }
