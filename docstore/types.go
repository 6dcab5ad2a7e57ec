/*
Package docstore provides the persistence core: a document store facade with
swappable backends, a write-through consistency index, and a one-way failover
controller.

PURPOSE:
  Everything above this package (ledger, identity, API) talks only to the
  Facade. The Facade composes a primary backend (remote vector DB), a fallback
  backend (in-memory), the consistency index that repairs the primary's
  eventually-consistent scans, and the failover controller that swaps backends
  when the primary dies.

KEY CONCEPTS IN THIS FILE (types.go):
  - Payload: open-ended key/value record body, passed through opaquely
  - Document: a record id plus its payload
  - Collection names: the fixed set of collections the bank uses

DESIGN PRINCIPLES:
  1. Backends are dumb key->payload maps; all smarts live in the Facade
  2. "Not found" is a normal return, never a fault
  3. Transport faults trigger failover and are retried, never surfaced

SEE ALSO:
  - facade.go: The public CRUD surface
  - failover.go: Primary/degraded state machine
  - index.go: Write-through secondary index
*/
package docstore

// =============================================================================
// COLLECTIONS
// =============================================================================

const (
	CollectionVerifiedUsers = "verified_users"
	CollectionFraudUsers    = "fraud_users"
	CollectionWallets       = "user_wallets"
	CollectionClaims        = "claims"
	CollectionTransactions  = "transactions"
	CollectionProducts      = "marketplace_products"
)

// Collections lists every collection provisioned at startup.
var Collections = []string{
	CollectionVerifiedUsers,
	CollectionFraudUsers,
	CollectionWallets,
	CollectionClaims,
	CollectionTransactions,
	CollectionProducts,
}

// VectorDim is the fixed size of the dummy vector attached to every record
// on the remote backend. The vector is required by the wire format but never
// queried by similarity.
const VectorDim = 4

// =============================================================================
// DOCUMENT
// =============================================================================

// Payload is an open-ended record body. Fields beyond the ones a caller knows
// about are preserved and passed through untouched.
type Payload = map[string]any

// Document is a record: numeric id plus payload.
type Document struct {
	ID      int64
	Payload Payload
}

// ClonePayload returns a copy deep enough that callers mutating maps and
// slices inside the payload cannot alias stored state.
func ClonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Payload:
		return ClonePayload(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// String returns payload[key] as a string, or "" when absent or mistyped.
func String(p Payload, key string) string {
	s, _ := p[key].(string)
	return s
}

// Bool returns payload[key] as a bool, or false when absent or mistyped.
func Bool(p Payload, key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Float returns payload[key] as a float64. JSON decoding always produces
// float64 for numbers, but int and int64 are accepted for payloads built in
// process.
func Float(p Payload, key string) float64 {
	switch n := p[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
