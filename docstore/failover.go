/*
failover.go - Primary/degraded backend state machine

PURPOSE:
  Wraps every primary-backend call. On the first transport fault the
  controller trips to DEGRADED and every subsequent operation is served by
  the fallback backend. The in-flight call is retried synchronously against
  the fallback before the caller sees a result, so transport faults never
  surface.

STATE MACHINE:
  PRIMARY --(transport fault)--> DEGRADED

  Both states are sticky; the one transition is one-way for the process
  lifetime. There is no automatic recovery - a restart is required. The
  health hook is injectable so optional auto-recovery can be added later
  without changing call sites.

TRADE-OFF:
  Availability over consistency: losing the remote backend silently degrades
  durability but keeps the service answering. The transition is logged once
  for operability.
*/
package docstore

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// =============================================================================
// STATE
// =============================================================================

type State string

const (
	StatePrimary  State = "PRIMARY"
	StateDegraded State = "DEGRADED"
)

// HealthCheck probes the primary backend. Recorded at trip time for
// diagnostics; a future auto-recovery loop would poll it.
type HealthCheck func(ctx context.Context) error

// =============================================================================
// FAILOVER CONTROLLER
// =============================================================================

type Failover struct {
	primary  Backend
	fallback Backend
	health   HealthCheck
	log      *zap.Logger

	degraded atomic.Bool
	tripOnce sync.Once
}

// NewFailover wraps primary with fallback. If health is nil and the primary
// implements Pinger, its Ping is used.
func NewFailover(primary, fallback Backend, health HealthCheck, log *zap.Logger) *Failover {
	if health == nil {
		if p, ok := primary.(Pinger); ok {
			health = p.Ping
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Failover{primary: primary, fallback: fallback, health: health, log: log}
}

// State reports the current state for health endpoints.
func (f *Failover) State() State {
	if f.degraded.Load() {
		return StateDegraded
	}
	return StatePrimary
}

// Do runs op against the active backend. A transport fault from the primary
// trips the controller and retries op once against the fallback; any other
// error (NotFound included) passes through untouched.
func (f *Failover) Do(ctx context.Context, name string, op func(Backend) error) error {
	if !f.degraded.Load() {
		err := op(f.primary)
		if err == nil || !IsTransport(err) {
			return err
		}
		f.trip(ctx, name, err)
	}
	return op(f.fallback)
}

func (f *Failover) trip(ctx context.Context, name string, cause error) {
	f.tripOnce.Do(func() {
		f.degraded.Store(true)
		fields := []zap.Field{
			zap.String("operation", name),
			zap.Error(cause),
		}
		if f.health != nil {
			if herr := f.health(ctx); herr != nil {
				fields = append(fields, zap.NamedError("health", herr))
			}
		}
		f.log.Warn("primary backend lost, degrading to fallback store for process lifetime", fields...)
	})
	// Late losers of the race still see degraded==true on the next Load.
	f.degraded.Store(true)
}
