// Package lock provides TTL-based distributed mutual exclusion shared across
// process instances.
package lock

import (
	"context"
	"time"
)

// Manager is a distributed lock with a bounded time-to-live. The TTL is the
// crash-recovery bound: a holder that dies without releasing blocks others
// for at most the TTL.
type Manager interface {
	// TryAcquire attempts to take the named lock. On success it returns an
	// opaque token identifying this acquisition and ok=true; if another
	// instance holds the lock it returns ok=false without blocking.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)

	// Release frees the named lock only if token still identifies the current
	// holder. A stale token (lock expired and re-acquired elsewhere) is a
	// no-op, never a steal.
	Release(ctx context.Context, name string, token string) error
}
