// Package coordinator provides the distributed lock and worker-registry
// primitives this system needs: leases, a worker registry, and
// TTL'd counters, all backed by a shared key-value service with TTL
// semantics. The production backend is Redis (internal/coordinator/redis.go);
// internal/coordinator/memory.go provides an in-process fake for unit tests,
// grounded on the teacher's habit of pairing a real store with an in-memory
// test double (theRebelliousNerd-codenerd/internal/store/mocks_test.go).
package coordinator

import (
	"context"
	"time"
)

// Coordinator is the shared primitive every background worker depends on.
type Coordinator interface {
	// AcquireLease returns true iff no other holder currently owns key.
	AcquireLease(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error)

	// ReleaseLease deletes key only if still owned by holderID
	// (compare-and-delete).
	ReleaseLease(ctx context.Context, key, holderID string) error

	// RenewLease extends the TTL on a lease still owned by holderID.
	RenewLease(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error)

	// SoftClaim is a short-TTL set-if-absent used to guard a single
	// candidate ticket/attempt during one pass.
	SoftClaim(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error)

	// ReleaseClaim releases a soft-claim made by holderID.
	ReleaseClaim(ctx context.Context, key, holderID string) error

	// RegisterWorker upserts worker/{id} with a TTL; call on every
	// heartbeat to keep the registry entry alive.
	RegisterWorker(ctx context.Context, id string, ttl time.Duration) error

	// IncrCounter atomically increments a TTL'd counter and returns its
	// new value.
	IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
