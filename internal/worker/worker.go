// Package worker provides the single abstraction every background loop in
// this system is built from: a lease-guarded periodic Tick.
//
// Grounded on theRebelliousNerd-codenerd/internal/session/task_executor.go
// and spawner.go's separation of "what a unit of work does" from "how it is
// scheduled" (TaskExecutor.Execute vs Spawner.Spawn/Run) — reapplied here as
// Worker.Tick (the matchmaking pass, the prompt-matcher fan-out tick, the
// blind-date reminder sweep) plus Runner, which owns the Coordinator lease
// lifecycle and the ticker loop so none of the three callers reimplement it.
package worker

import (
	"context"
	"time"

	"github.com/orincore/circle-core/internal/coordinator"
	"github.com/orincore/circle-core/internal/logging"
)

// Worker is one background loop's unit of work. Tick runs once per
// interval while the calling Runner holds the lease named by Runner.LeaseKey.
type Worker interface {
	// Name identifies the worker in logs and as its registry id.
	Name() string
	// Tick runs a single pass. lease is the lease key the Runner currently
	// holds on the worker's behalf, for passing through to SoftClaim keys.
	Tick(ctx context.Context, lease string) error
}

// Runner schedules a Worker's Tick under a Coordinator lease, standing in
// as a hot standby when it cannot acquire the lease and retaking it the
// moment the current holder's lease lapses.
type Runner struct {
	Coord    coordinator.Coordinator
	Worker   Worker
	Interval time.Duration
	LeaseTTL time.Duration
	HolderID string

	// consecutiveErrs counts transient failures; after 3 the lease is
	// voluntarily released so another worker can take over, per the
	// propagation policy this system follows for lease holders.
	consecutiveErrs int
}

// leaseKey is the Coordinator key guarding this worker's passes.
func (r *Runner) leaseKey() string {
	return "lease/worker/" + r.Worker.Name()
}

// Run blocks until ctx is cancelled, ticking Worker.Tick every Interval
// while holding the lease, and renewing the lease each tick it holds it.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	holding := false
	for {
		select {
		case <-ctx.Done():
			if holding {
				_ = r.Coord.ReleaseLease(context.Background(), r.leaseKey(), r.HolderID)
			}
			return ctx.Err()
		case <-ticker.C:
			holding = r.step(ctx, holding)
		}
	}
}

// step runs at most one Tick, acquiring or renewing the lease as needed,
// and reports whether the lease is still held afterward.
func (r *Runner) step(ctx context.Context, holding bool) bool {
	if err := r.Coord.RegisterWorker(ctx, r.Worker.Name()+"/"+r.HolderID, r.Interval*3); err != nil {
		logging.Get(logging.CategoryCoordinator).Warn("register worker %s failed: %v", r.Worker.Name(), err)
	}

	if !holding {
		acquired, err := r.Coord.AcquireLease(ctx, r.leaseKey(), r.HolderID, r.LeaseTTL)
		if err != nil {
			logging.Get(logging.CategoryCoordinator).Warn("acquire lease %s failed: %v", r.leaseKey(), err)
			return false
		}
		if !acquired {
			return false
		}
		holding = true
	} else {
		renewed, err := r.Coord.RenewLease(ctx, r.leaseKey(), r.HolderID, r.LeaseTTL)
		if err != nil || !renewed {
			holding = false
			return false
		}
	}

	if err := r.Worker.Tick(ctx, r.leaseKey()); err != nil {
		logging.Get(logging.CategoryCoordinator).Warn("%s tick failed: %v", r.Worker.Name(), err)
		r.consecutiveErrs++
		if r.consecutiveErrs >= 3 {
			_ = r.Coord.ReleaseLease(ctx, r.leaseKey(), r.HolderID)
			r.consecutiveErrs = 0
			return false
		}
		return holding
	}
	r.consecutiveErrs = 0
	return holding
}
