package alerts

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// inFlightGuard prevents overlapping runs of the same task in this process
type inFlightGuard struct {
	mu      sync.Mutex
	running map[string]bool
}

func newInFlightGuard() *inFlightGuard {
	return &inFlightGuard{running: make(map[string]bool)}
}

func (g *inFlightGuard) tryEnter(task string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running[task] {
		return false
	}
	g.running[task] = true
	return true
}

func (g *inFlightGuard) leave(task string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, task)
}

// acquire takes the in-process guard and, when a Locker is configured, the
// shared lock for task. ok=false means another run holds it. A Locker error
// degrades to in-process protection only.
func (e *Engine) acquire(ctx context.Context, task string) (release func(), ok bool) {
	if !e.inFlight.tryEnter(task) {
		return nil, false
	}

	if e.locker == nil {
		return func() { e.inFlight.leave(task) }, true
	}

	unlock, got, err := e.locker.AcquireLock(ctx, lockKey(task), e.opts.LockTTL)
	if err != nil {
		e.logger.Warn("Shared lock unavailable, continuing with local guard",
			zap.String("task", task),
			zap.Error(err))
		return func() { e.inFlight.leave(task) }, true
	}
	if !got {
		e.inFlight.leave(task)
		return nil, false
	}

	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("Failed to release shared lock", zap.String("task", task), zap.Error(err))
		}
		e.inFlight.leave(task)
	}, true
}
