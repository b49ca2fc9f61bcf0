package turn

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// ErrTurnInFlight is returned by TryBegin when a turn is already running.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// Gate serializes turns for one conversation: the context array is owned by
// exactly one running turn, so a new turn must wait for or cancel the prior
// one.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a gate admitting one turn at a time.
func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Begin blocks until the prior turn finishes or ctx is cancelled. The
// returned release function must be called exactly once.
func (g *Gate) Begin(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { g.sem.Release(1) }, nil
}

// TryBegin admits a turn only if none is running.
func (g *Gate) TryBegin() (func(), error) {
	if !g.sem.TryAcquire(1) {
		return nil, ErrTurnInFlight
	}
	return func() { g.sem.Release(1) }, nil
}
