package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when an update or delete names content that no
// stored memory matches.
var ErrNotFound = errors.New("memory not found")

// Memory is one durable "prior knowledge" entry.
type Memory struct {
	ID              string
	Content         string
	DeleteSuggested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Store is the persistence boundary the turn engine depends on. Update and
// SuggestDelete match by exact content string, mirroring the directive
// grammar. Implementations must be safe for concurrent use.
type Store interface {
	// List returns all memories ordered by creation time.
	List(ctx context.Context) ([]Memory, error)
	// Create stores a new memory.
	Create(ctx context.Context, content string) (*Memory, error)
	// Update replaces the content of the memory whose content equals target.
	Update(ctx context.Context, target, content string) (*Memory, error)
	// SuggestDelete flags the memory whose content equals target for removal;
	// the surrounding application decides whether to actually delete it.
	SuggestDelete(ctx context.Context, target string) (*Memory, error)
	// Subscribe returns a channel that receives a signal after each mutation.
	Subscribe() <-chan struct{}
}

// Apply runs each operation against the store. Operations that fail (e.g. an
// update naming content that no longer exists) are skipped; the first error
// encountered is returned after all operations were attempted, so one stale
// directive does not block the rest.
func Apply(ctx context.Context, store Store, ops []Operation) error {
	var firstErr error
	for _, op := range ops {
		var err error
		switch op.Action {
		case ActionCreate:
			_, err = store.Create(ctx, op.Content)
		case ActionUpdate:
			_, err = store.Update(ctx, op.TargetContent, op.Content)
		case ActionDeleteSuggested:
			_, err = store.SuggestDelete(ctx, op.TargetContent)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// notifier implements the Subscribe half of Store for embedding.
type notifier struct {
	mu   sync.Mutex
	subs []chan struct{}
}

func (n *notifier) Subscribe() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan struct{}, 1)
	n.subs = append(n.subs, ch)
	return ch
}

// notify signals all subscribers without blocking on slow consumers.
func (n *notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
