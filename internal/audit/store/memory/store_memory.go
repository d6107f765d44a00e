package memory

import (
	"context"
	"sync"

	"custodia/internal/audit"
	id "custodia/pkg/domain"
)

// InMemoryStore keeps events in process. It does not join ledger
// transactions, so an event survives a rolled-back ledger write.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByActor(_ context.Context, actor id.Address, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []audit.Event{}
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].Actor == actor {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}
