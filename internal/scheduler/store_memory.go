package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Item
	done  map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]Item),
		done:  make(map[string]time.Time),
	}
}

// Enqueue replaces any pending item with the same communication id.
func (s *MemoryStore) Enqueue(ctx context.Context, it Item) error {
	if err := it.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it.DueAt = it.DueAt.UTC()
	it.ClaimedAt = nil
	s.items[it.CommunicationID] = it
	delete(s.done, it.CommunicationID)
	return nil
}

func (s *MemoryStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Item
	for _, it := range s.items {
		if it.DueAt.After(now) {
			continue
		}
		if it.ClaimedAt != nil && now.Sub(*it.ClaimedAt) < lease {
			continue
		}
		due = append(due, it)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].DueAt.Equal(due[j].DueAt) {
			return due[i].CommunicationID < due[j].CommunicationID
		}
		return due[i].DueAt.Before(due[j].DueAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := now.UTC()
	for i := range due {
		due[i].ClaimedAt = &claimed
		s.items[due[i].CommunicationID] = due[i]
	}
	return due, nil
}

func (s *MemoryStore) MarkDone(ctx context.Context, communicationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[communicationID]; !ok {
		return nil
	}
	delete(s.items, communicationID)
	s.done[communicationID] = at.UTC()
	return nil
}

// Pending returns the number of items not yet done.
func (s *MemoryStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
