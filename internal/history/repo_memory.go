package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"comms-orchestrator/internal/comms"

	"github.com/google/uuid"
)

// MemoryRepo is a mutex-guarded Repository for tests and local mode.
type MemoryRepo struct {
	mu     sync.Mutex
	recs   map[string]comms.Record
	events map[string][]comms.StatusUpdate
	prefs  map[string]comms.Preferences
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		recs:   map[string]comms.Record{},
		events: map[string][]comms.StatusUpdate{},
		prefs:  map[string]comms.Preferences{},
	}
}

func (r *MemoryRepo) SavePendingCommunication(ctx context.Context, rec comms.Record) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = comms.StatusPending
	}
	r.recs[rec.ID] = rec
	return rec.ID, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, u comms.StatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return false, nil
	}
	if u.At.IsZero() {
		u.At = time.Now()
	}
	r.recs[id] = rec.Apply(u)
	r.events[id] = append(r.events[id], u)
	return true, nil
}

func (r *MemoryRepo) GetCommunication(ctx context.Context, id string) (comms.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return comms.Record{}, ErrNotFound
	}
	return rec, nil
}

// Events returns the status transitions recorded for id, oldest first.
func (r *MemoryRepo) Events(id string) []comms.StatusUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]comms.StatusUpdate, len(r.events[id]))
	copy(out, r.events[id])
	return out
}

func (r *MemoryRepo) ListCommunications(ctx context.Context, f Filter) ([]comms.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]comms.Record, 0)
	for _, rec := range r.recs {
		if f.matches(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) FindLatestByRecipient(ctx context.Context, recipient string) (comms.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		best  comms.Record
		found bool
	)
	for _, rec := range r.recs {
		if rec.Metadata[comms.MetaRecipient] != recipient {
			continue
		}
		if !found || rec.UpdatedAt.After(best.UpdatedAt) {
			best, found = rec, true
		}
	}
	if !found {
		return comms.Record{}, ErrNotFound
	}
	return best, nil
}

func (r *MemoryRepo) CountPending(ctx context.Context, clientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.recs {
		if rec.ClientID == clientID && (rec.Status == comms.StatusPending || rec.Status == comms.StatusQueued) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) LastSentAt(ctx context.Context, clientID string) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *time.Time
	for _, rec := range r.recs {
		if rec.ClientID != clientID || rec.SentAt == nil {
			continue
		}
		if last == nil || rec.SentAt.After(*last) {
			t := *rec.SentAt
			last = &t
		}
	}
	return last, nil
}

func (r *MemoryRepo) GetClientPreferences(ctx context.Context, clientID string) (*comms.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prefs[clientID]
	if !ok {
		return nil, nil
	}
	p.PreferredChannels = append([]comms.Channel(nil), p.PreferredChannels...)
	return &p, nil
}

func (r *MemoryRepo) SaveClientPreferences(ctx context.Context, p comms.Preferences) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.prefs[p.ClientID]
	p.PreferredChannels = append([]comms.Channel(nil), p.PreferredChannels...)
	r.prefs[p.ClientID] = p
	return !existed, nil
}
