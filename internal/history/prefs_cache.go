package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"comms-orchestrator/internal/comms"

	"github.com/redis/go-redis/v9"
)

// PreferencesStore is the preference half of Repository.
type PreferencesStore interface {
	GetClientPreferences(ctx context.Context, clientID string) (*comms.Preferences, error)
	SaveClientPreferences(ctx context.Context, p comms.Preferences) (bool, error)
}

// CachedPreferences is a read-through Redis cache in front of a
// PreferencesStore. Writes go to the store first and then drop the cache
// entry. Redis failures degrade to store reads.
type CachedPreferences struct {
	store PreferencesStore
	rdb   redis.Cmdable
	ttl   time.Duration
	log   *slog.Logger
}

func NewCachedPreferences(store PreferencesStore, rdb redis.Cmdable, ttl time.Duration, log *slog.Logger) *CachedPreferences {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedPreferences{store: store, rdb: rdb, ttl: ttl, log: log.With("component", "prefs_cache")}
}

func prefsKey(clientID string) string { return "comms:prefs:" + clientID }

func (c *CachedPreferences) GetClientPreferences(ctx context.Context, clientID string) (*comms.Preferences, error) {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, prefsKey(clientID)).Bytes()
		switch {
		case err == nil:
			var p comms.Preferences
			if jerr := json.Unmarshal(raw, &p); jerr == nil {
				return &p, nil
			}
			c.log.Warn("dropping undecodable cache entry", "client_id", clientID)
		case errors.Is(err, redis.Nil):
		default:
			c.log.Warn("preferences cache read failed", "client_id", clientID, "err", err)
		}
	}

	p, err := c.store.GetClientPreferences(ctx, clientID)
	if err != nil || p == nil || c.rdb == nil {
		return p, err
	}
	if raw, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, prefsKey(clientID), raw, c.ttl).Err(); err != nil {
			c.log.Warn("preferences cache write failed", "client_id", clientID, "err", err)
		}
	}
	return p, nil
}

func (c *CachedPreferences) SaveClientPreferences(ctx context.Context, p comms.Preferences) (bool, error) {
	created, err := c.store.SaveClientPreferences(ctx, p)
	if err != nil {
		return false, err
	}
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, prefsKey(p.ClientID)).Err(); err != nil {
			c.log.Warn("preferences cache invalidation failed", "client_id", p.ClientID, "err", err)
		}
	}
	return created, nil
}
