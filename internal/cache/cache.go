package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ActionSentinel/internal/logger"
	"ActionSentinel/internal/model"

	"github.com/rs/zerolog"
)

// Loader reads action records from persistence.
type Loader interface {
	LoadAll(ctx context.Context) ([]model.Action, error)
	LoadOne(ctx context.Context, id int64) (model.Action, bool, error)
}

// Cache holds the working set of actions the cycle evaluates.
//
// Entries are stored by value and replaced wholesale, so a reader holding a
// copy from All never sees a half-written action.
type Cache struct {
	mu      sync.RWMutex
	actions map[int64]model.Action
	loader  Loader
	log     zerolog.Logger
}

// New creates an empty cache backed by loader.
func New(loader Loader, log zerolog.Logger) *Cache {
	return &Cache{
		actions: make(map[int64]model.Action),
		loader:  loader,
		log:     logger.Component(log, "action_cache"),
	}
}

// Initialize replaces the whole cache with a fresh load. On failure the
// previous contents are kept.
func (c *Cache) Initialize(ctx context.Context) error {
	c.log.Info().Msg("Initializing action state from persistence")

	all, err := c.loader.LoadAll(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to initialize action state")
		return fmt.Errorf("action state initialization failed: %w", err)
	}

	fresh := make(map[int64]model.Action, len(all))
	for _, a := range all {
		fresh[a.ID] = a
	}

	c.mu.Lock()
	c.actions = fresh
	c.mu.Unlock()

	c.log.Info().Int("actions", len(fresh)).Msg("Initialized action state")
	return nil
}

// Sync refreshes one action from persistence and reports whether it was
// upserted. An id that no longer exists upstream is skipped, not removed.
func (c *Cache) Sync(ctx context.Context, id int64) (bool, error) {
	a, found, err := c.loader.LoadOne(ctx, id)
	if err != nil {
		return false, fmt.Errorf("action sync failed for id %d: %w", id, err)
	}
	if !found {
		c.log.Warn().Int64("action_id", id).Msg("Action not found in persistence, cannot sync")
		return false, nil
	}

	c.mu.Lock()
	c.actions[id] = a
	c.mu.Unlock()

	c.log.Debug().Int64("action_id", id).Msg("Synced action")
	return true, nil
}

// Remove drops an action. It reports whether the id was present.
func (c *Cache) Remove(id int64) bool {
	c.mu.Lock()
	_, ok := c.actions[id]
	delete(c.actions, id)
	c.mu.Unlock()

	if !ok {
		c.log.Warn().Int64("action_id", id).Msg("Action was not present in cache")
		return false
	}
	c.log.Debug().Int64("action_id", id).Msg("Removed action")
	return true
}

// All returns a point-in-time copy of every cached action, ordered by id.
func (c *Cache) All() []model.Action {
	c.mu.RLock()
	out := make([]model.Action, 0, len(c.actions))
	for _, a := range c.actions {
		out = append(out, a)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns one cached action.
func (c *Cache) Get(id int64) (model.Action, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actions[id]
	return a, ok
}

// Len is the number of cached actions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.actions)
}
