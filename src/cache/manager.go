package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "cex:"

// externalReadTimeout bounds a collapsed external read
const externalReadTimeout = 2 * time.Second

// Stats are cumulative operation counters
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Sets          int64 `json:"sets"`
	Deletes       int64 `json:"deletes"`
	Errors        int64 `json:"errors"`
	Promotions    int64 `json:"promotions"`
	ExternalTier  bool  `json:"external_tier"`
	CategoryCount int   `json:"categories"`
}

// Manager routes cache operations to the tiers a category's policy names.
// Every operation logs and swallows store errors; callers only see misses and false.
type Manager struct {
	memory   Store
	external Store
	policies Policies
	group    singleflight.Group
	logger   zerolog.Logger

	hits, misses, sets, deletes, failures, promotions atomic.Int64
}

// NewManager creates a manager. external may be nil, in which case external and
// hybrid categories are served from memory.
func NewManager(memory, external Store, policies Policies) *Manager {
	if policies == nil {
		policies = DefaultPolicies()
	}
	m := &Manager{
		memory:   memory,
		external: external,
		policies: policies,
		logger:   logging.NewLogger("cache"),
	}

	if external == nil {
		var degraded []string
		for name, p := range policies {
			if p.Tier != TierMemory {
				degraded = append(degraded, name)
			}
		}
		if len(degraded) > 0 {
			m.logger.Warn().
				Strs("categories", degraded).
				Msg("No external cache configured, serving these categories from memory")
		}
	}
	return m
}

// tier returns the effective tier of a category
func (m *Manager) tier(category string) (Policy, Tier, bool) {
	p, ok := m.policies[category]
	if !ok {
		m.logger.Warn().Str("category", category).Msg("Unknown cache category")
		return Policy{}, "", false
	}
	if m.external == nil {
		return p, TierMemory, true
	}
	return p, p.Tier, true
}

// Policy returns the configured policy of a category
func (m *Manager) Policy(category string) (Policy, bool) {
	p, ok := m.policies[category]
	return p, ok
}

func fullKey(category, key string) string {
	return keyPrefix + category + ":" + key
}

func categoryPrefix(category string) string {
	return keyPrefix + category + ":"
}

func (m *Manager) fail(op, category string, tier Tier, key string, err error) {
	m.failures.Add(1)
	observe(category, tier, "error")
	m.logger.Error().Err(err).
		Str("op", op).
		Str("category", category).
		Str("tier", string(tier)).
		Str("key", key).
		Msg("Cache operation failed")
}

// Get returns the cached value or false on any miss or error
func (m *Manager) Get(ctx context.Context, category, key string) ([]byte, bool) {
	policy, tier, ok := m.tier(category)
	if !ok {
		return nil, false
	}
	k := fullKey(category, key)

	switch tier {
	case TierMemory:
		return m.getFrom(ctx, m.memory, TierMemory, category, k, true)
	case TierExternal:
		return m.getFrom(ctx, m.external, TierExternal, category, k, true)
	}

	if v, ok := m.getFrom(ctx, m.memory, TierMemory, category, k, false); ok {
		return v, true
	}

	// The shared lookup outlives any single caller's cancellation
	flight := m.group.DoChan(k, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), externalReadTimeout)
		defer cancel()
		return m.external.Get(fctx, k)
	})
	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		return nil, false
	}
	if res.Err != nil {
		m.fail("get", category, TierExternal, k, res.Err)
		return nil, false
	}
	item, _ := res.Val.(*Item)
	if item == nil {
		m.misses.Add(1)
		observe(category, TierExternal, "miss")
		return nil, false
	}

	m.hits.Add(1)
	observe(category, TierExternal, "hit")

	ttl := item.TTL
	if ttl <= 0 || ttl > policy.TTL {
		ttl = policy.TTL
	}
	if err := m.memory.Set(ctx, k, item.Value, ttl); err != nil {
		m.fail("promote", category, TierMemory, k, err)
	} else {
		m.promotions.Add(1)
	}
	return item.Value, true
}

// getFrom reads one tier. countMiss is false when another tier is consulted next.
func (m *Manager) getFrom(ctx context.Context, s Store, tier Tier, category, key string, countMiss bool) ([]byte, bool) {
	item, err := s.Get(ctx, key)
	if err != nil {
		m.fail("get", category, tier, key, err)
		return nil, false
	}
	if item == nil {
		if countMiss {
			m.misses.Add(1)
		}
		observe(category, tier, "miss")
		return nil, false
	}
	m.hits.Add(1)
	observe(category, tier, "hit")
	return item.Value, true
}

func (m *Manager) effectiveTier(category string) Tier {
	if m.external == nil {
		return TierMemory
	}
	return m.policies[category].Tier
}

// Set writes value to every tier of the category. A zero ttl uses the category default.
// Hybrid writes go to the external tier first; if that fails the memory entry is dropped.
func (m *Manager) Set(ctx context.Context, category, key string, value []byte, ttl time.Duration) bool {
	policy, tier, ok := m.tier(category)
	if !ok {
		return false
	}
	if ttl <= 0 {
		ttl = policy.TTL
	}
	k := fullKey(category, key)

	switch tier {
	case TierMemory:
		return m.setIn(ctx, m.memory, TierMemory, category, k, value, ttl)
	case TierExternal:
		return m.setIn(ctx, m.external, TierExternal, category, k, value, ttl)
	}

	if !m.setIn(ctx, m.external, TierExternal, category, k, value, ttl) {
		if err := m.memory.Delete(ctx, k); err != nil {
			m.fail("invalidate", category, TierMemory, k, err)
		}
		return false
	}
	return m.setIn(ctx, m.memory, TierMemory, category, k, value, ttl)
}

func (m *Manager) setIn(ctx context.Context, s Store, tier Tier, category, key string, value []byte, ttl time.Duration) bool {
	if err := s.Set(ctx, key, value, ttl); err != nil {
		m.fail("set", category, tier, key, err)
		return false
	}
	m.sets.Add(1)
	observe(category, tier, "set")
	return true
}

// Delete removes a key from every tier of the category
func (m *Manager) Delete(ctx context.Context, category, key string) bool {
	_, tier, ok := m.tier(category)
	if !ok {
		return false
	}
	return m.deleteKeys(ctx, category, tier, fullKey(category, key))
}

func (m *Manager) deleteKeys(ctx context.Context, category string, tier Tier, keys ...string) bool {
	if len(keys) == 0 {
		return true
	}
	ok := true
	for _, s := range m.stores(tier) {
		if err := s.store.Delete(ctx, keys...); err != nil {
			m.fail("delete", category, s.tier, strings.Join(keys, ","), err)
			ok = false
			continue
		}
		observe(category, s.tier, "delete")
	}
	if ok {
		m.deletes.Add(int64(len(keys)))
	}
	return ok
}

type tierStore struct {
	tier  Tier
	store Store
}

func (m *Manager) stores(tier Tier) []tierStore {
	switch tier {
	case TierMemory:
		return []tierStore{{TierMemory, m.memory}}
	case TierExternal:
		return []tierStore{{TierExternal, m.external}}
	default:
		return []tierStore{{TierExternal, m.external}, {TierMemory, m.memory}}
	}
}

// Clear removes every key of a category
func (m *Manager) Clear(ctx context.Context, category string) bool {
	return m.InvalidatePattern(ctx, category, "") >= 0
}

// InvalidatePattern deletes every key of the category whose identifier contains
// substr, scanning each tier. It returns the number of distinct keys removed, or -1
// if any tier failed.
func (m *Manager) InvalidatePattern(ctx context.Context, category, substr string) int {
	_, tier, ok := m.tier(category)
	if !ok {
		return -1
	}
	prefix := categoryPrefix(category)

	removed := make(map[string]struct{})
	failed := false
	for _, s := range m.stores(tier) {
		keys, err := s.store.Keys(ctx, prefix)
		if err != nil {
			m.fail("scan", category, s.tier, prefix, err)
			failed = true
			continue
		}
		var matched []string
		for _, k := range keys {
			if strings.Contains(strings.TrimPrefix(k, prefix), substr) {
				matched = append(matched, k)
			}
		}
		if len(matched) == 0 {
			continue
		}
		if err := s.store.Delete(ctx, matched...); err != nil {
			m.fail("delete", category, s.tier, prefix, err)
			failed = true
			continue
		}
		for _, k := range matched {
			removed[k] = struct{}{}
		}
	}

	m.deletes.Add(int64(len(removed)))
	if failed {
		return -1
	}
	return len(removed)
}

// GetJSON decodes a cached JSON value into dest
func (m *Manager) GetJSON(ctx context.Context, category, key string, dest interface{}) bool {
	data, ok := m.Get(ctx, category, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		m.fail("decode", category, m.effectiveTier(category), key, err)
		m.Delete(ctx, category, key)
		return false
	}
	return true
}

// SetJSON encodes v as JSON and caches it
func (m *Manager) SetJSON(ctx context.Context, category, key string, v interface{}, ttl time.Duration) bool {
	data, err := json.Marshal(v)
	if err != nil {
		m.fail("encode", category, m.effectiveTier(category), key, err)
		return false
	}
	return m.Set(ctx, category, key, data, ttl)
}

// HasExternal reports whether an external tier is configured
func (m *Manager) HasExternal() bool {
	return m.external != nil
}

// Stats returns a snapshot of the counters
func (m *Manager) Stats() Stats {
	return Stats{
		Hits:          m.hits.Load(),
		Misses:        m.misses.Load(),
		Sets:          m.sets.Load(),
		Deletes:       m.deletes.Load(),
		Errors:        m.failures.Load(),
		Promotions:    m.promotions.Load(),
		ExternalTier:  m.external != nil,
		CategoryCount: len(m.policies),
	}
}

// Close closes both tiers
func (m *Manager) Close() error {
	var firstErr error
	if m.external != nil {
		firstErr = m.external.Close()
	}
	if err := m.memory.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
