// Package keypool hands out upstream API keys in round-robin order and benches keys
// that failed for a cooldown period.
//
// A Pool is safe for concurrent use. Cooldowns expire lazily: expired entries are
// evicted on the next call to Next.
package keypool

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultCooldown is how long a failed key is excluded from selection.
const DefaultCooldown = 5 * time.Minute

// Pool is a round-robin key pool with cooldown-based exclusion.
type Pool struct {
	keys     []string
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	cursor   int
	failedAt map[string]time.Time
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// New creates a pool over keys. A non-positive cooldown uses DefaultCooldown.
// The key slice is copied.
func New(keys []string, cooldown time.Duration, opts ...Option) *Pool {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	p := &Pool{
		keys:     append([]string(nil), keys...),
		cooldown: cooldown,
		now:      time.Now,
		failedAt: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Next returns the next key not in cooldown. The cursor advances past every key
// examined, so consecutive calls rotate through the pool. ok is false when every
// key is cooling down.
func (p *Pool) Next() (key string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for k, failed := range p.failedAt {
		if now.Sub(failed) > p.cooldown {
			delete(p.failedAt, k)
			slog.Info("api key cooldown expired", "key", Mask(k))
		}
	}

	for range len(p.keys) {
		candidate := p.keys[p.cursor]
		p.cursor = (p.cursor + 1) % len(p.keys)

		if _, cooling := p.failedAt[candidate]; !cooling {
			return candidate, true
		}
	}

	if len(p.keys) > 0 {
		slog.Warn("all api keys are in cooldown", "keys", len(p.keys))
	}
	return "", false
}

// MarkFailed starts (or restarts) the cooldown of key.
func (p *Pool) MarkFailed(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failedAt[key] = p.now()
	slog.Warn("api key marked as failed", "key", Mask(key), "cooldown", p.cooldown)
}

// Available counts keys that never failed or whose cooldown has elapsed.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	available := 0
	for _, key := range p.keys {
		if !p.coolingLocked(key, now) {
			available++
		}
	}
	return available
}

// Len returns the number of keys in the pool.
func (p *Pool) Len() int {
	return len(p.keys)
}

// ResetAll clears every cooldown.
func (p *Pool) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	clear(p.failedAt)
	slog.Info("all api key cooldowns cleared")
}

// KeyStatus describes one key in a Status snapshot.
type KeyStatus struct {
	KeyPrefix         string `json:"key_prefix"`
	Available         bool   `json:"available"`
	CooldownRemaining int    `json:"cooldown_remaining"`
}

// Status is a point-in-time view of the pool.
type Status struct {
	TotalKeys       int         `json:"total_keys"`
	AvailableKeys   int         `json:"available_keys"`
	FailedKeys      int         `json:"failed_keys"`
	CooldownSeconds int         `json:"cooldown_period"`
	Keys            []KeyStatus `json:"keys"`
}

// Status returns a snapshot without evicting expired cooldowns.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	status := Status{
		TotalKeys:       len(p.keys),
		CooldownSeconds: int(p.cooldown / time.Second),
		Keys:            make([]KeyStatus, 0, len(p.keys)),
	}

	for _, key := range p.keys {
		ks := KeyStatus{KeyPrefix: Mask(key), Available: true}
		if p.coolingLocked(key, now) {
			ks.Available = false
			remaining := p.cooldown - now.Sub(p.failedAt[key])
			ks.CooldownRemaining = int(remaining.Round(time.Second) / time.Second)
			status.FailedKeys++
		} else {
			status.AvailableKeys++
		}
		status.Keys = append(status.Keys, ks)
	}

	return status
}

// coolingLocked reports whether key is inside its cooldown window. Callers hold mu.
func (p *Pool) coolingLocked(key string, now time.Time) bool {
	failed, ok := p.failedAt[key]
	return ok && now.Sub(failed) <= p.cooldown
}

// Mask shortens a key for logs and status output.
func Mask(key string) string {
	const visible = 10
	if len(key) <= visible {
		return key[:len(key)/2] + "..."
	}
	return key[:visible] + "..."
}
