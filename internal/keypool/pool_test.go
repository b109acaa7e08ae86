package keypool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestPool_RoundRobin(t *testing.T) {
	p := New([]string{"k1", "k2", "k3"}, time.Minute)

	var got []string
	for range 6 {
		key, ok := p.Next()
		require.True(t, ok)
		got = append(got, key)
	}

	assert.Equal(t, []string{"k1", "k2", "k3", "k1", "k2", "k3"}, got)
}

func TestPool_SkipsFailedKeys(t *testing.T) {
	clock := newFakeClock()
	p := New([]string{"k1", "k2", "k3"}, time.Minute, WithClock(clock.Now))

	p.MarkFailed("k2")

	var got []string
	for range 4 {
		key, ok := p.Next()
		require.True(t, ok)
		got = append(got, key)
	}

	assert.Equal(t, []string{"k1", "k3", "k1", "k3"}, got)
	assert.Equal(t, 2, p.Available())
}

func TestPool_NoneAvailableOnlyWhenAllFailed(t *testing.T) {
	keys := []string{"k1", "k2", "k3", "k4"}

	for failed := 0; failed <= len(keys); failed++ {
		clock := newFakeClock()
		p := New(keys, time.Minute, WithClock(clock.Now))
		for _, k := range keys[:failed] {
			p.MarkFailed(k)
		}

		for range 2 * len(keys) {
			key, ok := p.Next()
			if failed == len(keys) {
				assert.False(t, ok)
				assert.Empty(t, key)
				continue
			}
			require.True(t, ok, "failed=%d", failed)
			assert.NotContains(t, keys[:failed], key, "returned a key in cooldown")
		}
	}
}

func TestPool_CooldownExpires(t *testing.T) {
	clock := newFakeClock()
	p := New([]string{"k1"}, time.Minute, WithClock(clock.Now))

	p.MarkFailed("k1")
	_, ok := p.Next()
	assert.False(t, ok)

	clock.Advance(time.Minute)
	_, ok = p.Next()
	assert.False(t, ok, "cooldown must elapse strictly")

	clock.Advance(time.Second)
	key, ok := p.Next()
	assert.True(t, ok)
	assert.Equal(t, "k1", key)
	assert.Equal(t, 1, p.Available())
}

func TestPool_MarkFailedIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	p := New([]string{"k1", "k2"}, time.Minute, WithClock(clock.Now))

	p.MarkFailed("k1")
	clock.Advance(30 * time.Second)
	p.MarkFailed("k1")

	assert.Equal(t, 1, p.Available())

	// The second failure restarted the window.
	clock.Advance(45 * time.Second)
	assert.Equal(t, 1, p.Available())
}

func TestPool_Status(t *testing.T) {
	clock := newFakeClock()
	p := New([]string{"sk-abcdefghijklmnop", "sk-qrstuvwxyz123456"}, 5*time.Minute, WithClock(clock.Now))

	p.MarkFailed("sk-qrstuvwxyz123456")
	clock.Advance(2 * time.Minute)

	status := p.Status()
	assert.Equal(t, 2, status.TotalKeys)
	assert.Equal(t, 1, status.AvailableKeys)
	assert.Equal(t, 1, status.FailedKeys)
	assert.Equal(t, 300, status.CooldownSeconds)
	require.Len(t, status.Keys, 2)

	assert.Equal(t, KeyStatus{KeyPrefix: "sk-abcdefg...", Available: true}, status.Keys[0])
	assert.Equal(t, KeyStatus{KeyPrefix: "sk-qrstuvw...", Available: false, CooldownRemaining: 180}, status.Keys[1])

	// Status must not rotate the cursor.
	key, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, "sk-abcdefghijklmnop", key)
}

func TestPool_ResetAll(t *testing.T) {
	p := New([]string{"k1", "k2"}, time.Hour)
	p.MarkFailed("k1")
	p.MarkFailed("k2")
	require.Equal(t, 0, p.Available())

	p.ResetAll()

	assert.Equal(t, 2, p.Available())
	_, ok := p.Next()
	assert.True(t, ok)
}

func TestPool_Empty(t *testing.T) {
	p := New(nil, 0)

	_, ok := p.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, p.Available())
	assert.Equal(t, 0, p.Status().TotalKeys)
}

func TestPool_Concurrent(t *testing.T) {
	p := New([]string{"k1", "k2", "k3"}, time.Minute)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if key, ok := p.Next(); ok && i%4 == 0 {
					p.MarkFailed(key)
				}
				_ = p.Status()
			}
		}()
	}
	wg.Wait()

	p.ResetAll()
	assert.Equal(t, 3, p.Available())
}

func TestMask(t *testing.T) {
	assert.Equal(t, "sk-proj-12...", Mask("sk-proj-1234567890"))
	assert.Equal(t, "sho...", Mask("short1"))
}
