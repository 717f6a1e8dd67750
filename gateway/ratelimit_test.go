package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestLimiter(t *testing.T, profiles ...ProviderProfile) *RateLimiter {
	t.Helper()
	r := NewRegistry()
	adapter := &fakeAdapter{kind: KindSyncJSON}
	for _, p := range profiles {
		require.NoError(t, r.Register(p, staticFactory(adapter)))
	}
	return NewRateLimiter(r, nil)
}

func TestRateLimiter_AdmitWithinBurst(t *testing.T) {
	l := newTestLimiter(t, testProfile("alpha", 2))

	// Two tokens available, third caller must wait roughly one refill
	// interval (60s / 2rpm = 30s).
	first, err := l.Admit("alpha")
	require.NoError(t, err)
	assert.Zero(t, first)

	second, err := l.Admit("alpha")
	require.NoError(t, err)
	assert.Zero(t, second)

	third, err := l.Admit("alpha")
	require.NoError(t, err)
	assert.Greater(t, third, 25*time.Second)
	assert.LessOrEqual(t, third, 30*time.Second)
}

func TestRateLimiter_UnknownProvider(t *testing.T) {
	l := newTestLimiter(t)

	_, err := l.Admit("ghost")
	require.Error(t, err)
	assert.Equal(t, ErrUnknownProvider, GetErrorCode(err))
}

func TestRateLimiter_IndependentBuckets(t *testing.T) {
	l := newTestLimiter(t, testProfile("alpha", 1), testProfile("beta", 1))

	delay, err := l.Admit("alpha")
	require.NoError(t, err)
	assert.Zero(t, delay)

	// Draining alpha's bucket leaves beta untouched.
	delay, err = l.Admit("beta")
	require.NoError(t, err)
	assert.Zero(t, delay)

	delay, err = l.Admit("alpha")
	require.NoError(t, err)
	assert.Positive(t, delay)
}

func TestRateLimiter_WaitCancellation(t *testing.T) {
	l := newTestLimiter(t, testProfile("alpha", 1))

	require.NoError(t, l.Wait(context.Background(), "alpha"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx, "alpha")
	require.Error(t, err)
	assert.Equal(t, ErrCancelled, GetErrorCode(err))

	// The cancelled wait returned its token, so the bucket owes at most
	// one refill interval, not two.
	delay, err := l.Admit("alpha")
	require.NoError(t, err)
	assert.LessOrEqual(t, delay, 60*time.Second)
}

func TestRateLimiter_ResetRebuildsBuckets(t *testing.T) {
	r := NewRegistry()
	adapter := &fakeAdapter{kind: KindSyncJSON}
	require.NoError(t, r.Register(testProfile("alpha", 1), staticFactory(adapter)))
	l := NewRateLimiter(r, nil)

	delay, err := l.Admit("alpha")
	require.NoError(t, err)
	assert.Zero(t, delay)

	// Raise the limit and reset; the drained bucket is discarded.
	require.NoError(t, r.Reload([]ProviderProfile{testProfile("alpha", 100)}))
	l.Reset()

	delay, err = l.Admit("alpha")
	require.NoError(t, err)
	assert.Zero(t, delay)
}

// Property: however many callers contend, immediate admissions never
// exceed the declared per-minute budget; everyone else is given a delay.
func TestRateLimiter_NeverOverGrants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rpm := rapid.IntRange(1, 120).Draw(t, "rpm")
		callers := rapid.IntRange(1, 200).Draw(t, "callers")

		registry := NewRegistry()
		if err := registry.Register(testProfile("alpha", rpm), staticFactory(&fakeAdapter{kind: KindSyncJSON})); err != nil {
			t.Fatalf("register failed: %v", err)
		}
		l := NewRateLimiter(registry, nil)

		immediate := 0
		for i := 0; i < callers; i++ {
			delay, err := l.Admit("alpha")
			if err != nil {
				t.Fatalf("admit failed: %v", err)
			}
			if delay == 0 {
				immediate++
			}
		}
		want := callers
		if rpm < want {
			want = rpm
		}
		if immediate != want {
			t.Fatalf("rpm=%d callers=%d: %d immediate admissions, want %d", rpm, callers, immediate, want)
		}
	})
}
