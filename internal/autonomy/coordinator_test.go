package autonomy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/mystiatech/conductor/internal/emotion"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []conductor.Request
	fail  bool
}

func (f *fakeDispatcher) Route(_ context.Context, req conductor.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.fail {
		return "error", assert.AnError
	}
	return "success", nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func setState(stub *emotion.Stub, userID string, emo conductor.EmotionalIntensity, value float64, lastUserMsg time.Time) {
	stub.Set(conductor.EmotionalState{
		UserID:      userID,
		Intensities: map[conductor.EmotionalIntensity]float64{emo: value},
		LastUserMsg: lastUserMsg,
	})
}

func TestEvaluateUserFiresWhenThresholdCrossed(t *testing.T) {
	stub := emotion.NewStub()
	setState(stub, "u1", conductor.EmotionFrustration, 0.9, time.Now())
	disp := &fakeDispatcher{}
	c := New(stub, disp, 100, "UTC", WithTrackedUsers(func() []string { return []string{"u1"} }))

	c.Tick(context.Background())

	require.Equal(t, 1, disp.count())
	hist := c.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "help_request", hist[0].ActionKind)
}

func TestEvaluateUserSkipsBelowThreshold(t *testing.T) {
	stub := emotion.NewStub()
	setState(stub, "u1", conductor.EmotionFrustration, 0.1, time.Now())
	disp := &fakeDispatcher{}
	c := New(stub, disp, 100, "UTC", WithTrackedUsers(func() []string { return []string{"u1"} }))

	c.Tick(context.Background())

	assert.Equal(t, 0, disp.count())
}

func TestCooldownBlocksRefire(t *testing.T) {
	stub := emotion.NewStub()
	setState(stub, "u1", conductor.EmotionFrustration, 0.9, time.Now())
	disp := &fakeDispatcher{}
	c := New(stub, disp, 100, "UTC", WithTrackedUsers(func() []string { return []string{"u1"} }))

	c.Tick(context.Background())
	c.Tick(context.Background())

	assert.Equal(t, 1, disp.count())
}

func TestAllEligibleTriggersFireInNonIncreasingPriorityOrder(t *testing.T) {
	stub := emotion.NewStub()
	stub.Set(conductor.EmotionalState{
		UserID: "u1",
		Intensities: map[conductor.EmotionalIntensity]float64{
			conductor.EmotionFrustration: 0.9, // priority 4
			conductor.EmotionLoneliness:  0.9, // priority 3
		},
		LastUserMsg: time.Now(),
	})
	disp := &fakeDispatcher{}
	c := New(stub, disp, 100, "UTC", WithTrackedUsers(func() []string { return []string{"u1"} }))

	c.Tick(context.Background())

	hist := c.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "help_request", hist[0].ActionKind)
	assert.Equal(t, 4, hist[0].Priority)
	assert.Equal(t, "ramble", hist[1].ActionKind)
	assert.Equal(t, 3, hist[1].Priority)
}

func TestSpontaneousTriggerRequiresAppropriateHoursAndIdleWindow(t *testing.T) {
	stub := emotion.NewStub()
	// Loneliness high enough for both the non-spontaneous (0.7) and
	// spontaneous (0.8) triggers, but with a LastUserMsg far outside the
	// idle window (just now), so spontaneous must not fire; the
	// non-spontaneous "ramble" trigger is still eligible and should win
	// by priority regardless of time-of-day gating.
	setState(stub, "u1", conductor.EmotionLoneliness, 0.95, time.Now())
	disp := &fakeDispatcher{}
	c := New(stub, disp, 100, "UTC", WithTrackedUsers(func() []string { return []string{"u1"} }))

	c.Tick(context.Background())

	hist := c.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "ramble", hist[0].ActionKind)
}

func TestNoFireWhenUserUntracked(t *testing.T) {
	stub := emotion.NewStub()
	disp := &fakeDispatcher{}
	c := New(stub, disp, 100, "UTC", WithTrackedUsers(func() []string { return []string{"ghost"} }))

	c.Tick(context.Background())

	assert.Equal(t, 0, disp.count())
}

func TestHistoryBounded(t *testing.T) {
	stub := emotion.NewStub()
	disp := &fakeDispatcher{}
	c := New(stub, disp, 100000, "UTC")

	now := time.Now()
	for i := 0; i < firingHistoryLimit+10; i++ {
		c.fire(context.Background(), "u1", DefaultTriggers[0], now)
	}

	assert.Len(t, c.History(), firingHistoryLimit)
}

func TestRateLimiterCapsFiring(t *testing.T) {
	stub := emotion.NewStub()
	disp := &fakeDispatcher{}
	// burst of 1: two triggers are eligible, but only the first fire within
	// the window succeeds; the second is silently dropped by the limiter.
	c := New(stub, disp, 1, "UTC")

	now := time.Now()
	c.evaluateUser(context.Background(), "never-registered") // no-op, no state

	stub.Set(conductor.EmotionalState{
		UserID: "u1",
		Intensities: map[conductor.EmotionalIntensity]float64{
			conductor.EmotionFrustration: 0.9,
			conductor.EmotionLoneliness:  0.9,
		},
		LastUserMsg: now,
	})
	c.lastFired = map[firedKey]time.Time{}
	c.evaluateUser(context.Background(), "u1")
	assert.Equal(t, 1, disp.count())
}
