package router

import (
	"context"
	"testing"
	"time"

	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScreener struct {
	refuse   bool
	category string
}

func (f *fakeScreener) ShouldRefuse(content string) (bool, string, float64, string) {
	if f.refuse {
		return true, f.category, 0.9, "blocked"
	}
	return false, "", 0, ""
}

type fakeExecutor struct {
	result conductor.IsolationResult
}

func (f *fakeExecutor) ExecuteRequest(ctx context.Context, pluginName string, req conductor.Request, pluginCode string) conductor.IsolationResult {
	return f.result
}

func newTestRouter(exec Executor, dlq *DLQ) *Router {
	r := New(&fakeScreener{}, exec, dlq, nil, 5)
	r.RegisterInstance("discord", "discord-1")
	r.RegisterInstance("internal", "internal-1")
	return r
}

func TestDetermineRouteUnknownType(t *testing.T) {
	r := newTestRouter(&fakeExecutor{}, nil)
	d := r.DetermineRoute(conductor.Request{Type: "nope"})
	assert.False(t, d.Valid)
}

func TestDetermineRouteUnavailablePlugin(t *testing.T) {
	r := newTestRouter(&fakeExecutor{}, nil)
	d := r.DetermineRoute(conductor.Request{Type: conductor.RequestAndroid})
	assert.False(t, d.Valid)
}

func TestDetermineRouteDefaultsByType(t *testing.T) {
	r := newTestRouter(&fakeExecutor{}, nil)
	d := r.DetermineRoute(conductor.Request{Type: conductor.RequestDiscord})
	assert.True(t, d.Valid)
	assert.Equal(t, 2, d.Priority)
	assert.Equal(t, 3, d.TimeoutSeconds)
}

func TestRouteSuccess(t *testing.T) {
	exec := &fakeExecutor{result: conductor.IsolationResult{Success: true, Output: "ok", ExitCode: 0}}
	r := newTestRouter(exec, nil)
	env := r.Route(context.Background(), conductor.Request{Type: conductor.RequestDiscord, Content: "hi"})
	assert.Equal(t, "success", env.Status)
	assert.NotEmpty(t, env.RequestID)
}

func TestRouteRefusalShortCircuits(t *testing.T) {
	exec := &fakeExecutor{result: conductor.IsolationResult{Success: true}}
	r := New(&fakeScreener{refuse: true, category: "harmful_requests"}, exec, nil, nil, 5)
	r.RegisterInstance("discord", "discord-1")
	env := r.Route(context.Background(), conductor.Request{Type: conductor.RequestDiscord, Content: "bad"})
	assert.Equal(t, "success", env.Status)
	assert.Equal(t, "harmful_requests", env.RefusalCategory)
	assert.NotNil(t, env.Result)
}

func TestRouteTimeoutEnqueuesDLQ(t *testing.T) {
	store := NewMemoryStore()
	exec := &fakeExecutor{result: conductor.IsolationResult{Success: false, ExitCode: 124, Error: "timeout"}}
	dlq := NewDLQ(store, exec, nil, 3, time.Hour)
	r := newTestRouter(exec, dlq)

	env := r.Route(context.Background(), conductor.Request{Type: conductor.RequestDiscord, Content: "hi"})
	assert.Equal(t, "timeout", env.Status)
	assert.True(t, env.QueuedForRetry)

	n, err := store.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	exec := &fakeExecutor{result: conductor.IsolationResult{Success: false, ExitCode: 1, Error: "boom"}}
	r := newTestRouter(exec, nil)

	for i := 0; i < breakerFailureThreshold; i++ {
		r.Route(context.Background(), conductor.Request{Type: conductor.RequestDiscord, Content: "hi"})
	}

	env := r.Route(context.Background(), conductor.Request{Type: conductor.RequestDiscord, Content: "hi"})
	assert.Contains(t, env.Error, "circuit breaker open")
}

func TestBackoffCapsAt30Seconds(t *testing.T) {
	assert.Equal(t, 1*time.Second, backoff(0))
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 30*time.Second, backoff(10))
}

func TestDLQSweepDropsAfterMaxRetries(t *testing.T) {
	store := NewMemoryStore()
	exec := &fakeExecutor{result: conductor.IsolationResult{Success: false, Error: "still failing"}}
	dlq := NewDLQ(store, exec, nil, 2, time.Hour)

	dlq.Enqueue(context.Background(), conductor.DLQEntry{
		RequestID:  "r1",
		PluginName: "discord",
		Request:    conductor.Request{ID: "r1", Type: conductor.RequestDiscord},
		RetryCount: 1,
		MaxRetries: 2,
		NextRetry:  time.Now().Add(-time.Second),
	})

	dlq.sweep(context.Background())

	n, err := store.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPluginInstancesRoundRobin(t *testing.T) {
	p := newPluginInstances()
	p.register("discord", "a")
	p.register("discord", "b")
	assert.Equal(t, "a", p.next("discord"))
	assert.Equal(t, "b", p.next("discord"))
	assert.Equal(t, "a", p.next("discord"))
}
