// Package router is the Conductor's authoritative request entry point (E):
// it assigns request IDs, screens for refusal, classifies and routes to a
// plugin instance, executes via the isolation runner, and on failure
// enqueues into a dead-letter queue (F) with exponential backoff.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mystiatech/conductor/internal/cerrors"
	"github.com/mystiatech/conductor/internal/clog"
	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/mystiatech/conductor/internal/metrics"
)

// Screener is the refusal screener's contract, as consumed by the router.
type Screener interface {
	ShouldRefuse(content string) (shouldRefuse bool, category string, confidence float64, reason string)
}

// PluginLookup is the subset of the Plugin Manager the router needs to
// determine target availability and pick an instance.
type PluginLookup interface {
	GetPlugin(name string) (handler interface{}, ok bool)
}

// Executor is the isolated plugin runner's contract, as consumed by the router.
type Executor interface {
	ExecuteRequest(ctx context.Context, pluginName string, req conductor.Request, pluginCode string) conductor.IsolationResult
}

type routeDefault struct {
	priority       int
	timeoutSeconds int
}

var routeDefaults = map[conductor.RequestType]routeDefault{
	conductor.RequestInternal:  {priority: 3, timeoutSeconds: 10},
	conductor.RequestDiscord:   {priority: 2, timeoutSeconds: 3},
	conductor.RequestAndroid:   {priority: 2, timeoutSeconds: 5},
	conductor.RequestTwitch:    {priority: 1, timeoutSeconds: 5},
	conductor.RequestMinecraft: {priority: 1, timeoutSeconds: 5},
	conductor.RequestTikTok:    {priority: 1, timeoutSeconds: 5},
	conductor.RequestYouTube:   {priority: 1, timeoutSeconds: 5},
}

// pluginForType maps a request type to the plugin name expected to handle
// it. The mapping is the identity of the type string; multi-instance
// plugins of the same name are load-balanced by instance selection below.
func pluginForType(t conductor.RequestType) string { return string(t) }

// Stats tracks the router's running counters and per-plugin success rate.
type Stats struct {
	mu sync.Mutex

	TotalRequests     int64
	SuccessfulRoutes  int64
	FailedRoutes      int64
	DLQEntries        int64
	DLQRetries        int64
	DLQFailures       int64

	pluginRequests map[string]int64
	pluginSuccess  map[string]int64
}

func newStats() *Stats {
	return &Stats{
		pluginRequests: map[string]int64{},
		pluginSuccess:  map[string]int64{},
	}
}

func (s *Stats) recordAttempt(plugin string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalRequests++
	s.pluginRequests[plugin]++
	if success {
		s.SuccessfulRoutes++
		s.pluginSuccess[plugin]++
	} else {
		s.FailedRoutes++
	}
}

// PluginSuccessRate returns the running success rate for a plugin, or 0 if
// it has never been routed to.
func (s *Stats) PluginSuccessRate(plugin string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.pluginRequests[plugin]
	if total == 0 {
		return 0
	}
	return float64(s.pluginSuccess[plugin]) / float64(total)
}

// Snapshot returns a copy of the router's aggregate counters.
func (s *Stats) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int64{
		"total_requests":    s.TotalRequests,
		"successful_routes": s.SuccessfulRoutes,
		"failed_routes":     s.FailedRoutes,
		"dlq_entries":       s.DLQEntries,
		"dlq_retries":       s.DLQRetries,
		"dlq_failures":      s.DLQFailures,
	}
}

// Router is the Conductor's request entry point.
type Router struct {
	screener Screener
	lookup   *pluginInstances
	executor Executor
	dlq      *DLQ
	metrics  *metrics.Registry
	breakers *breakerSet

	defaultTimeoutSeconds int

	stats *Stats
}

// New constructs a Router.
func New(screener Screener, executor Executor, dlq *DLQ, reg *metrics.Registry, defaultTimeoutSeconds int) *Router {
	if defaultTimeoutSeconds <= 0 {
		defaultTimeoutSeconds = 5
	}
	return &Router{
		screener:              screener,
		lookup:                newPluginInstances(),
		executor:              executor,
		dlq:                   dlq,
		metrics:               reg,
		breakers:              newBreakerSet(reg),
		defaultTimeoutSeconds: defaultTimeoutSeconds,
		stats:                 newStats(),
	}
}

// RegisterInstance adds an instance of a plugin so the router can
// round-robin across it. Instances are currently opaque handles (just a
// name tag); the design permits more than one per plugin.
func (r *Router) RegisterInstance(pluginName, instanceID string) {
	r.lookup.register(pluginName, instanceID)
}

// DetermineRoute is the pure function of request type and plugin
// availability that produces a RoutingDecision.
func (r *Router) DetermineRoute(req conductor.Request) conductor.RoutingDecision {
	def, known := routeDefaults[req.Type]
	if !known {
		return conductor.RoutingDecision{
			RequestType: req.Type,
			Valid:       false,
			Error:       cerrors.ErrUnknownRequestType.Error(),
		}
	}

	plugin := pluginForType(req.Type)
	if !r.lookup.hasInstances(plugin) {
		return conductor.RoutingDecision{
			TargetPlugin: plugin,
			RequestType:  req.Type,
			Valid:        false,
			Error:        cerrors.ErrPluginUnavailable.Error(),
		}
	}

	timeout := def.timeoutSeconds
	if req.RequestedTimeout > 0 {
		timeout = req.RequestedTimeout
	}

	return conductor.RoutingDecision{
		TargetPlugin:   plugin,
		RequestType:    req.Type,
		Valid:          true,
		Priority:       def.priority,
		TimeoutSeconds: timeout,
	}
}

// Envelope is the response wrapper returned to the caller.
type Envelope struct {
	Status          string      `json:"status"`
	RequestID       string      `json:"request_id"`
	Plugin          string      `json:"plugin,omitempty"`
	Result          interface{} `json:"result,omitempty"`
	DurationMS      int64       `json:"duration_ms,omitempty"`
	Error           string      `json:"error,omitempty"`
	QueuedForRetry  bool        `json:"queued_for_retry,omitempty"`
	RefusalCategory string      `json:"refusal_category,omitempty"`
}

// Route runs the full pipeline for a single request.
func (r *Router) Route(ctx context.Context, req conductor.Request) Envelope {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	if r.screener != nil && req.Type != conductor.RequestInternal {
		if refuse, category, _, reason := r.screener.ShouldRefuse(req.Content); refuse {
			if r.metrics != nil {
				r.metrics.RecordRefusal(category)
			}
			clog.Router().Info().Str("request_id", req.ID).Str("category", category).Msg("request refused")
			return Envelope{
				Status:    "success",
				RequestID: req.ID,
				Result: map[string]interface{}{
					"refused": true,
					"reason":  reason,
				},
				RefusalCategory: category,
			}
		}
	}

	decision := r.DetermineRoute(req)
	if !decision.Valid {
		r.stats.recordAttempt(decision.TargetPlugin, false)
		return Envelope{Status: "error", RequestID: req.ID, Error: decision.Error}
	}

	if r.breakers.isOpen(decision.TargetPlugin) {
		r.stats.recordAttempt(decision.TargetPlugin, false)
		return Envelope{Status: "error", RequestID: req.ID, Plugin: decision.TargetPlugin, Error: "circuit breaker open", QueuedForRetry: false}
	}

	instance := r.lookup.next(decision.TargetPlugin)
	_ = instance // reserved for multi-instance dispatch hooks

	start := time.Now()
	timeout := time.Duration(decision.TimeoutSeconds) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := r.executor.ExecuteRequest(execCtx, decision.TargetPlugin, req, "")
	durationSeconds := time.Since(start).Seconds()

	if result.Success {
		r.breakers.recordSuccess(decision.TargetPlugin)
		r.stats.recordAttempt(decision.TargetPlugin, true)
		if r.metrics != nil {
			r.metrics.RecordRoute(decision.TargetPlugin, "success", durationSeconds)
		}
		return Envelope{
			Status:     "success",
			RequestID:  req.ID,
			Plugin:     decision.TargetPlugin,
			Result:     result.Output,
			DurationMS: result.DurationMS,
		}
	}

	r.breakers.recordFailure(decision.TargetPlugin)
	r.stats.recordAttempt(decision.TargetPlugin, false)

	status := "error"
	if result.ExitCode == 124 {
		status = "timeout"
	}
	if r.metrics != nil {
		r.metrics.RecordRoute(decision.TargetPlugin, status, durationSeconds)
	}

	if r.dlq != nil {
		r.dlq.Enqueue(ctx, conductor.DLQEntry{
			RequestID:  req.ID,
			PluginName: decision.TargetPlugin,
			Request:    req,
			Error:      result.Error,
			LastAttempt: time.Now(),
		})
		r.stats.mu.Lock()
		r.stats.DLQEntries++
		r.stats.mu.Unlock()
	}

	return Envelope{
		Status:         status,
		RequestID:      req.ID,
		Plugin:         decision.TargetPlugin,
		Error:          result.Error,
		DurationMS:     result.DurationMS,
		QueuedForRetry: r.dlq != nil,
	}
}

// Stats returns the router's statistics tracker.
func (r *Router) Stats() *Stats { return r.stats }

// pluginInstances round-robins across named instances of each plugin.
type pluginInstances struct {
	mu        sync.Mutex
	instances map[string][]string
	cursor    map[string]int
}

func newPluginInstances() *pluginInstances {
	return &pluginInstances{
		instances: map[string][]string{},
		cursor:    map[string]int{},
	}
}

func (p *pluginInstances) register(plugin, instanceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instances[plugin] = append(p.instances[plugin], instanceID)
}

func (p *pluginInstances) hasInstances(plugin string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.instances[plugin]) > 0
}

func (p *pluginInstances) next(plugin string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.instances[plugin]
	if len(list) == 0 {
		return ""
	}
	idx := p.cursor[plugin] % len(list)
	p.cursor[plugin] = idx + 1
	return list[idx]
}
