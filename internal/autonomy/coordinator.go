// Package autonomy is the Autonomy Coordinator (G): on a tick it reads the
// external emotional-state snapshot for each tracked user, decides whether
// any trigger has crossed its threshold and cleared its cooldown, and fires
// an action for every eligible trigger, highest priority first, as internal
// requests through the Router.
package autonomy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/mystiatech/conductor/internal/clog"
	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/mystiatech/conductor/internal/emotion"
)

// Dispatcher is the Router's contract, as consumed by the coordinator: one
// internal-type request in, one terminal status out.
type Dispatcher interface {
	Route(ctx context.Context, req conductor.Request) (status string, err error)
}

// DefaultTriggers is the fixed trigger table. Priority is descending: higher
// numbers fire first when more than one trigger is eligible on the same tick.
var DefaultTriggers = []conductor.EmotionalTrigger{
	{Emotion: conductor.EmotionLoneliness, Threshold: 0.7, CooldownMinutes: 60, Priority: 3, ActionKind: "ramble", Spontaneous: false},
	{Emotion: conductor.EmotionExcitement, Threshold: 0.8, CooldownMinutes: 60, Priority: 2, ActionKind: "excitement_share", Spontaneous: false},
	{Emotion: conductor.EmotionFrustration, Threshold: 0.6, CooldownMinutes: 30, Priority: 4, ActionKind: "help_request", Spontaneous: false},
	{Emotion: conductor.EmotionJealousy, Threshold: 0.7, CooldownMinutes: 60, Priority: 3, ActionKind: "attention_demand", Spontaneous: false},
	{Emotion: conductor.EmotionVulnerability, Threshold: 0.5, CooldownMinutes: 120, Priority: 1, ActionKind: "connection_seek", Spontaneous: false},
	{Emotion: conductor.EmotionLoneliness, Threshold: 0.8, CooldownMinutes: 180, Priority: 2, ActionKind: "spontaneous_initiation", Spontaneous: true},
	{Emotion: conductor.EmotionExcitement, Threshold: 0.9, CooldownMinutes: 120, Priority: 2, ActionKind: "spontaneous_initiation", Spontaneous: true},
}

// appropriateHourWindows are the local-time windows spontaneous triggers may
// fire in, expressed as [start, end) hours in 24h local time.
var appropriateHourWindows = [][2]int{{7, 11}, {13, 17}, {18, 22}}

const (
	idleWindowMin = 30 * time.Minute
	idleWindowMax = 6 * time.Hour

	firingHistoryLimit = 100
)

// firedKey identifies a (user, trigger) pair for cooldown tracking.
type firedKey struct {
	userID     string
	emotion    conductor.EmotionalIntensity
	actionKind string
}

// Coordinator runs the trigger/cooldown state machine on a cron schedule.
type Coordinator struct {
	source   emotion.Source
	router   Dispatcher
	triggers []conductor.EmotionalTrigger
	tz       *time.Location

	limiter *rate.Limiter

	mu         sync.Mutex
	lastFired  map[firedKey]time.Time
	state      map[string]conductor.AutonomyState
	history    []conductor.AutonomyAction

	cr       *cron.Cron
	cronSpec string

	trackedUsers func() []string
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithTriggers overrides the default trigger table.
func WithTriggers(triggers []conductor.EmotionalTrigger) Option {
	return func(c *Coordinator) { c.triggers = triggers }
}

// WithTrackedUsers supplies the set of user IDs to evaluate on each tick.
func WithTrackedUsers(fn func() []string) Option {
	return func(c *Coordinator) { c.trackedUsers = fn }
}

// New constructs a Coordinator. maxAutonomousPerHour bounds the global
// firing rate via a token-bucket limiter keyed "global" (one limiter shared
// across all users, matching the spec's system-wide cap).
func New(source emotion.Source, router Dispatcher, maxAutonomousPerHour int, tzName string, opts ...Option) *Coordinator {
	if maxAutonomousPerHour <= 0 {
		maxAutonomousPerHour = 5
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil || tzName == "" {
		loc = time.Local
	}

	c := &Coordinator{
		source:    source,
		router:    router,
		triggers:  DefaultTriggers,
		tz:        loc,
		limiter:   rate.NewLimiter(rate.Limit(float64(maxAutonomousPerHour)/3600.0), maxAutonomousPerHour),
		lastFired: map[firedKey]time.Time{},
		state:     map[string]conductor.AutonomyState{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartCron schedules a tick at the given cron spec (e.g. "@every 15m") and
// begins background evaluation. Stop the returned cron via Stop.
func (c *Coordinator) StartCron(ctx context.Context, spec string) error {
	cr := cron.New()
	c.cronSpec = spec
	_, err := cr.AddFunc(spec, func() {
		c.Tick(ctx)
	})
	if err != nil {
		return err
	}
	c.cr = cr
	cr.Start()
	return nil
}

// Stop halts the background cron schedule, if running.
func (c *Coordinator) Stop() {
	if c.cr != nil {
		ctx := c.cr.Stop()
		<-ctx.Done()
	}
}

// History returns a copy of the bounded firing history, most recent last.
func (c *Coordinator) History() []conductor.AutonomyAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]conductor.AutonomyAction, len(c.history))
	copy(out, c.history)
	return out
}

// Tick evaluates every tracked user once: snapshot state, find eligible
// triggers, fire each of them per user in non-increasing priority order.
func (c *Coordinator) Tick(ctx context.Context) {
	if c.trackedUsers == nil {
		return
	}
	for _, userID := range c.trackedUsers() {
		c.evaluateUser(ctx, userID)
	}
}

// evaluateUser runs one user through the trigger table and fires an action
// for every trigger whose threshold and cooldown are both satisfied, in
// non-increasing priority order, each still subject to the shared rate
// limiter.
func (c *Coordinator) evaluateUser(ctx context.Context, userID string) {
	state, ok := c.source.State(userID)
	if !ok {
		return
	}

	candidates := make([]conductor.EmotionalTrigger, len(c.triggers))
	copy(candidates, c.triggers)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	now := time.Now()
	for _, trig := range candidates {
		intensity, ok := state.Intensities[trig.Emotion]
		if !ok || intensity < trig.Threshold {
			continue
		}

		key := firedKey{userID: userID, emotion: trig.Emotion, actionKind: trig.ActionKind}
		c.mu.Lock()
		last, fired := c.lastFired[key]
		c.mu.Unlock()
		if fired && now.Sub(last) < time.Duration(trig.CooldownMinutes)*time.Minute {
			continue
		}

		if trig.Spontaneous {
			if !c.withinAppropriateHours(now) || !c.withinIdleWindow(state.LastUserMsg, now) {
				continue
			}
		}

		if !c.limiter.Allow() {
			clog.Autonomy().Debug().Str("user_id", userID).Msg("autonomy rate limit exceeded, skipping fire")
			break
		}

		c.fire(ctx, userID, trig, now)
	}
}

func (c *Coordinator) withinAppropriateHours(now time.Time) bool {
	local := now.In(c.tz)
	hour := local.Hour()
	for _, w := range appropriateHourWindows {
		if hour >= w[0] && hour < w[1] {
			return true
		}
	}
	return false
}

func (c *Coordinator) withinIdleWindow(lastUserMsg, now time.Time) bool {
	if lastUserMsg.IsZero() {
		return false
	}
	idle := now.Sub(lastUserMsg)
	return idle >= idleWindowMin && idle <= idleWindowMax
}

func (c *Coordinator) fire(ctx context.Context, userID string, trig conductor.EmotionalTrigger, now time.Time) {
	action := conductor.AutonomyAction{
		UserID:     userID,
		Emotion:    trig.Emotion,
		ActionKind: trig.ActionKind,
		Priority:   trig.Priority,
		FiredAt:    now,
	}

	c.mu.Lock()
	c.state[userID] = conductor.AutonomyFiring
	c.mu.Unlock()

	executed := true
	if c.router != nil {
		_, err := c.router.Route(ctx, conductor.Request{
			Type:      conductor.RequestInternal,
			Content:   trig.ActionKind,
			UserID:    userID,
			Priority:  trig.Priority,
			CreatedAt: now,
			Context: map[string]interface{}{
				"emotion":     string(trig.Emotion),
				"action_kind": trig.ActionKind,
			},
		})
		if err != nil {
			executed = false
			clog.Autonomy().Warn().Err(err).Str("user_id", userID).Str("action_kind", trig.ActionKind).Msg("autonomy action dispatch failed")
		}
	}

	c.mu.Lock()
	key := firedKey{userID: userID, emotion: trig.Emotion, actionKind: trig.ActionKind}
	c.lastFired[key] = now
	c.state[userID] = conductor.AutonomyCooldown
	c.history = append(c.history, action)
	if len(c.history) > firingHistoryLimit {
		c.history = c.history[len(c.history)-firingHistoryLimit:]
	}
	c.mu.Unlock()

	clog.Autonomy().Info().Str("user_id", userID).Str("action_kind", trig.ActionKind).Bool("executed", executed).Msg("autonomy action fired")
}
