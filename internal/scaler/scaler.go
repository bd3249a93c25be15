// Package scaler implements the predictive scaler (B): it watches the
// resource monitor's memory trend, forecasts near-future load with an
// EMA-smoothed linear regression, and disables/enables plugins in a fixed
// priority order to keep memory under a hysteresis threshold pair.
package scaler

import (
	"math"
	"sort"
	"time"

	"github.com/mystiatech/conductor/internal/clog"
	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/mystiatech/conductor/internal/metrics"
	"github.com/mystiatech/conductor/internal/resourcemonitor"
)

// DegradationPriority is the fixed, least-critical-first shedding order.
// "stubs" is never disabled outside emergency_shutdown.
var DegradationPriority = []string{"voice", "android", "discord", "stubs"}

const stabilizedOffset = 5.0
const checkSleepInterval = 500 * time.Millisecond

// PluginController is the subset of the Plugin Manager the scaler needs:
// enable/disable by name, and the set of currently-enabled plugin names.
type PluginController interface {
	UnloadPlugin(name string) error
	LoadPlugin(name string) error
	EnabledPlugins() []string
}

// Scaler holds the scaler's configuration and audit log.
type Scaler struct {
	monitor    *resourcemonitor.Monitor
	plugins    PluginController
	metrics    *metrics.Registry

	disableThreshold   float64
	enableThreshold    float64
	emergencyThreshold float64
	emaAlpha           float64
	collectionInterval time.Duration

	emaValue    float64
	emaSet      bool
	lastForecast float64

	disabled map[string]bool

	auditLog []conductor.ScalingDecision
}

// Config configures a new Scaler; zero values take the spec defaults.
type Config struct {
	DisableThreshold   float64
	EmergencyThreshold float64
	EMAAlpha           float64
	CollectionInterval time.Duration
}

// New constructs a Scaler.
func New(monitor *resourcemonitor.Monitor, plugins PluginController, reg *metrics.Registry, cfg Config) *Scaler {
	if cfg.DisableThreshold <= 0 {
		cfg.DisableThreshold = 80
	}
	if cfg.EmergencyThreshold <= 0 {
		cfg.EmergencyThreshold = 95
	}
	if cfg.EMAAlpha <= 0 {
		cfg.EMAAlpha = 0.7
	}
	if cfg.CollectionInterval <= 0 {
		cfg.CollectionInterval = 30 * time.Second
	}

	return &Scaler{
		monitor:            monitor,
		plugins:            plugins,
		metrics:            reg,
		disableThreshold:   cfg.DisableThreshold,
		enableThreshold:    cfg.DisableThreshold - 15,
		emergencyThreshold: cfg.EmergencyThreshold,
		emaAlpha:           cfg.EMAAlpha,
		collectionInterval: cfg.CollectionInterval,
		disabled:           map[string]bool{},
	}
}

// forecastSteps is ceil(5*60/collection_interval_seconds), ~10 at 30s.
func (s *Scaler) forecastSteps() int {
	seconds := s.collectionInterval.Seconds()
	if seconds <= 0 {
		seconds = 30
	}
	return int(math.Ceil(5 * 60 / seconds))
}

// Evaluate runs one tick of the scaler's algorithm and returns the decision
// it appended to the audit log.
func (s *Scaler) Evaluate() conductor.ScalingDecision {
	cur, ok := s.monitor.Current()
	if !ok {
		return s.record(conductor.ScaleNone, "no current sample", 0, 0, nil, nil)
	}

	history := s.monitor.History(0)

	raw := s.predictLoad(cur, history)
	smoothed := s.ema(raw)
	s.lastForecast = smoothed

	if s.metrics != nil {
		s.metrics.SetScalerPredictionError(math.Abs(smoothed - cur.MemoryPercent))
	}

	switch {
	case smoothed >= s.disableThreshold:
		return s.scaleDown(smoothed)
	case smoothed <= s.enableThreshold && len(s.disabled) > 0:
		return s.scaleUp(smoothed)
	case cur.MemoryPercent >= s.emergencyThreshold:
		return s.emergencyShutdown(smoothed)
	default:
		return s.record(conductor.ScaleNone, "within thresholds", smoothed, s.confidence(len(history)), nil, nil)
	}
}

func (s *Scaler) scaleDown(forecast float64) conductor.ScalingDecision {
	order := orderedPriority(DegradationPriority, s.plugins.EnabledPlugins())
	var disabledNow []string

	for _, name := range order {
		if name == "stubs" {
			continue
		}
		if err := s.plugins.UnloadPlugin(name); err != nil {
			clog.Scaler().Warn().Err(err).Str("plugin", name).Msg("scale_down unload failed, continuing")
			continue
		}
		s.disabled[name] = true
		disabledNow = append(disabledNow, name)
		time.Sleep(checkSleepInterval)

		cur, ok := s.monitor.Current()
		if ok && cur.MemoryPercent < s.disableThreshold-stabilizedOffset {
			break
		}
	}

	return s.record(conductor.ScaleDown, "memory forecast above disable threshold", forecast, s.confidence(10), disabledNow, nil)
}

func (s *Scaler) scaleUp(forecast float64) conductor.ScalingDecision {
	order := orderedPriority(DegradationPriority, nil)
	reversed := make([]string, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		reversed = append(reversed, order[i])
	}

	var enabledNow []string
	for _, name := range reversed {
		if !s.disabled[name] {
			continue
		}
		if err := s.plugins.LoadPlugin(name); err != nil {
			clog.Scaler().Warn().Err(err).Str("plugin", name).Msg("scale_up load failed, continuing")
			continue
		}
		delete(s.disabled, name)
		enabledNow = append(enabledNow, name)

		if cur, ok := s.monitor.Current(); ok && cur.MemoryPercent > s.disableThreshold {
			break
		}
		break
	}

	return s.record(conductor.ScaleUp, "memory forecast at or below enable threshold", forecast, s.confidence(10), nil, enabledNow)
}

func (s *Scaler) emergencyShutdown(forecast float64) conductor.ScalingDecision {
	order := orderedPriority(DegradationPriority, s.plugins.EnabledPlugins())
	var disabledNow []string
	lastBucket := DegradationPriority[len(DegradationPriority)-1:]
	for _, name := range order {
		if contains(lastBucket, name) {
			continue
		}
		if err := s.plugins.UnloadPlugin(name); err != nil {
			clog.Scaler().Warn().Err(err).Str("plugin", name).Msg("emergency_shutdown unload failed, continuing")
			continue
		}
		s.disabled[name] = true
		disabledNow = append(disabledNow, name)
	}
	return s.record(conductor.ScaleEmergencyShutdown, "memory at or above emergency threshold", forecast, 1.0, disabledNow, nil)
}

func (s *Scaler) record(action conductor.ScalingAction, reason string, predicted, confidence float64, disabled, enabled []string) conductor.ScalingDecision {
	d := conductor.ScalingDecision{
		Timestamp:            time.Now(),
		Decision:             action,
		Reason:               reason,
		PredictedLoad:        predicted,
		Confidence:           confidence,
		DisabledIntegrations: disabled,
		EnabledIntegrations:  enabled,
	}
	s.auditLog = append(s.auditLog, d)
	if len(s.auditLog) > 100 {
		s.auditLog = s.auditLog[len(s.auditLog)-100:]
	}
	clog.Scaler().Info().Str("decision", string(action)).Str("reason", reason).Float64("predicted", predicted).Msg("scaling decision")
	return d
}

// AuditLog returns a snapshot of the bounded scaling decision log.
func (s *Scaler) AuditLog() []conductor.ScalingDecision {
	out := make([]conductor.ScalingDecision, len(s.auditLog))
	copy(out, s.auditLog)
	return out
}

func (s *Scaler) ema(raw float64) float64 {
	if !s.emaSet {
		s.emaValue = raw
		s.emaSet = true
		return raw
	}
	s.emaValue = s.emaAlpha*raw + (1-s.emaAlpha)*s.emaValue
	return s.emaValue
}

// predictLoad forecasts memory percent N steps ahead using linear regression
// over the window's memory values when at least 10 samples are available;
// otherwise falls back to min(100, current+5).
func (s *Scaler) predictLoad(cur conductor.ResourceMetrics, history []conductor.ResourceMetrics) float64 {
	if len(history) < 10 {
		return math.Min(100, cur.MemoryPercent+5)
	}

	n := len(history)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, h := range history {
		xs[i] = float64(i)
		ys[i] = h.MemoryPercent
	}

	slope, intercept, ok := linearRegression(xs, ys)
	if !ok {
		return math.Min(100, cur.MemoryPercent+5)
	}

	steps := s.forecastSteps()
	forecastX := float64(n-1) + float64(steps)
	forecast := slope*forecastX + intercept
	return math.Max(0, math.Min(100, forecast))
}

func linearRegression(xs, ys []float64) (slope, intercept float64, ok bool) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0, false
	}

	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, true
	}

	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept, true
}

func (s *Scaler) confidence(sampleCount int) float64 {
	if sampleCount >= 10 {
		return 0.8
	}
	return 0.3
}

// orderedPriority returns priority names, optionally filtered to those
// currently enabled, sorted by fixed priority bucket then alphabetically
// within a bucket for determinism.
func orderedPriority(priority []string, enabledOnly []string) []string {
	var filter map[string]bool
	if enabledOnly != nil {
		filter = map[string]bool{}
		for _, n := range enabledOnly {
			filter[n] = true
		}
	}

	out := make([]string, 0, len(priority))
	for _, name := range priority {
		if filter != nil && !filter[name] {
			continue
		}
		out = append(out, name)
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi := indexOf(priority, out[i])
		pj := indexOf(priority, out[j])
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}

func indexOf(list []string, v string) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return len(list)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
