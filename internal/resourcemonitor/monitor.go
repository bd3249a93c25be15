// Package resourcemonitor samples host CPU/memory/disk usage on a cooperative
// background loop, keeps a fixed-length sliding window of the last N
// samples, and derives trends and sigma-based anomalies from that window.
package resourcemonitor

import (
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/mystiatech/conductor/internal/clog"
	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/mystiatech/conductor/internal/metrics"
)

// Sampler abstracts the platform-specific resource sampling call so tests
// can substitute a fake without touching the real host.
type Sampler interface {
	Sample() (cpuPct, memPct, diskPct, memMB, diskFreeMB float64, err error)
}

// Monitor maintains a bounded FIFO window of ResourceMetrics.
type Monitor struct {
	sampler Sampler
	metrics *metrics.Registry

	windowSize         int
	collectionInterval time.Duration

	mu      sync.RWMutex
	window  []conductor.ResourceMetrics
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Monitor. If sampler is nil, a runtime.MemStats-based
// best-effort Sampler is used.
func New(sampler Sampler, windowSize int, collectionInterval time.Duration, reg *metrics.Registry) *Monitor {
	if sampler == nil {
		sampler = runtimeSampler{}
	}
	if windowSize <= 0 {
		windowSize = 60
	}
	if collectionInterval <= 0 {
		collectionInterval = 30 * time.Second
	}
	return &Monitor{
		sampler:            sampler,
		metrics:            reg,
		windowSize:         windowSize,
		collectionInterval: collectionInterval,
		window:             make([]conductor.ResourceMetrics, 0, windowSize),
	}
}

// CollectOnce takes a synchronous sample, appends it to the window, and
// updates the system_resources_percent gauges. Sampling errors are logged
// and swallowed: the caller never sees an error from a transient failure.
func (m *Monitor) CollectOnce() conductor.ResourceMetrics {
	cpu, mem, disk, memMB, diskFreeMB, err := m.sampler.Sample()
	if err != nil {
		clog.Resource().Warn().Err(err).Msg("resource sample failed, skipping")
		return conductor.ResourceMetrics{}
	}

	sample := conductor.ResourceMetrics{
		Timestamp:     time.Now(),
		CPUPercent:    clamp(cpu),
		MemoryPercent: clamp(mem),
		DiskPercent:   clamp(disk),
		MemoryMB:      memMB,
		DiskFreeMB:    diskFreeMB,
	}

	m.mu.Lock()
	m.window = append(m.window, sample)
	if len(m.window) > m.windowSize {
		m.window = m.window[len(m.window)-m.windowSize:]
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetSystemResourcePercent("cpu", sample.CPUPercent)
		m.metrics.SetSystemResourcePercent("memory", sample.MemoryPercent)
		m.metrics.SetSystemResourcePercent("disk", sample.DiskPercent)
	}

	return sample
}

// StartBackground starts the periodic sampling loop. Idempotent: calling it
// while already running logs a warning and returns without effect.
func (m *Monitor) StartBackground() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		clog.Resource().Warn().Msg("start_background called while already running")
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.loop()
}

func (m *Monitor) loop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.collectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CollectOnce()
		case <-m.stopCh:
			return
		}
	}
}

// StopBackground stops the background loop, if running, and waits for the
// in-flight sample (if any) to complete before returning.
func (m *Monitor) StopBackground() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	doneCh := m.doneCh
	m.mu.Unlock()

	<-doneCh
}

// History returns the chronological window, optionally truncated to the
// last limit samples.
func (m *Monitor) History(limit int) []conductor.ResourceMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit >= len(m.window) {
		out := make([]conductor.ResourceMetrics, len(m.window))
		copy(out, m.window)
		return out
	}
	out := make([]conductor.ResourceMetrics, limit)
	copy(out, m.window[len(m.window)-limit:])
	return out
}

// Current returns the most recent sample, or false if the window is empty.
func (m *Monitor) Current() (conductor.ResourceMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.window) == 0 {
		return conductor.ResourceMetrics{}, false
	}
	return m.window[len(m.window)-1], true
}

// Trend summarizes one metric's window: current, average, min, max, slope.
type Trend struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Slope   float64 `json:"slope"`
}

// Trends computes cpu/memory/disk trends over the current window.
// Slope is (last-first)/(n-1); zero if fewer than 2 samples.
func (m *Monitor) Trends() map[string]Trend {
	m.mu.RLock()
	window := make([]conductor.ResourceMetrics, len(m.window))
	copy(window, m.window)
	m.mu.RUnlock()

	return map[string]Trend{
		"cpu":    computeTrend(window, func(s conductor.ResourceMetrics) float64 { return s.CPUPercent }),
		"memory": computeTrend(window, func(s conductor.ResourceMetrics) float64 { return s.MemoryPercent }),
		"disk":   computeTrend(window, func(s conductor.ResourceMetrics) float64 { return s.DiskPercent }),
	}
}

func computeTrend(window []conductor.ResourceMetrics, extract func(conductor.ResourceMetrics) float64) Trend {
	n := len(window)
	if n == 0 {
		return Trend{}
	}

	values := make([]float64, n)
	sum := 0.0
	min := math.MaxFloat64
	max := -math.MaxFloat64
	for i, s := range window {
		v := extract(s)
		values[i] = v
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	var slope float64
	if n >= 2 {
		slope = (values[n-1] - values[0]) / float64(n-1)
	}

	return Trend{
		Current: values[n-1],
		Average: sum / float64(n),
		Min:     min,
		Max:     max,
		Slope:   slope,
	}
}

// Anomaly is one out-of-band sample: its index in the window and its value.
type Anomaly struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// Anomalies flags samples where value > mean + thresholdSigma*stddev, per
// metric. Requires at least 10 samples; returns an empty map otherwise.
func (m *Monitor) Anomalies(thresholdSigma float64) map[string][]Anomaly {
	if thresholdSigma <= 0 {
		thresholdSigma = 2.0
	}

	m.mu.RLock()
	window := make([]conductor.ResourceMetrics, len(m.window))
	copy(window, m.window)
	m.mu.RUnlock()

	result := map[string][]Anomaly{}
	if len(window) < 10 {
		return result
	}

	extractors := map[string]func(conductor.ResourceMetrics) float64{
		"cpu":    func(s conductor.ResourceMetrics) float64 { return s.CPUPercent },
		"memory": func(s conductor.ResourceMetrics) float64 { return s.MemoryPercent },
		"disk":   func(s conductor.ResourceMetrics) float64 { return s.DiskPercent },
	}

	for metric, extract := range extractors {
		values := make([]float64, len(window))
		sum := 0.0
		for i, s := range window {
			values[i] = extract(s)
			sum += values[i]
		}
		mean := sum / float64(len(values))

		variance := 0.0
		for _, v := range values {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(values))
		sigma := math.Sqrt(variance)

		var anomalies []Anomaly
		for i, v := range values {
			if v > mean+thresholdSigma*sigma {
				anomalies = append(anomalies, Anomaly{Index: i, Value: v})
				if m.metrics != nil {
					m.metrics.RecordResourceAnomaly(metric)
				}
			}
		}
		if len(anomalies) > 0 {
			result[metric] = anomalies
		}
	}

	return result
}

func clamp(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// runtimeSampler is a best-effort Sampler using the Go runtime's own memory
// stats when no platform-specific sampler is provided. It reports CPU and
// disk as unavailable (0) since the standard library has no portable way
// to read host-wide CPU/disk utilization without a third-party dependency.
type runtimeSampler struct{}

func (runtimeSampler) Sample() (cpuPct, memPct, diskPct, memMB, diskFreeMB float64, err error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	memMB = float64(ms.Sys) / (1024 * 1024)
	return 0, 0, 0, memMB, 0, nil
}
