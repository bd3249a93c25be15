package resourcemonitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSampler struct {
	values []float64
	i      int
}

func (f *fakeSampler) Sample() (cpuPct, memPct, diskPct, memMB, diskFreeMB float64, err error) {
	v := f.values[f.i%len(f.values)]
	f.i++
	return v, v, v, 0, 0, nil
}

func TestCollectOnceAppendsAndClamps(t *testing.T) {
	m := New(&fakeSampler{values: []float64{150, -10}}, 60, time.Second, nil)

	s1 := m.CollectOnce()
	assert.Equal(t, 100.0, s1.CPUPercent)

	s2 := m.CollectOnce()
	assert.Equal(t, 0.0, s2.CPUPercent)

	hist := m.History(0)
	require.Len(t, hist, 2)
}

func TestWindowEvictsOldest(t *testing.T) {
	m := New(&fakeSampler{values: []float64{1, 2, 3, 4, 5}}, 3, time.Second, nil)
	for i := 0; i < 5; i++ {
		m.CollectOnce()
	}
	hist := m.History(0)
	require.Len(t, hist, 3)
	assert.Equal(t, 3.0, hist[0].CPUPercent)
	assert.Equal(t, 5.0, hist[2].CPUPercent)
}

func TestTrendsSlope(t *testing.T) {
	m := New(&fakeSampler{values: []float64{10, 20, 30}}, 10, time.Second, nil)
	for i := 0; i < 3; i++ {
		m.CollectOnce()
	}
	trends := m.Trends()
	cpu := trends["cpu"]
	assert.Equal(t, 30.0, cpu.Current)
	assert.Equal(t, 10.0, cpu.Slope)
	assert.Equal(t, 10.0, cpu.Min)
	assert.Equal(t, 30.0, cpu.Max)
}

func TestAnomaliesRequiresTenSamples(t *testing.T) {
	m := New(&fakeSampler{values: []float64{10, 10, 10, 10, 10}}, 10, time.Second, nil)
	for i := 0; i < 5; i++ {
		m.CollectOnce()
	}
	assert.Empty(t, m.Anomalies(2.0))
}

func TestAnomaliesDetectsOutlier(t *testing.T) {
	values := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 90}
	m := New(&fakeSampler{values: values}, 10, time.Second, nil)
	for range values {
		m.CollectOnce()
	}
	anomalies := m.Anomalies(2.0)
	require.Contains(t, anomalies, "cpu")
	assert.Equal(t, 9, anomalies["cpu"][0].Index)
}

func TestStartStopBackgroundIdempotent(t *testing.T) {
	m := New(&fakeSampler{values: []float64{1}}, 10, 10*time.Millisecond, nil)
	m.StartBackground()
	m.StartBackground() // should warn, not panic or double-start
	time.Sleep(30 * time.Millisecond)
	m.StopBackground()

	hist := m.History(0)
	assert.NotEmpty(t, hist)
}

func TestCurrentEmptyWindow(t *testing.T) {
	m := New(&fakeSampler{values: []float64{1}}, 10, time.Second, nil)
	_, ok := m.Current()
	assert.False(t, ok)
}
