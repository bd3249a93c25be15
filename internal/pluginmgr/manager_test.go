package pluginmgr

import (
	"testing"

	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	initOK      bool
	healthy     bool
	shutdownHit bool
}

func (f *fakeHandler) Initialize(config map[string]interface{}) bool { return f.initOK }
func (f *fakeHandler) Shutdown()                                     { f.shutdownHit = true }
func (f *fakeHandler) HealthCheck() conductor.PluginHealth {
	return conductor.PluginHealth{Healthy: f.healthy}
}
func (f *fakeHandler) HandleRequest(req conductor.Request) (conductor.Response, error) {
	return conductor.Response{RequestID: req.ID}, nil
}

func TestDiscoverAndRegisterIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	reg.Register("discord", func() Handler {
		calls++
		return &fakeHandler{initOK: true, healthy: true}
	})

	m := New(reg, nil)
	m.DiscoverAndRegister()
	m.DiscoverAndRegister()

	assert.Equal(t, 1, calls)
	list := m.ListPlugins()
	require.Len(t, list, 1)
	assert.Equal(t, conductor.PluginRegistered, list[0].State)
}

func TestLoadPluginSuccess(t *testing.T) {
	reg := NewRegistry()
	reg.Register("voice", func() Handler { return &fakeHandler{initOK: true, healthy: true} })
	m := New(reg, nil)
	m.DiscoverAndRegister()

	err := m.LoadPlugin("voice")
	require.NoError(t, err)

	h, ok := m.GetPlugin("voice")
	require.True(t, ok)
	require.NotNil(t, h)
}

func TestLoadPluginInitFailureSetsErrorState(t *testing.T) {
	reg := NewRegistry()
	reg.Register("android", func() Handler { return &fakeHandler{initOK: false} })
	m := New(reg, nil)
	m.DiscoverAndRegister()

	err := m.LoadPlugin("android")
	assert.Error(t, err)

	list := m.ListPlugins()
	require.Len(t, list, 1)
	assert.Equal(t, conductor.PluginError, list[0].State)
}

func TestUnloadPluginIdempotent(t *testing.T) {
	reg := NewRegistry()
	reg.Register("discord", func() Handler { return &fakeHandler{initOK: true, healthy: true} })
	m := New(reg, nil)
	m.DiscoverAndRegister()
	require.NoError(t, m.LoadPlugin("discord"))

	require.NoError(t, m.UnloadPlugin("discord"))
	require.NoError(t, m.UnloadPlugin("discord")) // idempotent, no error

	_, ok := m.GetPlugin("discord")
	assert.False(t, ok)
}

func TestHealthCheckAllIsolatesFailures(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", func() Handler { return &fakeHandler{initOK: true, healthy: true} })
	reg.Register("b", func() Handler { return &panicHandler{} })
	m := New(reg, nil)
	m.DiscoverAndRegister()
	require.NoError(t, m.LoadPlugin("a"))
	require.NoError(t, m.LoadPlugin("b"))

	results := m.HealthCheckAll()
	require.Len(t, results, 2)
	assert.True(t, results["a"].Healthy)
	assert.False(t, results["b"].Healthy)
}

type degradedHandler struct{}

func (d *degradedHandler) Initialize(config map[string]interface{}) bool { return true }
func (d *degradedHandler) Shutdown()                                     {}
func (d *degradedHandler) HealthCheck() conductor.PluginHealth {
	return conductor.PluginHealth{Healthy: true, Status: conductor.HealthDegraded, Detail: "high latency"}
}
func (d *degradedHandler) HandleRequest(req conductor.Request) (conductor.Response, error) {
	return conductor.Response{}, nil
}

func TestHealthCheckAllSurfacesDegradedStatus(t *testing.T) {
	reg := NewRegistry()
	reg.Register("c", func() Handler { return &degradedHandler{} })
	m := New(reg, nil)
	m.DiscoverAndRegister()
	require.NoError(t, m.LoadPlugin("c"))

	results := m.HealthCheckAll()
	require.Contains(t, results, "c")
	assert.Equal(t, conductor.HealthDegraded, healthStatus(results["c"]))

	var found bool
	for _, meta := range m.ListPlugins() {
		if meta.Name == "c" {
			found = true
			assert.Equal(t, "degraded", meta.HealthStatus)
		}
	}
	require.True(t, found)
}

type panicHandler struct{}

func (p *panicHandler) Initialize(config map[string]interface{}) bool { return true }
func (p *panicHandler) Shutdown()                                     {}
func (p *panicHandler) HealthCheck() conductor.PluginHealth           { panic("boom") }
func (p *panicHandler) HandleRequest(req conductor.Request) (conductor.Response, error) {
	return conductor.Response{}, nil
}

func TestEnabledPluginsReflectsLoadState(t *testing.T) {
	reg := NewRegistry()
	reg.Register("discord", func() Handler { return &fakeHandler{initOK: true, healthy: true} })
	m := New(reg, nil)
	m.DiscoverAndRegister()
	assert.Empty(t, m.EnabledPlugins())

	require.NoError(t, m.LoadPlugin("discord"))
	assert.Equal(t, []string{"discord"}, m.EnabledPlugins())
}
