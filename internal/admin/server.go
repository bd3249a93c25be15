// Package admin exposes the Conductor's operational HTTP surface:
// liveness, Prometheus metrics, and a handful of read-only debug endpoints
// dumping each subsystem's internal state for local troubleshooting.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mystiatech/conductor/internal/autonomy"
	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/mystiatech/conductor/internal/metrics"
	"github.com/mystiatech/conductor/internal/pluginmgr"
	"github.com/mystiatech/conductor/internal/resourcemonitor"
	"github.com/mystiatech/conductor/internal/router"
	"github.com/mystiatech/conductor/internal/scaler"
)

// Server is the Conductor's admin HTTP surface.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	monitor     *resourcemonitor.Monitor
	scaler      *scaler.Scaler
	plugins     *pluginmgr.Manager
	routerStats *router.Stats
	autonomy    *autonomy.Coordinator
}

// New builds the admin server's routes. Any dependency may be nil; the
// corresponding debug endpoint then reports an empty result rather than
// panicking, so the admin surface can come up before every subsystem does.
// The listen address is resolved later, at Start, so callers can still
// override it after New returns.
func New(reg *metrics.Registry, mon *resourcemonitor.Monitor, sc *scaler.Scaler, plugins *pluginmgr.Manager, routerStats *router.Stats, coord *autonomy.Coordinator) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:      engine,
		monitor:     mon,
		scaler:      sc,
		plugins:     plugins,
		routerStats: routerStats,
		autonomy:    coord,
	}

	engine.GET("/healthz", s.handleHealthz)
	if reg != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{})))
	}
	engine.GET("/debug/resources", s.handleDebugResources)
	engine.GET("/debug/scaler", s.handleDebugScaler)
	engine.GET("/debug/plugins", s.handleDebugPlugins)
	engine.GET("/debug/router", s.handleDebugRouter)
	engine.GET("/debug/autonomy", s.handleDebugAutonomy)

	return s
}

// Start builds the HTTP server bound to addr and runs it in the background.
// Call Shutdown to stop it.
func (s *Server) Start(addr string) <-chan error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleDebugResources(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	current, ok := s.monitor.Current()
	c.JSON(http.StatusOK, gin.H{
		"current": current,
		"present": ok,
		"trends":  s.monitor.Trends(),
	})
}

func (s *Server) handleDebugScaler(c *gin.Context) {
	if s.scaler == nil {
		c.JSON(http.StatusOK, gin.H{"audit_log": []conductor.ScalingDecision{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_log": s.scaler.AuditLog()})
}

func (s *Server) handleDebugPlugins(c *gin.Context) {
	if s.plugins == nil {
		c.JSON(http.StatusOK, gin.H{"plugins": []conductor.PluginMetadata{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plugins": s.plugins.ListPlugins(),
		"enabled": s.plugins.EnabledPlugins(),
	})
}

func (s *Server) handleDebugRouter(c *gin.Context) {
	if s.routerStats == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.routerStats.Snapshot())
}

func (s *Server) handleDebugAutonomy(c *gin.Context) {
	if s.autonomy == nil {
		c.JSON(http.StatusOK, gin.H{"history": []conductor.AutonomyAction{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": s.autonomy.History()})
}
