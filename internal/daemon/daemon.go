// Package daemon wires every Conductor subsystem together into one runnable
// process: config and logging first, then metrics, resource monitor,
// plugin manager, predictive scaler, isolated runner, refusal screener,
// router/DLQ, and autonomy coordinator, finally the admin HTTP surface.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mystiatech/conductor/internal/admin"
	"github.com/mystiatech/conductor/internal/autonomy"
	"github.com/mystiatech/conductor/internal/clog"
	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/mystiatech/conductor/internal/config"
	"github.com/mystiatech/conductor/internal/emotion"
	"github.com/mystiatech/conductor/internal/isolation"
	"github.com/mystiatech/conductor/internal/metrics"
	"github.com/mystiatech/conductor/internal/pluginmgr"
	"github.com/mystiatech/conductor/internal/refusal"
	"github.com/mystiatech/conductor/internal/resourcemonitor"
	"github.com/mystiatech/conductor/internal/router"
	"github.com/mystiatech/conductor/internal/scaler"
)

// Daemon owns every wired subsystem and the admin HTTP surface.
type Daemon struct {
	Config *config.Config

	Metrics  *metrics.Registry
	Monitor  *resourcemonitor.Monitor
	Scaler   *scaler.Scaler
	Plugins  *pluginmgr.Manager
	Runner   *isolation.Runner
	DLQ      *router.DLQ
	Router   *router.Router
	Screener *refusal.Screener
	Emotion  *emotion.Stub
	Autonomy *autonomy.Coordinator
	Admin    *admin.Server

	scalerInterval time.Duration
	redisClient    *redis.Client
}

// New loads configuration from path (may be empty) and wires every
// subsystem together.
func New(cfgPath string) (*Daemon, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig wires every subsystem from an already-loaded Config.
func NewWithConfig(cfg *config.Config) (*Daemon, error) {
	clog.Initialize(cfg.Log.Level, cfg.Log.Pretty)

	reg := metrics.New()

	collectionInterval := time.Duration(cfg.Resource.CollectionIntervalSeconds) * time.Second
	mon := resourcemonitor.New(nil, cfg.Resource.WindowSize, collectionInterval, reg)

	pluginRegistry := pluginmgr.NewRegistry()
	registerBuiltinPlugins(pluginRegistry)
	plugins := pluginmgr.New(pluginRegistry, reg)
	plugins.DiscoverAndRegister()

	sc := scaler.New(mon, plugins, reg, scaler.Config{
		DisableThreshold:   cfg.Scaler.RAMThreshold,
		EmergencyThreshold: cfg.Scaler.EmergencyThreshold,
		EMAAlpha:           cfg.Scaler.EMAAlpha,
		CollectionInterval: collectionInterval,
	})

	runner := isolation.New(isolation.ScriptLoader(cfg.Isolation.ScriptsDir), cfg.Isolation.MemoryLimitMB, cfg.Isolation.TimeoutSeconds, reg)

	var store router.Store
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			clog.Router().Warn().Err(err).Msg("redis unreachable, DLQ falling back to in-memory store")
			redisClient = nil
			store = router.NewMemoryStore()
		} else {
			store = router.NewRedisStore(redisClient)
		}
	} else {
		store = router.NewMemoryStore()
	}

	screener := refusal.New()

	dlq := router.NewDLQ(store, runner, reg, cfg.Router.DLQMaxRetries, time.Duration(cfg.Router.DLQPollIntervalSeconds)*time.Second)
	rtr := router.New(screener, runner, dlq, reg, cfg.Router.DefaultRequestTimeoutSeconds)
	for _, meta := range plugins.ListPlugins() {
		rtr.RegisterInstance(meta.Name, meta.Name)
	}

	emotionSource := emotion.NewStub()
	coord := autonomy.New(emotionSource, routerDispatcher{rtr}, cfg.Autonomy.MaxAutonomousPerHour, cfg.Autonomy.AppropriateHoursTZ,
		autonomy.WithTrackedUsers(func() []string { return nil }),
		autonomy.WithTriggers(applyAutonomyOverrides(cfg.Autonomy)),
	)

	adminServer := admin.New(reg, mon, sc, plugins, rtr.Stats(), coord)

	return &Daemon{
		Config:         cfg,
		Metrics:        reg,
		Monitor:        mon,
		Scaler:         sc,
		Plugins:        plugins,
		Runner:         runner,
		DLQ:            dlq,
		Router:         rtr,
		Screener:       screener,
		Emotion:        emotionSource,
		Autonomy:       coord,
		Admin:          adminServer,
		scalerInterval: collectionInterval,
		redisClient:    redisClient,
	}, nil
}

// routerDispatcher adapts *router.Router to autonomy.Dispatcher: the
// coordinator wants a terminal (status, error) pair, the router returns a
// full Envelope.
type routerDispatcher struct{ r *router.Router }

func (d routerDispatcher) Route(ctx context.Context, req conductor.Request) (string, error) {
	env := d.r.Route(ctx, req)
	if env.Status != "success" {
		return env.Status, fmt.Errorf("%s", env.Error)
	}
	return env.Status, nil
}

// Serve starts every background loop and the admin HTTP server, then blocks
// until ctx is canceled or a termination signal arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.Monitor.StartBackground()
	scalerStop := d.startScalerLoop(ctx)
	d.DLQ.Start(ctx)

	if err := d.Autonomy.StartCron(ctx, autonomyCronSpec(d.Config.Autonomy.CheckIntervalSeconds)); err != nil {
		clog.Autonomy().Error().Err(err).Msg("failed to start autonomy cron")
	}

	errCh := d.Admin.Start(d.Config.Admin.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			clog.GetLogger().Error().Err(err).Msg("admin server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	close(scalerStop)
	d.DLQ.Stop()
	d.Autonomy.Stop()
	d.Monitor.StopBackground()
	d.Runner.Shutdown()
	_ = d.Admin.Shutdown(shutdownCtx)
	if d.redisClient != nil {
		_ = d.redisClient.Close()
	}

	return nil
}

// startScalerLoop runs the scaler's Evaluate tick on the resource monitor's
// collection cadence, stopping when either ctx is done or the returned
// channel is closed.
func (d *Daemon) startScalerLoop(ctx context.Context) chan struct{} {
	stop := make(chan struct{})
	interval := d.scalerInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.Scaler.Evaluate()
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return stop
}

// defaultCooldownMinutes mirrors config.go's own zero-value default for
// AutonomyConfig.CooldownMinutes: that value means "operator left this
// unset", not "reset every trigger's cooldown to 60", so it is the sentinel
// applyAutonomyOverrides treats as no-override.
const defaultCooldownMinutes = 60

// applyAutonomyOverrides builds the Autonomy Coordinator's trigger table by
// layering the configured cooldown_minutes and trigger_thresholds.* overrides
// (spec.md's external interface table) onto a copy of autonomy.DefaultTriggers.
func applyAutonomyOverrides(cfg config.AutonomyConfig) []conductor.EmotionalTrigger {
	triggers := make([]conductor.EmotionalTrigger, len(autonomy.DefaultTriggers))
	copy(triggers, autonomy.DefaultTriggers)

	for i := range triggers {
		if cfg.CooldownMinutes > 0 && cfg.CooldownMinutes != defaultCooldownMinutes {
			triggers[i].CooldownMinutes = cfg.CooldownMinutes
		}
		if threshold, ok := cfg.TriggerThresholds[string(triggers[i].Emotion)]; ok {
			triggers[i].Threshold = threshold
		}
	}
	return triggers
}

func autonomyCronSpec(checkIntervalSeconds int) string {
	if checkIntervalSeconds <= 0 {
		checkIntervalSeconds = 900
	}
	return fmt.Sprintf("@every %ds", checkIntervalSeconds)
}

// registerBuiltinPlugins is the seam where platform plugin factories are
// registered. None are bundled in this build; a deployment adds its own
// pluginmgr.Registry.Register calls here, since NewWithConfig runs
// DiscoverAndRegister right after this function returns.
func registerBuiltinPlugins(_ *pluginmgr.Registry) {}
