// Package conductor holds the wire and domain types shared across the
// Conductor's components: resource metrics, plugin metadata, requests,
// routing decisions, isolation results, and autonomy actions.
package conductor

import "time"

// ResourceMetrics is a single immutable point-in-time sample of host
// resource usage. All percentage fields lie in [0, 100].
type ResourceMetrics struct {
	Timestamp    time.Time `json:"timestamp"`
	CPUPercent   float64   `json:"cpu_pct"`
	MemoryPercent float64  `json:"memory_pct"`
	DiskPercent  float64   `json:"disk_pct"`
	MemoryMB     float64   `json:"memory_mb"`
	DiskFreeMB   float64   `json:"disk_free_mb"`
}

// PluginLifecycleState enumerates the states a plugin moves through.
type PluginLifecycleState string

const (
	PluginUnregistered PluginLifecycleState = "unregistered"
	PluginRegistered   PluginLifecycleState = "registered"
	PluginLoading      PluginLifecycleState = "loading"
	PluginLoaded       PluginLifecycleState = "loaded"
	PluginActive       PluginLifecycleState = "active"
	PluginInactive     PluginLifecycleState = "inactive"
	PluginError        PluginLifecycleState = "error"
	PluginUnloading    PluginLifecycleState = "unloading"
)

// HasInstance reports whether a plugin in this state owns a live instance,
// per the invariant that instance is non-nil iff state is Loaded, Active,
// or Inactive.
func (s PluginLifecycleState) HasInstance() bool {
	switch s {
	case PluginLoaded, PluginActive, PluginInactive:
		return true
	default:
		return false
	}
}

// PluginMetadata describes a registered plugin and its current state.
type PluginMetadata struct {
	Name            string               `json:"name"`
	Platform        string               `json:"platform"`
	Version         string               `json:"version"`
	State           PluginLifecycleState `json:"state"`
	LoadedAt        time.Time            `json:"loaded_at,omitempty"`
	LastError       string               `json:"last_error,omitempty"`
	HealthStatus    string               `json:"health_status,omitempty"`
	LastHealthCheck time.Time            `json:"last_health_check,omitempty"`
}

// HealthState enumerates a plugin's health check outcome.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// PluginHealth is the result of a single health check. Status carries the
// full three-state outcome; Healthy is the legacy boolean view a handler
// may still set directly (true unless Status is explicitly "unhealthy").
type PluginHealth struct {
	Plugin    string      `json:"plugin"`
	Healthy   bool        `json:"healthy"`
	Status    HealthState `json:"status,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
	LatencyMS int64       `json:"latency_ms"`
}

// RequestType enumerates the platforms/channels a Request may originate from.
type RequestType string

const (
	RequestDiscord   RequestType = "discord"
	RequestAndroid   RequestType = "android"
	RequestTwitch    RequestType = "twitch"
	RequestMinecraft RequestType = "minecraft"
	RequestTikTok    RequestType = "tiktok"
	RequestYouTube   RequestType = "youtube"
	RequestInternal  RequestType = "internal"
)

// Request is the normalized unit of work the Router dispatches to plugins.
// ID is assigned by the router on entry if the caller left it empty.
type Request struct {
	ID               string                 `json:"id"`
	Type             RequestType            `json:"type"`
	Content          string                 `json:"content"`
	Context          map[string]interface{} `json:"context,omitempty"`
	Priority         int                    `json:"priority,omitempty"`
	RequestedTimeout int                    `json:"requested_timeout,omitempty"`
	UserID           string                 `json:"user_id,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// Response is what a plugin handler returns for a Request.
type Response struct {
	RequestID string                 `json:"request_id"`
	Plugin    string                 `json:"plugin"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// RoutingDecision is the pure-function result of determine_route: a target
// plugin, priority, and timeout for a given request type. It is ephemeral,
// living only inside one router invocation.
type RoutingDecision struct {
	TargetPlugin   string        `json:"target_plugin"`
	RequestType    RequestType   `json:"request_type"`
	Valid          bool          `json:"valid"`
	Error          string        `json:"error,omitempty"`
	Priority       int           `json:"priority"`
	TimeoutSeconds int           `json:"timeout_seconds"`
}

// IsolationResult is what the isolated plugin runner returns for an execution.
type IsolationResult struct {
	Success      bool          `json:"success"`
	Output       string        `json:"output,omitempty"`
	Error        string        `json:"error,omitempty"`
	DurationMS   int64         `json:"duration_ms"`
	MemoryPeakMB float64       `json:"memory_peak_mb"`
	ExitCode     int           `json:"exit_code"`
}

// DLQEntry is a request that failed routing and is pending retry. Invariant:
// RetryCount never exceeds MaxRetries; the entry is removed on success or
// once RetryCount reaches MaxRetries.
type DLQEntry struct {
	RequestID   string    `json:"request_id"`
	PluginName  string    `json:"plugin_name"`
	Request     Request   `json:"request"`
	RetryCount  int       `json:"retry_count"`
	MaxRetries  int       `json:"max_retries"`
	LastAttempt time.Time `json:"last_attempt"`
	NextRetry   time.Time `json:"next_retry"`
	Error       string    `json:"error,omitempty"`
}

// ScalingAction enumerates the decisions the predictive scaler can make.
type ScalingAction string

const (
	ScaleNone             ScalingAction = "none"
	ScaleDown             ScalingAction = "scale_down"
	ScaleUp               ScalingAction = "scale_up"
	ScaleEmergencyShutdown ScalingAction = "emergency_shutdown"
)

// ScalingDecision is one audit-logged decision made by the predictive
// scaler. The audit log is a bounded FIFO of 100 entries.
type ScalingDecision struct {
	Timestamp            time.Time     `json:"timestamp"`
	Decision             ScalingAction `json:"decision"`
	Reason               string        `json:"reason"`
	PredictedLoad        float64       `json:"predicted_load"`
	Confidence           float64       `json:"confidence"`
	DisabledIntegrations []string      `json:"disabled_integrations,omitempty"`
	EnabledIntegrations  []string      `json:"enabled_integrations,omitempty"`
}

// EmotionalIntensity is the external emotional-state contract the Conductor
// consumes but does not compute; the emotional model itself is out of scope.
type EmotionalIntensity string

const (
	EmotionLoneliness   EmotionalIntensity = "loneliness"
	EmotionExcitement   EmotionalIntensity = "excitement"
	EmotionFrustration  EmotionalIntensity = "frustration"
	EmotionJealousy     EmotionalIntensity = "jealousy"
	EmotionVulnerability EmotionalIntensity = "vulnerability"
	EmotionContentment  EmotionalIntensity = "contentment"
	EmotionCuriosity    EmotionalIntensity = "curiosity"
	EmotionAffection    EmotionalIntensity = "affection"
	EmotionBoredom      EmotionalIntensity = "boredom"
)

// EmotionalState is the minimal external snapshot the Autonomy Coordinator reads.
type EmotionalState struct {
	UserID      string                         `json:"user_id"`
	Intensities map[EmotionalIntensity]float64 `json:"intensities"`
	LastUserMsg time.Time                      `json:"last_user_message_at"`
	UpdatedAt   time.Time                      `json:"updated_at"`
}

// EmotionalTrigger configures when a given emotion may fire an autonomous action.
type EmotionalTrigger struct {
	Emotion         EmotionalIntensity `json:"emotion"`
	Threshold       float64            `json:"threshold"`
	CooldownMinutes int                `json:"cooldown_minutes"`
	Priority        int                `json:"priority"`
	ActionKind      string             `json:"action_kind"`
	Spontaneous     bool               `json:"spontaneous"`
}

// AutonomyState enumerates the trigger/cooldown state machine's states.
type AutonomyState string

const (
	AutonomyIdle     AutonomyState = "idle"
	AutonomyFiring   AutonomyState = "firing"
	AutonomyCooldown AutonomyState = "cooldown"
)

// AutonomyAction is a single autonomous action the coordinator decided to
// fire. It is emitted to the Router as an internal-type Request.
type AutonomyAction struct {
	UserID     string             `json:"user_id"`
	Emotion    EmotionalIntensity `json:"emotion"`
	ActionKind string             `json:"action_kind"`
	Platform   string             `json:"platform"`
	Content    string             `json:"content"`
	Priority   int                `json:"priority"`
	FiredAt    time.Time          `json:"fired_at"`
}

// Metric is a generic named sample used by the metrics registry's internal
// bookkeeping (not the Prometheus wire format itself).
type Metric struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
