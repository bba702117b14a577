package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

const (
	// DefaultTargetFPS is the cadence the headless host loop renders at.
	DefaultTargetFPS = 60.0
	// DefaultHealthAddr is where the gRPC health endpoint listens. Empty disables it.
	DefaultHealthAddr = ":43128"
	// DefaultDemoPopulation is the number of synthetic entities the binary simulates.
	DefaultDemoPopulation = 200

	// DefaultBehaviorBudget caps behaviour/AI updates per frame.
	DefaultBehaviorBudget = 10
	// DefaultPhysicsBudget caps physics updates per frame.
	DefaultPhysicsBudget = 15
	// DefaultRecomputeEveryFrames controls how often the rate table is recomputed.
	DefaultRecomputeEveryFrames = 60
	// DefaultLODDistance is the ground distance beyond which detail parts are hidden.
	DefaultLODDistance = 150.0
	// DefaultCacheHorizonFrames is the staleness horizon for cached positions.
	DefaultCacheHorizonFrames = 4

	// DefaultInterpolationDelay is the fixed render delay behind the newest sync.
	DefaultInterpolationDelay = 50 * time.Millisecond
	// DefaultHistoryWindow bounds snapshot age and sync recency.
	DefaultHistoryWindow = 200 * time.Millisecond
	// DefaultHistoryCapacity bounds the snapshot history length.
	DefaultHistoryCapacity = 3
	// DefaultPositionSnapDistance is the rendered error that triggers a snap.
	DefaultPositionSnapDistance = 3.0
	// DefaultVelocitySnapDelta is the velocity change that skips blending.
	DefaultVelocitySnapDelta = 5.0
	// DefaultVelocityBlend is the per-sync blend factor toward a new velocity.
	DefaultVelocityBlend = 0.3
	// DefaultMaxLifetime disposes networked entities that stop receiving updates.
	DefaultMaxLifetime = 5 * time.Second

	// DefaultRecorderFrameInterval is how often buffered telemetry frames are flushed.
	DefaultRecorderFrameInterval = 200 * time.Millisecond
	// DefaultRecorderMaxSessions limits retained recordings. Zero keeps all.
	DefaultRecorderMaxSessions = 20
	// DefaultRecorderMaxAge removes recordings older than this. Zero keeps all.
	DefaultRecorderMaxAge = 7 * 24 * time.Hour

	// DefaultLogLevel controls verbosity for simcore logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "simcore.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the simulation core and its host binary.
type Config struct {
	TargetFPS      float64 `env:"SIMCORE_TARGET_FPS" envDefault:"60"`
	HealthAddr     string  `env:"SIMCORE_HEALTH_ADDR" envDefault:":43128"`
	DemoPopulation int     `env:"SIMCORE_DEMO_POPULATION" envDefault:"200"`

	Logging   LoggingConfig   `envPrefix:"SIMCORE_LOG_"`
	Scheduler SchedulerConfig `envPrefix:"SIMCORE_SCHED_"`
	Reconcile ReconcileConfig `envPrefix:"SIMCORE_RECONCILE_"`
	Recorder  RecorderConfig  `envPrefix:"SIMCORE_RECORDER_"`
	Ingest    IngestConfig    `envPrefix:"SIMCORE_INGEST_"`
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Path       string `env:"PATH" envDefault:"simcore.log"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"10"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"7"`
	Compress   bool   `env:"COMPRESS" envDefault:"true"`
}

// SchedulerConfig tunes the frame scheduler.
type SchedulerConfig struct {
	BehaviorBudget       int     `env:"BEHAVIOR_BUDGET" envDefault:"10"`
	PhysicsBudget        int     `env:"PHYSICS_BUDGET" envDefault:"15"`
	RecomputeEveryFrames uint32  `env:"RECOMPUTE_EVERY_FRAMES" envDefault:"60"`
	LODDistance          float64 `env:"LOD_DISTANCE" envDefault:"150"`
	CacheHorizonFrames   uint32  `env:"CACHE_HORIZON_FRAMES" envDefault:"4"`
}

// ReconcileConfig tunes networked entity interpolation.
type ReconcileConfig struct {
	InterpolationDelay   time.Duration `env:"INTERPOLATION_DELAY" envDefault:"50ms"`
	HistoryWindow        time.Duration `env:"HISTORY_WINDOW" envDefault:"200ms"`
	HistoryCapacity      int           `env:"HISTORY_CAPACITY" envDefault:"3"`
	PositionSnapDistance float64       `env:"POSITION_SNAP_DISTANCE" envDefault:"3"`
	VelocitySnapDelta    float64       `env:"VELOCITY_SNAP_DELTA" envDefault:"5"`
	VelocityBlend        float64       `env:"VELOCITY_BLEND" envDefault:"0.3"`
	MaxLifetime          time.Duration `env:"MAX_LIFETIME" envDefault:"5s"`
}

// RecorderConfig enables the on-disk frame telemetry recorder when Dir is set.
type RecorderConfig struct {
	Dir           string        `env:"DIR"`
	Session       string        `env:"SESSION" envDefault:"session"`
	FrameInterval time.Duration `env:"FRAME_INTERVAL" envDefault:"200ms"`
	MaxSessions   int           `env:"MAX_SESSIONS" envDefault:"20"`
	MaxAge        time.Duration `env:"MAX_AGE" envDefault:"168h"`
}

// IngestConfig points the websocket snapshot feed at a server. Empty URL disables ingest.
type IngestConfig struct {
	URL       string `env:"URL"`
	QueueSize int    `env:"QUEUE_SIZE" envDefault:"1024"`
}

// Load reads the configuration from environment variables, applying defaults and
// returning one descriptive error covering every invalid override.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, eris.Wrap(err, "parse environment")
	}
	cfg.Logging.Level = strings.TrimSpace(cfg.Logging.Level)
	cfg.Logging.Path = strings.TrimSpace(cfg.Logging.Path)
	cfg.Recorder.Dir = strings.TrimSpace(cfg.Recorder.Dir)
	cfg.Ingest.URL = strings.TrimSpace(cfg.Ingest.URL)
	cfg.HealthAddr = strings.TrimSpace(cfg.HealthAddr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every out-of-range tunable in a single error.
func (c *Config) Validate() error {
	var problems []string

	if !(c.TargetFPS > 0) {
		problems = append(problems, fmt.Sprintf("SIMCORE_TARGET_FPS must be positive, got %v", c.TargetFPS))
	}
	if c.DemoPopulation < 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_DEMO_POPULATION must be non-negative, got %d", c.DemoPopulation))
	}

	if c.Logging.MaxSizeMB <= 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_LOG_MAX_SIZE_MB must be a positive integer, got %d", c.Logging.MaxSizeMB))
	}
	if c.Logging.MaxBackups < 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_LOG_MAX_BACKUPS must be a non-negative integer, got %d", c.Logging.MaxBackups))
	}
	if c.Logging.MaxAgeDays < 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_LOG_MAX_AGE_DAYS must be a non-negative integer, got %d", c.Logging.MaxAgeDays))
	}

	if c.Scheduler.BehaviorBudget <= 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_SCHED_BEHAVIOR_BUDGET must be positive, got %d", c.Scheduler.BehaviorBudget))
	}
	if c.Scheduler.PhysicsBudget <= 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_SCHED_PHYSICS_BUDGET must be positive, got %d", c.Scheduler.PhysicsBudget))
	}
	if c.Scheduler.RecomputeEveryFrames == 0 {
		problems = append(problems, "SIMCORE_SCHED_RECOMPUTE_EVERY_FRAMES must be positive")
	}
	if !(c.Scheduler.LODDistance > 0) {
		problems = append(problems, fmt.Sprintf("SIMCORE_SCHED_LOD_DISTANCE must be positive, got %v", c.Scheduler.LODDistance))
	}

	r := c.Reconcile
	if r.InterpolationDelay < 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_RECONCILE_INTERPOLATION_DELAY must be non-negative, got %v", r.InterpolationDelay))
	}
	if r.HistoryWindow <= 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_RECONCILE_HISTORY_WINDOW must be positive, got %v", r.HistoryWindow))
	}
	if r.HistoryCapacity <= 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_RECONCILE_HISTORY_CAPACITY must be positive, got %d", r.HistoryCapacity))
	}
	if !(r.PositionSnapDistance > 0) {
		problems = append(problems, fmt.Sprintf("SIMCORE_RECONCILE_POSITION_SNAP_DISTANCE must be positive, got %v", r.PositionSnapDistance))
	}
	if !(r.VelocitySnapDelta > 0) {
		problems = append(problems, fmt.Sprintf("SIMCORE_RECONCILE_VELOCITY_SNAP_DELTA must be positive, got %v", r.VelocitySnapDelta))
	}
	if r.VelocityBlend <= 0 || r.VelocityBlend > 1 {
		problems = append(problems, fmt.Sprintf("SIMCORE_RECONCILE_VELOCITY_BLEND must be in (0, 1], got %v", r.VelocityBlend))
	}
	if r.MaxLifetime <= 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_RECONCILE_MAX_LIFETIME must be positive, got %v", r.MaxLifetime))
	}

	if c.Recorder.FrameInterval <= 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_RECORDER_FRAME_INTERVAL must be positive, got %v", c.Recorder.FrameInterval))
	}
	if c.Recorder.MaxSessions < 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_RECORDER_MAX_SESSIONS must be non-negative, got %d", c.Recorder.MaxSessions))
	}
	if c.Recorder.MaxAge < 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_RECORDER_MAX_AGE must be non-negative, got %v", c.Recorder.MaxAge))
	}

	if c.Ingest.URL != "" {
		parsed, err := url.Parse(c.Ingest.URL)
		if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") {
			problems = append(problems, fmt.Sprintf("SIMCORE_INGEST_URL must be a ws:// or wss:// URL, got %q", c.Ingest.URL))
		}
	}
	if c.Ingest.QueueSize <= 0 {
		problems = append(problems, fmt.Sprintf("SIMCORE_INGEST_QUEUE_SIZE must be positive, got %d", c.Ingest.QueueSize))
	}

	if len(problems) > 0 {
		return eris.New(strings.Join(problems, "; "))
	}
	return nil
}
