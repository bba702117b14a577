package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, DefaultTargetFPS, cfg.TargetFPS)
	require.Equal(t, DefaultHealthAddr, cfg.HealthAddr)
	require.Equal(t, DefaultDemoPopulation, cfg.DemoPopulation)

	require.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	require.Equal(t, DefaultLogPath, cfg.Logging.Path)
	require.Equal(t, DefaultLogMaxSizeMB, cfg.Logging.MaxSizeMB)
	require.Equal(t, DefaultLogMaxBackups, cfg.Logging.MaxBackups)
	require.Equal(t, DefaultLogMaxAgeDays, cfg.Logging.MaxAgeDays)
	require.Equal(t, DefaultLogCompress, cfg.Logging.Compress)

	require.Equal(t, DefaultBehaviorBudget, cfg.Scheduler.BehaviorBudget)
	require.Equal(t, DefaultPhysicsBudget, cfg.Scheduler.PhysicsBudget)
	require.EqualValues(t, DefaultRecomputeEveryFrames, cfg.Scheduler.RecomputeEveryFrames)
	require.Equal(t, DefaultLODDistance, cfg.Scheduler.LODDistance)
	require.EqualValues(t, DefaultCacheHorizonFrames, cfg.Scheduler.CacheHorizonFrames)

	require.Equal(t, DefaultInterpolationDelay, cfg.Reconcile.InterpolationDelay)
	require.Equal(t, DefaultHistoryWindow, cfg.Reconcile.HistoryWindow)
	require.Equal(t, DefaultHistoryCapacity, cfg.Reconcile.HistoryCapacity)
	require.Equal(t, DefaultPositionSnapDistance, cfg.Reconcile.PositionSnapDistance)
	require.Equal(t, DefaultVelocitySnapDelta, cfg.Reconcile.VelocitySnapDelta)
	require.Equal(t, DefaultVelocityBlend, cfg.Reconcile.VelocityBlend)
	require.Equal(t, DefaultMaxLifetime, cfg.Reconcile.MaxLifetime)

	require.Empty(t, cfg.Recorder.Dir)
	require.Equal(t, DefaultRecorderFrameInterval, cfg.Recorder.FrameInterval)
	require.Equal(t, DefaultRecorderMaxSessions, cfg.Recorder.MaxSessions)
	require.Equal(t, DefaultRecorderMaxAge, cfg.Recorder.MaxAge)
	require.Empty(t, cfg.Ingest.URL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SIMCORE_TARGET_FPS", "144")
	t.Setenv("SIMCORE_SCHED_BEHAVIOR_BUDGET", "4")
	t.Setenv("SIMCORE_RECONCILE_POSITION_SNAP_DISTANCE", "8.5")
	t.Setenv("SIMCORE_RECONCILE_MAX_LIFETIME", "2s")
	t.Setenv("SIMCORE_RECORDER_DIR", " /tmp/frames ")
	t.Setenv("SIMCORE_INGEST_URL", "ws://127.0.0.1:43127/ws")
	t.Setenv("SIMCORE_LOG_COMPRESS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 144.0, cfg.TargetFPS)
	require.Equal(t, 4, cfg.Scheduler.BehaviorBudget)
	require.Equal(t, 8.5, cfg.Reconcile.PositionSnapDistance)
	require.Equal(t, 2*time.Second, cfg.Reconcile.MaxLifetime)
	require.Equal(t, "/tmp/frames", cfg.Recorder.Dir)
	require.Equal(t, "ws://127.0.0.1:43127/ws", cfg.Ingest.URL)
	require.False(t, cfg.Logging.Compress)
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	t.Setenv("SIMCORE_SCHED_PHYSICS_BUDGET", "0")
	t.Setenv("SIMCORE_RECONCILE_VELOCITY_BLEND", "1.5")
	t.Setenv("SIMCORE_INGEST_URL", "http://example.com")
	t.Setenv("SIMCORE_LOG_MAX_SIZE_MB", "-1")
	t.Setenv("SIMCORE_RECORDER_MAX_SESSIONS", "-2")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"SIMCORE_SCHED_PHYSICS_BUDGET",
		"SIMCORE_RECONCILE_VELOCITY_BLEND",
		"SIMCORE_INGEST_URL",
		"SIMCORE_LOG_MAX_SIZE_MB",
		"SIMCORE_RECORDER_MAX_SESSIONS",
	} {
		require.Truef(t, strings.Contains(msg, want), "expected %q in error %q", want, msg)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("SIMCORE_RECONCILE_HISTORY_WINDOW", "soon")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse environment")
}
