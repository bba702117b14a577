// Command simcore runs the frame scheduler headless against a synthetic bot
// population, optionally fed by a websocket snapshot stream and recorded to disk.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rotisserie/eris"
	"google.golang.org/grpc/health"

	"github.com/AdotEXE/protocol-XT-sub007/internal/bots"
	"github.com/AdotEXE/protocol-XT-sub007/internal/config"
	"github.com/AdotEXE/protocol-XT-sub007/internal/ingest"
	"github.com/AdotEXE/protocol-XT-sub007/internal/logging"
	"github.com/AdotEXE/protocol-XT-sub007/internal/reconcile"
	"github.com/AdotEXE/protocol-XT-sub007/internal/replay"
	"github.com/AdotEXE/protocol-XT-sub007/internal/scheduler"
	"github.com/AdotEXE/protocol-XT-sub007/internal/simulation"
)

const (
	ingestMinBackoff = time.Second
	ingestMaxBackoff = 30 * time.Second
	retentionSweep   = time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("simcore exited with error", logging.String("error", eris.ToString(err, true)))
		_ = logger.Close()
		os.Exit(1)
	}
	_ = logger.Close()
}

// driverOptions maps configuration onto scheduler options.
func driverOptions(cfg *config.Config, logger *logging.Logger) scheduler.Options {
	opts := scheduler.DefaultOptions()
	opts.Logger = logger
	opts.BehaviorBudget = cfg.Scheduler.BehaviorBudget
	opts.PhysicsBudget = cfg.Scheduler.PhysicsBudget
	opts.RecomputeEvery = cfg.Scheduler.RecomputeEveryFrames
	opts.LODDistance = cfg.Scheduler.LODDistance
	opts.CacheHorizon = cfg.Scheduler.CacheHorizonFrames
	opts.Reconcile = reconcile.Tuning{
		InterpolationDelay:   cfg.Reconcile.InterpolationDelay,
		HistoryWindow:        cfg.Reconcile.HistoryWindow,
		HistoryCapacity:      cfg.Reconcile.HistoryCapacity,
		PositionSnapDistance: cfg.Reconcile.PositionSnapDistance,
		VelocitySnapDelta:    cfg.Reconcile.VelocitySnapDelta,
		VelocityBlend:        cfg.Reconcile.VelocityBlend,
		MaxLifetime:          cfg.Reconcile.MaxLifetime,
	}
	opts.SceneRemoval = func(id string) {
		logger.Debug("networked entity removed from scene", logging.String("entity_id", id))
	}
	return opts
}

// recorderParameters lists the tunables written into the recording header.
func recorderParameters(cfg *config.Config) replay.Parameters {
	return replay.Parameters{
		"target_fps":             cfg.TargetFPS,
		"behavior_budget":        float64(cfg.Scheduler.BehaviorBudget),
		"physics_budget":         float64(cfg.Scheduler.PhysicsBudget),
		"recompute_every_frames": float64(cfg.Scheduler.RecomputeEveryFrames),
		"lod_distance":           cfg.Scheduler.LODDistance,
		"cache_horizon_frames":   float64(cfg.Scheduler.CacheHorizonFrames),
		"position_snap_distance": cfg.Reconcile.PositionSnapDistance,
		"velocity_snap_delta":    cfg.Reconcile.VelocitySnapDelta,
		"velocity_blend":         cfg.Reconcile.VelocityBlend,
		"max_lifetime_seconds":   cfg.Reconcile.MaxLifetime.Seconds(),
	}
}

// registerConsumers installs the per-category handlers. They read the position
// cache the way HUD, AI and sync consumers would and log a summary at debug level.
func registerConsumers(driver *scheduler.Driver, logger *logging.Logger) {
	for _, category := range scheduler.Categories {
		category := category
		consumer := logger.With(logging.String("category", category.String()))
		driver.Handle(category, func(info scheduler.FrameInfo) {
			fresh := driver.CachedPositions(0)
			consumer.Debug("category ran",
				logging.Uint32("tick", info.Tick),
				logging.String("band", info.Band.String()),
				logging.Int("fresh_positions", len(fresh)),
			)
		})
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	//1.- Populate the synthetic world and wire it into the scheduler.
	population := bots.NewPopulation(uint64(time.Now().UnixNano()))
	if _, err := population.Scale(cfg.DemoPopulation); err != nil {
		return err
	}
	driver := scheduler.NewDriver(population, driverOptions(cfg, logger))
	driver.TrackLocal(bots.LocalID, population.LocalQuery())
	registerConsumers(driver, logger)

	//2.- Optional network snapshot feed.
	if cfg.Ingest.URL != "" {
		queue := ingest.NewQueue(cfg.Ingest.QueueSize)
		driver.SetFeed(queue)
		go runIngest(ctx, ingest.NewClient(cfg.Ingest.URL, queue, logger), newIngestBackOff(), logger)
	}

	//3.- Optional recorder plus retention of older recordings.
	var recorder *replay.Recorder
	if cfg.Recorder.Dir != "" {
		writer, manifest, err := replay.NewWriter(cfg.Recorder.Dir, cfg.Recorder.Session, cfg.Recorder.FrameInterval, nil)
		if err != nil {
			return eris.Wrap(err, "open recorder")
		}
		writer.SetParameters(recorderParameters(cfg))
		recorder = replay.NewRecorder(writer, logger)
		driver.SetObserver(recorder)
		logger.Info("recording frames", logging.String("directory", writer.Directory()), logging.String("session", manifest.Session))

		active := writer.Directory()
		cleaner := replay.NewCleaner(cfg.Recorder.Dir, replay.RetentionPolicy{
			MaxSessions: cfg.Recorder.MaxSessions,
			MaxAge:      cfg.Recorder.MaxAge,
		}, func(path string) bool { return path == active }, logger)
		go cleaner.Run(ctx, retentionSweep)
	}

	//4.- Health endpoint reporting whether frames keep advancing.
	hs := health.NewServer()
	watchdog := newFrameWatchdog(driver.Metrics(), hs, time.Second, logger)
	if cfg.HealthAddr != "" {
		server, _, err := serveHealth(cfg.HealthAddr, hs, logger)
		if err != nil {
			return err
		}
		defer server.GracefulStop()
	}
	go watchdog.run(ctx)

	//5.- Render until a signal arrives.
	loop := simulation.NewLoop(cfg.TargetFPS, driver.OnFrame)
	logger.Info("frame driver started",
		logging.Int("population", population.Snapshot().Bots),
		logging.Float64("target_fps", cfg.TargetFPS),
	)
	loop.Start(ctx)
	<-ctx.Done()
	loop.Stop()

	snapshot := loop.Monitor().Snapshot()
	logger.Info("frame driver stopped",
		logging.Int("frames", int(driver.Metrics().Frames())),
		logging.Duration("average_frame", snapshot.Average),
		logging.Duration("max_frame", snapshot.Max),
	)
	if recorder != nil {
		stats := recorder.Stats()
		if err := recorder.Close(); err != nil {
			return eris.Wrap(err, "close recorder")
		}
		logger.Info("recording closed", logging.Int("frames", int(stats.Frames)), logging.Int("events", int(stats.Events)))
	}
	return nil
}

// feedRunner is one connection attempt of the snapshot feed.
type feedRunner interface {
	Run(ctx context.Context) error
}

// newIngestBackOff retries forever, growing from one second to thirty.
func newIngestBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = ingestMinBackoff
	policy.MaxInterval = ingestMaxBackoff
	policy.MaxElapsedTime = 0
	return policy
}

// runIngest keeps the snapshot feed connected, backing off between attempts. A
// connection that stayed up longer than the longest wait resets the policy.
func runIngest(ctx context.Context, client feedRunner, policy backoff.BackOff, logger *logging.Logger) {
	retry := backoff.WithContext(policy, ctx)
	retry.Reset()
	for ctx.Err() == nil {
		started := time.Now()
		err := client.Run(ctx)
		if time.Since(started) > ingestMaxBackoff {
			retry.Reset()
		}
		wait := retry.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		if err != nil {
			logger.Warn("snapshot feed disconnected", logging.Error(err), logging.Duration("retry_in", wait))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
