package replay

import (
	"sync"

	"github.com/rotisserie/eris"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AdotEXE/protocol-XT-sub007/internal/logging"
	"github.com/AdotEXE/protocol-XT-sub007/internal/scheduler"
)

// Event types written to the events stream.
const (
	// EventRateBand records a frame-rate band change.
	EventRateBand = "rate_band"
	// EventLaneFaults records a frame in which entity steps faulted.
	EventLaneFaults = "lane_faults"
	// EventDisposed records networked entities removed this frame.
	EventDisposed = "networked_disposed"
)

// Stats summarises recorder activity.
type Stats struct {
	Frames   uint64
	Events   uint64
	Failures uint64
}

// Recorder observes every scheduler frame and persists it through a Writer.
// Write failures are logged once and counted; they never reach the frame loop.
type Recorder struct {
	mu     sync.Mutex
	writer *Writer
	logger *logging.Logger
	stats  Stats
	warned bool
}

// NewRecorder wraps writer.
func NewRecorder(writer *Writer, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.L()
	}
	return &Recorder{
		writer: writer,
		logger: logger.With(logging.String("component", "recorder"), logging.String("directory", writer.Directory())),
	}
}

// ObserveFrame implements scheduler.Observer.
func (r *Recorder) ObserveFrame(report scheduler.FrameReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	//1.- Discrete events first so replays see them before the frame they belong to.
	if report.BandChanged {
		r.event(report.Tick, EventRateBand, map[string]any{
			"band":    report.Band.String(),
			"fps":     report.FPS,
			"periods": periodsByName(report.Periods),
		})
	}
	for _, lane := range report.Lanes {
		if lane.Faulted > 0 {
			r.event(report.Tick, EventLaneFaults, map[string]any{"lane": lane.Lane, "faulted": lane.Faulted})
		}
	}
	if len(report.Disposed) > 0 {
		r.event(report.Tick, EventDisposed, map[string]any{"ids": report.Disposed})
	}

	//2.- Then the frame itself as a protobuf Struct.
	payload, err := EncodeFrame(report)
	if err == nil {
		err = r.writer.AppendFrame(report.Tick, payload)
	}
	if err != nil {
		r.fail(eris.Wrapf(err, "record frame %d", report.Tick))
		return
	}
	r.stats.Frames++
}

// Stats returns a copy of the counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close flushes and closes the writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Close()
}

func (r *Recorder) event(tick uint32, eventType string, payload map[string]any) {
	if err := r.writer.AppendEvent(tick, eventType, payload); err != nil {
		r.fail(err)
		return
	}
	r.stats.Events++
}

func (r *Recorder) fail(err error) {
	r.stats.Failures++
	if r.warned {
		return
	}
	r.warned = true
	r.logger.Warn("recorder write failed; further failures are counted only", logging.Error(err))
}

// EncodeFrame converts a frame report into its protobuf wire form.
func EncodeFrame(report scheduler.FrameReport) ([]byte, error) {
	lanes := make([]any, 0, len(report.Lanes))
	for _, lane := range report.Lanes {
		lanes = append(lanes, map[string]any{
			"lane":    lane.Lane,
			"start":   lane.Start,
			"visited": lane.Visited,
			"updated": lane.Updated,
			"faulted": lane.Faulted,
		})
	}
	gates := make([]any, 0, len(report.Gates))
	for _, category := range scheduler.Categories {
		if report.Gates[category] {
			gates = append(gates, category.String())
		}
	}
	fields := map[string]any{
		"tick":        report.Tick,
		"delta_ms":    float64(report.Delta.Microseconds()) / 1000,
		"fps":         report.FPS,
		"band":        report.Band.String(),
		"recomputed":  report.Recomputed,
		"periods":     periodsByName(report.Periods),
		"gates":       gates,
		"lanes":       lanes,
		"projectiles": report.Projectiles,
		"applied":     report.Applied,
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, eris.Wrap(err, "build frame struct")
	}
	payload, err := proto.Marshal(msg)
	if err != nil {
		return nil, eris.Wrap(err, "marshal frame struct")
	}
	return payload, nil
}

func periodsByName(periods [scheduler.CategoryCount]uint32) map[string]any {
	out := make(map[string]any, len(periods))
	for _, category := range scheduler.Categories {
		out[category.String()] = periods[category]
	}
	return out
}
