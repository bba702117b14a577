package simulation

import (
	"context"
	"time"
)

// FrameFunc renders one frame given the elapsed time and the measured frame rate.
type FrameFunc func(delta time.Duration, measuredFPS float64)

// Loop drives a host frame loop at the configured target frequency. Unlike a
// fixed-step simulation it reports the real elapsed time of every frame so the
// scheduler sees load-dependent deltas.
type Loop struct {
	interval time.Duration
	frame    FrameFunc
	monitor  *FrameMonitor
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewLoop configures a loop that targets the provided frames per second.
func NewLoop(targetHz float64, frame FrameFunc) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if frame == nil {
		frame = func(time.Duration, float64) {}
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{
		interval: interval,
		frame:    frame,
		monitor:  NewFrameMonitor(int(targetHz)),
	}
}

// Start begins rendering frames until the context is cancelled or Stop is invoked.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.frame == nil {
		return
	}

	ctx, l.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(l.interval)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				//1.- Measure the real frame delta and feed the rolling fps estimate.
				delta := now.Sub(last)
				last = now
				l.monitor.Observe(delta)
				l.frame(delta, l.monitor.Snapshot().AverageFPS())
			}
		}
	}()
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
		l.done = nil
	}
}

// Interval exposes the configured frame interval.
func (l *Loop) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Monitor exposes the loop's frame statistics.
func (l *Loop) Monitor() *FrameMonitor {
	if l == nil {
		return nil
	}
	return l.monitor
}
