package rescan

import (
	"context"
	"time"
)

// Start arms the periodic timer, if intervalMinutes is positive. The
// first tick fires one full interval from now — there is no rescan at
// startup. Calling Start while already armed is a no-op.
func (e *Engine) Start() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()
	if e.timerCancel != nil || e.intervalMinutes <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.timerCancel = cancel
	e.timerDone = done

	go e.runTimer(ctx, done, time.Duration(e.intervalMinutes)*time.Minute)
}

func (e *Engine) runTimer(ctx context.Context, done chan struct{}, period time.Duration) {
	defer close(done)

	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := e.RescanAsync(ctx, nil); err != nil && e.logger != nil {
				e.logger.Printf("rescan: periodic rescan failed: %v", err)
			}
			timer.Reset(period)
		}
	}
}

// Stop cancels any in-flight rescan started by the timer and disarms it.
// Safe to call when the timer isn't running.
func (e *Engine) Stop() {
	e.lifecycleMu.Lock()
	cancel := e.timerCancel
	done := e.timerDone
	e.timerCancel = nil
	e.timerDone = nil
	e.lifecycleMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// UpdateInterval stops the timer, changes its period, and rearms it if
// the new period is positive.
func (e *Engine) UpdateInterval(minutes int) {
	e.Stop()
	e.lifecycleMu.Lock()
	e.intervalMinutes = minutes
	e.lifecycleMu.Unlock()
	e.Start()
}
