package rescan

import (
	"testing"
	"time"

	"github.com/nordicnode/swarm/application"
)

func TestEngine_Start_ZeroIntervalNeverFires(t *testing.T) {
	engine, dir, syncSvc, _ := newTestEngine(t, application.QuickTimestampOnly)
	writeFile(t, dir, "a.txt", "aaa")
	engine.intervalMinutes = 0

	engine.Start()
	defer engine.Stop()
	time.Sleep(20 * time.Millisecond)

	if syncSvc.count() != 0 {
		t.Fatal("expected a zero interval to never arm the timer")
	}
}

func TestEngine_Stop_IsSafeWithoutStart(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, application.QuickTimestampOnly)
	engine.Stop() // must not panic or hang
}

func TestEngine_Stop_IsIdempotent(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, application.QuickTimestampOnly)
	engine.intervalMinutes = 60
	engine.Start()
	engine.Stop()
	engine.Stop()
}
