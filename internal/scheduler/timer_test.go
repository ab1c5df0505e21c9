package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerSetScheduleAfterFires(t *testing.T) {
	ts := NewTimerSet()
	defer ts.Stop()

	var fired atomic.Int32
	id, err := ts.ScheduleAfter(10*time.Millisecond, func() {
		fired.Add(1)
	})
	if err != nil {
		t.Fatalf("ScheduleAfter error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected non-empty timer id")
	}

	deadline := time.After(time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timer did not fire within 1s")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if fired.Load() != 1 {
		t.Errorf("expected exactly one fire, got %d", fired.Load())
	}
}

func TestTimerSetCancelPreventsFire(t *testing.T) {
	ts := NewTimerSet()
	defer ts.Stop()

	var fired atomic.Int32
	id, _ := ts.ScheduleAfter(50*time.Millisecond, func() {
		fired.Add(1)
	})
	if err := ts.Cancel(id); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("cancelled timer fired anyway")
	}
	if ts.ActiveCount() != 0 {
		t.Errorf("expected no active timers, got %d", ts.ActiveCount())
	}
}

func TestTimerSetCancelUnknownID(t *testing.T) {
	ts := NewTimerSet()
	defer ts.Stop()

	if err := ts.Cancel("timer_999"); err != nil {
		t.Errorf("cancel of unknown id should be a no-op, got error: %v", err)
	}
}

func TestTimerSetStopClearsAll(t *testing.T) {
	ts := NewTimerSet()
	for i := 0; i < 3; i++ {
		ts.ScheduleAfter(time.Minute, func() {})
	}
	if ts.ActiveCount() != 3 {
		t.Fatalf("expected 3 active timers, got %d", ts.ActiveCount())
	}
	ts.Stop()
	if ts.ActiveCount() != 0 {
		t.Errorf("expected 0 active timers after Stop, got %d", ts.ActiveCount())
	}
}

func TestCronRunnerAddJob(t *testing.T) {
	cr := NewCronRunner()
	defer cr.Stop()

	if err := cr.AddJob("*/15 * * * *", func() {}); err != nil {
		t.Errorf("valid cron expression rejected: %v", err)
	}
	if err := cr.AddJob("not a cron expr", func() {}); err == nil {
		t.Errorf("expected error for invalid cron expression")
	}
}
