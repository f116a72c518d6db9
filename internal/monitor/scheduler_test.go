package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestScheduler_DispatchesEnabledChecks(t *testing.T) {
	s := testStore(t)
	insertCheck(t, s, "chk-on", "dev-1", true)
	insertCheck(t, s, "chk-off", "dev-1", false)

	var mu sync.Mutex
	seen := map[string]int{}
	executed := make(chan string, 8)
	exec := func(ctx context.Context, c Check) {
		mu.Lock()
		seen[c.ID]++
		mu.Unlock()
		select {
		case executed <- c.ID:
		default:
		}
	}

	sched := NewScheduler(s, exec, time.Hour, 2, zap.NewNop())
	sched.Start(context.Background())
	defer sched.Stop()

	select {
	case id := <-executed:
		if id != "chk-on" {
			t.Errorf("executed %q, want chk-on", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor never invoked")
	}

	sched.Stop()
	mu.Lock()
	defer mu.Unlock()
	if seen["chk-off"] != 0 {
		t.Error("disabled check was dispatched")
	}
	if seen["chk-on"] != 1 {
		t.Errorf("chk-on dispatched %d times, want 1", seen["chk-on"])
	}
}

func TestScheduler_StopAndRunning(t *testing.T) {
	s := testStore(t)
	sched := NewScheduler(s, func(context.Context, Check) {}, time.Hour, 1, zap.NewNop())

	if sched.Running() {
		t.Error("Running() true before Start")
	}
	sched.Start(context.Background())
	if !sched.Running() {
		t.Error("Running() false after Start")
	}
	sched.Stop()
	if sched.Running() {
		t.Error("Running() true after Stop")
	}
}
