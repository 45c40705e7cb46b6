package monitor

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor(cfg TimeoutConfig) (*Monitor, *fakeClock) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := newWithClock(cfg, clock.now)
	return m, clock
}

func TestMonitor_NoTimeoutInitially(t *testing.T) {
	m, _ := newTestMonitor(DefaultTimeoutConfig())
	if _, timedOut := m.CheckTimeout(); timedOut {
		t.Fatal("expected no timeout immediately after creation")
	}
}

func TestMonitor_IdleTimeoutFires(t *testing.T) {
	m, clock := newTestMonitor(TimeoutConfig{IdleTimeout: 5 * time.Second, TotalTimeout: time.Hour})
	clock.advance(5 * time.Second)

	reason, timedOut := m.CheckTimeout()
	if !timedOut || reason != Idle {
		t.Fatalf("expected Idle timeout, got reason=%v timedOut=%v", reason, timedOut)
	}
}

func TestMonitor_ActivityResetsIdleTimer(t *testing.T) {
	m, clock := newTestMonitor(TimeoutConfig{IdleTimeout: 5 * time.Second, TotalTimeout: time.Hour})
	clock.advance(3 * time.Second)
	m.RecordFileRead("/src/main.go")
	clock.advance(3 * time.Second)

	if _, timedOut := m.CheckTimeout(); timedOut {
		t.Fatal("expected activity to reset the idle timer")
	}
}

func TestMonitor_TotalTimeoutFires(t *testing.T) {
	m, clock := newTestMonitor(TimeoutConfig{IdleTimeout: time.Hour, TotalTimeout: 10 * time.Second})
	clock.advance(2 * time.Second)
	m.Touch()
	clock.advance(9 * time.Second)

	reason, timedOut := m.CheckTimeout()
	if !timedOut || reason != Total {
		t.Fatalf("expected Total timeout, got reason=%v timedOut=%v", reason, timedOut)
	}
}

func TestMonitor_IdleWinsOnTie(t *testing.T) {
	cfg := TimeoutConfig{IdleTimeout: 5 * time.Second, TotalTimeout: 5 * time.Second}
	m, clock := newTestMonitor(cfg)
	clock.advance(5 * time.Second)

	reason, timedOut := m.CheckTimeout()
	if !timedOut || reason != Idle {
		t.Fatalf("expected Idle to win the tie, got reason=%v timedOut=%v", reason, timedOut)
	}
}

func TestMonitor_HasActivity(t *testing.T) {
	m, _ := newTestMonitor(DefaultTimeoutConfig())
	if m.HasActivity() {
		t.Fatal("expected no activity on a fresh monitor")
	}
	m.RecordOutput(1)
	if !m.HasActivity() {
		t.Fatal("expected activity after recording output")
	}
}

func TestMonitor_Summarize(t *testing.T) {
	m, _ := newTestMonitor(DefaultTimeoutConfig())
	m.RecordFileRead("/a.go")
	m.RecordFileWrite("/b.go")
	m.RecordCommit(CommitInfo{Hash: "abc123", Message: "work"})
	m.RecordOutput(4)

	s := m.Summarize()
	if len(s.FilesRead) != 1 || len(s.FilesWritten) != 1 || len(s.Commits) != 1 || s.OutputLines != 4 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestTimeoutReason_String(t *testing.T) {
	if Idle.String() != "idle" || Total.String() != "total" {
		t.Fatal("unexpected TimeoutReason string representation")
	}
}
