package session

import (
	"context"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute, 2)
	s := m.Create("u1", "warm")
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "u1" || got.Persona != "warm" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
}

func TestManagerInterruptClearsTurn(t *testing.T) {
	m := NewManager(time.Minute, 2)
	s := m.Create("u1", "warm")
	if err := m.StartTurn(s.ID, "turn-1"); err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	if err := m.Interrupt(s.ID); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ActiveTurnID != "" {
		t.Fatalf("ActiveTurnID = %q, want empty", got.ActiveTurnID)
	}
	if got.InterruptionCount != 1 {
		t.Fatalf("InterruptionCount = %d, want 1", got.InterruptionCount)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30*time.Millisecond, 2)
	s := m.Create("u1", "warm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("Status = %q, want %q", got.Status, StatusEnded)
	}
}

func TestManagerSessionOwnsWindow(t *testing.T) {
	m := NewManager(time.Minute, 3)
	s := m.Create("u1", "")
	if s.Window() == nil || s.Window().Capacity() != 3 {
		t.Fatalf("Window() capacity = %v, want 3", s.Window())
	}
	s.Window().AddUser("hi")

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Window().Len() != 1 {
		t.Fatalf("Window().Len() = %d, want 1 (copies share the window)", got.Window().Len())
	}

	other := m.Create("u2", "")
	if other.Window().Len() != 0 {
		t.Fatalf("new session window Len() = %d, want 0", other.Window().Len())
	}
}

func TestManagerFinishTurnCounts(t *testing.T) {
	m := NewManager(time.Minute, 2)
	s := m.Create("", "")
	if err := m.StartTurn(s.ID, "t1"); err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	if err := m.FinishTurn(s.ID, "t1"); err != nil {
		t.Fatalf("FinishTurn() error = %v", err)
	}
	got, _ := m.Get(s.ID)
	if got.TurnCount != 1 || got.ActiveTurnID != "" {
		t.Fatalf("unexpected session state: %+v", got)
	}
	if err := m.FinishTurn("missing", "t1"); err != ErrNotFound {
		t.Fatalf("FinishTurn(missing) error = %v, want %v", err, ErrNotFound)
	}
}

func TestManagerPruneDropsEndedSessions(t *testing.T) {
	m := NewManager(time.Minute, 2)
	s := m.Create("", "")
	if _, err := m.End(s.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if n := m.Prune(-time.Second); n != 1 {
		t.Fatalf("Prune() = %d, want 1", n)
	}
	if _, err := m.Get(s.ID); err != ErrNotFound {
		t.Fatalf("Get() error = %v, want %v", err, ErrNotFound)
	}
}
