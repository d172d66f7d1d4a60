package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loopwire/termsession/src/hooks"
	"github.com/loopwire/termsession/src/ptyhandle"
	"github.com/loopwire/termsession/src/session"
	"github.com/loopwire/termsession/src/toolerr"
)

func newTestManager(t *testing.T, defaults Defaults) *Manager {
	t.Helper()
	if defaults.Shell == "" {
		defaults.Shell = "/bin/sh"
	}
	eng, err := hooks.New(nil)
	if err != nil {
		t.Fatalf("hooks.New: %v", err)
	}
	m := New(defaults, eng)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

func TestCreateAndResolve(t *testing.T) {
	m := newTestManager(t, Defaults{})

	s, err := m.Create("alpha", session.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Kill(ptyhandle.SignalKill)

	got, err := m.Resolve("alpha")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != s {
		t.Fatal("Resolve returned a different session instance")
	}
}

func TestCreateDuplicateNameRejected(t *testing.T) {
	m := newTestManager(t, Defaults{})

	s, err := m.Create("dup", session.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Kill(ptyhandle.SignalKill)

	_, err = m.Create("dup", session.Options{})
	if !errors.Is(err, toolerr.NameInUse) {
		t.Fatalf("expected NameInUse, got %v", err)
	}
}

func TestResolveMissingSessionReturnsNotFound(t *testing.T) {
	m := newTestManager(t, Defaults{})
	_, err := m.Resolve("ghost")
	if !errors.Is(err, toolerr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestForgetRequiresTerminalSession(t *testing.T) {
	m := newTestManager(t, Defaults{})
	s, err := m.Create("still-active", session.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Kill(ptyhandle.SignalKill)

	if err := m.Forget("still-active"); err == nil {
		t.Fatal("expected Forget to fail on an active session")
	}

	if err := s.Kill(ptyhandle.SignalKill); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Status() == session.StatusActive && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	if err := m.Forget("still-active"); err != nil {
		t.Fatalf("expected Forget to succeed once terminal: %v", err)
	}
	if _, err := m.Resolve("still-active"); !errors.Is(err, toolerr.NotFound) {
		t.Fatal("expected session removed from registry")
	}
}

func TestNameReusableAfterForget(t *testing.T) {
	m := newTestManager(t, Defaults{})
	s, err := m.Create("reuse", session.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Kill(ptyhandle.SignalKill)
	deadline := time.Now().Add(2 * time.Second)
	for s.Status() == session.StatusActive && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if err := m.Forget("reuse"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	s2, err := m.Create("reuse", session.Options{})
	if err != nil {
		t.Fatalf("expected name reusable after Forget: %v", err)
	}
	defer s2.Kill(ptyhandle.SignalKill)
}

func TestListOrderedByCreation(t *testing.T) {
	m := newTestManager(t, Defaults{})
	names := []string{"s1", "s2", "s3"}
	for _, n := range names {
		s, err := m.Create(n, session.Options{})
		if err != nil {
			t.Fatalf("Create(%s): %v", n, err)
		}
		defer s.Kill(ptyhandle.SignalKill)
		time.Sleep(5 * time.Millisecond)
	}

	list := m.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.Before(list[i-1].CreatedAt) {
			t.Fatalf("expected list ordered by CreatedAt, got %+v", list)
		}
	}
}

func TestReapMarksIdleSessionsTimedOut(t *testing.T) {
	m := newTestManager(t, Defaults{
		IdleTimeout:  20 * time.Millisecond,
		ReapInterval: 10 * time.Millisecond,
	})

	s, err := m.Create("idle-session", session.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Status() != session.StatusTimedOut && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if s.Status() != session.StatusTimedOut {
		t.Fatalf("expected idle session to be reaped as timed_out, got %v", s.Status())
	}
}

func TestShutdownIsIdempotentAndClosesSessions(t *testing.T) {
	eng, err := hooks.New(nil)
	if err != nil {
		t.Fatalf("hooks.New: %v", err)
	}
	m := New(Defaults{Shell: "/bin/sh", ShutdownGrace: 500 * time.Millisecond}, eng)

	s, err := m.Create("shutdown-session", session.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	m.Shutdown(ctx)
	m.Shutdown(ctx) // idempotent, must not panic or deadlock

	if !s.Status().Terminal() {
		t.Fatalf("expected session terminal after shutdown, got %v", s.Status())
	}
}
