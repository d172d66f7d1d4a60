// Package manager implements the name→Session registry: creation,
// resolution, enumeration, idle-timeout reaping, and global shutdown.
package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loopwire/termsession/src/hooks"
	"github.com/loopwire/termsession/src/ptyhandle"
	"github.com/loopwire/termsession/src/session"
	"github.com/loopwire/termsession/src/toolerr"
)

// Defaults supplies the manager-wide fallback values for session.Options
// fields a caller's create request leaves unset.
type Defaults struct {
	Shell           string
	Cols            uint16
	Rows            uint16
	SpinnerCompact  bool
	SpinnerThrottle time.Duration
	BufferLinesCap  int
	BufferBytesCap  int
	IdleTimeout     time.Duration
	ReapInterval    time.Duration
	ShutdownGrace   time.Duration
}

// Manager owns every Session. Reads (Resolve, List) take the read lock;
// mutations (Create, Forget) take the write lock.
type Manager struct {
	defaults Defaults
	hookEng  *hooks.Engine

	mu       sync.RWMutex
	sessions map[string]*session.Session

	reapStop chan struct{}
	reapDone chan struct{}
}

// New constructs a Manager and starts its idle reaper.
func New(defaults Defaults, hookEng *hooks.Engine) *Manager {
	if defaults.ReapInterval <= 0 {
		defaults.ReapInterval = 5 * time.Second
	}
	if defaults.ShutdownGrace <= 0 {
		defaults.ShutdownGrace = 3 * time.Second
	}
	m := &Manager{
		defaults: defaults,
		hookEng:  hookEng,
		sessions: make(map[string]*session.Session),
		reapStop: make(chan struct{}),
		reapDone: make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Create spawns a new Session under name. Fails with NameInUse if an
// active session already owns the name; a terminal session with the same
// name may be forgotten first and the name reused.
func (m *Manager) Create(name string, opts session.Options) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[name]; ok && !existing.Status().Terminal() {
		return nil, toolerr.NameInUse
	}

	opts = m.applyDefaults(opts)

	s, err := session.New(name, opts, m.hookEng)
	if err != nil {
		return nil, err
	}

	m.sessions[name] = s
	logrus.WithFields(logrus.Fields{"session": name, "shell": opts.Shell}).Info("session created")
	return s, nil
}

func (m *Manager) applyDefaults(opts session.Options) session.Options {
	if opts.Shell == "" {
		opts.Shell = m.defaults.Shell
	}
	if opts.Cols == 0 {
		opts.Cols = m.defaults.Cols
	}
	if opts.Rows == 0 {
		opts.Rows = m.defaults.Rows
	}
	opts.SpinnerCompact = m.defaults.SpinnerCompact
	if opts.SpinnerThrottle == 0 {
		opts.SpinnerThrottle = m.defaults.SpinnerThrottle
	}
	if opts.BufferLinesCap == 0 {
		opts.BufferLinesCap = m.defaults.BufferLinesCap
	}
	if opts.BufferBytesCap == 0 {
		opts.BufferBytesCap = m.defaults.BufferBytesCap
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = m.defaults.IdleTimeout
	}
	return opts
}

// Resolve looks up an existing session by name.
func (m *Manager) Resolve(name string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[name]
	if !ok {
		return nil, toolerr.NotFound
	}
	return s, nil
}

// List returns every known session, ordered by creation time.
func (m *Manager) List() []session.Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]session.Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Kill signals the named session's child; it does not remove the session
// from the registry.
func (m *Manager) Kill(name string, kind ptyhandle.SignalKind) error {
	s, err := m.Resolve(name)
	if err != nil {
		return err
	}
	return s.Kill(kind)
}

// Forget removes a terminal session from the registry. Fails if the
// session is still active.
func (m *Manager) Forget(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[name]
	if !ok {
		return toolerr.NotFound
	}
	if !s.Status().Terminal() {
		return toolerr.InvalidArg("name", "session still active")
	}
	delete(m.sessions, name)
	return nil
}

// Shutdown signals every active session (term, then kill after grace),
// drains their read-loops, and stops the reaper. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) {
	select {
	case <-m.reapStop:
		// already closed
	default:
		close(m.reapStop)
	}
	<-m.reapDone

	m.mu.RLock()
	sessions := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		if s.Status().Terminal() {
			continue
		}
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			s.CloseWithGrace(ctx, m.defaults.ShutdownGrace)
		}(s)
	}
	wg.Wait()
	logrus.Info("manager shutdown complete")
}

func (m *Manager) reapLoop() {
	defer close(m.reapDone)
	ticker := time.NewTicker(m.defaults.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.reapStop:
			return
		case <-ticker.C:
			m.reapOnce()
		}
	}
}

func (m *Manager) reapOnce() {
	m.mu.RLock()
	sessions := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		if s.Status().Terminal() {
			continue
		}
		timeout := s.IdleTimeout()
		if timeout > 0 && s.IdleFor() > timeout {
			s.MarkTimedOut()
		}
	}
}
