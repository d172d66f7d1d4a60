// Package session implements Session: the unit the Manager tracks, composing
// a PTYHandle, an OutputBuffer, a SpinnerCompactor, and the HookEngine into
// one logical terminal with a one-shot state machine.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loopwire/termsession/src/hooks"
	"github.com/loopwire/termsession/src/outputbuffer"
	"github.com/loopwire/termsession/src/ptyhandle"
	"github.com/loopwire/termsession/src/spinner"
	"github.com/loopwire/termsession/src/toolerr"
)

// Status is the Session's one-shot terminal state, scoped to PTY lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusExited    Status = "exited"
	StatusKilled    Status = "killed"
	StatusTimedOut  Status = "timed_out"
)

func (s Status) Terminal() bool {
	return s == StatusExited || s == StatusKilled || s == StatusTimedOut
}

// NewlineMode is the explicit tri-state for write_terminal's append_newline.
type NewlineMode int

const (
	NewlineAuto NewlineMode = iota
	NewlineAlways
	NewlineNever
)

// Options configures a new Session. Zero values are filled in by the
// Manager from its own defaults before Spawn is called.
type Options struct {
	Shell           string
	Args            []string
	Cwd             string
	Env             map[string]string
	Cols            uint16
	Rows            uint16
	SpinnerCompact  bool
	SpinnerThrottle time.Duration
	BufferLinesCap  int
	BufferBytesCap  int
	IdleTimeout     time.Duration
}

// Summary is the read-only projection returned by list_terminals.
type Summary struct {
	Name              string
	Status            Status
	PID               int
	Shell             string
	Cwd               string
	CreatedAt         time.Time
	LastActivity      time.Time
	SessionKind       string
	SessionStackDepth int
	AltScreen         bool
	Handle            string
}

// Stats is the projection returned by stats_terminal.
type Stats struct {
	Status             Status
	PID                int
	UptimeMs           int64
	BytesRetained      int
	LinesRetained      int
	TotalBytesWritten  int64
	TotalBytesProduced int64
	AltScreen          bool
	LastActivity       time.Time
}

var remoteShellPattern = regexp.MustCompile(`^\s*(ssh|wsl|docker exec|kubectl exec)\b`)

// Session is one logical terminal.
type Session struct {
	Name      string
	CreatedAt time.Time

	opts Options

	pty      *ptyhandle.Handle
	buf      *outputbuffer.Buffer
	compact  *spinner.Compactor
	hookEng  *hooks.Engine

	writeMu sync.Mutex // serializes prefix/user/suffix triples so injected writes stay contiguous

	mu                sync.Mutex
	status            Status
	exitCode          int
	exitCause         error
	lastActivity      time.Time
	sessionKind       string
	sessionStackDepth int

	totalBytesWritten atomic.Int64

	readLoopDone chan struct{}
}

// New spawns the PTY child and starts the owning read-loop. It is the only
// place a Session transitions initial → active.
func New(name string, opts Options, hookEng *hooks.Engine) (*Session, error) {
	if opts.BufferLinesCap <= 0 {
		opts.BufferLinesCap = 5000
	}
	if opts.BufferBytesCap <= 0 {
		opts.BufferBytesCap = 4 << 20
	}

	h, err := ptyhandle.Spawn(ptyhandle.Options{
		Shell:      opts.Shell,
		Args:       opts.Args,
		WorkingDir: opts.Cwd,
		Env:        opts.Env,
		Cols:       opts.Cols,
		Rows:       opts.Rows,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	kind, depth := classifyKind(opts.Shell, opts.Args)
	s := &Session{
		Name:              name,
		CreatedAt:         now,
		opts:              opts,
		pty:               h,
		buf:               outputbuffer.New(outputbuffer.Config{MaxLines: opts.BufferLinesCap, MaxBytes: opts.BufferBytesCap}),
		compact:           spinner.New(opts.SpinnerCompact, opts.SpinnerThrottle),
		hookEng:           hookEng,
		status:            StatusActive,
		lastActivity:      now,
		sessionKind:       kind,
		sessionStackDepth: depth,
		readLoopDone:      make(chan struct{}),
	}

	go s.readLoop()
	return s, nil
}

// classifyKind reports whether a session's shell launches a nested remote
// session (ssh, wsl, docker exec, kubectl exec). The resulting stack depth
// is advisory metadata only: it is fixed at creation time and is never
// updated as commands run inside the shell, since a PTY cannot reliably
// observe further nesting without parsing shell prompts.
func classifyKind(shell string, args []string) (kind string, stackDepth int) {
	full := shell + " " + strings.Join(args, " ")
	if remoteShellPattern.MatchString(full) {
		return "remote", 1
	}
	return "local", 0
}

// readLoop is the Session's single writer into buf. Every PTY byte passes
// through the spinner compactor before reaching the buffer.
func (s *Session) readLoop() {
	defer close(s.readLoopDone)

	chunk := make([]byte, 32*1024)
	for {
		n, err := s.pty.Read(chunk)
		if n > 0 {
			s.touch()
			out := s.compact.Process(chunk[:n])
			if len(out) > 0 {
				s.buf.Append(out)
			}
		}
		if err != nil {
			if flushed := s.compact.Flush(); len(flushed) > 0 {
				s.buf.Append(flushed)
			}
			info := s.pty.Wait()
			s.mu.Lock()
			if !s.status.Terminal() {
				s.status = StatusExited
				s.exitCode = info.Code
				s.exitCause = info.Cause
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// WriteRequest mirrors write_terminal's argument shape.
type WriteRequest struct {
	Input         string
	Special       *ptyhandle.SignalKind
	AppendNewline NewlineMode
}

// WriteResult carries the HookEngine's annotation, if any.
type WriteResult struct {
	Annotation string
}

// Write runs the HookEngine pipeline and dispatches to the PTY. Concurrent
// writes to the same Session are serialized so an injected prefix/user/
// suffix triple is never interleaved with another writer.
func (s *Session) Write(req WriteRequest) (WriteResult, error) {
	s.mu.Lock()
	terminal := s.status.Terminal()
	s.mu.Unlock()
	if terminal {
		return WriteResult{}, toolerr.SessionTerminated
	}

	if req.Special != nil {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		if err := s.pty.Signal(*req.Special); err != nil {
			return WriteResult{}, err
		}
		s.touch()
		return WriteResult{}, nil
	}

	payload := applyNewline(req.Input, req.AppendNewline)

	decision, err := s.hookEng.Apply(s.Name, strings.TrimSpace(req.Input))
	if err != nil {
		return WriteResult{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, p := range decision.Prefix {
		if err := s.ptyWrite(p + "\r"); err != nil {
			return WriteResult{}, err
		}
	}
	if err := s.ptyWrite(payload); err != nil {
		return WriteResult{}, err
	}
	for _, suf := range decision.Suffix {
		if err := s.ptyWrite(suf + "\r"); err != nil {
			return WriteResult{}, err
		}
	}
	s.touch()

	return WriteResult{Annotation: decision.Annotation}, nil
}

// ptyWrite writes s to the PTY and tallies successfully written bytes for
// stats reporting. Callers hold writeMu.
func (s *Session) ptyWrite(payload string) error {
	n, err := s.pty.Write([]byte(payload))
	s.totalBytesWritten.Add(int64(n))
	return err
}

// applyNewline implements the auto tri-state: append a single CR when the
// input has no trailing CR/LF and contains no embedded newline.
func applyNewline(input string, mode NewlineMode) string {
	switch mode {
	case NewlineAlways:
		return input + "\r"
	case NewlineNever:
		return input
	default:
		if strings.ContainsAny(input, "\r\n") {
			return input
		}
		if strings.HasSuffix(input, "\r") || strings.HasSuffix(input, "\n") {
			return input
		}
		return input + "\r"
	}
}

// ReadRequest mirrors read_terminal's argument shape, layering post-filters
// on top of outputbuffer.ReadRequest.
type ReadRequest struct {
	outputbuffer.ReadRequest
	StripSpinner bool
	FilterRegex  *regexp.Regexp
}

// ReadResult adds the token estimate to outputbuffer.ReadResult.
type ReadResult struct {
	outputbuffer.ReadResult
	TokenEstimate int
}

// Read delegates to the OutputBuffer and applies optional post-filters.
func (s *Session) Read(req ReadRequest) ReadResult {
	raw := s.buf.Read(req.ReadRequest)
	output := raw.Output

	if req.StripSpinner {
		stripped := spinner.New(true, spinner.DefaultThrottle)
		output = append(stripped.Process(output), stripped.Flush()...)
	}
	if req.FilterRegex != nil {
		output = filterLines(output, req.FilterRegex)
	}

	return ReadResult{
		ReadResult:    outputbuffer.ReadResult{Output: output, NextCursor: raw.NextCursor, HasMore: raw.HasMore, DroppedBefore: raw.DroppedBefore},
		TokenEstimate: estimateTokens(output),
	}
}

func filterLines(data []byte, re *regexp.Regexp) []byte {
	lines := strings.SplitAfter(string(data), "\n")
	var out strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		if re.MatchString(l) {
			out.WriteString(l)
		}
	}
	return []byte(out.String())
}

// estimateTokens is a rough char/4 heuristic, adequate for UI display.
func estimateTokens(data []byte) int {
	return (len(data) + 3) / 4
}

// WaitRequest mirrors wait_for_output's argument shape.
type WaitRequest struct {
	Since             int64
	IdleTimeout       time.Duration
	OverallTimeout    time.Duration
}

// WaitReason explains why wait_for_output resolved.
type WaitReason string

const (
	WaitIdle    WaitReason = "idle"
	WaitTimeout WaitReason = "timeout"
	WaitExited  WaitReason = "exited"
)

// WaitResult is wait_for_output's response shape.
type WaitResult struct {
	Output []byte
	Cursor int64
	Reason WaitReason
}

// WaitForOutput subscribes to the buffer and resolves on the first of:
// idle_ms of silence, overall_timeout_ms elapsed, or session termination.
// It guarantees a single resolution — subscribe happens once, unsubscribe
// is deferred exactly once.
func (s *Session) WaitForOutput(ctx context.Context, req WaitRequest) WaitResult {
	idle := req.IdleTimeout
	if idle <= 0 {
		idle = 200 * time.Millisecond
	}

	dataCh := make(chan struct{}, 1)
	handle := s.buf.Subscribe(func(chunk []byte) {
		select {
		case dataCh <- struct{}{}:
		default:
		}
	}, nil)
	defer s.buf.Unsubscribe(handle)

	idleTimer := time.NewTimer(idle)
	defer idleTimer.Stop()

	var overallCh <-chan time.Time
	if req.OverallTimeout > 0 {
		overallTimer := time.NewTimer(req.OverallTimeout)
		defer overallTimer.Stop()
		overallCh = overallTimer.C
	}

	reason := WaitIdle
	for {
		select {
		case <-dataCh:
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(idle)
		case <-idleTimer.C:
			reason = WaitIdle
			goto done
		case <-overallCh:
			reason = WaitTimeout
			goto done
		case <-s.readLoopDone:
			reason = WaitExited
			goto done
		case <-ctx.Done():
			reason = WaitTimeout
			goto done
		}
	}

done:
	res := s.buf.Read(outputbuffer.ReadRequest{Since: req.Since, Mode: outputbuffer.ModeFull})
	return WaitResult{Output: res.Output, Cursor: res.NextCursor, Reason: reason}
}

// Resize changes the PTY window size.
func (s *Session) Resize(cols, rows uint16) error {
	s.mu.Lock()
	terminal := s.status.Terminal()
	s.mu.Unlock()
	if terminal {
		return toolerr.SessionTerminated
	}
	return s.pty.Resize(cols, rows)
}

// Kill signals the child. It is a no-op success on an already-terminal
// session.
func (s *Session) Kill(kind ptyhandle.SignalKind) error {
	s.mu.Lock()
	terminal := s.status.Terminal()
	s.mu.Unlock()
	if terminal {
		return nil
	}
	if err := s.pty.Signal(kind); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.status.Terminal() {
		s.status = StatusKilled
	}
	s.mu.Unlock()
	return nil
}

// CloseWithGrace escalates SIGTERM to SIGKILL after grace, for Manager's
// shutdown path.
func (s *Session) CloseWithGrace(ctx context.Context, grace time.Duration) {
	s.pty.CloseWithGrace(ctx, grace)
	<-s.readLoopDone
}

// MarkTimedOut transitions an active session to timed_out. Used by the
// Manager's idle reaper.
func (s *Session) MarkTimedOut() {
	s.mu.Lock()
	wasActive := !s.status.Terminal()
	if wasActive {
		s.status = StatusTimedOut
	}
	s.mu.Unlock()
	if wasActive {
		_ = s.pty.Signal(ptyhandle.SignalTerm)
		logrus.WithField("session", s.Name).Info("session idle-timed-out")
	}
}

// IdleFor reports how long it has been since the last write or PTY output.
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// IdleTimeout returns the configured idle timeout for the reaper.
func (s *Session) IdleTimeout() time.Duration { return s.opts.IdleTimeout }

// Handle derives an opaque transport-facing id from the session name and
// creation time, so clients can't construct or guess it from the name alone.
func (s *Session) Handle() string {
	sum := sha256.Sum256([]byte(s.Name + "\x00" + strconv.FormatInt(s.CreatedAt.UnixNano(), 10)))
	return hex.EncodeToString(sum[:])[:16]
}

// Summary projects the Session's current state for list_terminals.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		Name:              s.Name,
		Status:            s.status,
		PID:               s.pty.Pid(),
		Shell:             s.opts.Shell,
		Cwd:               s.opts.Cwd,
		CreatedAt:         s.CreatedAt,
		LastActivity:      s.lastActivity,
		SessionKind:       s.sessionKind,
		SessionStackDepth: s.sessionStackDepth,
		AltScreen:         s.pty.AltScreen(),
		Handle:            s.Handle(),
	}
}

// Stats projects stats_terminal's response.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	status := s.status
	lastActivity := s.lastActivity
	s.mu.Unlock()

	bytesRetained, linesRetained, droppedBytes, _ := s.buf.Stats()
	return Stats{
		Status:             status,
		PID:                s.pty.Pid(),
		UptimeMs:           time.Since(s.CreatedAt).Milliseconds(),
		BytesRetained:      bytesRetained,
		LinesRetained:      linesRetained,
		TotalBytesWritten:  s.totalBytesWritten.Load(),
		TotalBytesProduced: int64(bytesRetained) + droppedBytes,
		AltScreen:          s.pty.AltScreen(),
		LastActivity:       lastActivity,
	}
}

// Status returns the current one-shot state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SubscribeRaw exposes the underlying buffer subscription for the REST
// WebSocket surface, which needs raw chunks rather than the Read/Wait
// shaping Session otherwise applies.
func (s *Session) SubscribeRaw(callback func([]byte), onOverflow func()) outputbuffer.Handle {
	return s.buf.Subscribe(callback, onOverflow)
}

// UnsubscribeRaw cancels a subscription created by SubscribeRaw.
func (s *Session) UnsubscribeRaw(h outputbuffer.Handle) {
	s.buf.Unsubscribe(h)
}

// ExitInfo reports terminal-state metadata for diagnostics.
func (s *Session) ExitInfo() (code int, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.exitCause
}
