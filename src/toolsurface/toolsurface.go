// Package toolsurface implements ToolSurface: the transport-agnostic,
// tagged-variant dispatch table mapping the eight named operations onto
// Manager calls, with strict argument validation and result shaping. Both
// the mcpserver and restapi packages call into this package instead of
// talking to Manager/Session directly, so the operation contract is
// written once.
package toolsurface

import (
	"context"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/loopwire/termsession/src/manager"
	"github.com/loopwire/termsession/src/outputbuffer"
	"github.com/loopwire/termsession/src/ptyhandle"
	"github.com/loopwire/termsession/src/session"
	"github.com/loopwire/termsession/src/toolerr"
)

// normalizeCwd expands a leading "~" and collapses duplicate slashes.
func normalizeCwd(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~") {
		home := os.Getenv("HOME")
		if home == "" {
			return "", toolerr.InvalidArg("cwd", "home directory not found")
		}
		path = home + path[1:]
	}
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return path, nil
}

// Surface wraps a Manager with the eight public operations.
type Surface struct {
	mgr *manager.Manager
}

// New builds a Surface over mgr.
func New(mgr *manager.Manager) *Surface {
	return &Surface{mgr: mgr}
}

func validateGeometry(cols, rows int) error {
	if cols != 0 && (cols < 1 || cols > 1000) {
		return toolerr.InvalidArg("cols", "must be in [1, 1000]")
	}
	if rows != 0 && (rows < 1 || rows > 1000) {
		return toolerr.InvalidArg("rows", "must be in [1, 1000]")
	}
	return nil
}

func validateNonNegative(field string, v int) error {
	if v < 0 {
		return toolerr.InvalidArg(field, "must be >= 0")
	}
	return nil
}

// CreateArgs / CreateResult — create_terminal.
type CreateArgs struct {
	Name  string
	Shell string
	Cwd   string
	Env   map[string]string
	Cols  int
	Rows  int
}

type CreateResult struct {
	Name      string
	PID       int
	CreatedAt time.Time
}

func (s *Surface) CreateTerminal(args CreateArgs) (CreateResult, error) {
	if args.Name == "" {
		return CreateResult{}, toolerr.InvalidArg("name", "required")
	}
	if err := validateGeometry(args.Cols, args.Rows); err != nil {
		return CreateResult{}, err
	}
	cwd, err := normalizeCwd(args.Cwd)
	if err != nil {
		return CreateResult{}, err
	}

	sess, err := s.mgr.Create(args.Name, session.Options{
		Shell: args.Shell,
		Cwd:   cwd,
		Env:   args.Env,
		Cols:  uint16(args.Cols),
		Rows:  uint16(args.Rows),
	})
	if err != nil {
		return CreateResult{}, err
	}

	return CreateResult{Name: sess.Name, PID: sess.Summary().PID, CreatedAt: sess.CreatedAt}, nil
}

// WriteArgs / WriteResult — write_terminal.
type WriteArgs struct {
	Name          string
	Input         string
	Special       string // "" | interrupt | suspend | eof | kill | term
	AppendNewline string // "" | "auto" | "true" | "false"
}

type WriteResult struct {
	Annotation string
}

var specialKinds = map[string]ptyhandle.SignalKind{
	"interrupt": ptyhandle.SignalInterrupt,
	"suspend":   ptyhandle.SignalSuspend,
	"eof":       ptyhandle.SignalEOF,
	"kill":      ptyhandle.SignalKill,
	"term":      ptyhandle.SignalTerm,
}

func parseNewlineMode(v string) (session.NewlineMode, error) {
	switch v {
	case "", "auto":
		return session.NewlineAuto, nil
	case "true":
		return session.NewlineAlways, nil
	case "false":
		return session.NewlineNever, nil
	default:
		return 0, toolerr.InvalidArg("append_newline", "must be auto, true, or false")
	}
}

func (s *Surface) WriteTerminal(args WriteArgs) (WriteResult, error) {
	sess, err := s.mgr.Resolve(args.Name)
	if err != nil {
		return WriteResult{}, err
	}

	var specialPtr *ptyhandle.SignalKind
	if args.Special != "" {
		kind, ok := specialKinds[args.Special]
		if !ok {
			return WriteResult{}, toolerr.InvalidArg("special", "unknown special key")
		}
		specialPtr = &kind
	}

	mode, err := parseNewlineMode(args.AppendNewline)
	if err != nil {
		return WriteResult{}, err
	}

	res, err := sess.Write(session.WriteRequest{Input: args.Input, Special: specialPtr, AppendNewline: mode})
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Annotation: res.Annotation}, nil
}

// ReadArgs / ReadResult — read_terminal.
type ReadArgs struct {
	Name         string
	Since        int64
	Mode         string // "" | full | head | tail | head_tail
	HeadLines    int
	TailLines    int
	MaxLines     int
	MaxBytes     int
	StripSpinner bool
	FilterRegex  string
	Direction    string // "" | forward | backward
}

type ReadResult struct {
	Output        []byte
	Cursor        int64
	HasMore       bool
	DroppedBefore int64
	TokenEstimate int
}

func parseMode(v string) (outputbuffer.Mode, error) {
	switch v {
	case "", "full":
		return outputbuffer.ModeFull, nil
	case "head":
		return outputbuffer.ModeHead, nil
	case "tail":
		return outputbuffer.ModeTail, nil
	case "head_tail":
		return outputbuffer.ModeHeadTail, nil
	default:
		return 0, toolerr.InvalidArg("mode", "must be full, head, tail, or head_tail")
	}
}

func parseDirection(v string) (outputbuffer.Direction, error) {
	switch v {
	case "", "forward":
		return outputbuffer.Forward, nil
	case "backward":
		return outputbuffer.Backward, nil
	default:
		return 0, toolerr.InvalidArg("direction", "must be forward or backward")
	}
}

func (s *Surface) ReadTerminal(args ReadArgs) (ReadResult, error) {
	sess, err := s.mgr.Resolve(args.Name)
	if err != nil {
		return ReadResult{}, err
	}
	if err := validateNonNegative("max_lines", args.MaxLines); err != nil {
		return ReadResult{}, err
	}
	if err := validateNonNegative("max_bytes", args.MaxBytes); err != nil {
		return ReadResult{}, err
	}

	mode, err := parseMode(args.Mode)
	if err != nil {
		return ReadResult{}, err
	}
	dir, err := parseDirection(args.Direction)
	if err != nil {
		return ReadResult{}, err
	}

	var re *regexp.Regexp
	if args.FilterRegex != "" {
		re, err = regexp.Compile(args.FilterRegex)
		if err != nil {
			return ReadResult{}, toolerr.InvalidArg("filter_regex", "invalid regex")
		}
	}

	res := sess.Read(session.ReadRequest{
		ReadRequest: outputbuffer.ReadRequest{
			Since:     args.Since,
			Mode:      mode,
			Direction: dir,
			HeadLines: args.HeadLines,
			TailLines: args.TailLines,
			Limits:    outputbuffer.Limits{MaxLines: args.MaxLines, MaxBytes: args.MaxBytes},
		},
		StripSpinner: args.StripSpinner,
		FilterRegex:  re,
	})

	return ReadResult{
		Output:        res.Output,
		Cursor:        res.NextCursor,
		HasMore:       res.HasMore,
		DroppedBefore: res.DroppedBefore,
		TokenEstimate: res.TokenEstimate,
	}, nil
}

// ListResult — list_terminals.
type ListResult struct {
	Terminals []session.Summary
}

func (s *Surface) ListTerminals() ListResult {
	return ListResult{Terminals: s.mgr.List()}
}

// GetSummary returns one session's projection, for the REST summary route.
func (s *Surface) GetSummary(name string) (session.Summary, error) {
	sess, err := s.mgr.Resolve(name)
	if err != nil {
		return session.Summary{}, err
	}
	return sess.Summary(), nil
}

// KillAll signals every active session (term), for the REST kill-all route
// and the MCP equivalent.
func (s *Surface) KillAll() {
	for _, sum := range s.mgr.List() {
		if sum.Status == session.StatusActive {
			_ = s.mgr.Kill(sum.Name, ptyhandle.SignalTerm)
		}
	}
}

// SubscribeRaw exposes a session's live output fan-out to the WebSocket
// surface, which needs raw chunks rather than Read/Wait's shaping.
func (s *Surface) SubscribeRaw(name string, onChunk func([]byte), onOverflow func()) (outputbuffer.Handle, bool) {
	sess, err := s.mgr.Resolve(name)
	if err != nil {
		return outputbuffer.Handle{}, false
	}
	return sess.SubscribeRaw(onChunk, onOverflow), true
}

// UnsubscribeRaw cancels a subscription created by SubscribeRaw.
func (s *Surface) UnsubscribeRaw(name string, handle outputbuffer.Handle) {
	sess, err := s.mgr.Resolve(name)
	if err != nil {
		return
	}
	sess.UnsubscribeRaw(handle)
}

// KillArgs — kill_terminal.
type KillArgs struct {
	Name   string
	Signal string // "" | interrupt | suspend | eof | kill | term
}

func (s *Surface) KillTerminal(args KillArgs) error {
	kind := ptyhandle.SignalTerm
	if args.Signal != "" {
		k, ok := specialKinds[args.Signal]
		if !ok {
			return toolerr.InvalidArg("signal", "unknown signal")
		}
		kind = k
	}
	return s.mgr.Kill(args.Name, kind)
}

// WaitArgs / WaitResult — wait_for_output.
type WaitArgs struct {
	Name             string
	Since            int64
	IdleMs           int
	OverallTimeoutMs int
}

type WaitResult struct {
	Output []byte
	Cursor int64
	Reason string
}

func (s *Surface) WaitForOutput(ctx context.Context, args WaitArgs) (WaitResult, error) {
	sess, err := s.mgr.Resolve(args.Name)
	if err != nil {
		return WaitResult{}, err
	}

	res := sess.WaitForOutput(ctx, session.WaitRequest{
		Since:          args.Since,
		IdleTimeout:    time.Duration(args.IdleMs) * time.Millisecond,
		OverallTimeout: time.Duration(args.OverallTimeoutMs) * time.Millisecond,
	})
	return WaitResult{Output: res.Output, Cursor: res.Cursor, Reason: string(res.Reason)}, nil
}

// ResizeArgs — resize_terminal.
type ResizeArgs struct {
	Name string
	Cols int
	Rows int
}

func (s *Surface) ResizeTerminal(args ResizeArgs) error {
	if args.Cols < 1 || args.Cols > 1000 {
		return toolerr.InvalidArg("cols", "must be in [1, 1000]")
	}
	if args.Rows < 1 || args.Rows > 1000 {
		return toolerr.InvalidArg("rows", "must be in [1, 1000]")
	}
	sess, err := s.mgr.Resolve(args.Name)
	if err != nil {
		return err
	}
	return sess.Resize(uint16(args.Cols), uint16(args.Rows))
}

// StatsResult — stats_terminal.
type StatsResult struct {
	Status             string
	PID                int
	UptimeMs           int64
	BytesRetained      int
	LinesRetained      int
	TotalBytesWritten  int64
	TotalBytesProduced int64
	AltScreen          bool
	LastActivity       time.Time
}

func (s *Surface) StatsTerminal(name string) (StatsResult, error) {
	sess, err := s.mgr.Resolve(name)
	if err != nil {
		return StatsResult{}, err
	}
	st := sess.Stats()
	return StatsResult{
		Status:             string(st.Status),
		PID:                st.PID,
		UptimeMs:           st.UptimeMs,
		BytesRetained:      st.BytesRetained,
		LinesRetained:      st.LinesRetained,
		TotalBytesWritten:  st.TotalBytesWritten,
		TotalBytesProduced: st.TotalBytesProduced,
		AltScreen:          st.AltScreen,
		LastActivity:       st.LastActivity,
	}, nil
}
