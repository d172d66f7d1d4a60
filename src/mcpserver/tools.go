package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/loopwire/termsession/src/toolsurface"
)

// Typed input/output structs per tool. Optional-pointer fields carry
// "unset" distinct from the zero value.

type CreateTerminalInput struct {
	Name  string            `json:"name" jsonschema:"Unique terminal session name"`
	Shell *string           `json:"shell,omitempty" jsonschema:"Shell program to spawn (default: $SHELL)"`
	Cwd   *string           `json:"cwd,omitempty" jsonschema:"Working directory"`
	Env   map[string]string `json:"env,omitempty" jsonschema:"Environment variable overlay"`
	Cols  *int              `json:"cols,omitempty" jsonschema:"PTY width in columns"`
	Rows  *int              `json:"rows,omitempty" jsonschema:"PTY height in rows"`
}

type CreateTerminalOutput struct {
	Name      string `json:"name"`
	PID       int    `json:"pid"`
	CreatedAt string `json:"createdAt"`
}

type WriteTerminalInput struct {
	Name          string  `json:"name" jsonschema:"Terminal session name"`
	Input         *string `json:"input,omitempty" jsonschema:"Text to write to the terminal"`
	Special       *string `json:"special,omitempty" jsonschema:"One of interrupt, suspend, eof, kill, term"`
	AppendNewline *string `json:"appendNewline,omitempty" jsonschema:"auto, true, or false"`
}

type WriteTerminalOutput struct {
	Annotation string `json:"annotation,omitempty"`
}

type ReadTerminalInput struct {
	Name         string  `json:"name" jsonschema:"Terminal session name"`
	Since        *int64  `json:"since,omitempty" jsonschema:"Cursor to read from"`
	Mode         *string `json:"mode,omitempty" jsonschema:"full, head, tail, or head_tail"`
	HeadLines    *int    `json:"headLines,omitempty"`
	TailLines    *int    `json:"tailLines,omitempty"`
	MaxLines     *int    `json:"maxLines,omitempty"`
	MaxBytes     *int    `json:"maxBytes,omitempty"`
	StripSpinner *bool   `json:"stripSpinner,omitempty"`
	FilterRegex  *string `json:"filterRegex,omitempty"`
	Direction    *string `json:"direction,omitempty" jsonschema:"forward or backward"`
}

type ReadTerminalOutput struct {
	Output        string `json:"output"`
	Cursor        int64  `json:"cursor"`
	HasMore       bool   `json:"hasMore"`
	DroppedBefore int64  `json:"droppedBefore"`
	TokenEstimate int    `json:"tokenEstimate"`
}

type ListTerminalsInput struct{}

type TerminalSummary struct {
	Name              string `json:"name"`
	Status            string `json:"status"`
	PID               int    `json:"pid"`
	Shell             string `json:"shell"`
	Cwd               string `json:"cwd"`
	CreatedAt         string `json:"createdAt"`
	LastActivity      string `json:"lastActivity"`
	SessionKind       string `json:"sessionKind"`
	SessionStackDepth int    `json:"sessionStackDepth"`
	AltScreen         bool   `json:"altScreen"`
	Handle            string `json:"handle"`
}

type ListTerminalsOutput struct {
	Terminals []TerminalSummary `json:"terminals"`
}

type KillTerminalInput struct {
	Name   string  `json:"name" jsonschema:"Terminal session name"`
	Signal *string `json:"signal,omitempty" jsonschema:"interrupt, suspend, eof, kill, or term (default: term)"`
}

type KillTerminalOutput struct{}

type WaitForOutputInput struct {
	Name             string `json:"name" jsonschema:"Terminal session name"`
	Since            *int64 `json:"since,omitempty"`
	IdleMs           *int   `json:"idleMs,omitempty" jsonschema:"Resolve after this many ms of silence"`
	OverallTimeoutMs *int   `json:"overallTimeoutMs,omitempty" jsonschema:"Resolve unconditionally after this many ms"`
}

type WaitForOutputOutput struct {
	Output string `json:"output"`
	Cursor int64  `json:"cursor"`
	Reason string `json:"reason"`
}

type ResizeTerminalInput struct {
	Name string `json:"name" jsonschema:"Terminal session name"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

type ResizeTerminalOutput struct{}

type StatsTerminalInput struct {
	Name string `json:"name" jsonschema:"Terminal session name"`
}

type StatsTerminalOutput struct {
	Status             string `json:"status"`
	PID                int    `json:"pid"`
	UptimeMs           int64  `json:"uptimeMs"`
	BytesRetained      int    `json:"bytesRetained"`
	LinesRetained      int    `json:"linesRetained"`
	TotalBytesWritten  int64  `json:"totalBytesWritten"`
	TotalBytesProduced int64  `json:"totalBytesProduced"`
	AltScreen          bool   `json:"altScreen"`
	LastActivity       string `json:"lastActivity"`
}

func strOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func int64Or(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (s *Server) registerTools() error {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "create_terminal",
		Description: "Spawn a new named PTY-backed terminal session",
	}, logToolCall("create_terminal", func(ctx context.Context, req *mcp.CallToolRequest, in CreateTerminalInput) (*mcp.CallToolResult, CreateTerminalOutput, error) {
		res, err := s.surface.CreateTerminal(toolsurface.CreateArgs{
			Name: in.Name, Shell: strOr(in.Shell, ""), Cwd: strOr(in.Cwd, ""), Env: in.Env,
			Cols: intOr(in.Cols, 0), Rows: intOr(in.Rows, 0),
		})
		if err != nil {
			return nil, CreateTerminalOutput{}, err
		}
		return nil, CreateTerminalOutput{Name: res.Name, PID: res.PID, CreatedAt: res.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "write_terminal",
		Description: "Write input or a special key to a terminal session",
	}, logToolCall("write_terminal", func(ctx context.Context, req *mcp.CallToolRequest, in WriteTerminalInput) (*mcp.CallToolResult, WriteTerminalOutput, error) {
		res, err := s.surface.WriteTerminal(toolsurface.WriteArgs{
			Name: in.Name, Input: strOr(in.Input, ""), Special: strOr(in.Special, ""), AppendNewline: strOr(in.AppendNewline, ""),
		})
		if err != nil {
			return nil, WriteTerminalOutput{}, err
		}
		return nil, WriteTerminalOutput{Annotation: res.Annotation}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "read_terminal",
		Description: "Read accumulated output from a terminal session by cursor or window",
	}, logToolCall("read_terminal", func(ctx context.Context, req *mcp.CallToolRequest, in ReadTerminalInput) (*mcp.CallToolResult, ReadTerminalOutput, error) {
		res, err := s.surface.ReadTerminal(toolsurface.ReadArgs{
			Name: in.Name, Since: int64Or(in.Since, 0), Mode: strOr(in.Mode, ""),
			HeadLines: intOr(in.HeadLines, 0), TailLines: intOr(in.TailLines, 0),
			MaxLines: intOr(in.MaxLines, 0), MaxBytes: intOr(in.MaxBytes, 0),
			StripSpinner: boolOr(in.StripSpinner, false), FilterRegex: strOr(in.FilterRegex, ""),
			Direction: strOr(in.Direction, ""),
		})
		if err != nil {
			return nil, ReadTerminalOutput{}, err
		}
		return nil, ReadTerminalOutput{
			Output: string(res.Output), Cursor: res.Cursor, HasMore: res.HasMore,
			DroppedBefore: res.DroppedBefore, TokenEstimate: res.TokenEstimate,
		}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_terminals",
		Description: "List every known terminal session",
	}, logToolCall("list_terminals", func(ctx context.Context, req *mcp.CallToolRequest, in ListTerminalsInput) (*mcp.CallToolResult, ListTerminalsOutput, error) {
		res := s.surface.ListTerminals()
		out := make([]TerminalSummary, 0, len(res.Terminals))
		for _, t := range res.Terminals {
			out = append(out, TerminalSummary{
				Name: t.Name, Status: string(t.Status), PID: t.PID, Shell: t.Shell, Cwd: t.Cwd,
				CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), LastActivity: t.LastActivity.Format("2006-01-02T15:04:05Z07:00"),
				SessionKind: t.SessionKind, SessionStackDepth: t.SessionStackDepth, AltScreen: t.AltScreen, Handle: t.Handle,
			})
		}
		return nil, ListTerminalsOutput{Terminals: out}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "kill_terminal",
		Description: "Signal a terminal session's child process",
	}, logToolCall("kill_terminal", func(ctx context.Context, req *mcp.CallToolRequest, in KillTerminalInput) (*mcp.CallToolResult, KillTerminalOutput, error) {
		if err := s.surface.KillTerminal(toolsurface.KillArgs{Name: in.Name, Signal: strOr(in.Signal, "")}); err != nil {
			return nil, KillTerminalOutput{}, err
		}
		return nil, KillTerminalOutput{}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "wait_for_output",
		Description: "Block until a terminal session goes idle, times out, or exits",
	}, logToolCall("wait_for_output", func(ctx context.Context, req *mcp.CallToolRequest, in WaitForOutputInput) (*mcp.CallToolResult, WaitForOutputOutput, error) {
		res, err := s.surface.WaitForOutput(ctx, toolsurface.WaitArgs{
			Name: in.Name, Since: int64Or(in.Since, 0),
			IdleMs: intOr(in.IdleMs, 200), OverallTimeoutMs: intOr(in.OverallTimeoutMs, 0),
		})
		if err != nil {
			return nil, WaitForOutputOutput{}, err
		}
		return nil, WaitForOutputOutput{Output: string(res.Output), Cursor: res.Cursor, Reason: res.Reason}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "resize_terminal",
		Description: "Change a terminal session's PTY geometry",
	}, logToolCall("resize_terminal", func(ctx context.Context, req *mcp.CallToolRequest, in ResizeTerminalInput) (*mcp.CallToolResult, ResizeTerminalOutput, error) {
		if err := s.surface.ResizeTerminal(toolsurface.ResizeArgs{Name: in.Name, Cols: in.Cols, Rows: in.Rows}); err != nil {
			return nil, ResizeTerminalOutput{}, err
		}
		return nil, ResizeTerminalOutput{}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "stats_terminal",
		Description: "Report a terminal session's status, geometry, and retention stats",
	}, logToolCall("stats_terminal", func(ctx context.Context, req *mcp.CallToolRequest, in StatsTerminalInput) (*mcp.CallToolResult, StatsTerminalOutput, error) {
		res, err := s.surface.StatsTerminal(in.Name)
		if err != nil {
			return nil, StatsTerminalOutput{}, err
		}
		return nil, StatsTerminalOutput{
			Status: res.Status, PID: res.PID, UptimeMs: res.UptimeMs, BytesRetained: res.BytesRetained,
			LinesRetained: res.LinesRetained, TotalBytesWritten: res.TotalBytesWritten,
			TotalBytesProduced: res.TotalBytesProduced, AltScreen: res.AltScreen,
			LastActivity: res.LastActivity.Format("2006-01-02T15:04:05Z07:00"),
		}, nil
	}))

	return nil
}
