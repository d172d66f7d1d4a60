package restapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loopwire/termsession/src/toolsurface"
)

type handlers struct {
	surface *toolsurface.Surface
}

var startTime = time.Now()

func (h *handlers) health(c *gin.Context) {
	uptime := time.Since(startTime)
	sendJSON(c, http.StatusOK, gin.H{
		"status":        "ok",
		"goVersion":     runtime.Version(),
		"os":            runtime.GOOS,
		"arch":          runtime.GOARCH,
		"uptimeSeconds": uptime.Seconds(),
	})
}

type createBody struct {
	Name  string            `json:"name"`
	Shell string            `json:"shell"`
	Cwd   string            `json:"cwd"`
	Env   map[string]string `json:"env"`
	Cols  int               `json:"cols"`
	Rows  int               `json:"rows"`
}

func (h *handlers) create(c *gin.Context) {
	var body createBody
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}
	res, err := h.surface.CreateTerminal(toolsurface.CreateArgs{
		Name: body.Name, Shell: body.Shell, Cwd: body.Cwd, Env: body.Env, Cols: body.Cols, Rows: body.Rows,
	})
	if err != nil {
		sendError(c, statusFor(err), err)
		return
	}
	sendJSON(c, http.StatusCreated, gin.H{"name": res.Name, "pid": res.PID, "createdAt": res.CreatedAt})
}

func (h *handlers) list(c *gin.Context) {
	res := h.surface.ListTerminals()
	sendJSON(c, http.StatusOK, gin.H{"terminals": res.Terminals})
}

func (h *handlers) summary(c *gin.Context) {
	sum, err := h.surface.GetSummary(c.Param("name"))
	if err != nil {
		sendError(c, statusFor(err), err)
		return
	}
	sendJSON(c, http.StatusOK, sum)
}

func (h *handlers) kill(c *gin.Context) {
	signal := c.Query("signal")
	if err := h.surface.KillTerminal(toolsurface.KillArgs{Name: c.Param("name"), Signal: signal}); err != nil {
		sendError(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) killAll(c *gin.Context) {
	h.surface.KillAll()
	c.Status(http.StatusNoContent)
}

type writeBody struct {
	Input         string `json:"input"`
	Special       string `json:"special"`
	AppendNewline string `json:"appendNewline"`
}

func (h *handlers) write(c *gin.Context) {
	var body writeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}
	res, err := h.surface.WriteTerminal(toolsurface.WriteArgs{
		Name: c.Param("name"), Input: body.Input, Special: body.Special, AppendNewline: body.AppendNewline,
	})
	if err != nil {
		sendError(c, statusFor(err), err)
		return
	}
	sendJSON(c, http.StatusOK, gin.H{"annotation": res.Annotation})
}

func (h *handlers) read(c *gin.Context) {
	res, err := h.surface.ReadTerminal(toolsurface.ReadArgs{
		Name:         c.Param("name"),
		Since:        queryInt64(c, "since", 0),
		Mode:         c.Query("mode"),
		HeadLines:    queryInt(c, "headLines", 0),
		TailLines:    queryInt(c, "tailLines", 0),
		MaxLines:     queryInt(c, "maxLines", 0),
		MaxBytes:     queryInt(c, "maxBytes", 0),
		StripSpinner: queryBool(c, "stripSpinner"),
		FilterRegex:  c.Query("filterRegex"),
		Direction:    c.Query("direction"),
	})
	if err != nil {
		sendError(c, statusFor(err), err)
		return
	}
	sendJSON(c, http.StatusOK, gin.H{
		"output":        string(res.Output),
		"cursor":        res.Cursor,
		"hasMore":       res.HasMore,
		"droppedBefore": res.DroppedBefore,
		"tokenEstimate": res.TokenEstimate,
	})
}

func (h *handlers) stats(c *gin.Context) {
	res, err := h.surface.StatsTerminal(c.Param("name"))
	if err != nil {
		sendError(c, statusFor(err), err)
		return
	}
	sendJSON(c, http.StatusOK, res)
}

type resizeBody struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

func (h *handlers) resize(c *gin.Context) {
	var body resizeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.surface.ResizeTerminal(toolsurface.ResizeArgs{Name: c.Param("name"), Cols: body.Cols, Rows: body.Rows}); err != nil {
		sendError(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}
