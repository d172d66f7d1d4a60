package restapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/loopwire/termsession/src/outputbuffer"
	"github.com/loopwire/termsession/src/toolsurface"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamMessage is one of the three wire shapes sent to a connected client.
type streamMessage struct {
	TerminalID string      `json:"terminalId"`
	Type       string      `json:"type"` // output | exit | session_mode
	Data       interface{} `json:"data"`
}

// stream upgrades the connection and relays one session's live output:
// subscribe, replay the retained buffer, then forward further appends
// until the client disconnects. Clients reconcile missed bytes via
// cursor-based REST reads.
func (h *handlers) stream(c *gin.Context) {
	name := c.Param("name")
	summary, err := h.surface.GetSummary(name)
	if err != nil {
		sendError(c, statusFor(err), err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	_ = conn.WriteJSON(streamMessage{
		TerminalID: summary.Handle,
		Type:       "session_mode",
		Data: gin.H{
			"sessionKind":       summary.SessionKind,
			"sessionStackDepth": summary.SessionStackDepth,
		},
	})

	replay, err := h.surface.ReadTerminal(toolsurface.ReadArgs{Name: name, Mode: "tail", TailLines: 500})
	if err == nil && len(replay.Output) > 0 {
		_ = conn.WriteJSON(streamMessage{TerminalID: summary.Handle, Type: "output", Data: string(replay.Output)})
	}

	msgCh := make(chan streamMessage, 64)
	done := make(chan struct{})

	onChunk := func(chunk []byte) {
		select {
		case msgCh <- streamMessage{TerminalID: summary.Handle, Type: "output", Data: string(chunk)}:
		default:
		}
	}
	onOverflow := func() {
		select {
		case msgCh <- streamMessage{TerminalID: summary.Handle, Type: "exit", Data: "subscriber overflow"}:
		default:
		}
	}

	subHandle, subscribed := subscribeIfLive(h, name, onChunk, onOverflow)
	if subscribed {
		defer h.unsubscribe(name, subHandle)
	}

	go readPump(conn, done)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg := <-msgCh:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames (this stream is output-only) but detects
// disconnects promptly.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// subscribeIfLive and unsubscribe are indirected through handlers so the
// websocket handler depends only on toolsurface, not on manager/session
// directly — mirroring ToolSurface's transport-agnostic boundary.
func subscribeIfLive(h *handlers, name string, onChunk func([]byte), onOverflow func()) (outputbuffer.Handle, bool) {
	return h.surface.SubscribeRaw(name, onChunk, onOverflow)
}

func (h *handlers) unsubscribe(name string, handle outputbuffer.Handle) {
	h.surface.UnsubscribeRaw(name, handle)
}
