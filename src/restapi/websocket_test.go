package restapi

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStreamRelaysOutputToClient(t *testing.T) {
	r := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	createReq := httptest.NewRequest("POST", "/api/terminals", strings.NewReader(`{"name":"ws-session"}`))
	createReq.Header.Set("Content-Type", "application/json")
	createW := httptest.NewRecorder()
	r.ServeHTTP(createW, createReq)
	if createW.Code != 201 {
		t.Fatalf("expected terminal creation to succeed, got %d: %s", createW.Code, createW.Body.String())
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/terminals/ws-session/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	writeReq := httptest.NewRequest("POST", "/api/terminals/ws-session/input", strings.NewReader(`{"input":"echo ws-ok"}`))
	writeReq.Header.Set("Content-Type", "application/json")
	writeW := httptest.NewRecorder()
	r.ServeHTTP(writeW, writeReq)
	if writeW.Code != 200 {
		t.Fatalf("expected write to succeed, got %d: %s", writeW.Code, writeW.Body.String())
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if msg.Type != "output" {
			continue
		}
		data, _ := msg.Data.(string)
		if strings.Contains(data, "ws-ok") {
			return
		}
	}
}

func TestStreamUnknownSessionClosesImmediately(t *testing.T) {
	r := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/terminals/ghost/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail for an unknown session")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404 response, got %+v", resp)
	}
}

func TestRedactSecretsMasksSensitiveQueryParams(t *testing.T) {
	in := "/api/terminals?token=abc123&name=foo"
	out := redactSecrets(in)
	if strings.Contains(out, "abc123") {
		t.Fatalf("expected token value redacted, got %q", out)
	}
	if !strings.Contains(out, "name=foo") {
		t.Fatalf("expected unrelated params untouched, got %q", out)
	}
}

func TestRedactSecretsLeavesCleanPathsAlone(t *testing.T) {
	in := "/api/terminals?name=foo"
	if out := redactSecrets(in); out != in {
		t.Fatalf("expected no change, got %q", out)
	}
}

func TestStreamMessageJSONShape(t *testing.T) {
	msg := streamMessage{TerminalID: "abc", Type: "output", Data: "hello"}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"terminalId":"abc"`) {
		t.Fatalf("unexpected JSON shape: %s", raw)
	}
}
