package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dkeye/Parley/internal/adapters/rtc"
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/auth"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/observability"
	"github.com/dkeye/Parley/internal/store/memory"
)

type testServer struct {
	srv      *httptest.Server
	verifier *auth.JWTVerifier
	orch     *orch.Orchestrator
	graph    *memory.Graph
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	reg := prometheus.NewRegistry()
	graph := memory.NewGraph()
	o := orch.New(orch.Deps{
		Store:    memory.NewMessages(),
		Graph:    graph,
		LastSeen: memory.NewLastSeen(),
		Policy:   app.KickPolicy{},
		Metrics:  observability.NewMetrics(reg),
	})
	done := make(chan struct{})
	go func() {
		_ = o.Status.Run(ctx)
		close(done)
	}()

	cfg := &config.Config{
		Mode:       "test",
		Secret:     "cookie-secret",
		JWTSecret:  "jwt-secret",
		ReadLimit:  1 << 15,
		PingPeriod: time.Second,
		WriteWait:  time.Second,
		SendBuffer: 32,
	}
	verifier := auth.NewJWTVerifier(cfg.JWTSecret, time.Hour)
	r := SetupRouter(ctx, cfg, Deps{
		Orch:     o,
		Auth:     verifier,
		RTC:      rtc.DefaultWebRTCConfig(),
		Gatherer: reg,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		o.Registry.CloseAll()
		srv.Close()
		cancel()
		<-done
	})
	return &testServer{srv: srv, verifier: verifier, orch: o, graph: graph}
}

func (s *testServer) token(t *testing.T, user domain.UserID) string {
	t.Helper()
	tok, err := s.verifier.Issue(user)
	if err != nil {
		t.Fatalf("Issue(%s) error = %v", user, err)
	}
	return tok
}

func (s *testServer) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/ws" + query
}

func (s *testServer) dial(t *testing.T, user domain.UserID) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(s.wsURL("?token="+s.token(t, user)), nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", user, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// waitFor reads frames until one of type typ arrives.
func waitFor(t *testing.T, c *websocket.Conn, typ string) core.OutFrame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = c.SetReadDeadline(deadline)
		var f core.OutFrame
		if err := c.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if f.Type == typ {
			return f
		}
	}
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	if err := c.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWS_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL(""), nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %v, want 401", resp)
	}
}

func TestWS_ChatAndSignalingFlow(t *testing.T) {
	s := newTestServer(t)
	s.graph.AddFriends("alice", "bob")

	alice := s.dial(t, "alice")

	// a reply means the connection is registered
	send(t, alice, map[string]string{"type": "ping"})
	waitFor(t, alice, core.EventPong)

	send(t, alice, map[string]string{"type": "whoami"})
	who := waitFor(t, alice, core.EventWhoAmI)
	var w core.WhoAmI
	_ = json.Unmarshal(who.Payload, &w)
	if w.UserID != "alice" || w.Connections != 1 {
		t.Errorf("whoami = %+v, want alice with 1 connection", w)
	}

	bob := s.dial(t, "bob")
	online := waitFor(t, alice, core.EventUserOnline)
	var p core.UserOnline
	_ = json.Unmarshal(online.Payload, &p)
	if p.UserID != "bob" {
		t.Errorf("userOnline for %q, want bob", p.UserID)
	}

	conv := string(domain.DirectConversationID("alice", "bob"))
	send(t, alice, map[string]any{"type": "message:send", "conversationId": conv, "body": map[string]string{"text": "hi"}})
	waitFor(t, alice, core.EventMessageAccepted)
	msg := waitFor(t, bob, core.EventMessageNew)
	var m domain.Message
	if err := json.Unmarshal(msg.Payload, &m); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if string(m.Body) != `{"text":"hi"}` {
		t.Errorf("body = %s, want verbatim", m.Body)
	}
	delivered := waitFor(t, alice, core.EventMessageStatusUpdate)
	var ch domain.StatusChange
	_ = json.Unmarshal(delivered.Payload, &ch)
	if ch.Status != domain.StatusDelivered || ch.MessageID != m.ID {
		t.Errorf("status update = %+v, want delivered for %s", ch, m.ID)
	}

	send(t, bob, map[string]any{"type": "message:read", "conversationId": conv})
	read := waitFor(t, alice, core.EventMessageStatusUpdate)
	_ = json.Unmarshal(read.Payload, &ch)
	if ch.Status != domain.StatusRead {
		t.Errorf("status update = %+v, want read", ch)
	}

	send(t, alice, map[string]any{"type": "call:initiate", "to": "bob", "callId": "c1", "payload": map[string]string{"sdp": "offer"}})
	incoming := waitFor(t, bob, "call:incoming")
	if incoming.From != "alice" || incoming.CallID != "c1" || string(incoming.Payload) != `{"sdp":"offer"}` {
		t.Errorf("call:incoming = %+v", incoming)
	}
	send(t, bob, map[string]any{"type": "call:reject", "callId": "c1"})
	waitFor(t, alice, "call:rejected")

	send(t, alice, map[string]any{"type": "call:teleport", "to": "bob"})
	errFrame := waitFor(t, alice, core.EventError)
	var ep core.ErrorPayload
	_ = json.Unmarshal(errFrame.Payload, &ep)
	if ep.Error != "unknown_kind" || ep.Ref != "call:teleport" {
		t.Errorf("error = %+v, want unknown_kind for call:teleport", ep)
	}

	_ = bob.Close()
	offline := waitFor(t, alice, core.EventUserOffline)
	var off core.UserOffline
	_ = json.Unmarshal(offline.Payload, &off)
	if off.UserID != "bob" {
		t.Errorf("userOffline for %q, want bob", off.UserID)
	}
}

func TestWS_CookieSession(t *testing.T) {
	s := newTestServer(t)
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}

	body, _ := json.Marshal(map[string]string{"token": s.token(t, "carol")})
	resp, err := client.Post(s.srv.URL+"/api/session", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/session status = %d, want 200", resp.StatusCode)
	}

	dialer := websocket.Dialer{Jar: jar, HandshakeTimeout: 3 * time.Second}
	c, _, err := dialer.Dial(s.wsURL(""), nil)
	if err != nil {
		t.Fatalf("dial with cookie session: %v", err)
	}
	defer c.Close()
	send(t, c, map[string]string{"type": "whoami"})
	who := waitFor(t, c, core.EventWhoAmI)
	var w core.WhoAmI
	_ = json.Unmarshal(who.Payload, &w)
	if w.UserID != "carol" {
		t.Errorf("whoami = %q, want carol", w.UserID)
	}
}

func TestREST_Endpoints(t *testing.T) {
	s := newTestServer(t)
	s.dial(t, "alice")
	bearer := "Bearer " + s.token(t, "bob")

	get := func(path string, header string) (int, string) {
		req, _ := http.NewRequest(http.MethodGet, s.srv.URL+path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(b)
	}

	if code, _ := get("/healthz", ""); code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", code)
	}
	if code, _ := get("/api/online", ""); code != http.StatusUnauthorized {
		t.Errorf("/api/online without token = %d, want 401", code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.orch.Registry.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	code, body := get("/api/online", bearer)
	if code != http.StatusOK || !strings.Contains(body, `"alice"`) {
		t.Errorf("/api/online = %d %s, want alice listed", code, body)
	}
	code, body = get("/api/presence/alice", bearer)
	if code != http.StatusOK || !strings.Contains(body, `"online":true`) {
		t.Errorf("/api/presence/alice = %d %s, want online", code, body)
	}
	code, body = get("/api/rtc/config", bearer)
	if code != http.StatusOK || !strings.Contains(body, "stun:stun.l.google.com:19302") {
		t.Errorf("/api/rtc/config = %d %s", code, body)
	}
	code, body = get("/metrics", "")
	if code != http.StatusOK || !strings.Contains(body, "parley_connections 1") {
		t.Errorf("/metrics = %d, want parley_connections 1 in body", code)
	}
}
