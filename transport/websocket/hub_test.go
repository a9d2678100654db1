package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/pongrelay/game/lifecycle"
	"github.com/wricardo/pongrelay/game/state"
)

const defaultStateJSON = `{"balls":[],"dayScore":0,"nightScore":0,"isGameRunning":false}`

type testRelay struct {
	hub    *Hub
	server *httptest.Server
	cancel context.CancelFunc
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()

	hub := NewHub(state.NewStore(), lifecycle.NewCoordinator(), discardLogger(), DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	return &testRelay{hub: hub, server: server, cancel: cancel}
}

func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(r.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// join connects and consumes the initial snapshot.
func (r *testRelay) join(t *testing.T) (*websocket.Conn, Envelope) {
	t.Helper()

	conn := r.dial(t)
	env := readEnvelope(t, conn)
	if env.Type != TypeGameState {
		t.Fatalf("Expected initial gameState, got %s", env.Type)
	}
	return conn, env
}

func (r *testRelay) waitForConnections(t *testing.T, n int) {
	t.Helper()
	waitFor(t, func() bool { return r.hub.Stats().Connections == n })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met within timeout")
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read WebSocket message: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Failed to unmarshal message %s: %v", data, err)
	}
	return env
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("Failed to write WebSocket message: %v", err)
	}
}

func assertJSONEqual(t *testing.T, want string, got json.RawMessage) {
	t.Helper()

	var w, g any
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("Bad expected JSON %s: %v", want, err)
	}
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("Bad received JSON %s: %v", got, err)
	}
	wb, _ := json.Marshal(w)
	gb, _ := json.Marshal(g)
	if string(wb) != string(gb) {
		t.Errorf("Expected %s, got %s", wb, gb)
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(state.NewStore(), lifecycle.NewCoordinator(), discardLogger(), Options{})

	if hub.registry == nil || hub.router == nil {
		t.Fatal("Hub registry or router is nil")
	}
	if hub.register == nil || hub.unregister == nil || hub.inbound == nil {
		t.Error("Hub channels are nil")
	}
	if hub.opts.SendBuffer != 256 {
		t.Errorf("Expected default send buffer 256, got %d", hub.opts.SendBuffer)
	}
	if hub.opts.PingPeriod >= hub.opts.PongWait {
		t.Errorf("Ping period %s must be less than pong wait %s", hub.opts.PingPeriod, hub.opts.PongWait)
	}
}

func TestHub_Scenario(t *testing.T) {
	relay := newTestRelay(t)

	a, initialA := relay.join(t)
	assertJSONEqual(t, defaultStateJSON, initialA.Data)

	b, initialB := relay.join(t)
	assertJSONEqual(t, defaultStateJSON, initialB.Data)

	update := `{"balls":[],"dayScore":5,"nightScore":0,"isGameRunning":false}`
	send(t, a, `{"type":"gameState","data":`+update+`}`)

	env := readEnvelope(t, b)
	if env.Type != TypeGameState {
		t.Fatalf("Expected gameState for B, got %s", env.Type)
	}
	assertJSONEqual(t, update, env.Data)

	send(t, a, `{"type":"gameStart"}`)

	// A's next frame is the start: its own state update was not echoed back
	for name, conn := range map[string]*websocket.Conn{"A": a, "B": b} {
		env := readEnvelope(t, conn)
		if env.Type != TypeGameStart {
			t.Errorf("Expected gameStart for %s, got %s", name, env.Type)
		}
		if env.Data != nil {
			t.Errorf("gameStart for %s should carry no data, got %s", name, env.Data)
		}
	}

	send(t, b, `{"type":"gameEnd","data":{"winner":"day"}}`)

	for name, conn := range map[string]*websocket.Conn{"A": a, "B": b} {
		env := readEnvelope(t, conn)
		if env.Type != TypeGameEnd {
			t.Errorf("Expected gameEnd for %s, got %s", name, env.Type)
		}
		assertJSONEqual(t, `{"winner":"day"}`, env.Data)
	}
}

func TestHub_JoinReceivesCurrentSnapshot(t *testing.T) {
	relay := newTestRelay(t)

	a, _ := relay.join(t)
	send(t, a, `{"type":"gameState","data":{"dayScore":7,"balls":[{"x":1,"y":2}]}}`)
	waitFor(t, func() bool { return relay.hub.Stats().StateVersion == 1 })

	send(t, a, `{"type":"gameStart"}`)
	readEnvelope(t, a)

	_, initial := relay.join(t)
	assertJSONEqual(t, `{"dayScore":7,"balls":[{"x":1,"y":2}],"isGameRunning":true}`, initial.Data)
}

func TestHub_MalformedFramesAreDropped(t *testing.T) {
	relay := newTestRelay(t)

	a, _ := relay.join(t)
	b, _ := relay.join(t)

	send(t, a, `this is not json`)
	send(t, a, `{"type":"bogus","data":{}}`)
	send(t, a, `{"type":"gameState"}`)
	send(t, a, `{"type":"gameState","data":[1,2,3]}`)
	send(t, a, `{"type":"gameState","data":{"dayScore":1}}`)

	env := readEnvelope(t, b)
	if env.Type != TypeGameState {
		t.Fatalf("Expected gameState, got %s", env.Type)
	}
	assertJSONEqual(t, `{"dayScore":1}`, env.Data)

	// The sender is still connected and served
	send(t, a, `{"type":"gameStart"}`)
	if env := readEnvelope(t, a); env.Type != TypeGameStart {
		t.Errorf("Expected gameStart for sender, got %s", env.Type)
	}
	if env := readEnvelope(t, b); env.Type != TypeGameStart {
		t.Errorf("Expected gameStart for peer, got %s", env.Type)
	}

	if got := relay.hub.Stats().StateVersion; got != 2 {
		t.Errorf("Expected 2 state mutations (update and start), got %d", got)
	}
}

func TestHub_DroppedConnectionDoesNotBlockOthers(t *testing.T) {
	relay := newTestRelay(t)

	a, _ := relay.join(t)
	b, _ := relay.join(t)
	c, _ := relay.join(t)
	relay.waitForConnections(t, 3)

	send(t, a, `{"type":"gameState","data":{"seq":1}}`)
	assertJSONEqual(t, `{"seq":1}`, readEnvelope(t, b).Data)
	assertJSONEqual(t, `{"seq":1}`, readEnvelope(t, c).Data)

	// Drop C without a close handshake
	c.UnderlyingConn().Close()

	send(t, a, `{"type":"gameState","data":{"seq":2}}`)
	assertJSONEqual(t, `{"seq":2}`, readEnvelope(t, b).Data)

	relay.waitForConnections(t, 2)

	send(t, a, `{"type":"gameStart"}`)
	if env := readEnvelope(t, a); env.Type != TypeGameStart {
		t.Errorf("Expected gameStart for A, got %s", env.Type)
	}
	if env := readEnvelope(t, b); env.Type != TypeGameStart {
		t.Errorf("Expected gameStart for B, got %s", env.Type)
	}
}

func TestHub_PreservesPerSenderOrder(t *testing.T) {
	relay := newTestRelay(t)

	a, _ := relay.join(t)
	b, _ := relay.join(t)
	observer, _ := relay.join(t)

	const n = 25
	for i := 0; i < n; i++ {
		send(t, a, fmt.Sprintf(`{"type":"gameState","data":{"from":"a","seq":%d}}`, i))
		send(t, b, fmt.Sprintf(`{"type":"gameState","data":{"from":"b","seq":%d}}`, i))
	}

	next := map[string]int{"a": 0, "b": 0}
	for i := 0; i < 2*n; i++ {
		env := readEnvelope(t, observer)
		var body struct {
			From string `json:"from"`
			Seq  int    `json:"seq"`
		}
		if err := json.Unmarshal(env.Data, &body); err != nil {
			t.Fatalf("Failed to decode update: %v", err)
		}
		if body.Seq != next[body.From] {
			t.Fatalf("Update from %s out of order: expected seq %d, got %d", body.From, next[body.From], body.Seq)
		}
		next[body.From]++
	}

	// a only ever sees b's updates
	for i := 0; i < n; i++ {
		env := readEnvelope(t, a)
		var body struct {
			From string `json:"from"`
		}
		json.Unmarshal(env.Data, &body)
		if body.From != "b" {
			t.Fatalf("A received an update from %q", body.From)
		}
	}
}

func TestHub_StartEndInjection(t *testing.T) {
	relay := newTestRelay(t)

	a, _ := relay.join(t)
	b, _ := relay.join(t)

	ctx := context.Background()

	delivered, err := relay.hub.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if delivered != 2 {
		t.Errorf("Expected start delivered to 2 clients, got %d", delivered)
	}
	for _, conn := range []*websocket.Conn{a, b} {
		if env := readEnvelope(t, conn); env.Type != TypeGameStart {
			t.Errorf("Expected gameStart, got %s", env.Type)
		}
	}

	stats := relay.hub.Stats()
	if stats.Lifecycle.Status != lifecycle.Running || stats.Lifecycle.Rounds != 1 {
		t.Errorf("Unexpected lifecycle after start: %+v", stats.Lifecycle)
	}
	if !relay.hub.Snapshot().Running() {
		t.Error("Snapshot should report the game running")
	}

	if _, err := relay.hub.End(ctx, json.RawMessage(`{"winner":"night"}`)); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		if env.Type != TypeGameEnd {
			t.Errorf("Expected gameEnd, got %s", env.Type)
		}
		assertJSONEqual(t, `{"winner":"night"}`, env.Data)
	}

	if status := relay.hub.Stats().Lifecycle.Status; status != lifecycle.Idle {
		t.Errorf("Expected idle after end, got %s", status)
	}
}

func TestHub_Shutdown(t *testing.T) {
	relay := newTestRelay(t)
	a, _ := relay.join(t)

	relay.cancel()

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := a.ReadMessage(); err == nil {
		t.Error("Expected connection to be closed after shutdown")
	}

	if _, err := relay.hub.Start(context.Background()); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Expected ErrHubClosed, got %v", err)
	}
	if n := relay.hub.Stats().Connections; n != 0 {
		t.Errorf("Expected no connections after shutdown, got %d", n)
	}
}

func TestHub_SubmitHonoursContext(t *testing.T) {
	// Run is never started, so the submission can only end through ctx
	hub := NewHub(state.NewStore(), lifecycle.NewCoordinator(), discardLogger(), DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := hub.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestHub_GameEndForwardsDataVerbatim(t *testing.T) {
	relay := newTestRelay(t)

	a, _ := relay.join(t)
	b, _ := relay.join(t)

	tests := []struct {
		sent string
		want string
	}{
		{`{"type":"gameEnd","data":null}`, `{"type":"gameEnd","data":null}`},
		{`{"type":"gameEnd"}`, `{"type":"gameEnd"}`},
		{`{"type":"gameEnd","data":{"winner":"day"}}`, `{"type":"gameEnd","data":{"winner":"day"}}`},
	}

	for _, tt := range tests {
		send(t, a, tt.sent)

		for name, conn := range map[string]*websocket.Conn{"A": a, "B": b} {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, raw, err := conn.ReadMessage()
			if err != nil {
				t.Fatalf("Failed to read WebSocket message: %v", err)
			}
			if string(raw) != tt.want {
				t.Errorf("%s: expected %s, got %s", name, tt.want, raw)
			}
		}
	}
}

func TestHub_OversizeFrameClosesSender(t *testing.T) {
	relay := newTestRelay(t)

	a, _ := relay.join(t)
	b, _ := relay.join(t)
	relay.waitForConnections(t, 2)

	limit := int(DefaultOptions().MaxMessageSize)
	oversize := `{"type":"gameState","data":{"pad":"` + strings.Repeat("x", limit) + `"}}`
	// The server may reset the connection before the write completes
	a.WriteMessage(websocket.TextMessage, []byte(oversize))

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := a.ReadMessage(); err == nil {
		t.Fatal("Expected the sender's connection to be closed")
	}

	relay.waitForConnections(t, 1)
	if got := relay.hub.Stats().StateVersion; got != 0 {
		t.Errorf("Oversize frame should not reach the store, got version %d", got)
	}

	// The remaining client is unaffected
	delivered, err := relay.hub.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if delivered != 1 {
		t.Errorf("Expected start delivered to 1 client, got %d", delivered)
	}
	if env := readEnvelope(t, b); env.Type != TypeGameStart {
		t.Errorf("Expected gameStart for B, got %s", env.Type)
	}
}
