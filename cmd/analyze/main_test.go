package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/pongrelay/game/lifecycle"
	"github.com/wricardo/pongrelay/game/state"
	"github.com/wricardo/pongrelay/transport/websocket"
)

func TestAnalysis_Record(t *testing.T) {
	a := NewAnalysis()

	frames := []string{
		`{"type":"gameState","data":{"balls":[],"dayScore":0,"nightScore":0,"isGameRunning":false}}`,
		`{"type":"gameStart"}`,
		`{"type":"gameState","data":{"balls":[{"x":1},{"x":2},{"x":3}],"dayScore":40,"nightScore":24,"isGameRunning":true}}`,
		`{"type":"gameState","data":{"balls":[{"x":1}],"dayScore":41,"nightScore":23,"isGameRunning":true}}`,
		`{"type":"gameEnd","data":{"winner":"day"}}`,
	}
	for _, f := range frames {
		if err := a.Record([]byte(f)); err != nil {
			t.Fatalf("Record(%s) failed: %v", f, err)
		}
	}

	if a.Frames[websocket.TypeGameState] != 3 {
		t.Errorf("Expected 3 gameState frames, got %d", a.Frames[websocket.TypeGameState])
	}
	if a.Rounds != 1 {
		t.Errorf("Expected 1 round, got %d", a.Rounds)
	}
	if a.DayScore != 41 || a.NightScore != 23 {
		t.Errorf("Expected latest scores 41/23, got %g/%g", a.DayScore, a.NightScore)
	}
	if a.MaxBalls != 3 {
		t.Errorf("Expected max balls 3, got %d", a.MaxBalls)
	}
	if a.Running {
		t.Error("Expected game to be stopped after gameEnd")
	}
	if len(a.Results) != 1 || string(a.Results[0]) != `{"winner":"day"}` {
		t.Errorf("Unexpected results: %s", a.Results)
	}
}

func TestAnalysis_RecordMalformed(t *testing.T) {
	a := NewAnalysis()

	if err := a.Record([]byte("not json")); err == nil {
		t.Error("Expected error for invalid JSON")
	}
	if err := a.Record([]byte(`{"type":"gameState","data":[1,2]}`)); err == nil {
		t.Error("Expected error for non-object state")
	}
	if a.Malformed != 2 {
		t.Errorf("Expected 2 malformed frames, got %d", a.Malformed)
	}
}

func TestAnalysis_Report(t *testing.T) {
	a := NewAnalysis()
	a.Record([]byte(`{"type":"gameStart"}`))
	a.Record([]byte(`{"type":"gameState","data":{"balls":[{}],"dayScore":7,"nightScore":5,"isGameRunning":true}}`))

	var buf bytes.Buffer
	a.Report(&buf)
	out := buf.String()

	for _, want := range []string{
		"Frames: 2 (malformed: 0)",
		"gameStart  1",
		"Game: running | Rounds: 1",
		"Score: day 7 | night 5",
		"Max balls: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in report, got:\n%s", want, out)
		}
	}
}

func TestWatch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := websocket.NewHub(state.NewStore(), lifecycle.NewCoordinator(), logger, websocket.DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	a := NewAnalysis()
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, url, 2, a)
	}()

	// Wait for the spectator to join before starting the game
	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats().Connections == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Spectator never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := hub.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return")
	}

	if a.Frames[websocket.TypeGameState] != 1 || a.Frames[websocket.TypeGameStart] != 1 {
		t.Errorf("Expected join snapshot and gameStart, got %v", a.Frames)
	}
}

func TestWatch_ConnectError(t *testing.T) {
	err := watch(context.Background(), "ws://127.0.0.1:1/ws", 1, NewAnalysis())
	if err == nil {
		t.Error("Expected error connecting to a closed port")
	}
}
