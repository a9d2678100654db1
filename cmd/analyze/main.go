// Command analyze connects to a running relay as a spectator and prints a
// human-readable summary of the traffic it observes: frame counts per type,
// score movement, ball counts, and game rounds.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/pongrelay/game/state"
	"github.com/wricardo/pongrelay/transport/websocket"
)

// Analysis accumulates statistics about relayed frames.
type Analysis struct {
	Frames    map[string]int
	Malformed int

	DayScore   float64
	NightScore float64
	MaxBalls   int
	Running    bool

	Rounds  int
	Results []json.RawMessage
}

// NewAnalysis returns an empty analysis.
func NewAnalysis() *Analysis {
	return &Analysis{Frames: make(map[string]int)}
}

// Record folds one raw WebSocket message into the analysis.
func (a *Analysis) Record(raw []byte) error {
	var env websocket.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		a.Malformed++
		return err
	}
	a.Frames[env.Type]++

	switch env.Type {
	case websocket.TypeGameState:
		gs, err := state.Decode(env.Data)
		if err != nil {
			a.Malformed++
			return err
		}
		gs.Field("dayScore", &a.DayScore)
		gs.Field("nightScore", &a.NightScore)
		a.Running = gs.Running()

		var balls []json.RawMessage
		if gs.Field("balls", &balls) == nil && len(balls) > a.MaxBalls {
			a.MaxBalls = len(balls)
		}
	case websocket.TypeGameStart:
		a.Rounds++
		a.Running = true
	case websocket.TypeGameEnd:
		a.Running = false
		if len(env.Data) > 0 {
			a.Results = append(a.Results, env.Data)
		}
	}
	return nil
}

// Report writes the summary to w.
func (a *Analysis) Report(w io.Writer) {
	types := make([]string, 0, len(a.Frames))
	total := 0
	for t, n := range a.Frames {
		types = append(types, t)
		total += n
	}
	sort.Strings(types)

	fmt.Fprintf(w, "Frames: %d (malformed: %d)\n", total, a.Malformed)
	for _, t := range types {
		fmt.Fprintf(w, "  %-10s %d\n", t, a.Frames[t])
	}

	status := "stopped"
	if a.Running {
		status = "running"
	}
	fmt.Fprintf(w, "Game: %s | Rounds: %d\n", status, a.Rounds)
	fmt.Fprintf(w, "Score: day %g | night %g\n", a.DayScore, a.NightScore)
	fmt.Fprintf(w, "Max balls: %d\n", a.MaxBalls)

	for i, result := range a.Results {
		fmt.Fprintf(w, "Result %d: %s\n", i+1, result)
	}
}

// watch reads frames from url until ctx is done, the connection closes, or limit frames were read.
func watch(ctx context.Context, url string, limit int, a *Analysis) error {
	conn, _, err := gorillaws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for n := 0; limit <= 0 || n < limit; n++ {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure, gorillaws.CloseGoingAway) {
				return nil
			}
			return err
		}
		a.Record(raw)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "analyze",
		Usage: "summarize the traffic of a running relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "relay WebSocket URL",
				Value: "ws://localhost:3001/ws",
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "how long to watch; zero watches until interrupted",
				Value: 30 * time.Second,
			},
			&cli.IntFlag{
				Name:  "frames",
				Usage: "stop after this many frames; zero means no limit",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if d := cmd.Duration("duration"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			a := NewAnalysis()
			err := watch(ctx, cmd.String("url"), int(cmd.Int("frames")), a)
			a.Report(os.Stdout)
			return err
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
