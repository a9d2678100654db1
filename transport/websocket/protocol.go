package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wricardo/pongrelay/game/state"
)

// Frame types exchanged with clients.
const (
	TypeGameState = "gameState"
	TypeGameStart = "gameStart"
	TypeGameEnd   = "gameEnd"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
	ErrMissingState   = errors.New("gameState frame without a state object")
)

// Envelope is the JSON frame carried in every WebSocket text message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Frame is a decoded inbound envelope.
type Frame struct {
	Type  string
	Data  json.RawMessage
	State state.GameState // set for gameState frames only
}

// DecodeFrame parses and classifies an inbound message.
func DecodeFrame(raw []byte) (*Frame, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	f := &Frame{Type: env.Type, Data: env.Data}

	switch env.Type {
	case TypeGameState:
		gs, err := state.Decode(env.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingState, err)
		}
		f.State = gs
	case TypeGameStart:
		// data is ignored
		f.Data = nil
	case TypeGameEnd:
		// data is forwarded verbatim, an explicit null included
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	return f, nil
}

// EncodeFrame builds an outbound message.
func EncodeFrame(frameType string, data json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(Envelope{Type: frameType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", frameType, err)
	}
	return b, nil
}

// encodeState builds a gameState message carrying gs.
func encodeState(gs state.GameState) ([]byte, error) {
	data, err := json.Marshal(gs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode game state: %w", err)
	}
	return EncodeFrame(TypeGameState, data)
}
