package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// RunningField is the snapshot field mirroring the lifecycle phase.
const RunningField = "isGameRunning"

var (
	ErrEmptyState = errors.New("game state is empty")
	ErrNotObject  = errors.New("game state must be a JSON object")
)

// GameState is a complete snapshot of the shared game state.
type GameState map[string]json.RawMessage

// Default returns the snapshot served before any client has published one.
func Default() GameState {
	return GameState{
		"balls":      json.RawMessage(`[]`),
		"dayScore":   json.RawMessage(`0`),
		"nightScore": json.RawMessage(`0`),
		RunningField: json.RawMessage(`false`),
	}
}

// Decode parses raw JSON into a snapshot.
func Decode(raw []byte) (GameState, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyState
	}
	if trimmed[0] != '{' {
		return nil, ErrNotObject
	}

	var gs GameState
	if err := json.Unmarshal(trimmed, &gs); err != nil {
		return nil, fmt.Errorf("failed to decode game state: %w", err)
	}
	return gs, nil
}

// Clone returns a copy that shares no map with the receiver.
func (gs GameState) Clone() GameState {
	out := make(GameState, len(gs))
	for k, v := range gs {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Running reports the isGameRunning flag. Missing or non-boolean values read as false.
func (gs GameState) Running() bool {
	raw, ok := gs[RunningField]
	if !ok {
		return false
	}
	var running bool
	if err := json.Unmarshal(raw, &running); err != nil {
		return false
	}
	return running
}

// Field decodes a single named field into v.
func (gs GameState) Field(name string, v any) error {
	raw, ok := gs[name]
	if !ok {
		return fmt.Errorf("field %q not present", name)
	}
	return json.Unmarshal(raw, v)
}

// MarshalJSON keeps a nil snapshot encoding as an empty object.
func (gs GameState) MarshalJSON() ([]byte, error) {
	if gs == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(map[string]json.RawMessage(gs))
}
