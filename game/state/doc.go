// Package state holds the single shared game state relayed between clients.
//
// The state package implements:
//   - The GameState snapshot type (an opaque JSON object)
//   - A thread-safe latest-value Store
//   - Decoding of inbound snapshots
//
// Snapshots:
//
// A GameState is a mapping of arbitrary named fields. The relay never
// inspects it beyond the isGameRunning flag, which is stamped by lifecycle
// transitions so that late joiners see the current phase. A new snapshot
// always replaces the previous one wholesale; fields are never merged.
//
// Usage:
//
//	store := state.NewStore()
//
//	snapshot, err := state.Decode(raw)
//	if err != nil {
//		return err
//	}
//	store.Set(snapshot)
//
//	current := store.Get()
//
// Concurrency:
//
// Store guards its snapshot with a single RWMutex. Get returns a copy, so
// callers may hold on to it while other goroutines replace the current value.
package state
