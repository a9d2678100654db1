// Package lifecycle tracks whether a game round is running.
//
// The coordinator is deliberately permissive: every start and every end is
// accepted, whatever the current status. Rule enforcement belongs to the
// clients; the relay only records and forwards intent.
package lifecycle
