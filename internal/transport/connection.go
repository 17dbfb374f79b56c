// Package transport manages the long-lived push-event connection.
package transport

import (
	"context"
	"encoding/json"
)

// State represents the lifecycle state of the push connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Gauge returns the numeric value exported for this state.
func (s State) Gauge() float64 {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	case StateReconnecting:
		return 3
	}
	return 0
}

// Hub method names invoked on the server.
const (
	MethodJoinGroup  = "JoinGroup"
	MethodLeaveGroup = "LeaveGroup"
)

// Connection is a single push-event connection to the backend. Implementations
// keep registered event handlers across Start/Stop cycles so a reconnect does
// not lose dispatch wiring.
type Connection interface {
	// Start opens the connection using the given bearer token.
	Start(ctx context.Context, token string) error

	// Stop tears the connection down. It is idempotent and never invokes the
	// close handler.
	Stop() error

	// Invoke calls a named method on the server, e.g. JoinGroup.
	Invoke(ctx context.Context, method string, args ...any) error

	// On registers a handler for a named server-pushed event.
	On(target string, handler func(json.RawMessage))

	// OnClose registers a handler invoked on unexpected connection loss.
	OnClose(fn func(err error))
}
