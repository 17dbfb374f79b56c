package model

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a transport operation is attempted while
// the connection is not in the Connected state.
var ErrNotConnected = errors.New("transport not connected")

// ErrNoSelection is returned when an operation requires an active conversation.
var ErrNoSelection = errors.New("no conversation selected")

// AuthenticationError indicates no valid credential was available for a
// connection attempt. It is fatal to the attempt and never retried.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// TransportError indicates a network-level transport failure. The connection
// manager recovers from these with its reconnect loop.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// JoinError indicates a topic join was rejected or deferred.
type JoinError struct {
	Topic string
	Err   error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join %q: %v", e.Topic, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

// FetchError indicates a REST call failed. Prior local state is always left
// intact; the caller decides whether to retry.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
