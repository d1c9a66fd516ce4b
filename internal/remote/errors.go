package remote

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by tool calls issued before Connect succeeded
// or after Close.
var ErrNotConnected = errors.New("remote session not connected")

// ConnectionError reports that the peer process could not be started or the
// MCP handshake failed.
type ConnectionError struct {
	Command string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to Strudel MCP server (%s): %v", e.Command, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RemoteCallError reports a rejected, failed, or timed-out tool call. Op is
// the tool name.
type RemoteCallError struct {
	Op  string
	Err error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }
