package llmrelay

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestTimeout is returned when no reply arrives within the
	// per-request timeout. The shared connection is not torn down; a slow
	// reply only fails its own request.
	ErrRequestTimeout = errors.New("relay request timed out")

	// ErrClientShutdown is returned for requests still pending when
	// Disconnect is called
	ErrClientShutdown = errors.New("relay client shut down")

	// ErrNotConnected is returned once the reconnect budget is exhausted and
	// the client has given up until a manual Reconnect
	ErrNotConnected = errors.New("relay not connected")
)

// UpstreamError carries an error field sent back by the LLM service on an
// otherwise well-formed reply.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: %s", e.Message)
}
