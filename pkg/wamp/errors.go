package wamp

import (
	"errors"
	"fmt"

	"github.com/gammazero/nexus/v3/client"
)

var (
	ErrSessionClosed        = errors.New("wamp session is closed")
	ErrProgressNotRequested = errors.New("caller did not request progressive results")
	ErrNoChallengeHandler   = errors.New("router sent an authentication challenge but no handler is configured")
)

// Error is an ERROR message received from the router.
type Error struct {
	URI     string
	Args    List
	Kwargs  Dict
	Details Dict
}

func (e *Error) Error() string {
	if len(e.Args) > 0 {
		if msg, ok := e.Args[0].(string); ok && msg != "" {
			return fmt.Sprintf("%s: %s", e.URI, msg)
		}
	}
	return e.URI
}

// errorFrom unwraps the ERROR message nexus attaches to a rejected call.
func errorFrom(err error) error {
	var rpcErr client.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Err == nil {
		return err
	}
	return &Error{
		URI:     string(rpcErr.Err.Error),
		Args:    rpcErr.Err.Arguments,
		Kwargs:  rpcErr.Err.ArgumentsKw,
		Details: rpcErr.Err.Details,
	}
}
