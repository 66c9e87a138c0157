package rpc

import (
	"errors"

	"github.com/RubachokBoss/speech-sdk/pkg/wamp"
)

var (
	ErrNoWebsocketURL       = errors.New("no websocket url configured")
	ErrUnsupportedChallenge = errors.New("unsupported authentication challenge")
)

// CallErrorData is what the server attached to a rejected call. Call
// options are deliberately absent.
type CallErrorData struct {
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// CallError is the single shape every rejected RPC is normalized into.
type CallError struct {
	URI     string        `json:"uri,omitempty"`
	Message string        `json:"message"`
	Data    CallErrorData `json:"data"`
}

func (e *CallError) Error() string {
	return e.Message
}

func normalizeError(err error) error {
	var werr *wamp.Error
	if !errors.As(err, &werr) {
		return err
	}

	args := []any(werr.Args)
	if args == nil {
		args = []any{}
	}
	kwargs := map[string]any(werr.Kwargs)
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	return &CallError{
		URI:     werr.URI,
		Message: werr.Error(),
		Data:    CallErrorData{Args: args, Kwargs: kwargs},
	}
}
