package communication

import (
	"errors"
	"fmt"
)

var (
	ErrNoAuthorizationToken = errors.New("no authorization token available, please authorise first")
	ErrForeignURL           = errors.New("url does not belong to the configured api url")
	ErrTokenExpired         = errors.New("authorization token has expired")
	ErrNotJSON              = errors.New("response is not json")
)

// APIError is a non-2xx response. Payload holds the decoded JSON error body
// verbatim when the server sent JSON, nil otherwise.
type APIError struct {
	StatusCode int
	StatusText string
	Payload    any
	Body       []byte
}

func (e *APIError) Error() string {
	if payload, ok := e.Payload.(map[string]any); ok {
		if msg, ok := payload["message"].(string); ok && msg != "" {
			return fmt.Sprintf("%d: %s", e.StatusCode, msg)
		}
	}
	if e.Payload != nil && len(e.Body) > 0 {
		return fmt.Sprintf("%d: %s", e.StatusCode, string(e.Body))
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.StatusText)
}

// IsNotFound reports whether err is a 404 from the api.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
