package communication

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is a successful (2xx) api response. Body holds the raw bytes;
// Decode parses it when the server announced JSON.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	JSON       bool
	Next       string
}

func (r *Response) Decode(v any) error {
	if !r.JSON {
		return ErrNotJSON
	}
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
