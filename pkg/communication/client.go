package communication

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Client struct {
	settings Settings
	client   *http.Client
	logger   zerolog.Logger
	now      func() time.Time

	mu    sync.RWMutex
	token string
}

func NewClient(settings Settings, logger zerolog.Logger) *Client {
	settings = settings.WithDefaults()
	return &Client{
		settings: settings,
		client: &http.Client{
			Timeout: settings.Timeout,
		},
		logger: logger,
		now:    time.Now,
		token:  settings.AuthorizationToken,
	}
}

// NewClientWithHTTP is NewClient with a caller supplied *http.Client.
func NewClientWithHTTP(settings Settings, httpClient *http.Client, logger zerolog.Logger) *Client {
	c := NewClient(settings, logger)
	if httpClient != nil {
		c.client = httpClient
	}
	return c
}

func (c *Client) Settings() Settings {
	s := c.settings
	s.AuthorizationToken = c.AuthorizationToken()
	return s
}

func (c *Client) SetAuthorizationToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) AuthorizationToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// AddAccessToken appends the stored token as an access_token query
// parameter. It is not idempotent: every call appends one parameter.
func (c *Client) AddAccessToken(rawURL string) string {
	separator := "?"
	if strings.Contains(rawURL, "?") {
		separator = "&"
	}
	return rawURL + separator + "access_token=" + url.QueryEscape(c.AuthorizationToken())
}

// ResolveURL resolves ref against the api url. Absolute urls are returned
// unchanged.
func (c *Client) ResolveURL(ref string) string {
	if isAbsolute(ref) {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return c.settings.APIURL + ref
}

func (c *Client) Request(ctx context.Context, method, rawURL string, body any, headers http.Header) (*Response, error) {
	target := c.ResolveURL(rawURL)

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := c.now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("duration", c.now().Sub(start)).
		Msg("API request")

	isJSON := hasJSONContentType(resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       data,
		}
		if isJSON && len(data) > 0 {
			var payload any
			if err := json.Unmarshal(data, &payload); err == nil {
				apiErr.Payload = payload
			}
		}
		return nil, apiErr
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		JSON:       isJSON,
		Next:       ParseLinkHeader(resp.Header.Get("Link"))["next"],
	}, nil
}

// AuthorisedRequest is Request with the bearer token attached. It refuses
// to send the token anywhere but the configured api url.
func (c *Client) AuthorisedRequest(ctx context.Context, method, rawURL string, body any, headers http.Header) (*Response, error) {
	token := c.AuthorizationToken()
	if token == "" {
		return nil, ErrNoAuthorizationToken
	}

	if isAbsolute(rawURL) && !c.belongsToAPI(rawURL) {
		return nil, fmt.Errorf("%w: %s is not under %s", ErrForeignURL, rawURL, c.settings.APIURL)
	}

	if err := checkTokenExpiry(token, c.now()); err != nil {
		return nil, err
	}

	h := make(http.Header, len(headers)+1)
	for key, values := range headers {
		h[key] = append([]string(nil), values...)
	}
	h.Set("Authorization", "Bearer "+token)

	return c.Request(ctx, method, rawURL, body, h)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// Authenticate performs a password grant against /tokens and stores the
// returned access token for later authorised requests.
func (c *Client) Authenticate(ctx context.Context, username, password, scope string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)
	if scope != "" {
		form.Set("scope", scope)
	}

	resp, err := c.Request(ctx, http.MethodPost, "/tokens", form, nil)
	if err != nil {
		return "", err
	}

	var token tokenResponse
	if err := resp.Decode(&token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token response did not contain an access token")
	}

	c.SetAuthorizationToken(token.AccessToken)

	c.logger.Info().
		Str("username", username).
		Str("scope", token.Scope).
		Msg("Authenticated against api")

	return token.AccessToken, nil
}

func (c *Client) belongsToAPI(rawURL string) bool {
	base := c.settings.APIURL
	if base == "" {
		return false
	}
	return rawURL == base || strings.HasPrefix(rawURL, base+"/") || strings.HasPrefix(rawURL, base+"?")
}

func isAbsolute(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func hasJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
