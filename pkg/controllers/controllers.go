// Package controllers maps the API resources onto Go calls. Plain CRUD goes
// over REST; recordings, recognitions and analyses are streamed over the
// websocket session.
package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/RubachokBoss/speech-sdk/pkg/communication"
	"github.com/RubachokBoss/speech-sdk/pkg/models"
	"github.com/RubachokBoss/speech-sdk/pkg/streaming"
)

var (
	ErrWebsocketNotOpen  = errors.New("websocket connection is not open")
	ErrSessionInProgress = errors.New("a session of this kind is already in progress for the challenge")
	ErrRecorderBusy      = errors.New("recorder is already recording")
	ErrRecorderRequired  = errors.New("recorder is required")
)

// Requester performs authorised REST calls. *communication.Client is one.
type Requester interface {
	AuthorisedRequest(ctx context.Context, method, rawURL string, body any, headers http.Header) (*communication.Response, error)
}

// RPC is the websocket surface the streaming controllers need.
// *rpc.Manager is one.
type RPC interface {
	streaming.Caller
	IsOpen() bool
}

func organisationPath(organisationID string) string {
	return "/organisations/" + url.PathEscape(organisationID)
}

func challengePath(organisationID, kind, challengeID string) string {
	p := organisationPath(organisationID) + "/challenges/" + kind
	if challengeID != "" {
		p += "/" + url.PathEscape(challengeID)
	}
	return p
}

func withID(path, id string) string {
	return path + "/" + url.PathEscape(id)
}

// validateFilters rejects keys that cannot be sent as a query parameter.
func validateFilters(filters url.Values) error {
	for key := range filters {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "&=?#") {
			return models.ErrInvalidFilters
		}
	}
	return nil
}

func withQuery(path string, filters url.Values) string {
	if len(filters) == 0 {
		return path
	}
	return path + "?" + filters.Encode()
}

// compact drops empty string fields from a request body.
func compact(body map[string]any) map[string]any {
	return lo.OmitByValues(body, []any{""})
}

func decode[T any](resp *communication.Response) (*T, error) {
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func create[T any](ctx context.Context, r Requester, path string, body any) (*T, error) {
	resp, err := r.AuthorisedRequest(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return nil, err
	}
	return decode[T](resp)
}

func get[T any](ctx context.Context, r Requester, path string) (*T, error) {
	resp, err := r.AuthorisedRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[T](resp)
}

func list[T any](ctx context.Context, r Requester, path string, filters url.Values) (*models.Page[T], error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}

	resp, err := r.AuthorisedRequest(ctx, http.MethodGet, withQuery(path, filters), nil, nil)
	if err != nil {
		return nil, err
	}

	items := []T{}
	if len(resp.Body) > 0 {
		if err := resp.Decode(&items); err != nil {
			return nil, fmt.Errorf("failed to decode list: %w", err)
		}
	}
	return &models.Page[T]{Items: items, Next: resp.Next}, nil
}

// Next fetches the page after p.
func Next[T any](ctx context.Context, r Requester, p *models.Page[T]) (*models.Page[T], error) {
	if !p.HasNext() {
		return nil, nil
	}
	return list[T](ctx, r, p.Next, nil)
}
