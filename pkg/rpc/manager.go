// Package rpc manages the single websocket session an SDK connection uses
// for its application RPCs.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/pkg/communication"
	"github.com/RubachokBoss/speech-sdk/pkg/wamp"
)

const (
	MessageOpened        = "Successfully established a websocket connection."
	MessageNoConnection  = "There is no websocket connection to close."
	MessageClosed        = "The websocket connection has been closed successfully."
	MessageAlreadyClosed = "The websocket connection has already been closed."
)

type State int32

const (
	StateClosed State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Session is the part of *wamp.Session the manager relies on.
type Session interface {
	Call(ctx context.Context, procedure string, options wamp.Dict, args wamp.List, kwargs wamp.Dict, progress func(*wamp.Result)) (*wamp.Result, error)
	Register(ctx context.Context, procedure string, options wamp.Dict, handler wamp.InvocationHandler) (uint64, error)
	Unregister(ctx context.Context, registration uint64) error
	Close(ctx context.Context) error
	Done() <-chan struct{}
}

type Dialer func(ctx context.Context, cfg wamp.Config) (Session, error)

// DialWAMP is the default Dialer.
func DialWAMP(ctx context.Context, cfg wamp.Config) (Session, error) {
	return wamp.Dial(ctx, cfg)
}

type CallOptions struct {
	Args     []any
	Kwargs   map[string]any
	Options  map[string]any
	Progress func(*wamp.Result)
}

type Manager struct {
	comm   *communication.Client
	dial   Dialer
	logger zerolog.Logger

	mu      sync.Mutex
	session Session
	state   atomic.Int32
	done    atomic.Value
}

func NewManager(comm *communication.Client, logger zerolog.Logger) *Manager {
	return NewManagerWithDialer(comm, DialWAMP, logger)
}

func NewManagerWithDialer(comm *communication.Client, dial Dialer, logger zerolog.Logger) *Manager {
	if dial == nil {
		dial = DialWAMP
	}
	return &Manager{
		comm:   comm,
		dial:   dial,
		logger: logger,
	}
}

// State does not block while a connection is being opened.
func (m *Manager) State() State {
	state := State(m.state.Load())
	if state != StateOpen {
		return state
	}
	if done, ok := m.done.Load().(<-chan struct{}); ok {
		select {
		case <-done:
			return StateClosed
		default:
		}
	}
	return state
}

// IsOpen reports whether a live session exists.
func (m *Manager) IsOpen() bool {
	return m.State() == StateOpen
}

// Open connects and joins the realm unless a live session already exists.
func (m *Manager) Open(ctx context.Context) (string, error) {
	if _, err := m.ensureSession(ctx); err != nil {
		return "", err
	}
	return MessageOpened, nil
}

func (m *Manager) Close(ctx context.Context) (string, error) {
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.state.Store(int32(StateClosed))
	m.mu.Unlock()

	if session == nil {
		return MessageNoConnection, nil
	}

	if err := session.Close(ctx); err != nil {
		if errors.Is(err, wamp.ErrSessionClosed) {
			return MessageAlreadyClosed, nil
		}
		return "", fmt.Errorf("failed to close websocket connection: %w", err)
	}

	m.logger.Info().Msg("Websocket connection closed")
	return MessageClosed, nil
}

// Call runs <namespace>.<rpcName> and waits for its final result.
func (m *Manager) Call(ctx context.Context, rpcName string, opts CallOptions) (*wamp.Result, error) {
	session, err := m.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	options := make(wamp.Dict, len(opts.Options)+1)
	for k, v := range opts.Options {
		options[k] = v
	}
	delete(options, "receive_progress")
	if opts.Progress != nil {
		options["receive_progress"] = true
	}

	procedure := m.procedure(rpcName)

	m.logger.Debug().
		Str("rpc", procedure).
		Int("args", len(opts.Args)).
		Bool("progress", opts.Progress != nil).
		Msg("Websocket call")

	result, err := session.Call(ctx, procedure, options, wamp.List(opts.Args), wamp.Dict(opts.Kwargs), opts.Progress)
	if err != nil {
		m.logger.Debug().Err(err).Str("rpc", procedure).Msg("Websocket call rejected")
		return nil, normalizeError(err)
	}
	return result, nil
}

// Register exposes handler as <namespace>.<rpcName>.
func (m *Manager) Register(ctx context.Context, rpcName string, options map[string]any, handler wamp.InvocationHandler) (uint64, error) {
	session, err := m.ensureSession(ctx)
	if err != nil {
		return 0, err
	}

	registration, err := session.Register(ctx, m.procedure(rpcName), wamp.Dict(options), handler)
	if err != nil {
		return 0, normalizeError(err)
	}
	return registration, nil
}

func (m *Manager) Unregister(ctx context.Context, registration uint64) error {
	session, err := m.ensureSession(ctx)
	if err != nil {
		return err
	}
	return normalizeError(session.Unregister(ctx, registration))
}

// Namespace returns the prefix applied to every rpc name.
func (m *Manager) Namespace() string {
	return m.comm.Settings().Namespace
}

func (m *Manager) procedure(rpcName string) string {
	ns := m.Namespace()
	if ns == "" {
		return rpcName
	}
	return ns + "." + strings.TrimPrefix(rpcName, ".")
}

func (m *Manager) ensureSession(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && !isDone(m.session) {
		return m.session, nil
	}
	m.session = nil

	settings := m.comm.Settings()
	if settings.WSURL == "" {
		m.state.Store(int32(StateClosed))
		return nil, ErrNoWebsocketURL
	}

	m.state.Store(int32(StateOpening))

	session, err := m.dial(ctx, wamp.Config{
		URL:         settings.WSURL,
		Realm:       settings.Realm,
		AuthMethods: []string{"ticket"},
		OnChallenge: m.answerChallenge,
		Logger:      m.logger,
	})
	if err != nil {
		m.state.Store(int32(StateClosed))
		return nil, fmt.Errorf("failed to open websocket connection: %w", normalizeError(err))
	}

	m.session = session
	m.done.Store(session.Done())
	m.state.Store(int32(StateOpen))

	m.logger.Info().
		Str("url", settings.WSURL).
		Str("realm", settings.Realm).
		Msg("Websocket connection established")

	return session, nil
}

// answerChallenge answers a ticket challenge with the stored bearer token.
func (m *Manager) answerChallenge(method string, _ wamp.Dict) (string, error) {
	if method != "ticket" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChallenge, method)
	}
	token := m.comm.AuthorizationToken()
	if token == "" {
		return "", communication.ErrNoAuthorizationToken
	}
	return token, nil
}

func isDone(s Session) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}
