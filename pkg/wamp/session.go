package wamp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/transport/serialize"
	nxwamp "github.com/gammazero/nexus/v3/wamp"
	"github.com/rs/zerolog"
)

// ChallengeFunc answers an authentication challenge with a signature.
type ChallengeFunc func(method string, extra Dict) (string, error)

type Config struct {
	URL             string
	Realm           string
	AuthID          string
	AuthMethods     []string
	OnChallenge     ChallengeFunc
	ResponseTimeout time.Duration
	Logger          zerolog.Logger
}

// InvocationHandler serves a registered procedure. ctx is cancelled when the
// caller cancels or the session ends.
type InvocationHandler func(ctx context.Context, inv *Invocation) (*Result, error)

type Invocation struct {
	Args            List
	Kwargs          Dict
	Details         Dict
	ReceiveProgress bool

	send func(ctx context.Context, args List, kwargs Dict) error
}

// SendProgress yields a progressive result to the caller. ctx must be the
// one the handler was invoked with.
func (inv *Invocation) SendProgress(ctx context.Context, args List, kwargs Dict) error {
	if !inv.ReceiveProgress || inv.send == nil {
		return ErrProgressNotRequested
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return inv.send(ctx, args, kwargs)
}

type Session struct {
	cli    *client.Client
	logger zerolog.Logger

	mu            sync.Mutex
	nextReg       uint64
	registrations map[uint64]string

	closing atomic.Bool
}

// Dial opens a websocket to cfg.URL and joins cfg.Realm, answering any
// challenge for cfg.AuthMethods through cfg.OnChallenge.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	details := Dict{}
	if cfg.AuthID != "" {
		details["authid"] = cfg.AuthID
	}

	var (
		authMu  sync.Mutex
		authErr error
	)
	record := func(err error) {
		authMu.Lock()
		authErr = err
		authMu.Unlock()
	}

	cli, err := client.ConnectNet(ctx, cfg.URL, client.Config{
		Realm:           cfg.Realm,
		HelloDetails:    details,
		AuthHandlers:    authHandlers(cfg, record),
		ResponseTimeout: cfg.ResponseTimeout,
		Serialization:   serialize.JSON,
		Logger:          nexusLogger{log: cfg.Logger},
	})
	if err != nil {
		authMu.Lock()
		defer authMu.Unlock()
		if authErr != nil {
			return nil, authErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to join realm %s at %s: %w", cfg.Realm, cfg.URL, err)
	}

	s := &Session{
		cli:           cli,
		logger:        cfg.Logger,
		registrations: make(map[uint64]string),
	}

	s.logger.Debug().
		Uint64("session", s.ID()).
		Str("realm", cfg.Realm).
		Msg("WAMP session established")

	return s, nil
}

func authHandlers(cfg Config, record func(error)) map[string]client.AuthFunc {
	if len(cfg.AuthMethods) == 0 {
		return nil
	}

	handlers := make(map[string]client.AuthFunc, len(cfg.AuthMethods))
	for _, method := range cfg.AuthMethods {
		handlers[method] = func(c *nxwamp.Challenge) (string, Dict) {
			if cfg.OnChallenge == nil {
				record(ErrNoChallengeHandler)
				return "", Dict{}
			}
			signature, err := cfg.OnChallenge(c.AuthMethod, c.Extra)
			if err != nil {
				record(err)
				return "", Dict{}
			}
			return signature, Dict{}
		}
	}
	return handlers
}

func (s *Session) ID() uint64 {
	return uint64(s.cli.ID())
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.cli.Done()
}

func (s *Session) ended() bool {
	select {
	case <-s.cli.Done():
		return true
	default:
		return false
	}
}

// Call invokes procedure and waits for its final result. Progressive
// results are passed to progress, in order, before Call returns.
func (s *Session) Call(ctx context.Context, procedure string, options Dict, args List, kwargs Dict, progress func(*Result)) (*Result, error) {
	if s.ended() {
		return nil, ErrSessionClosed
	}

	options = cloneDict(options)
	var onProgress client.ProgressHandler
	if progress != nil {
		options[nxwamp.OptReceiveProgress] = true
		onProgress = func(r *nxwamp.Result) {
			progress(resultFrom(r))
		}
	}

	res, err := s.cli.Call(ctx, procedure, options, args, kwargs, onProgress)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if s.ended() {
			return nil, fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
		return nil, errorFrom(err)
	}
	return resultFrom(res), nil
}

// Register exposes handler as procedure and returns a registration id for
// Unregister.
func (s *Session) Register(ctx context.Context, procedure string, options Dict, handler InvocationHandler) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.ended() {
		return 0, ErrSessionClosed
	}

	if err := s.cli.Register(procedure, s.invocationHandler(procedure, handler), options); err != nil {
		return 0, errorFrom(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReg++
	s.registrations[s.nextReg] = procedure
	return s.nextReg, nil
}

func (s *Session) Unregister(ctx context.Context, registration uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	procedure, ok := s.registrations[registration]
	s.mu.Unlock()
	if !ok {
		return &Error{URI: URINoSuchRegistration}
	}

	if err := s.cli.Unregister(procedure); err != nil {
		return errorFrom(err)
	}

	s.mu.Lock()
	delete(s.registrations, registration)
	s.mu.Unlock()
	return nil
}

// Close leaves the realm and closes the websocket. Only the first Close
// does the work; later or concurrent calls return ErrSessionClosed.
func (s *Session) Close(ctx context.Context) error {
	if !s.closing.CompareAndSwap(false, true) || s.ended() {
		return ErrSessionClosed
	}

	errc := make(chan error, 1)
	go func() { errc <- s.cli.Close() }()

	select {
	case err := <-errc:
		if err != nil {
			s.logger.Debug().Err(err).Uint64("session", s.ID()).Msg("WAMP session closed with error")
		}
	case <-ctx.Done():
		s.logger.Warn().Err(ctx.Err()).Uint64("session", s.ID()).Msg("Gave up waiting for GOODBYE")
	}
	return nil
}

func (s *Session) invocationHandler(procedure string, handler InvocationHandler) client.InvocationHandler {
	return func(ctx context.Context, inv *nxwamp.Invocation) client.InvokeResult {
		receiveProgress, _ := inv.Details[nxwamp.OptReceiveProgress].(bool)
		in := &Invocation{
			Args:            inv.Arguments,
			Kwargs:          inv.ArgumentsKw,
			Details:         inv.Details,
			ReceiveProgress: receiveProgress,
			send:            s.cli.SendProgress,
		}

		result, err := handler(ctx, in)
		if err != nil {
			var werr *Error
			if errors.As(err, &werr) {
				return client.InvokeResult{Err: nxwamp.URI(werr.URI), Args: werr.Args, Kwargs: werr.Kwargs}
			}
			s.logger.Warn().Err(err).Str("procedure", procedure).Msg("Invocation failed")
			return client.InvokeResult{Err: nxwamp.URI(URIRuntimeError), Args: List{err.Error()}}
		}

		if result == nil {
			return client.InvokeResult{}
		}
		return client.InvokeResult{Args: result.Args, Kwargs: result.Kwargs}
	}
}

// nexusLogger routes the client's internal logging to zerolog at debug level.
type nexusLogger struct {
	log zerolog.Logger
}

func (l nexusLogger) Print(v ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(v...))
}

func (l nexusLogger) Println(v ...interface{}) {
	l.log.Debug().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l nexusLogger) Printf(format string, v ...interface{}) {
	l.log.Debug().Msgf(format, v...)
}
