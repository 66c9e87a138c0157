package wamp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	subprotocol = "wamp.2.json"

	msgHello        = 1
	msgWelcome      = 2
	msgAbort        = 3
	msgChallenge    = 4
	msgAuthenticate = 5
	msgGoodbye      = 6
	msgError        = 8
	msgCall         = 48
	msgCancel       = 49
	msgResult       = 50
	msgRegister     = 64
	msgRegistered   = 65
	msgUnregister   = 66
	msgUnregistered = 67
	msgInvocation   = 68
	msgYield        = 70
)

// message is one raw WAMP frame as the test router sees it.
type message []any

func (m message) kind() int {
	if len(m) == 0 {
		return 0
	}
	return toInt(m[0])
}

func (m message) id(i int) uint64 {
	if i >= len(m) {
		return 0
	}
	return uint64(toInt(m[i]))
}

func (m message) dict(i int) Dict {
	if i >= len(m) {
		return Dict{}
	}
	d, _ := m[i].(map[string]any)
	return Dict(d)
}

func (m message) list(i int) List {
	if i >= len(m) {
		return nil
	}
	l, _ := m[i].([]any)
	return List(l)
}

func (m message) str(i int) string {
	if i >= len(m) {
		return ""
	}
	s, _ := m[i].(string)
	return s
}

func toInt(v any) int {
	switch n := v.(type) {
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	default:
		return 0
	}
}

var welcomeDetails = Dict{
	"roles": Dict{
		"dealer": Dict{"features": Dict{"progressive_call_results": true, "call_canceling": true}},
	},
}

// fakeRouter is a single-peer router: it answers the handshake, serves a
// few canned procedures and can invoke procedures the client registered.
type fakeRouter struct {
	t        *testing.T
	ticket   string
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	yields   []message
	seen     int
	yielded  chan struct{}
	goodbyes int
	calls    []message
	lastReg  uint64
}

func newFakeRouter(t *testing.T, ticket string) (*fakeRouter, string) {
	t.Helper()
	r := &fakeRouter{
		t:        t,
		ticket:   ticket,
		yielded:  make(chan struct{}, 16),
		upgrader: websocket.Upgrader{Subprotocols: []string{subprotocol}},
	}
	srv := httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(srv.Close)
	return r, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (r *fakeRouter) send(msg List) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.conn.WriteJSON(msg); err != nil {
		r.t.Logf("router write: %v", err)
	}
}

func (r *fakeRouter) read(conn *websocket.Conn) (message, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var msg message
	err = dec.Decode(&msg)
	return msg, err
}

func (r *fakeRouter) serve(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.t.Errorf("upgrade: %v", err)
		return
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	defer conn.Close()

	registrations := uint64(100)
	for {
		msg, err := r.read(conn)
		if err != nil {
			return
		}

		switch msg.kind() {
		case msgHello:
			if r.ticket == "" {
				r.send(List{msgWelcome, 42, welcomeDetails})
				continue
			}
			r.send(List{msgChallenge, "ticket", Dict{}})
		case msgAuthenticate:
			if msg.str(1) != r.ticket {
				r.send(List{msgAbort, Dict{}, "wamp.error.not_authorized"})
				return
			}
			details := cloneDict(welcomeDetails)
			details["authmethod"] = "ticket"
			r.send(List{msgWelcome, 42, details})
		case msgCall:
			r.mu.Lock()
			r.calls = append(r.calls, msg)
			r.mu.Unlock()
			request := msg.id(1)
			switch msg.str(3) {
			case "com.echo":
				if progress, _ := msg.dict(2)["receive_progress"].(bool); progress {
					r.send(List{msgResult, request, Dict{"progress": true}, List{"partial"}})
				}
				r.send(List{msgResult, request, Dict{}, msg.list(4), msg.dict(5)})
			case "com.fail":
				r.send(List{msgError, msgCall, request, Dict{}, "com.error.failed", List{"it broke"}, Dict{"code": 7}})
			case "com.never":
			}
		case msgCancel:
			r.send(List{msgError, msgCall, msg.id(1), Dict{}, "wamp.error.canceled"})
		case msgRegister:
			registrations++
			r.mu.Lock()
			r.lastReg = registrations
			r.mu.Unlock()
			r.send(List{msgRegistered, msg.id(1), registrations})
		case msgUnregister:
			if msg.id(2) != registrations {
				r.send(List{msgError, msgUnregister, msg.id(1), Dict{}, URINoSuchRegistration})
				continue
			}
			r.send(List{msgUnregistered, msg.id(1)})
		case msgYield, msgError:
			r.mu.Lock()
			r.yields = append(r.yields, msg)
			r.mu.Unlock()
			r.yielded <- struct{}{}
		case msgGoodbye:
			r.mu.Lock()
			r.goodbyes++
			r.mu.Unlock()
			r.send(List{msgGoodbye, Dict{}, "wamp.close.goodbye_and_out"})
			return
		}
	}
}

// invoke calls the procedure the client registered last.
func (r *fakeRouter) invoke(request uint64, details Dict, args List) {
	r.mu.Lock()
	registration := r.lastReg
	r.mu.Unlock()
	r.send(List{msgInvocation, request, registration, details, args})
}

func (r *fakeRouter) waitYield(t *testing.T) message {
	t.Helper()
	select {
	case <-r.yielded:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for yield")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := r.yields[r.seen]
	r.seen++
	return msg
}

func dialTest(t *testing.T, url, ticket string) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := Dial(ctx, Config{
		URL:         url,
		Realm:       "default",
		AuthMethods: []string{"ticket"},
		OnChallenge: func(method string, extra Dict) (string, error) {
			return ticket, nil
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestDial_TicketChallenge(t *testing.T) {
	_, url := newFakeRouter(t, "secret")
	s := dialTest(t, url, "secret")
	if s.ID() != 42 {
		t.Fatalf("unexpected session id %d", s.ID())
	}
}

func TestDial_AbortIsReturned(t *testing.T) {
	_, url := newFakeRouter(t, "secret")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, Config{
		URL:         url,
		Realm:       "default",
		AuthMethods: []string{"ticket"},
		OnChallenge: func(string, Dict) (string, error) {
			return "wrong", nil
		},
		Logger: zerolog.Nop(),
	})
	if err == nil {
		t.Fatalf("expected the join to be aborted")
	}
}

func TestDial_ChallengeErrorIsReturned(t *testing.T) {
	_, url := newFakeRouter(t, "secret")
	noToken := errors.New("no token")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, Config{
		URL:         url,
		Realm:       "default",
		AuthMethods: []string{"ticket"},
		OnChallenge: func(method string, _ Dict) (string, error) {
			if method != "ticket" {
				t.Errorf("unexpected auth method %q", method)
			}
			return "", noToken
		},
		Logger: zerolog.Nop(),
	})
	if !errors.Is(err, noToken) {
		t.Fatalf("expected the challenge error, got %v", err)
	}
}

func TestCall_ProgressThenResult(t *testing.T) {
	_, url := newFakeRouter(t, "")
	s := dialTest(t, url, "")

	var parts []string
	res, err := s.Call(context.Background(), "com.echo", nil, List{"hello"}, nil, func(r *Result) {
		if !r.Progress() {
			t.Errorf("progress callback got a final result")
		}
		parts = append(parts, r.Args[0].(string))
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(parts) != 1 || parts[0] != "partial" {
		t.Fatalf("unexpected progress %v", parts)
	}
	var echoed string
	if err := res.Decode(&echoed); err != nil || echoed != "hello" {
		t.Fatalf("unexpected result %q (%v)", echoed, err)
	}
}

func TestCall_WithoutProgressDoesNotRequestIt(t *testing.T) {
	router, url := newFakeRouter(t, "")
	s := dialTest(t, url, "")

	if _, err := s.Call(context.Background(), "com.echo", Dict{"x": 1}, nil, Dict{"a": "b"}, nil); err != nil {
		t.Fatalf("call: %v", err)
	}

	router.mu.Lock()
	defer router.mu.Unlock()
	opts := router.calls[0].dict(2)
	if _, ok := opts["receive_progress"]; ok {
		t.Fatalf("receive_progress must not be set without a callback: %v", opts)
	}
}

func TestCall_ErrorMessage(t *testing.T) {
	_, url := newFakeRouter(t, "")
	s := dialTest(t, url, "")

	_, err := s.Call(context.Background(), "com.fail", nil, nil, nil, nil)
	var werr *Error
	if !errors.As(err, &werr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if werr.URI != "com.error.failed" || werr.Error() != "com.error.failed: it broke" {
		t.Fatalf("unexpected error %v", werr)
	}
	if code := toInt(werr.Kwargs["code"]); code != 7 {
		t.Fatalf("kwargs not kept: %v", werr.Kwargs)
	}
}

func TestCall_ContextCancel(t *testing.T) {
	_, url := newFakeRouter(t, "")
	s := dialTest(t, url, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Call(ctx, "com.never", nil, nil, nil, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRegister_InvocationWithProgress(t *testing.T) {
	router, url := newFakeRouter(t, "")
	s := dialTest(t, url, "")

	_, err := s.Register(context.Background(), "com.stream", nil, func(ctx context.Context, inv *Invocation) (*Result, error) {
		if err := inv.SendProgress(ctx, List{"chunk"}, nil); err != nil {
			return nil, err
		}
		return &Result{Args: List{"done"}}, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	router.invoke(9, Dict{"receive_progress": true}, nil)
	progress := router.waitYield(t)
	if progress.kind() != msgYield || progress.dict(2)["progress"] != true {
		t.Fatalf("expected progressive yield, got %v", progress)
	}
	final := router.waitYield(t)
	if final.kind() != msgYield || final.list(3)[0] != "done" {
		t.Fatalf("expected final yield, got %v", final)
	}
}

func TestRegister_ProgressNotRequested(t *testing.T) {
	router, url := newFakeRouter(t, "")
	s := dialTest(t, url, "")

	_, err := s.Register(context.Background(), "com.stream", nil, func(ctx context.Context, inv *Invocation) (*Result, error) {
		return nil, inv.SendProgress(ctx, List{"chunk"}, nil)
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	router.invoke(10, Dict{}, nil)
	reply := router.waitYield(t)
	if reply.kind() != msgError || reply.str(4) != URIRuntimeError {
		t.Fatalf("expected runtime error, got %v", reply)
	}
}

func TestUnregister(t *testing.T) {
	_, url := newFakeRouter(t, "")
	s := dialTest(t, url, "")

	registration, err := s.Register(context.Background(), "com.x", nil, func(context.Context, *Invocation) (*Result, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Unregister(context.Background(), registration+1); err == nil {
		t.Fatalf("expected error for unknown registration")
	}
	if err := s.Unregister(context.Background(), registration); err != nil {
		t.Fatalf("unregister: %v", err)
	}
}

func TestClose_Once(t *testing.T) {
	router, url := newFakeRouter(t, "")
	s := dialTest(t, url, "")

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session not done after close")
	}
	if err := s.Close(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on second close, got %v", err)
	}
	if _, err := s.Call(context.Background(), "com.echo", nil, nil, nil, nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after close, got %v", err)
	}

	router.mu.Lock()
	defer router.mu.Unlock()
	if router.goodbyes != 1 {
		t.Fatalf("expected exactly one GOODBYE, got %d", router.goodbyes)
	}
}
