package httpd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	imodels "github.com/RubachokBoss/speech-sdk/internal/models"
	"github.com/RubachokBoss/speech-sdk/pkg/audio"
	"github.com/RubachokBoss/speech-sdk/pkg/client"
	"github.com/RubachokBoss/speech-sdk/pkg/communication"
	"github.com/RubachokBoss/speech-sdk/pkg/controllers"
	"github.com/RubachokBoss/speech-sdk/pkg/models"
	"github.com/RubachokBoss/speech-sdk/pkg/rpc"
	"github.com/RubachokBoss/speech-sdk/pkg/wamp"
)

// routerSession answers the streaming procedures the way the api does.
type routerSession struct {
	mu     sync.Mutex
	writes int
	done   chan struct{}
	closed bool
}

func newRouterSession() *routerSession {
	return &routerSession{done: make(chan struct{})}
}

func (s *routerSession) Call(ctx context.Context, procedure string, options wamp.Dict, args wamp.List, kwargs wamp.Dict, progress func(*wamp.Result)) (*wamp.Result, error) {
	switch strings.TrimPrefix(procedure, communication.DefaultNamespace+".") {
	case "choice.init_recognition":
		return &wamp.Result{Args: wamp.List{"recognition-1"}}, nil
	case "pronunciation.init_analysis":
		return &wamp.Result{Args: wamp.List{"analysis-1"}}, nil
	case "choice.write", "pronunciation.write":
		if _, err := base64.StdEncoding.DecodeString(args[1].(string)); err != nil {
			return nil, &wamp.Error{URI: "nl.itslanguage.bad_chunk", Args: wamp.List{err.Error()}}
		}
		s.mu.Lock()
		s.writes++
		s.mu.Unlock()
	case "choice.recognise":
		return &wamp.Result{Kwargs: wamp.Dict{"recognised": "yes"}}, nil
	case "pronunciation.analyse":
		if progress != nil {
			progress(&wamp.Result{Kwargs: wamp.Dict{"score": 0.4}})
		}
		return &wamp.Result{Kwargs: wamp.Dict{"score": 0.9}}, nil
	}
	return &wamp.Result{}, nil
}

func (s *routerSession) Register(ctx context.Context, procedure string, options wamp.Dict, handler wamp.InvocationHandler) (uint64, error) {
	return 1, nil
}

func (s *routerSession) Unregister(ctx context.Context, registration uint64) error {
	return nil
}

func (s *routerSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wamp.ErrSessionClosed
	}
	s.closed = true
	close(s.done)
	return nil
}

func (s *routerSession) Done() <-chan struct{} {
	return s.done
}

type fakeHistory struct {
	records map[string]*imodels.SessionRecord
	filter  imodels.HistoryFilter
}

func (f *fakeHistory) GetBySession(ctx context.Context, token string) (*imodels.SessionRecord, error) {
	return f.records[token], nil
}

func (f *fakeHistory) List(ctx context.Context, filter imodels.HistoryFilter) (*imodels.HistoryPage, error) {
	f.filter = filter
	page := &imodels.HistoryPage{Limit: filter.Limit, Offset: filter.Offset}
	for _, r := range f.records {
		page.Items = append(page.Items, *r)
	}
	page.Total = len(page.Items)
	return page, nil
}

type fakeArchive struct {
	objects map[string][]byte
}

func (a *fakeArchive) Store(ctx context.Context, key string, data []byte, contentType string) error {
	a.objects[key] = data
	return nil
}

func (a *fakeArchive) Fetch(ctx context.Context, key string) (io.ReadCloser, int64, string, error) {
	data := a.objects[key]
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), "audio/wav", nil
}

func (a *fakeArchive) Presign(ctx context.Context, key string) (string, error) {
	return "https://archive.example.com/" + key + "?sig=1", nil
}

type testBridge struct {
	server *httptest.Server
	client *client.Client
}

// newTestBridge wires the handler to an api double: api serves the REST
// side, routerSession the websocket side.
func newTestBridge(t *testing.T, api chi.Router, opts Options) *testBridge {
	t.Helper()
	if api == nil {
		api = chi.NewRouter()
	}
	apiServer := httptest.NewServer(api)
	t.Cleanup(apiServer.Close)

	session := newRouterSession()
	c := client.New(communication.Settings{
		APIURL:             apiServer.URL,
		WSURL:              "wss://ws.example.com",
		AuthorizationToken: "tok",
	},
		client.WithLogger(zerolog.Nop()),
		client.WithDialer(func(ctx context.Context, cfg wamp.Config) (rpc.Session, error) {
			return session, nil
		}),
	)

	router := chi.NewRouter()
	NewHandler(c, opts, zerolog.Nop()).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testBridge{server: srv, client: c}
}

func (b *testBridge) do(t *testing.T, method, path, contentType string, body []byte, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, b.server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	httpClient := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decode(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func testWAVE(size int) []byte {
	params := audio.AudioParameters{Channels: 1, SampleWidth: 16, SampleRate: 8000, FrameRate: 8000}
	return audio.EncodeWAVE(params, make([]byte, size))
}

func TestHealthAndConnection(t *testing.T) {
	b := newTestBridge(t, nil, Options{})

	if resp := b.do(t, http.MethodGet, "/health", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", resp.StatusCode)
	}

	resp := b.do(t, http.MethodPost, "/api/v1/connection/open", "", nil)
	env := decode(t, resp)
	var state connectionResponse
	json.Unmarshal(env.Data, &state)
	if resp.StatusCode != http.StatusOK || state.State != "open" || state.Message != rpc.MessageOpened {
		t.Fatalf("open: %d %+v", resp.StatusCode, state)
	}

	resp = b.do(t, http.MethodPost, "/api/v1/connection/close", "", nil)
	json.Unmarshal(decode(t, resp).Data, &state)
	if state.State != "closed" || state.Message != rpc.MessageClosed {
		t.Fatalf("close: %+v", state)
	}
}

func TestRecognise_EndToEnd(t *testing.T) {
	b := newTestBridge(t, nil, Options{})
	if _, err := b.client.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	resp := b.do(t, http.MethodPost, "/api/v1/organisations/org/challenges/choice/ch-1/recognitions", "audio/wav", testWAVE(3200))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var got models.ChoiceRecognition
	json.Unmarshal(decode(t, resp).Data, &got)
	if got.ID != "recognition-1" || got.Recognised != "yes" || got.ChallengeID != "ch-1" {
		t.Fatalf("unexpected recognition %+v", got)
	}
}

func TestStreaming_ErrorStatuses(t *testing.T) {
	b := newTestBridge(t, nil, Options{})

	resp := b.do(t, http.MethodPost, "/api/v1/organisations/org/challenges/choice/ch-1/recognitions", "audio/wav", testWAVE(100))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("closed socket: expected 503, got %d", resp.StatusCode)
	}

	resp = b.do(t, http.MethodPost, "/api/v1/organisations/org/challenges/speech/ch-1/recordings", "audio/wav", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", resp.StatusCode)
	}

	resp = b.do(t, http.MethodPost, "/api/v1/organisations/org/challenges/speech/ch-1/recordings", "audio/wav", []byte("not a wave"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad wave: expected 400, got %d", resp.StatusCode)
	}
}

func TestAnalyse_NDJSONProgress(t *testing.T) {
	b := newTestBridge(t, nil, Options{})
	if _, err := b.client.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	resp := b.do(t, http.MethodPost, "/api/v1/organisations/org/challenges/pronunciation/ch-2/analyses", "audio/wav", testWAVE(1600), "Accept", ndjsonContentType)
	if resp.Header.Get("Content-Type") != ndjsonContentType {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	var types []string
	var last struct {
		Type string                       `json:"type"`
		Data models.PronunciationAnalysis `json:"data"`
	}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if err := json.Unmarshal(scanner.Bytes(), &last); err != nil {
			t.Fatalf("line %q: %v", scanner.Text(), err)
		}
		types = append(types, last.Type)
	}
	if strings.Join(types, ",") != "progress,result" {
		t.Fatalf("unexpected lines %v", types)
	}
	if last.Data.Score != 0.9 || last.Data.ID != "analysis-1" {
		t.Fatalf("unexpected result %+v", last.Data)
	}
}

func TestResources_PassThroughAndValidation(t *testing.T) {
	var created map[string]any
	api := chi.NewRouter()
	api.Get("/organisations/{org}/students/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"student not found"}`)
	})
	api.Post("/organisations/{org}/challenges/choice", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&created)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"c1","question":"q","choices":["a","b"],"status":"prepared"}`)
	})
	b := newTestBridge(t, api, Options{})

	resp := b.do(t, http.MethodGet, "/api/v1/organisations/org/students/s9", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected api 404 to pass through, got %d", resp.StatusCode)
	}
	if env := decode(t, resp); !strings.Contains(env.Message, "student not found") {
		t.Fatalf("unexpected message %q", env.Message)
	}

	resp = b.do(t, http.MethodPost, "/api/v1/organisations/org/students", "application/json", []byte(`{"gender":"other"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid gender: expected 400, got %d", resp.StatusCode)
	}

	resp = b.do(t, http.MethodPost, "/api/v1/organisations/org/challenges/choice", "application/json", []byte(`{"question":"q","choices":["a","b"]}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create choice: expected 201, got %d", resp.StatusCode)
	}
	var challenge models.ChoiceChallenge
	json.Unmarshal(decode(t, resp).Data, &challenge)
	if challenge.ID != "c1" || len(challenge.Choices) != 2 {
		t.Fatalf("unexpected challenge %+v", challenge)
	}
	if created["question"] != "q" {
		t.Fatalf("unexpected api body %v", created)
	}
}

func TestHistory(t *testing.T) {
	b := newTestBridge(t, nil, Options{})
	if resp := b.do(t, http.MethodGet, "/api/v1/history", "", nil); resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("history without store: expected 501, got %d", resp.StatusCode)
	}

	history := &fakeHistory{records: map[string]*imodels.SessionRecord{
		"tok-1": {Token: "tok-1", Kind: "recording", Stage: "completed", AudioKey: "2026/05/tok-1.wav"},
		"tok-2": {Token: "tok-2", Kind: "analysis", Stage: "failed"},
	}}
	archive := &fakeArchive{objects: map[string][]byte{"2026/05/tok-1.wav": []byte("RIFF")}}
	b = newTestBridge(t, nil, Options{History: history, Archive: archive})

	resp := b.do(t, http.MethodGet, "/api/v1/history?kind=recording&limit=5&offset=2", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
	if history.filter.Kind != "recording" || history.filter.Limit != 5 || history.filter.Offset != 2 {
		t.Fatalf("unexpected filter %+v", history.filter)
	}

	if resp := b.do(t, http.MethodGet, "/api/v1/history/missing", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing: expected 404, got %d", resp.StatusCode)
	}

	resp = b.do(t, http.MethodGet, "/api/v1/history/tok-1/audio", "", nil)
	if resp.StatusCode != http.StatusFound || !strings.HasPrefix(resp.Header.Get("Location"), "https://archive.example.com/2026/05/tok-1.wav") {
		t.Fatalf("expected presigned redirect, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp = b.do(t, http.MethodGet, "/api/v1/history/tok-1/audio?download=true", "", nil)
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "RIFF" || resp.Header.Get("Content-Type") != "audio/wav" {
		t.Fatalf("download: %d %q", resp.StatusCode, body)
	}

	if resp := b.do(t, http.MethodGet, "/api/v1/history/tok-2/audio", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("no audio: expected 404, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.ErrChallengeIDRequired, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", models.ErrInvalidFilters), http.StatusBadRequest},
		{&communication.APIError{StatusCode: http.StatusForbidden}, http.StatusForbidden},
		{&rpc.CallError{Message: "refused"}, http.StatusBadGateway},
		{controllers.ErrSessionInProgress, http.StatusConflict},
		{controllers.ErrRecorderBusy, http.StatusConflict},
		{controllers.ErrWebsocketNotOpen, http.StatusServiceUnavailable},
		{communication.ErrNoAuthorizationToken, http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errAudioTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}
