package communication

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, router chi.Router, token string) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	c := NewClient(Settings{APIURL: srv.URL, AuthorizationToken: token}, zerolog.Nop())
	return c, srv
}

func TestAddAccessToken_Separator(t *testing.T) {
	c := NewClient(Settings{APIURL: "https://api.example.com", AuthorizationToken: "tok"}, zerolog.Nop())

	if got := c.AddAccessToken("https://api.example.com/audio/1"); got != "https://api.example.com/audio/1?access_token=tok" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := c.AddAccessToken("https://api.example.com/audio/1?x=1"); got != "https://api.example.com/audio/1?x=1&access_token=tok" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestAddAccessToken_AppliedTwiceAppendsTwice(t *testing.T) {
	c := NewClient(Settings{AuthorizationToken: "tok"}, zerolog.Nop())

	once := c.AddAccessToken("/a")
	if strings.Count(once, "access_token=tok") != 1 {
		t.Fatalf("expected exactly one token, got %q", once)
	}
	twice := c.AddAccessToken(once)
	if strings.Count(twice, "access_token=tok") != 2 {
		t.Fatalf("expected two tokens, got %q", twice)
	}
}

func TestRequest_JSONBodyAndResponse(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/organisations", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "org-1", "name": in["name"]})
	})
	c, _ := newTestClient(t, r, "")

	resp, err := c.Request(context.Background(), http.MethodPost, "organisations", map[string]string{"name": "School"}, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !resp.JSON {
		t.Fatalf("expected json response")
	}
	var out map[string]string
	if err := resp.Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["id"] != "org-1" || out["name"] != "School" {
		t.Fatalf("unexpected body %v", out)
	}
}

func TestRequest_FormAndRawResponse(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/form", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, r.PostForm.Get("a")+r.PostForm.Get("b"))
	})
	c, _ := newTestClient(t, r, "")

	resp, err := c.Request(context.Background(), http.MethodPost, "/form", url.Values{"a": {"1"}, "b": {"2"}}, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.JSON {
		t.Fatalf("text response must not be flagged as json")
	}
	if string(resp.Body) != "12" {
		t.Fatalf("unexpected raw body %q", resp.Body)
	}
	if err := resp.Decode(&struct{}{}); !errors.Is(err, ErrNotJSON) {
		t.Fatalf("expected ErrNotJSON, got %v", err)
	}
}

func TestRequest_Multipart(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		file, header, err := r.FormFile("referenceAudio")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"topic":    r.FormValue("topic"),
			"filename": header.Filename,
			"size":     len(data),
		})
	})
	c, _ := newTestClient(t, r, "")

	form := NewFormData().Set("topic", "holidays").AddFile("referenceAudio", "ref.wav", "audio/wav", []byte("RIFF1234"))
	resp, err := c.Request(context.Background(), http.MethodPost, "/upload", form, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	var out struct {
		Topic    string `json:"topic"`
		Filename string `json:"filename"`
		Size     int    `json:"size"`
	}
	if err := resp.Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Topic != "holidays" || out.Filename != "ref.wav" || out.Size != 8 {
		t.Fatalf("unexpected echo %+v", out)
	}
}

func TestRequest_JSONErrorCarriesPayload(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message":"invalid","errors":[{"field":"name"}]}`)
	})
	c, _ := newTestClient(t, r, "")

	_, err := c.Request(context.Background(), http.MethodGet, "/broken", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	payload, ok := apiErr.Payload.(map[string]any)
	if !ok || payload["message"] != "invalid" {
		t.Fatalf("payload not relayed verbatim: %#v", apiErr.Payload)
	}
	if err.Error() != "422: invalid" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestRequest_NonJSONErrorFormatsStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	c, _ := newTestClient(t, r, "")

	_, err := c.Request(context.Background(), http.MethodGet, "/missing", nil, nil)
	if err == nil || err.Error() != "404: Not Found" {
		t.Fatalf("expected '404: Not Found', got %v", err)
	}
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound should match")
	}
}

func TestRequest_ParsesNextLink(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/students", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Link", `<https://api.example.com/students?page=2>; rel="next", <https://api.example.com/students?page=9>; rel="last"`)
		_, _ = io.WriteString(w, `[]`)
	})
	c, _ := newTestClient(t, r, "")

	resp, err := c.Request(context.Background(), http.MethodGet, "/students", nil, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Next != "https://api.example.com/students?page=2" {
		t.Fatalf("unexpected next %q", resp.Next)
	}
}

func TestAuthorisedRequest_AttachesBearer(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusNoContent)
	})
	c, srv := newTestClient(t, r, "secret")

	if _, err := c.AuthorisedRequest(context.Background(), http.MethodGet, "/me", nil, nil); err != nil {
		t.Fatalf("relative url: %v", err)
	}
	if _, err := c.AuthorisedRequest(context.Background(), http.MethodGet, srv.URL+"/me", nil, nil); err != nil {
		t.Fatalf("absolute url under api: %v", err)
	}
}

func TestAuthorisedRequest_RefusesWithoutNetwork(t *testing.T) {
	var hits int32
	r := chi.NewRouter()
	r.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})
	c, _ := newTestClient(t, r, "")

	if _, err := c.AuthorisedRequest(context.Background(), http.MethodGet, "/x", nil, nil); !errors.Is(err, ErrNoAuthorizationToken) {
		t.Fatalf("expected ErrNoAuthorizationToken, got %v", err)
	}

	c.SetAuthorizationToken("secret")
	if _, err := c.AuthorisedRequest(context.Background(), http.MethodGet, "https://evil.example.com/x", nil, nil); !errors.Is(err, ErrForeignURL) {
		t.Fatalf("expected ErrForeignURL, got %v", err)
	}

	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("no request should reach the server, got %d", hits)
	}
}

func TestAuthorisedRequest_RejectsExpiredJWT(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	c := NewClient(Settings{APIURL: "http://127.0.0.1:1", AuthorizationToken: expired}, zerolog.Nop())
	if _, err := c.AuthorisedRequest(context.Background(), http.MethodGet, "/x", nil, nil); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAuthenticate_StoresToken(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/tokens", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "password" || r.PostForm.Get("username") != "ada" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"fresh","token_type":"bearer","scope":"tenant/1"}`)
	})
	c, _ := newTestClient(t, r, "")

	token, err := c.Authenticate(context.Background(), "ada", "pw", "tenant/1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if token != "fresh" || c.AuthorizationToken() != "fresh" {
		t.Fatalf("token not stored: %q / %q", token, c.AuthorizationToken())
	}
}

func TestParseLinkHeader(t *testing.T) {
	links := ParseLinkHeader(`<http://a/2>; rel="next prev-archive", <http://a/1>; rel=first, broken`)
	if links["next"] != "http://a/2" || links["prev-archive"] != "http://a/2" || links["first"] != "http://a/1" {
		t.Fatalf("unexpected links %v", links)
	}
	if len(ParseLinkHeader("")) != 0 {
		t.Fatalf("empty header should give no links")
	}
}

func TestParseLinkHeader_CommaInURL(t *testing.T) {
	links := ParseLinkHeader(`<https://api.example.com/students?fields=id,name&page=2>; rel="next", <https://api.example.com/students?fields=id,name&page=1>; title="a, b"; rel=prev`)
	if links["next"] != "https://api.example.com/students?fields=id,name&page=2" {
		t.Fatalf("unexpected next %q", links["next"])
	}
	if links["prev"] != "https://api.example.com/students?fields=id,name&page=1" {
		t.Fatalf("unexpected prev %q", links["prev"])
	}
}
