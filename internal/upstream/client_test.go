package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/indexfs/indexfs/internal/fserr"
	"github.com/indexfs/indexfs/internal/logging"
)

type originStub struct {
	server *httptest.Server
	hits   atomic.Int32

	mu      sync.Mutex
	remotes map[string]struct{}
	last    *http.Request
}

func newOriginStub(t *testing.T, handler http.HandlerFunc) *originStub {
	t.Helper()
	stub := &originStub{remotes: make(map[string]struct{})}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.hits.Add(1)
		stub.mu.Lock()
		stub.remotes[r.RemoteAddr] = struct{}{}
		stub.last = r.Clone(context.Background())
		stub.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *originStub) lastRequest() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *originStub) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.remotes)
}

func newTestClient(t *testing.T, origin string, mutate ...func(*Options)) *Client {
	t.Helper()
	opts := Options{
		Origin:         origin,
		Timeout:        5 * time.Second,
		MaxRedirects:   10,
		MaxConnections: 2,
		Logger:         logging.Discard(),
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	client, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestDoJoinsBasePathAndEscapes(t *testing.T) {
	stub := newOriginStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	client := newTestClient(t, stub.server.URL+"/pub/")

	resolved, resp, err := client.Do(context.Background(), http.MethodGet, "/a b/c#d.txt", nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if body := readAll(t, resp); body != "ok" {
		t.Fatalf("unexpected body %q", body)
	}
	if resolved != "/a b/c#d.txt" {
		t.Fatalf("unexpected resolved path %q", resolved)
	}

	req := stub.lastRequest()
	if req.URL.Path != "/pub/a b/c#d.txt" {
		t.Fatalf("unexpected upstream path %q", req.URL.Path)
	}
	if req.RequestURI != "/pub/a%20b/c%23d.txt" {
		t.Fatalf("path should be URL-escaped, got %q", req.RequestURI)
	}
}

func TestDoPassesHeadersAndUserAgent(t *testing.T) {
	stub := newOriginStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
	})
	client := newTestClient(t, stub.server.URL+"/", func(o *Options) { o.UserAgent = "indexfs-test" })

	header := http.Header{}
	header.Set("Range", "bytes=20-29")
	_, resp, err := client.Do(context.Background(), http.MethodGet, "/f", header)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	readAll(t, resp)

	req := stub.lastRequest()
	if got := req.Header.Get("Range"); got != "bytes=20-29" {
		t.Fatalf("unexpected Range header %q", got)
	}
	if got := req.Header.Get("User-Agent"); got != "indexfs-test" {
		t.Fatalf("unexpected User-Agent %q", got)
	}
}

func TestDoMapsNotFound(t *testing.T) {
	stub := newOriginStub(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	client := newTestClient(t, stub.server.URL+"/")

	_, resp, err := client.Do(context.Background(), http.MethodHead, "/missing", nil)
	if resp != nil {
		t.Fatalf("404 should not return a response")
	}
	if !errors.Is(err, fserr.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDoReturnsOtherStatuses(t *testing.T) {
	stub := newOriginStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	client := newTestClient(t, stub.server.URL+"/")

	_, resp, err := client.Do(context.Background(), http.MethodGet, "/secret", nil)
	if err != nil {
		t.Fatalf("non-404 statuses should be returned, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestDoFollowsSameOriginRedirect(t *testing.T) {
	var origin string
	stub := newOriginStub(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pub/docs":
			w.Header().Set("Location", origin+"docs/")
			w.WriteHeader(http.StatusMovedPermanently)
			_, _ = io.WriteString(w, "moved")
		case "/pub/docs/":
			_, _ = io.WriteString(w, "listing")
		default:
			http.NotFound(w, r)
		}
	})
	origin = stub.server.URL + "/pub/"
	client := newTestClient(t, origin)

	resolved, resp, err := client.Do(context.Background(), http.MethodGet, "/docs", nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if body := readAll(t, resp); body != "listing" {
		t.Fatalf("unexpected body %q", body)
	}
	if resolved != "/docs/" {
		t.Fatalf("resolved path should be the redirect target, got %q", resolved)
	}
	if stub.hits.Load() != 2 {
		t.Fatalf("expected 2 upstream hits, got %d", stub.hits.Load())
	}
}

func TestDoRejectsRedirectOutsideOrigin(t *testing.T) {
	stub := newOriginStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://elsewhere.example.org/pub/docs/")
		w.WriteHeader(http.StatusFound)
	})
	client := newTestClient(t, stub.server.URL+"/pub/")

	_, _, err := client.Do(context.Background(), http.MethodGet, "/docs", nil)
	if !errors.Is(err, fserr.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if !errors.Is(err, errRedirectOutsideOrigin) {
		t.Fatalf("expected redirect cause in chain, got %v", err)
	}
	if stub.hits.Load() != 1 {
		t.Fatalf("outside redirect must not be followed, got %d hits", stub.hits.Load())
	}
}

func TestDoRejectsRedirectToSiblingPrefix(t *testing.T) {
	var host string
	stub := newOriginStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", host+"/public/docs/")
		w.WriteHeader(http.StatusFound)
	})
	host = stub.server.URL
	client := newTestClient(t, host+"/pub")

	if _, _, err := client.Do(context.Background(), http.MethodGet, "/docs", nil); !errors.Is(err, fserr.ErrNotFound) {
		t.Fatalf("/public/ is not under /pub/, expected not-found, got %v", err)
	}
}

func TestDoBoundsRedirectLoops(t *testing.T) {
	var origin string
	stub := newOriginStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", origin+"loop")
		w.WriteHeader(http.StatusFound)
	})
	origin = stub.server.URL + "/"
	client := newTestClient(t, origin, func(o *Options) { o.MaxRedirects = 3 })

	_, _, err := client.Do(context.Background(), http.MethodGet, "/loop", nil)
	if !errors.Is(err, fserr.ErrNotFound) || !errors.Is(err, errTooManyRedirects) {
		t.Fatalf("expected bounded redirect failure, got %v", err)
	}
	if stub.hits.Load() != 4 {
		t.Fatalf("expected 1 request + 3 redirects, got %d", stub.hits.Load())
	}
}

func TestDoMapsConnectionFailureToUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	origin := server.URL + "/"
	server.Close()

	client := newTestClient(t, origin)
	_, _, err := client.Do(context.Background(), http.MethodGet, "/", nil)
	if !errors.Is(err, fserr.ErrUnreachable) {
		t.Fatalf("expected backend-unreachable, got %v", err)
	}
	if fserr.KindOf(err) != fserr.KindUnreachable {
		t.Fatalf("unexpected kind %s", fserr.KindOf(err))
	}
}

func TestDoReusesWorkerConnection(t *testing.T) {
	stub := newOriginStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "payload")
	})
	client := newTestClient(t, stub.server.URL+"/", func(o *Options) { o.MaxConnections = 1 })

	for i := 0; i < 5; i++ {
		_, resp, err := client.Do(context.Background(), http.MethodGet, "/f", nil)
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		readAll(t, resp)
	}

	if got := stub.connections(); got != 1 {
		t.Fatalf("expected a single reused connection, got %d", got)
	}
	if client.Pool().Size() != 1 {
		t.Fatalf("expected one worker, got %d", client.Pool().Size())
	}
}

func TestNewClientRejectsBadOrigin(t *testing.T) {
	for _, origin := range []string{"ftp://example.org/", "http:///nohost/", "::bad"} {
		if _, err := NewClient(Options{Origin: origin}); err == nil {
			t.Fatalf("expected error for origin %q", origin)
		}
	}
}

func TestNewClientNormalizesOrigin(t *testing.T) {
	client := newTestClient(t, "http://example.org/pub")
	if client.Origin() != "http://example.org/pub/" {
		t.Fatalf("unexpected origin %q", client.Origin())
	}
	if client.basePath != "/pub" {
		t.Fatalf("unexpected base path %q", client.basePath)
	}
}
