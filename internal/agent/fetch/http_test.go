package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skystation-io/skystation/pkg/options"
)

func newTestFetcher(t *testing.T, handler http.Handler, maxBytes int64) *httpFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return newHTTPFetcher(&options.SourceOptions{
		Provider: options.SourceProviderHTTP,
		BaseURL:  srv.URL,
		Timeout:  2 * time.Second,
		MaxBytes: maxBytes,
	})
}

func TestHTTPFetchOK(t *testing.T) {
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/modules/config.py" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("X=1"))
	}), 1<<20)

	data, err := f.Fetch(context.Background(), "modules/config.py")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "X=1" {
		t.Errorf("Fetch returned %q, want %q", data, "X=1")
	}
}

func TestHTTPFetchNotFound(t *testing.T) {
	f := newTestFetcher(t, http.NotFoundHandler(), 1<<20)

	_, err := f.Fetch(context.Background(), "missing.py")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch error = %v, want ErrNotFound", err)
	}
}

func TestHTTPFetchServerErrorIsNetwork(t *testing.T) {
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}), 1<<20)

	_, err := f.Fetch(context.Background(), "main.py")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Fetch error = %v, want ErrNetwork", err)
	}
}

func TestHTTPFetchUnreachableIsNetwork(t *testing.T) {
	f := newHTTPFetcher(&options.SourceOptions{
		BaseURL:  "http://127.0.0.1:1", // nothing listens here
		Timeout:  500 * time.Millisecond,
		MaxBytes: 1 << 20,
	})

	_, err := f.Fetch(context.Background(), "main.py")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Fetch error = %v, want ErrNetwork", err)
	}
}

func TestHTTPFetchTooLarge(t *testing.T) {
	payload := make([]byte, 64)
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}), 16)

	_, err := f.Fetch(context.Background(), "big.bin")
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Fetch error = %v, want ErrTooLarge", err)
	}
}

func TestHTTPFetchAtLimit(t *testing.T) {
	payload := make([]byte, 16)
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}), 16)

	data, err := f.Fetch(context.Background(), "exact.bin")
	if err != nil {
		t.Fatalf("Fetch at exactly the limit should succeed: %v", err)
	}
	if len(data) != 16 {
		t.Errorf("Fetch returned %d bytes, want 16", len(data))
	}
}
