package wechat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func newTokenServer(t *testing.T, calls *int32, expiresIn int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cgi-bin/token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("appid"); got != "app-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errcode":40013,"errmsg":"invalid appid"}`))
			return
		}
		current := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"token-%d","expires_in":%d}`, current, expiresIn)
	}))
}

func TestTokenSourceCachesToken(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls, 7200)
	defer server.Close()

	source := NewTokenSource("app-1", "secret-1", server.URL, server.Client())

	first, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("first token fetch failed: %v", err)
	}
	if first != "token-1" {
		t.Fatalf("unexpected token: %q", first)
	}

	second, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("second token read failed: %v", err)
	}
	if second != first {
		t.Fatalf("expected cached token, got %q then %q", first, second)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", got)
	}
}

func TestTokenSourceRefreshesNearExpiry(t *testing.T) {
	var calls int32
	// Lifetime below the safety margin yields an already-stale token,
	// so every read goes back upstream.
	server := newTokenServer(t, &calls, 1)
	defer server.Close()

	source := NewTokenSource("app-1", "secret-1", server.URL, server.Client())

	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("first token fetch failed: %v", err)
	}
	second, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("refresh fetch failed: %v", err)
	}
	if second != "token-2" {
		t.Fatalf("expected refreshed token, got %q", second)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 upstream fetches, got %d", got)
	}
}

func TestTokenSourceSingleFlightUnderConcurrency(t *testing.T) {
	var calls int32
	var release sync.WaitGroup
	release.Add(1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		release.Wait()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"shared-token","expires_in":7200}`))
	}))
	defer server.Close()

	source := NewTokenSource("app-1", "secret-1", server.URL, server.Client())

	const workers = 16
	results := make([]string, workers)
	errs := make([]error, workers)
	var started, done sync.WaitGroup
	started.Add(workers)
	done.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer done.Done()
			started.Done()
			results[idx], errs[idx] = source.Token(context.Background())
		}(i)
	}
	started.Wait()
	release.Done()
	done.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if results[i] != "shared-token" {
			t.Fatalf("worker %d got token %q", i, results[i])
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one upstream fetch for all workers, got %d", got)
	}
}

func TestTokenSourcePropagatesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errcode":40001,"errmsg":"invalid credential"}`))
	}))
	defer server.Close()

	source := NewTokenSource("app-1", "bad-secret", server.URL, server.Client())

	if _, err := source.Token(context.Background()); err == nil {
		t.Fatalf("expected error for errcode response")
	}
}
