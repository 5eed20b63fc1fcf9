package gamma

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient()

		if c.baseURL != DefaultBaseURL {
			t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		hc := &http.Client{Timeout: 10 * time.Second}
		c := NewClient(
			WithBaseURL("http://localhost:1234"),
			WithRetries(5, 2*time.Second),
			WithHTTPClient(hc),
		)
		if c.baseURL != "http://localhost:1234" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://localhost:1234")
		}
		if c.maxRetries != 5 || c.retryBackoff != 2*time.Second {
			t.Errorf("retries = %d/%v, want 5/2s", c.maxRetries, c.retryBackoff)
		}
		if c.httpClient != hc {
			t.Error("custom HTTP client not set")
		}
	})
}

func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 500 then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		c := NewClient(WithBaseURL(srv.URL), WithRetries(3, time.Millisecond))
		body, err := c.doWithRetry(context.Background(), http.MethodGet, "/events", nil)
		if err != nil {
			t.Fatalf("doWithRetry: %v", err)
		}
		if string(body) != `{"ok":true}` {
			t.Errorf("body = %q", body)
		}
		if got := calls.Load(); got != 3 {
			t.Errorf("calls = %d, want 3", got)
		}
	})

	t.Run("does not retry on 404", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		c := NewClient(WithBaseURL(srv.URL), WithRetries(3, time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/events/999", nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("error = %v, want *APIError", err)
		}
		if apiErr.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("calls = %d, want 1", got)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := NewClient(WithBaseURL(srv.URL), WithRetries(2, time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/events", nil); err == nil {
			t.Fatal("expected error after exhausted retries")
		}
	})
}

func TestAPIErrorRetryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{404, false},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.code}
		if got := e.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
