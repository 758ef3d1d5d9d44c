package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

func TestHTTPLlmPortCompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/complete", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(completionResponse{Content: "generated code"})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "secret"
	port := New(cfg, nil)

	content, err := port.Complete(context.Background(), domain.LLMRequest{Prompt: "do it", Tier: domain.ModelTierFast})
	require.NoError(t, err)
	require.Equal(t, "generated code", content)
}

func TestHTTPLlmPortRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(completionResponse{Content: "ok"})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RetryDelay = time.Millisecond
	port := New(cfg, nil)

	content, err := port.Complete(context.Background(), domain.LLMRequest{Prompt: "retry me"})
	require.NoError(t, err)
	require.Equal(t, "ok", content)
	require.Equal(t, 2, attempts)
}

func TestHTTPLlmPortExhaustsRetriesAndFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetries = 2
	port := New(cfg, nil)

	_, err := port.Complete(context.Background(), domain.LLMRequest{Prompt: "fail"})
	require.Error(t, err)
}

func TestHTTPLlmPortPropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionResponse{Error: "rate limited"})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetries = 0
	port := New(cfg, nil)

	_, err := port.Complete(context.Background(), domain.LLMRequest{Prompt: "x"})
	require.ErrorContains(t, err, "rate limited")
}
