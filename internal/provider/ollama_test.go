package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGnft17/clawtographer/internal/config"
	"github.com/JGnft17/clawtographer/internal/errors"
)

func fakeOllama(t *testing.T, generateStatus *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[{"name":"mistral:7b"},{"name":"llama3.1:8b"}]}`))
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		if code := int(generateStatus.Load()); code != 0 {
			w.WriteHeader(code)
			_, _ = w.Write([]byte("{}\n"))
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		resp := map[string]any{"model": req.Model, "response": "analysis of: " + req.Prompt, "done": true}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenOllama_PicksPriorityModel(t *testing.T) {
	var status atomic.Int32
	srv := fakeOllama(t, &status)

	o, err := OpenOllama(context.Background(), srv.URL, "", config.DefaultModels)
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:8b", o.Model())

	out, err := o.Analyze(context.Background(), "main.go")
	require.NoError(t, err)
	assert.Equal(t, "analysis of: main.go", out)
}

func TestOllama_ServerErrorIsRetryable(t *testing.T) {
	var status atomic.Int32
	srv := fakeOllama(t, &status)

	o, err := OpenOllama(context.Background(), srv.URL, "mistral:7b", nil)
	require.NoError(t, err)

	status.Store(http.StatusServiceUnavailable)
	_, err = o.Analyze(context.Background(), "x")
	assert.True(t, errors.Is(err, errors.ErrProvider))
	assert.True(t, errors.IsRetryable(err))

	status.Store(http.StatusNotFound)
	_, err = o.Analyze(context.Background(), "x")
	assert.True(t, errors.Is(err, errors.ErrProvider))
	assert.False(t, errors.IsRetryable(err))
}

func TestOpenOllama_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := OpenOllama(context.Background(), url, "", config.DefaultModels)
	assert.True(t, errors.Is(err, errors.ErrProvider))
}
