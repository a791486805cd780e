package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"qwen2.5:7b-instruct","response":"Feature: Login","done":true}` + "\n"))
	}))
	defer srv.Close()

	client, err := NewOllamaClient(srv.URL, "qwen2.5:7b-instruct", 5*time.Second)
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), "prompt body")
	require.NoError(t, err)

	assert.Equal(t, "Feature: Login", text)
	assert.Equal(t, "qwen2.5:7b-instruct", got["model"])
	assert.Equal(t, "prompt body", got["prompt"])
	assert.Equal(t, false, got["stream"], "always requests a complete response")
	assert.Equal(t, "qwen2.5:7b-instruct", client.Model())
}

func TestOllamaGenerateServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("{}\n"))
	}))
	defer srv.Close()

	client, err := NewOllamaClient(srv.URL, "m", 5*time.Second)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "p")
	require.Error(t, err)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusInternalServerError, be.Status)
	assert.Equal(t, 1, calls, "no automatic retry")
}

func TestOllamaGenerateErrorBody(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"model not found", http.StatusNotFound, `{"error":"model \"x\" not found, try pulling it first"}`, `model "x" not found`},
		{"load failure", http.StatusInternalServerError, `{"error":"llama runner process has terminated"}`, "llama runner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body + "\n"))
			}))
			defer srv.Close()

			client, err := NewOllamaClient(srv.URL, "x", 5*time.Second)
			require.NoError(t, err)

			_, err = client.Generate(context.Background(), "p")
			var be *BackendError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.status, be.Status)
			assert.Contains(t, be.Message, tt.want)
		})
	}
}

func TestOllamaGenerateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"m","response":"  ","done":true}` + "\n"))
	}))
	defer srv.Close()

	client, err := NewOllamaClient(srv.URL, "m", 5*time.Second)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "p")
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Message, "empty response")
}

func TestOllamaGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := NewOllamaClient(srv.URL, "m", 50*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Generate(context.Background(), "p")
	require.Error(t, err)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Zero(t, be.Status)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewOllamaClient(url, "m", time.Second)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "p")
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Zero(t, be.Status)
}

func TestNewOllamaClientInvalidHost(t *testing.T) {
	_, err := NewOllamaClient("localhost", "m", time.Second)
	assert.Error(t, err)
}
