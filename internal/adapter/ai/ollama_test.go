package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/gitsum/internal/port"
)

func TestGenerate_SendsSystemPrompt(t *testing.T) {
	var got struct {
		Model    string              `json:"model"`
		Stream   bool                `json:"stream"`
		Messages []map[string]string `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"  It is written in Go.  "},"done":true}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaEndpointConfig{BaseURL: srv.URL + "/", Model: "qwen3", Token: "secret"})
	reply, err := p.Generate(context.Background(), "system prompt text")
	require.NoError(t, err)

	assert.Equal(t, "It is written in Go.", reply)
	assert.Equal(t, "qwen3", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "system", got.Messages[0]["role"])
	assert.Equal(t, "system prompt text", got.Messages[0]["content"])
	assert.Equal(t, "qwen3", p.ModelName())
}

func TestGenerate_ServerErrorIsModelUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(OllamaEndpointConfig{BaseURL: srv.URL, Model: "qwen3"}).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrModelUnavailable)
	assert.Contains(t, err.Error(), "503")
}

func TestGenerate_EmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":""}}`))
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(OllamaEndpointConfig{BaseURL: srv.URL}).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, port.ErrModelUnavailable)
}

func TestGenerate_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewOllamaProvider(OllamaEndpointConfig{BaseURL: srv.URL}).Generate(ctx, "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrModelUnavailable)
	assert.ErrorIs(t, err, port.ErrTimeout)
}
