package lmstudio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pantry-chef/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) Response {
	return Response{
		ID:      "chatcmpl-1",
		Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}},
	}
}

func newTestClient(url string) *Client {
	return NewClient(config.LMStudioConfig{
		URL:            url,
		Model:          "llama-test",
		Temperature:    0.7,
		SuggestTimeout: 2 * time.Second,
		DetailTimeout:  2 * time.Second,
	})
}

func TestGenerateSendsPromptAndParsesDishes(t *testing.T) {
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody("```json\n{\"dishes\":[{\"name\":\"Tomato Soup\"}]}\n```"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL + "/v1/chat/completions")
	dishes, err := client.Generate(context.Background(), []string{"Onion", "Tomato"})
	require.NoError(t, err)
	require.Len(t, dishes, 1)
	assert.Equal(t, "Tomato Soup", dishes[0].Name())

	assert.Equal(t, "llama-test", gotReq.Model)
	assert.Equal(t, client.Model(), gotReq.Model)
	assert.InDelta(t, 0.7, gotReq.Temperature, 1e-9)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[0].Content, "Onion, Tomato")
	assert.Contains(t, gotReq.Messages[0].Content, "'dishes'")
}

func TestGenerateNon2xxIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), []string{"Egg"})
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
}

func TestGenerateTimeoutIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client := NewClient(config.LMStudioConfig{
		URL:            srv.URL,
		Model:          "llama-test",
		SuggestTimeout: 50 * time.Millisecond,
		DetailTimeout:  50 * time.Millisecond,
	})
	_, err := client.Generate(context.Background(), []string{"Egg"})
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Zero(t, upstream.StatusCode)
}

func TestGenerateUnparseableContentIsEmptySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody("Sorry, no idea."))
	}))
	defer srv.Close()

	dishes, err := newTestClient(srv.URL).Generate(context.Background(), []string{"Egg"})
	require.NoError(t, err)
	assert.Empty(t, dishes)
}

func TestGenerateInvalidEnvelopeIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>proxy error</html>"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), []string{"Egg"})
	var upstream *UpstreamError
	assert.True(t, errors.As(err, &upstream))
}

func TestDetail(t *testing.T) {
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(completionBody(`{"name":"Pancakes","instructions":[{"step":"Mix"}]}`))
	}))
	defer srv.Close()

	detail, err := newTestClient(srv.URL).Detail(context.Background(), "Pancakes")
	require.NoError(t, err)
	assert.Equal(t, "Pancakes", detail["name"])
	assert.Contains(t, gotReq.Messages[0].Content, "'Pancakes'")
}
