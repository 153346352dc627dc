package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseChunk(text string) string {
	chunk := StreamChunk{
		Object:  "chat.completion.chunk",
		Choices: []Choice{{Delta: &ChatMessage{Role: "assistant", Content: text}}},
	}
	data, _ := json.Marshal(chunk)
	return fmt.Sprintf("data: %s\n", data)
}

func TestStreamCompletionDeliversChunksInOrder(t *testing.T) {
	var gotReq CompletionRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("Hi"))
		fmt.Fprint(w, "\n")
		fmt.Fprint(w, sseChunk(" there"))
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	var got []string
	err := client.StreamCompletion(context.Background(), &CompletionRequest{
		Model:    "relay-model",
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
	}, func(chunk *StreamChunk) error {
		for _, c := range chunk.Choices {
			got = append(got, c.Delta.Content)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there"}, got)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "relay-model", gotReq.Model)
	assert.True(t, gotReq.Stream)
}

func TestStreamCompletionProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	err := client.StreamCompletion(context.Background(), &CompletionRequest{Model: "m"}, func(*StreamChunk) error {
		t.Fatal("callback must not run on provider error")
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
	assert.Contains(t, err.Error(), "429")
}

func TestStreamCompletionPrematureEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Tokens but no [DONE]: the provider dropped mid-stream.
		fmt.Fprint(w, sseChunk("Par"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	var got []string
	err := client.StreamCompletion(context.Background(), &CompletionRequest{Model: "m"}, func(chunk *StreamChunk) error {
		got = append(got, chunk.Choices[0].Delta.Content)
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "prematurely")
	assert.Equal(t, []string{"Par"}, got)
}

func TestStreamCompletionSkipsMalformedChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {not json\n")
		fmt.Fprint(w, ": keepalive comment\n")
		fmt.Fprint(w, sseChunk("ok"))
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	var got []string
	err := client.StreamCompletion(context.Background(), &CompletionRequest{Model: "m"}, func(chunk *StreamChunk) error {
		got = append(got, chunk.Choices[0].Delta.Content)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, got)
}

func TestStreamCompletionCallbackErrorStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("one"))
		fmt.Fprint(w, sseChunk("two"))
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	sentinel := errors.New("stop")
	client := NewClient(srv.URL, "")
	calls := 0
	err := client.StreamCompletion(context.Background(), &CompletionRequest{Model: "m"}, func(*StreamChunk) error {
		calls++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}
