package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	base := []Option{WithBaseURL(srv.URL), WithAPIKey("app-default-key"), WithLogger(logger.Discard())}
	return NewClient(append(base, opts...)...)
}

func collect(t *testing.T, s *EventStream) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	for {
		ev, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestStreamCompletionRequestShape(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat-messages", r.URL.Path)
		assert.Equal(t, "Bearer app-default-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
	})

	s, err := c.StreamCompletion(context.Background(), CompletionRequest{Query: "hi"})
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, collect(t, s))

	assert.Equal(t, DefaultModel, got["model"])
	assert.Equal(t, true, got["stream"])
	assert.NotContains(t, got, "conversation_id")
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, DefaultSystemPrompt, msgs[0].(map[string]any)["content"])
	assert.Equal(t, map[string]any{"role": "user", "content": "hi"}, msgs[1])
}

func TestStreamCompletionParsesDataLines(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "custom-model", body["model"])
		assert.Equal(t, "conv-1", body["conversation_id"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: ping\n\n")
		fmt.Fprint(w, `data: {"message":{"content":"Hel"}}`+"\n\n")
		fmt.Fprint(w, "data: {broken\n\n")
		fmt.Fprint(w, `data: {"message":{"content":"lo"},"conversation_id":"conv-2"}`+"\r\n\r\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, `data: {"message":{"content":"ignored"}}`+"\n\n")
	})

	s, err := c.StreamCompletion(context.Background(), CompletionRequest{Query: "q", Model: "custom-model", ConversationID: "conv-1"})
	require.NoError(t, err)
	defer s.Close()

	events := collect(t, s)
	require.Len(t, events, 2)
	content, ok := events[0].Content()
	assert.True(t, ok)
	assert.Equal(t, "Hel", content)
	assert.Equal(t, "conv-2", events[1].ConversationID)
}

func TestStreamCompletionStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := c.StreamCompletion(context.Background(), CompletionRequest{Query: "q"})
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "quota exceeded")
}

func TestMissingAPIKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	}, WithAPIKey(""))

	_, err := c.StreamCompletion(context.Background(), CompletionRequest{Query: "q"})
	assert.EqualError(t, err, "API key not configured")
}

func TestSendChatMessageStreaming(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer app-override", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{}, body["inputs"])
		assert.Equal(t, []any{}, body["files"])
		assert.Equal(t, "streaming", body["response_mode"])
		assert.Equal(t, "client-7", body["user"])

		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		fmt.Fprint(w, `data: {"event":"message","answer":"Hi","conversation_id":"c1"}`+"\n\n")
		fmt.Fprint(w, `data: {"event":"message_end","conversation_id":"c1"}`+"\n\n")
	})

	reply, err := c.SendChatMessage(context.Background(), "app-override", ChatMessageRequest{Query: "q", User: "client-7", ConversationID: "c1"})
	require.NoError(t, err)
	defer reply.Close()
	require.True(t, reply.Streaming())

	events := collect(t, reply.Stream)
	require.Len(t, events, 2)
	answer, ok := events[0].AnswerText()
	assert.True(t, ok)
	assert.Equal(t, "Hi", answer)
	_, ok = events[1].AnswerText()
	assert.False(t, ok)
}

func TestSendChatMessageBlocking(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"answer", `{"answer":"a b c"}`, "a b c", false},
		{"missing answer", `{"id":"x"}`, NoResponseAnswer, false},
		{"not json", `<html>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tt.body)
			})
			reply, err := c.SendChatMessage(context.Background(), "", ChatMessageRequest{Query: "q"})
			require.NoError(t, err)
			defer reply.Close()
			assert.False(t, reply.Streaming())

			answer, err := reply.Answer()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, answer)
		})
	}
}

func TestUploadFileForwardsMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "alice", r.FormValue("user"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "notes.txt", hdr.Filename)
		assert.Equal(t, "text/plain", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "hello", string(data))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"file-1","name":"notes.txt"}`)
	})

	raw, err := c.UploadFile(context.Background(), "alice", "notes.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"file-1","name":"notes.txt"}`, string(raw))
}

func TestDefaultAPIKeyFollowsSource(t *testing.T) {
	var calls atomic.Int32
	keys := []string{"app-v1", "app-v1", "app-v2"}
	c := NewClient(WithLogger(logger.Discard()), WithKeySource(func(context.Context) (string, error) {
		n := calls.Add(1)
		return keys[n-1], nil
	}))

	for _, want := range keys {
		key, err := c.DefaultAPIKey(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, key)
	}
	assert.EqualValues(t, 3, calls.Load())
}

func TestDefaultAPIKeyRecoversAfterFailure(t *testing.T) {
	var calls atomic.Int32
	c := NewClient(WithLogger(logger.Discard()), WithKeySource(func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("vault: connection refused")
		}
		return "app-from-vault", nil
	}))

	_, err := c.key(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	key, err := c.key(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "app-from-vault", key)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDefaultAPIKeyIgnoresCallerCancellation(t *testing.T) {
	c := NewClient(WithLogger(logger.Discard()), WithKeySource(func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "app-from-vault", nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	key, err := c.key(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "app-from-vault", key)

	key, err = c.key(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "app-from-vault", key)
}
