package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirumala-karthikeya/chat-pro/ai"
	"github.com/tirumala-karthikeya/chat-pro/internal/models"
	"github.com/tirumala-karthikeya/chat-pro/internal/service"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	hub *Hub
	url string
}

func newTestServer(t *testing.T, upstream http.HandlerFunc) *testServer {
	t.Helper()

	up := httptest.NewServer(upstream)
	t.Cleanup(up.Close)
	client := ai.NewClient(ai.WithBaseURL(up.URL), ai.WithAPIKey("k"), ai.WithLogger(logger.Discard()))
	relay := service.NewChatRelay(client, service.RelayConfig{ChunkWords: 2}, logger.Discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(logger.Discard(), nil)
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws/:client_id", NewHandler(ctx, hub, relay, 4).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{hub: hub, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (s *testServer) dial(t *testing.T, clientID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url+"/ws/"+clientID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.RelayEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev models.RelayEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestSocketRelaysChunks(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"answer":"a b c d e"}`)
	})
	conn := s.dial(t, "client-1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"query":"hi","conversation_id":"c1"}`)))

	var got []string
	for {
		ev := readEvent(t, conn)
		if ev.Type == models.EventEnd {
			assert.Equal(t, "c1", *ev.ConversationID)
			break
		}
		require.Equal(t, models.EventChunk, ev.Type)
		got = append(got, *ev.Content)
	}
	assert.Equal(t, []string{"a b", "c d", "e"}, got)
}

func TestSocketInvalidJSONKeepsConnection(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"answer":"ok"}`)
	})
	conn := s.dial(t, "client-2")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`nope`)))
	ev := readEvent(t, conn)
	assert.Equal(t, models.EventError, ev.Type)
	assert.Equal(t, "Invalid JSON format", *ev.Content)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"query":"again"}`)))
	ev = readEvent(t, conn)
	assert.Equal(t, models.EventChunk, ev.Type)
	assert.Equal(t, "ok", *ev.Content)
}

func TestSocketSameIDReplacesOlderClient(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"answer":"ok"}`)
	})
	first := s.dial(t, "dup")
	require.Eventually(t, func() bool { return s.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	second := s.dial(t, "dup")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := first.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte(`{"query":"q"}`)))
	ev := readEvent(t, second)
	assert.Equal(t, "ok", *ev.Content)
	assert.Equal(t, 1, s.hub.Count())
}

func registered(h *Hub, id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

func TestHubUnregisterOnDisconnect(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	conn := s.dial(t, "gone")
	require.Eventually(t, func() bool { return s.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return s.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	_, ok := registered(s.hub, "gone")
	assert.False(t, ok)
}

func TestEmitAfterCloseFails(t *testing.T) {
	hub := NewHub(logger.Discard(), nil)
	c := newClient("x", nil, hub, 1)
	emit := c.Emit(context.Background())

	require.NoError(t, emit(models.EndEvent("a")))
	c.Close()
	c.Close()
	err := emit(models.EndEvent("b"))
	assert.ErrorIs(t, err, ErrClientClosed)

	var ev models.RelayEvent
	require.NoError(t, json.Unmarshal(<-c.send, &ev))
	assert.Equal(t, "a", *ev.ConversationID)
}
