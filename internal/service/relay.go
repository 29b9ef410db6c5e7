package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tirumala-karthikeya/chat-pro/ai"
	"github.com/tirumala-karthikeya/chat-pro/internal/models"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
	"github.com/tirumala-karthikeya/chat-pro/shared/observability"
)

// Emitter delivers one event to a client. A returned error means the
// client is gone and the relay should stop.
type Emitter func(models.RelayEvent) error

// Upstream is the part of ai.Client the relay needs.
type Upstream interface {
	StreamCompletion(ctx context.Context, req ai.CompletionRequest) (*ai.EventStream, error)
	SendChatMessage(ctx context.Context, apiKey string, req ai.ChatMessageRequest) (*ai.ChatReply, error)
}

// RelayConfig tunes the websocket replay of upstream answers.
type RelayConfig struct {
	// ChunkWords is how many words go in one chunk of a non-streaming answer.
	ChunkWords int
	// Pacing is the minimum gap between chunks. Zero sends as fast as the
	// client drains them.
	Pacing time.Duration
}

// ChatRelay forwards chat requests upstream and turns the answers into
// client events.
type ChatRelay struct {
	upstream Upstream
	cfg      RelayConfig
	log      *logger.Logger
	metrics  *observability.Metrics
}

func NewChatRelay(upstream Upstream, cfg RelayConfig, log *logger.Logger, metrics *observability.Metrics) *ChatRelay {
	if cfg.ChunkWords < 1 {
		cfg.ChunkWords = 2
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &ChatRelay{upstream: upstream, cfg: cfg, log: log, metrics: metrics}
}

func (r *ChatRelay) counted(ctx context.Context, transport string, emit Emitter) Emitter {
	return func(ev models.RelayEvent) error {
		r.metrics.RelayEvent(ctx, transport, ev.Type)
		return emit(ev)
	}
}

// StreamChat relays one POST /chat request: start, fragments, then
// complete, or an error event. The returned error is only ever the
// emitter's.
func (r *ChatRelay) StreamChat(ctx context.Context, req models.ChatRequest, emit Emitter) error {
	emit = r.counted(ctx, "sse", emit)
	if err := emit(models.StartEvent()); err != nil {
		return err
	}

	stream, err := r.upstream.StreamCompletion(ctx, ai.CompletionRequest{
		Query:          req.Query,
		Model:          req.Model,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		r.log.LogError(err, "upstream stream failed")
		return emit(models.StreamErrorEvent(err.Error()))
	}
	defer stream.Close()

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	var answer strings.Builder
	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.log.LogError(err, "upstream stream broke")
			return emit(models.StreamErrorEvent(err.Error()))
		}
		if content, ok := ev.Content(); ok {
			answer.WriteString(content)
			if err := emit(models.FragmentEvent(content, conversationID)); err != nil {
				return err
			}
		}
		if ev.ConversationID != "" {
			conversationID = ev.ConversationID
		}
	}
	return emit(models.CompleteEvent(answer.String(), conversationID))
}

// SocketSession is the per connection state of the websocket relay.
type SocketSession struct {
	ClientID string
	apiKey   string
}

// APIKey returns the key supplied by the client, if any.
func (s *SocketSession) APIKey() string { return s.apiKey }

type socketMessage struct {
	APIKey         *string        `json:"api_key"`
	Query          *string        `json:"query"`
	ConversationID *string        `json:"conversation_id"`
	Inputs         map[string]any `json:"inputs"`
	Files          []any          `json:"files"`
}

// HandleSocketMessage processes one inbound websocket frame.
func (r *ChatRelay) HandleSocketMessage(ctx context.Context, sess *SocketSession, raw []byte, emit Emitter) error {
	emit = r.counted(ctx, "ws", emit)
	log := r.log.WithClientID(sess.ClientID)

	var msg socketMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return emit(models.SocketErrorEvent("Invalid JSON format"))
	}
	if msg.APIKey != nil && *msg.APIKey != "" {
		sess.apiKey = *msg.APIKey
		log.Info("using api key from message", "api_key", logger.MaskSecret(sess.apiKey))
	}
	if msg.Query == nil {
		return nil
	}

	conversationID := ""
	if msg.ConversationID != nil {
		conversationID = *msg.ConversationID
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	reply, err := r.upstream.SendChatMessage(ctx, sess.apiKey, ai.ChatMessageRequest{
		Inputs:         msg.Inputs,
		Query:          *msg.Query,
		ResponseMode:   "streaming",
		ConversationID: conversationID,
		User:           sess.ClientID,
		Files:          msg.Files,
	})
	if err != nil {
		var statusErr *ai.HTTPStatusError
		if errors.As(err, &statusErr) {
			log.Warn("upstream rejected chat message", "status", statusErr.StatusCode)
			return emit(models.SocketErrorEvent(fmt.Sprintf("API error: Status code %d", statusErr.StatusCode)))
		}
		log.LogError(err, "upstream chat message failed")
		return emit(models.ChunkEvent("", conversationID))
	}
	defer reply.Close()

	if reply.Streaming() {
		return r.relayStream(ctx, reply.Stream, conversationID, emit, log)
	}

	answer, err := reply.Answer()
	if err != nil {
		log.LogError(err, "failed to read upstream answer")
		return emit(models.SocketErrorEvent("Error processing response"))
	}
	for _, chunk := range ChunkWords(answer, r.cfg.ChunkWords) {
		if err := emit(models.ChunkEvent(chunk, conversationID)); err != nil {
			return err
		}
		if err := r.pace(ctx); err != nil {
			return err
		}
	}
	return emit(models.EndEvent(conversationID))
}

func (r *ChatRelay) relayStream(ctx context.Context, stream *ai.EventStream, conversationID string, emit Emitter, log *logger.Logger) error {
	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return emit(models.EndEvent(conversationID))
		}
		if err != nil {
			log.LogError(err, "upstream stream broke")
			return emit(models.ChunkEvent("", conversationID))
		}
		if ev.ConversationID != "" {
			conversationID = ev.ConversationID
		}
		answer, ok := ev.AnswerText()
		if !ok {
			continue
		}
		if err := emit(models.ChunkEvent(answer, conversationID)); err != nil {
			return err
		}
		if err := r.pace(ctx); err != nil {
			return err
		}
	}
}

func (r *ChatRelay) pace(ctx context.Context) error {
	if r.cfg.Pacing <= 0 {
		return nil
	}
	t := time.NewTimer(r.cfg.Pacing)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ChunkWords splits text on whitespace into groups of n words.
func ChunkWords(text string, n int) []string {
	if n < 1 {
		n = 1
	}
	words := strings.Fields(text)
	chunks := make([]string, 0, (len(words)+n-1)/n)
	for i := 0; i < len(words); i += n {
		end := i + n
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}
