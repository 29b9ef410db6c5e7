package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
	"github.com/tirumala-karthikeya/chat-pro/shared/observability"
)

// KeySource resolves the default API key, for example from Vault.
type KeySource func(ctx context.Context) (string, error)

// Client talks to the Next-AGI compatible upstream.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	model      string
	prompt     string
	log        *logger.Logger
	tracer     trace.Tracer

	keySource KeySource
	keyMu     sync.Mutex
	lastKey   string
}

// keyLookupTimeout bounds one default key resolution.
const keyLookupTimeout = 10 * time.Second

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/") }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithAPIKey sets a fixed default API key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.keySource = func(context.Context) (string, error) { return key, nil }
	}
}

// WithKeySource resolves the default API key on every request that does
// not carry its own. src is expected to cache.
func WithKeySource(src KeySource) Option {
	return func(c *Client) { c.keySource = src }
}

// WithTimeout bounds StreamCompletion and UploadFile end to end.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(c *Client) { c.prompt = prompt }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient builds a client with Next-AGI defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		timeout:    60 * time.Second,
		model:      DefaultModel,
		prompt:     DefaultSystemPrompt,
		log:        logger.GetGlobal(),
		tracer:     otel.Tracer(observability.InstrumentationName + "/ai"),
		keySource:  func(context.Context) (string, error) { return "", nil },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the upstream root.
func (c *Client) BaseURL() string { return c.baseURL }

// DefaultAPIKey resolves the configured key. The lookup ignores the
// caller's cancellation so a dropped request does not fail it, and a
// failure only affects the current request.
func (c *Client) DefaultAPIKey(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), keyLookupTimeout)
	defer cancel()

	key, err := c.keySource(ctx)
	if err != nil {
		return "", err
	}

	c.keyMu.Lock()
	changed := key != c.lastKey
	c.lastKey = key
	c.keyMu.Unlock()
	if changed && key != "" {
		c.log.Info("upstream api key resolved", "api_key", logger.MaskSecret(key))
	}
	return key, nil
}

func (c *Client) key(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	key, err := c.DefaultAPIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve api key: %w", err)
	}
	if key == "" {
		return "", errors.New("API key not configured")
	}
	return key, nil
}

func (c *Client) newJSONRequest(ctx context.Context, path, apiKey string, body any) (*http.Request, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return req, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &HTTPStatusError{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.String(),
		Body:       strings.TrimSpace(string(body)),
	}
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// StreamCompletion opens a streaming chat completion. The whole exchange,
// including reading the stream, is bounded by the client timeout.
func (c *Client) StreamCompletion(ctx context.Context, in CompletionRequest) (*EventStream, error) {
	ctx, span := c.tracer.Start(ctx, "upstream.stream_completion")

	key, err := c.key(ctx, in.APIKey)
	if err != nil {
		failSpan(span, err)
		span.End()
		return nil, err
	}

	model := in.Model
	if model == "" {
		model = c.model
	}
	span.SetAttributes(attribute.String("upstream.model", model))
	body := completionBody{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: c.prompt},
			{Role: "user", Content: in.Query},
		},
		Stream:         true,
		ConversationID: in.ConversationID,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := c.newJSONRequest(ctx, "/chat-messages", key, body)
	if err != nil {
		cancel()
		failSpan(span, err)
		span.End()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		failSpan(span, err)
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusError(resp)
		resp.Body.Close()
		cancel()
		failSpan(span, err)
		span.End()
		return nil, err
	}

	return NewEventStream(resp.Body, func() { cancel(); span.End() }, c.log), nil
}

// ChatReply is the upstream answer to SendChatMessage: either an event
// stream or a single JSON document.
type ChatReply struct {
	Stream *EventStream
	body   io.ReadCloser
}

// Streaming reports whether the upstream answered with an event stream.
func (r *ChatReply) Streaming() bool { return r.Stream != nil }

// Answer decodes a non-streaming reply. A missing answer becomes
// NoResponseAnswer.
func (r *ChatReply) Answer() (string, error) {
	if r.body == nil {
		return "", errors.New("reply is streaming")
	}
	var doc struct {
		Answer *string `json:"answer"`
	}
	if err := json.NewDecoder(r.body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	if doc.Answer == nil {
		return NoResponseAnswer, nil
	}
	return *doc.Answer, nil
}

func (r *ChatReply) Close() error {
	if r.Stream != nil {
		return r.Stream.Close()
	}
	return r.body.Close()
}

// SendChatMessage posts an application chat message with response_mode
// streaming. apiKey overrides the default key when non-empty. No overall
// timeout applies beyond ctx.
func (c *Client) SendChatMessage(ctx context.Context, apiKey string, in ChatMessageRequest) (*ChatReply, error) {
	ctx, span := c.tracer.Start(ctx, "upstream.chat_message")
	defer span.End()

	key, err := c.key(ctx, apiKey)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	if in.Inputs == nil {
		in.Inputs = map[string]any{}
	}
	if in.Files == nil {
		in.Files = []any{}
	}
	if in.ResponseMode == "" {
		in.ResponseMode = "streaming"
	}

	req, err := c.newJSONRequest(ctx, "/chat-messages", key, in)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusError(resp)
		resp.Body.Close()
		failSpan(span, err)
		return nil, err
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return &ChatReply{Stream: NewEventStream(resp.Body, nil, c.log)}, nil
	}
	return &ChatReply{body: resp.Body}, nil
}

// UploadFile forwards a file to the upstream upload endpoint and returns
// the upstream JSON untouched.
func (c *Client) UploadFile(ctx context.Context, user, filename, contentType string, file io.Reader) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "upstream.upload_file")
	defer span.End()

	key, err := c.key(ctx, "")
	if err != nil {
		failSpan(span, err)
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := mw.WriteField("user", user); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusError(resp)
		failSpan(span, err)
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, errors.New("upstream returned invalid JSON")
	}
	return raw, nil
}
