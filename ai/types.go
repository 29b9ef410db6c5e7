package ai

import "fmt"

const (
	// DefaultBaseURL is the Next-AGI API root.
	DefaultBaseURL = "http://api.next-agi.com/v1"
	// DefaultModel is used when a completion request names none.
	DefaultModel = "claude-3-opus-20240229"
	// NoResponseAnswer replaces a missing answer in a non-streaming reply.
	NoResponseAnswer = "No response from API"
)

// DefaultSystemPrompt steers the model towards Markdown formatted answers.
const DefaultSystemPrompt = "You are a helpful AI assistant that provides concise and helpful responses. " +
	"Your responses should be well-structured, clear, and formatted in Markdown to enhance readability. " +
	"Use headers, lists, bold/italic text, and code blocks when appropriate."

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest drives StreamCompletion.
type CompletionRequest struct {
	Query          string
	Model          string
	ConversationID string
	APIKey         string
}

type completionBody struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	Stream         bool      `json:"stream"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// ChatMessageRequest is the application style request used by the
// websocket relay.
type ChatMessageRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
	Files          []any          `json:"files"`
}

// StreamEvent is one decoded "data:" line of an upstream event stream.
// Pointer fields distinguish an absent key from an empty value.
type StreamEvent struct {
	Event          string  `json:"event,omitempty"`
	Answer         *string `json:"answer,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Message        *struct {
		Content *string `json:"content,omitempty"`
	} `json:"message,omitempty"`
}

// Content returns message.content when the event carries one.
func (e StreamEvent) Content() (string, bool) {
	if e.Message == nil || e.Message.Content == nil {
		return "", false
	}
	return *e.Message.Content, true
}

// AnswerText returns the answer fragment when the event carries one.
func (e StreamEvent) AnswerText() (string, bool) {
	if e.Answer == nil {
		return "", false
	}
	return *e.Answer, true
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("upstream: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}
