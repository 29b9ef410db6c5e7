package models

// FileRef describes an attachment passed through to the upstream as is.
type FileRef struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url,omitempty"`
	Data           string `json:"data,omitempty"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query          string         `json:"query" binding:"required"`
	Inputs         map[string]any `json:"inputs"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
	Files          []FileRef      `json:"files"`
	Model          string         `json:"model"`
}

// DefaultChatUser is used when a chat request names no user.
const DefaultChatUser = "user123"

// Relay event types.
const (
	EventStart    = "start"
	EventFragment = "fragment"
	EventComplete = "complete"
	EventError    = "error"
	EventChunk    = "chunk"
	EventEnd      = "end"
)

// RelayEvent is one message sent to a chat client, over SSE or a
// websocket. Nil fields are omitted; non-nil ones are sent even when empty.
type RelayEvent struct {
	Type           string  `json:"type"`
	Content        *string `json:"content,omitempty"`
	Answer         *string `json:"answer,omitempty"`
	ConversationID *string `json:"conversation_id,omitempty"`
	Error          *string `json:"error,omitempty"`
}

func ptr(s string) *string { return &s }

func StartEvent() RelayEvent { return RelayEvent{Type: EventStart} }

func FragmentEvent(content, conversationID string) RelayEvent {
	return RelayEvent{Type: EventFragment, Content: ptr(content), ConversationID: ptr(conversationID)}
}

func CompleteEvent(answer, conversationID string) RelayEvent {
	return RelayEvent{Type: EventComplete, Answer: ptr(answer), ConversationID: ptr(conversationID)}
}

// StreamErrorEvent is the SSE error shape: {"type":"error","error":...}.
func StreamErrorEvent(msg string) RelayEvent {
	return RelayEvent{Type: EventError, Error: ptr(msg)}
}

func ChunkEvent(content, conversationID string) RelayEvent {
	return RelayEvent{Type: EventChunk, Content: ptr(content), ConversationID: ptr(conversationID)}
}

func EndEvent(conversationID string) RelayEvent {
	return RelayEvent{Type: EventEnd, ConversationID: ptr(conversationID)}
}

// SocketErrorEvent is the websocket error shape: {"type":"error","content":...}.
func SocketErrorEvent(msg string) RelayEvent {
	return RelayEvent{Type: EventError, Content: ptr(msg)}
}
