// Package repository holds the storage engines behind the chatbot gateway.
// Every engine speaks the same Store contract so the gateway can swap a
// primary backend for the local file without the callers noticing.
package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
)

var (
	// ErrNotFound means no record has the requested uniqueId.
	ErrNotFound = errors.New("chatbot not found")
	// ErrAlreadyExists means a record with the same uniqueId is stored.
	ErrAlreadyExists = errors.New("chatbot already exists")
	// ErrInvalid means the record cannot be stored as given.
	ErrInvalid = errors.New("invalid chatbot")
)

// Store is one storage engine.
type Store interface {
	Name() string
	// Connect performs the engine handshake: connectivity probe plus any
	// schema or index setup. Calling it again after success is a no-op.
	Connect(ctx context.Context) error
	List(ctx context.Context) ([]models.Chatbot, error)
	Get(ctx context.Context, uniqueID string) (*models.Chatbot, error)
	Create(ctx context.Context, bot *models.Chatbot) error
	Update(ctx context.Context, uniqueID string, patch models.ChatbotPatch) (*models.Chatbot, error)
	Delete(ctx context.Context, uniqueID string) error
	Stats(ctx context.Context) (Stats, error)
	Close(ctx context.Context) error
}

// Stats describes an engine for health reporting.
type Stats struct {
	Count    int64
	Version  string
	Location string
}

// IsDefinitive reports whether err is an answer from a reachable store
// rather than an availability problem.
func IsDefinitive(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrInvalid)
}

func validate(bot *models.Chatbot) error {
	if bot == nil || strings.TrimSpace(bot.UniqueID) == "" {
		return ErrInvalid
	}
	return nil
}

var credentials = regexp.MustCompile(`(://[^:/@]*:)[^@]*@`)

// RedactURL replaces the password in a connection URL with ***.
func RedactURL(raw string) string {
	return credentials.ReplaceAllString(raw, "${1}***@")
}
