package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
)

// DefaultLocalPath is where the fallback file lives unless configured.
const DefaultLocalPath = "local_storage/chatbots.json"

type localDocument struct {
	Chatbots []models.Chatbot `json:"chatbots"`
}

// LocalStore keeps all chatbots in one JSON document on disk. Every
// mutation rewrites the whole file through a temp file and a rename.
type LocalStore struct {
	path string
	mu   sync.Mutex
}

func NewLocalStore(path string) *LocalStore {
	if path == "" {
		path = DefaultLocalPath
	}
	return &LocalStore{path: path}
}

func (s *LocalStore) Name() string { return "local" }

// Path returns the backing file.
func (s *LocalStore) Path() string { return s.path }

// Connect creates an empty document when the file does not exist yet.
func (s *LocalStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return s.write(localDocument{Chatbots: []models.Chatbot{}})
}

func (s *LocalStore) read() (localDocument, error) {
	var doc localDocument
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return localDocument{Chatbots: []models.Chatbot{}}, nil
		}
		return doc, err
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if doc.Chatbots == nil {
		doc.Chatbots = []models.Chatbot{}
	}
	return doc, nil
}

func (s *LocalStore) write(doc localDocument) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func indexOf(bots []models.Chatbot, uniqueID string) int {
	for i := range bots {
		if bots[i].UniqueID == uniqueID {
			return i
		}
	}
	return -1
}

func (s *LocalStore) List(ctx context.Context) ([]models.Chatbot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Chatbots, nil
}

func (s *LocalStore) Get(ctx context.Context, uniqueID string) (*models.Chatbot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	i := indexOf(doc.Chatbots, uniqueID)
	if i < 0 {
		return nil, ErrNotFound
	}
	bot := doc.Chatbots[i]
	return &bot, nil
}

func (s *LocalStore) Create(ctx context.Context, bot *models.Chatbot) error {
	if err := validate(bot); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if indexOf(doc.Chatbots, bot.UniqueID) >= 0 {
		return ErrAlreadyExists
	}
	doc.Chatbots = append(doc.Chatbots, *bot)
	return s.write(doc)
}

func (s *LocalStore) Update(ctx context.Context, uniqueID string, patch models.ChatbotPatch) (*models.Chatbot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	i := indexOf(doc.Chatbots, uniqueID)
	if i < 0 {
		return nil, ErrNotFound
	}
	patch.Apply(&doc.Chatbots[i])
	if err := s.write(doc); err != nil {
		return nil, err
	}
	bot := doc.Chatbots[i]
	return &bot, nil
}

func (s *LocalStore) Delete(ctx context.Context, uniqueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	i := indexOf(doc.Chatbots, uniqueID)
	if i < 0 {
		return ErrNotFound
	}
	doc.Chatbots = append(doc.Chatbots[:i], doc.Chatbots[i+1:]...)
	return s.write(doc)
}

func (s *LocalStore) Stats(ctx context.Context) (Stats, error) {
	bots, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Count: int64(len(bots)), Version: "N/A", Location: s.path}, nil
}

func (s *LocalStore) Close(ctx context.Context) error { return nil }
