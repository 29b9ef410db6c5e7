package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
)

// RedisStore is the key-value engine: one hash, field = uniqueId,
// value = JSON encoded chatbot.
type RedisStore struct {
	client   *redis.Client
	key      string
	location string
}

// NewRedisStore uses key as the hash name. location is only reported in
// health output.
func NewRedisStore(client *redis.Client, key, location string) *RedisStore {
	if key == "" {
		key = "chatbots"
	}
	return &RedisStore{client: client, key: key, location: location}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Connect(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeBot(raw string) (models.Chatbot, error) {
	var bot models.Chatbot
	err := json.Unmarshal([]byte(raw), &bot)
	return bot, err
}

func (s *RedisStore) List(ctx context.Context) ([]models.Chatbot, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bots := make([]models.Chatbot, 0, len(ids))
	for _, id := range ids {
		bot, err := decodeBot(all[id])
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, nil
}

func (s *RedisStore) Get(ctx context.Context, uniqueID string) (*models.Chatbot, error) {
	raw, err := s.client.HGet(ctx, s.key, uniqueID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	bot, err := decodeBot(raw)
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

func (s *RedisStore) Create(ctx context.Context, bot *models.Chatbot) error {
	if err := validate(bot); err != nil {
		return err
	}
	raw, err := json.Marshal(bot)
	if err != nil {
		return err
	}
	ok, err := s.client.HSetNX(ctx, s.key, bot.UniqueID, raw).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// Update runs inside WATCH so a concurrent writer forces a retry instead
// of a lost update.
func (s *RedisStore) Update(ctx context.Context, uniqueID string, patch models.ChatbotPatch) (*models.Chatbot, error) {
	var merged models.Chatbot
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, s.key, uniqueID).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		merged, err = decodeBot(raw)
		if err != nil {
			return err
		}
		patch.Apply(&merged)
		next, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.key, uniqueID, next)
			return nil
		})
		return err
	}

	const maxRetries = 3
	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.client.Watch(ctx, txf, s.key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

func (s *RedisStore) Delete(ctx context.Context, uniqueID string) error {
	n, err := s.client.HDel(ctx, s.key, uniqueID).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	n, err := s.client.HLen(ctx, s.key).Result()
	if err != nil {
		return Stats{}, err
	}
	version := "redis"
	if info, err := s.client.InfoMap(ctx, "server").Result(); err == nil {
		if v := info["Server"]["redis_version"]; v != "" {
			version = "Redis " + v
		}
	}
	return Stats{Count: n, Version: version, Location: RedactURL(s.location)}, nil
}

func (s *RedisStore) Close(ctx context.Context) error {
	return s.client.Close()
}
