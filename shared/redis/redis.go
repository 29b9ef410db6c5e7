package redis

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NewClient builds a go-redis client from a redis:// URL. A bare host:port
// is accepted too. password, when set, overrides the one in the URL.
func NewClient(rawURL, password string) (*redis.Client, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "redis://" + rawURL
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	return redis.NewClient(opts), nil
}
