package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

const kvResponse = `{
  "data": {
    "data": {"NEXT_AGI_API_KEY": "app-from-vault"},
    "metadata": {"created_time": "2024-01-01T00:00:00Z", "deletion_time": "", "destroyed": false, "version": 1}
  }
}`

func TestVaultManagerReadsKV(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/v1/secret/data/chat-pro", r.URL.Path)
		assert.Equal(t, "root", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(kvResponse))
	}))
	defer srv.Close()

	m, err := NewVaultManager(VaultConfig{Enabled: true, Address: srv.URL, Token: "root"}, logger.Discard())
	require.NoError(t, err)

	v, err := m.GetSecret(context.Background(), "NEXT_AGI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "app-from-vault", v)

	_, err = m.GetSecret(context.Background(), "NEXT_AGI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestVaultManagerFallsBackToEnvironment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(kvResponse))
	}))
	defer srv.Close()
	t.Setenv("OTHER_KEY", "from-env")

	m, err := NewVaultManager(VaultConfig{Enabled: true, Address: srv.URL, Token: "root"}, logger.Discard())
	require.NoError(t, err)

	v, err := m.GetSecret(context.Background(), "other-key")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
}

func TestVaultDisabledUsesEnvironment(t *testing.T) {
	t.Setenv("NEXT_AGI_API_KEY", "app-env")
	m, err := NewVaultManager(VaultConfig{}, logger.Discard())
	require.NoError(t, err)

	v, err := m.GetSecret(context.Background(), "NEXT_AGI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "app-env", v)

	_, err = m.GetSecret(context.Background(), "MISSING_FOR_SURE_42")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestCacheExpires(t *testing.T) {
	t.Setenv("ROTATING", "one")
	m, err := NewVaultManager(VaultConfig{CacheTTL: time.Minute}, logger.Discard())
	require.NoError(t, err)
	now := time.Now()
	m.cache.WithClock(func() time.Time { return now })

	v, _ := m.GetSecret(context.Background(), "ROTATING")
	assert.Equal(t, "one", v)

	t.Setenv("ROTATING", "two")
	v, _ = m.GetSecret(context.Background(), "ROTATING")
	assert.Equal(t, "one", v)

	now = now.Add(2 * time.Minute)
	v, _ = m.GetSecret(context.Background(), "ROTATING")
	assert.Equal(t, "two", v)
}

func TestVaultEnabledNeedsAddressAndToken(t *testing.T) {
	_, err := NewVaultManager(VaultConfig{Enabled: true, Token: "t"}, logger.Discard())
	assert.ErrorIs(t, err, ErrNoVaultAddress)
	_, err = NewVaultManager(VaultConfig{Enabled: true, Address: "http://x"}, logger.Discard())
	assert.ErrorIs(t, err, ErrNoVaultToken)
}

func TestKeySourceFallback(t *testing.T) {
	m, err := NewVaultManager(VaultConfig{}, logger.Discard())
	require.NoError(t, err)
	src := KeySource(m, "MISSING_FOR_SURE_43", "static")
	v, err := src(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static", v)
}
