package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
)

func strPtr(s string) *string { return &s }

func sampleBot(id string) models.Chatbot {
	return models.Chatbot{
		ID:                  "client-" + id,
		UniqueID:            id,
		Name:                "Bot " + id,
		ChatLogoColor:       "#123456",
		ChatHeaderColor:     "#654321",
		ChatBgGradientStart: "#eeeeee",
		ChatBgGradientEnd:   "#dddddd",
		WelcomeText:         "Hello there",
		APIKey:              "app-key-" + id,
	}
}

// testStoreContract exercises the behaviour every engine must share.
func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Connect(ctx))

	t.Run("empty list", func(t *testing.T) {
		bots, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, bots)
	})

	t.Run("create and get round trip", func(t *testing.T) {
		bot := sampleBot("alpha")
		require.NoError(t, store.Create(ctx, &bot))

		got, err := store.Get(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, bot, *got)
	})

	t.Run("duplicate create rejected", func(t *testing.T) {
		bot := sampleBot("alpha")
		bot.Name = "Impostor"
		assert.ErrorIs(t, store.Create(ctx, &bot), ErrAlreadyExists)

		got, err := store.Get(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, "Bot alpha", got.Name)
	})

	t.Run("missing uniqueId rejected", func(t *testing.T) {
		assert.ErrorIs(t, store.Create(ctx, &models.Chatbot{Name: "nameless"}), ErrInvalid)
	})

	t.Run("list is stable", func(t *testing.T) {
		beta := sampleBot("beta")
		require.NoError(t, store.Create(ctx, &beta))

		first, err := store.List(ctx)
		require.NoError(t, err)
		second, err := store.List(ctx)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, first, 2)
	})

	t.Run("update merges present fields", func(t *testing.T) {
		updated, err := store.Update(ctx, "alpha", models.ChatbotPatch{
			Name:         strPtr("Alpha Prime"),
			AnalyticsURL: strPtr("https://stats.example.com"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Alpha Prime", updated.Name)

		got, err := store.Get(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, "Alpha Prime", got.Name)
		assert.Equal(t, "https://stats.example.com", got.AnalyticsURL)
		assert.Equal(t, "Hello there", got.WelcomeText)
		assert.Equal(t, "#123456", got.ChatLogoColor)
	})

	t.Run("update missing", func(t *testing.T) {
		_, err := store.Update(ctx, "ghost", models.ChatbotPatch{Name: strPtr("x")})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "alpha"))

		_, err := store.Get(ctx, "alpha")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "alpha"), ErrNotFound)

		bots, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, bots, 1)
		assert.Equal(t, "beta", bots[0].UniqueID)
	})

	t.Run("stats", func(t *testing.T) {
		st, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, st.Count)
		assert.NotEmpty(t, st.Version)
	})

	require.NoError(t, store.Close(ctx))
}
