package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
)

func TestToRowAppliesColumnDefaults(t *testing.T) {
	row, err := toRow(models.Chatbot{UniqueID: "u1", Name: "Plain"})
	require.NoError(t, err)

	assert.Equal(t, DefaultLogoColor, row.ChatLogoColor)
	assert.Equal(t, DefaultHeaderColor, row.ChatHeaderColor)
	assert.Equal(t, DefaultGradientStart, row.ChatBgGradientStart)
	assert.Equal(t, DefaultGradientEnd, row.ChatBgGradientEnd)
	assert.Equal(t, DefaultWelcomeText, row.WelcomeText)
	assert.Nil(t, row.ChatLogoImage)
	assert.JSONEq(t, `{"uniqueId":"u1","name":"Plain"}`, string(row.Data))
}

func TestFromRowPrefersData(t *testing.T) {
	row, err := toRow(models.Chatbot{UniqueID: "u1", Name: "From data", StaticImage: "s.png"})
	require.NoError(t, err)
	row.Name = "From column"

	bot := fromRow(row)
	assert.Equal(t, "From data", bot.Name)
	assert.Equal(t, "s.png", bot.StaticImage)
	assert.Empty(t, bot.ChatLogoColor)
}

func TestFromRowWithoutData(t *testing.T) {
	img := "logo.png"
	bot := fromRow(chatbotRow{UniqueID: "u2", Name: "Columns", ChatLogoImage: &img})

	assert.Equal(t, "Columns", bot.Name)
	assert.Equal(t, "logo.png", bot.ChatLogoImage)
	assert.Equal(t, DefaultLogoColor, bot.ChatLogoColor)
	assert.Equal(t, DefaultGradientEnd, bot.ChatBgGradientEnd)
	assert.Equal(t, DefaultWelcomeText, bot.WelcomeText)
}

func TestNormalizeMongoURI(t *testing.T) {
	tests := []struct {
		in        string
		want      string
		fixScheme bool
	}{
		{"mongodb://localhost:27017/chatbots", "mongodb://localhost:27017/chatbots", false},
		{"mongodb://localhost:27017", "mongodb://localhost:27017/bots", false},
		{"mongodb://localhost:27017/", "mongodb://localhost:27017/bots", false},
		{"mongodb+srv://u:p@cluster.example.net/?retryWrites=true", "mongodb+srv://u:p@cluster.example.net/bots?retryWrites=true", false},
		{"localhost:27017", "mongodb://localhost:27017/bots", true},
	}
	for _, tt := range tests {
		got, fixed := NormalizeMongoURI(tt.in, "bots")
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.fixScheme, fixed, tt.in)
	}
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "postgresql://bot:***@db:5432/chatbot_db?sslmode=disable",
		RedactURL("postgresql://bot:s3cret@db:5432/chatbot_db?sslmode=disable"))
	assert.Equal(t, "mongodb://a:***@h1:27017,h2:27017/x", RedactURL("mongodb://a:b@h1:27017,h2:27017/x"))
	assert.Equal(t, "redis://localhost:6379/0", RedactURL("redis://localhost:6379/0"))
}
