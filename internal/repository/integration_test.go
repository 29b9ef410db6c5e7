package repository

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tirumala-karthikeya/chat-pro/pkg/config"
)

// These run only against real servers, e.g. in CI with service containers.

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	db, err := config.NewDB(context.Background(), dsn, config.DBOptions{Attempts: 1})
	require.NoError(t, err)
	require.NoError(t, db.Migrator().DropTable(&chatbotRow{}))

	store := NewPostgresStoreFromDB(db)
	store.dsn = dsn
	testStoreContract(t, store)
}

func TestMongoStoreContract(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	uri, _ = NormalizeMongoURI(uri, "chatpro_test")
	store := NewMongoStore(uri, "chatpro_test")
	require.NoError(t, store.Connect(context.Background()))
	coll, err := store.collection()
	require.NoError(t, err)
	require.NoError(t, coll.Drop(context.Background()))
	require.NoError(t, store.Close(context.Background()))

	testStoreContract(t, NewMongoStore(uri, "chatpro_test"))
}
