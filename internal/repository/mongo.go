package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
)

const (
	mongoCollection    = "chatbots"
	mongoSelectTimeout = 10 * time.Second
)

// NormalizeMongoURI appends database when the URI names none and prepends
// the mongodb:// scheme when it is missing. fixedScheme reports the latter
// so callers can warn about it.
func NormalizeMongoURI(uri, database string) (normalized string, fixedScheme bool) {
	rest := uri
	if i := strings.Index(uri, "://"); i >= 0 {
		rest = uri[i+3:]
	}

	switch slash := strings.Index(rest, "/"); {
	case slash < 0:
		if q := strings.Index(uri, "?"); q >= 0 {
			uri = uri[:q] + "/" + database + uri[q:]
		} else {
			uri = uri + "/" + database
		}
	case strings.HasSuffix(uri, "/"):
		uri += database
	case strings.HasPrefix(rest[slash:], "/?"):
		i := strings.Index(uri, "/?")
		uri = uri[:i+1] + database + uri[i+1:]
	}

	if !strings.HasPrefix(uri, "mongodb") {
		return "mongodb://" + uri, true
	}
	return uri, false
}

// MongoStore is the document engine. One document per chatbot, unique
// index on uniqueId.
type MongoStore struct {
	uri      string
	database string

	mu     sync.Mutex
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore expects an already normalized URI.
func NewMongoStore(uri, database string) *MongoStore {
	return &MongoStore{uri: uri, database: database}
}

func (s *MongoStore) Name() string { return "mongo" }

func (s *MongoStore) collection() (*mongo.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll == nil {
		return nil, errors.New("mongo: not connected")
	}
	return s.coll, nil
}

func (s *MongoStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		opts := options.Client().ApplyURI(s.uri).SetServerSelectionTimeout(mongoSelectTimeout)
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return err
		}
		s.client = client
	}
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return err
	}

	coll := s.client.Database(s.database).Collection(mongoCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "uniqueId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	s.coll = coll
	return nil
}

var withoutObjectID = bson.D{{Key: "_id", Value: 0}}

func (s *MongoStore) List(ctx context.Context) ([]models.Chatbot, error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetProjection(withoutObjectID))
	if err != nil {
		return nil, err
	}
	bots := []models.Chatbot{}
	if err := cur.All(ctx, &bots); err != nil {
		return nil, err
	}
	return bots, nil
}

func (s *MongoStore) Get(ctx context.Context, uniqueID string) (*models.Chatbot, error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}
	var bot models.Chatbot
	err = coll.FindOne(ctx, bson.M{"uniqueId": uniqueID}, options.FindOne().SetProjection(withoutObjectID)).Decode(&bot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

func (s *MongoStore) Create(ctx context.Context, bot *models.Chatbot) error {
	if err := validate(bot); err != nil {
		return err
	}
	coll, err := s.collection()
	if err != nil {
		return err
	}
	_, err = coll.InsertOne(ctx, bot)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *MongoStore) Update(ctx context.Context, uniqueID string, patch models.ChatbotPatch) (*models.Chatbot, error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}

	set := bson.M{}
	for k, v := range patch.Set() {
		set[k] = v
	}
	if len(set) == 0 {
		return s.Get(ctx, uniqueID)
	}

	var bot models.Chatbot
	err = coll.FindOneAndUpdate(ctx,
		bson.M{"uniqueId": uniqueID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(withoutObjectID),
	).Decode(&bot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

func (s *MongoStore) Delete(ctx context.Context, uniqueID string) error {
	coll, err := s.collection()
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"uniqueId": uniqueID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Stats(ctx context.Context) (Stats, error) {
	coll, err := s.collection()
	if err != nil {
		return Stats{}, err
	}
	count, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return Stats{}, err
	}
	var info struct {
		Version string `bson:"version"`
	}
	if err := coll.Database().Client().Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&info); err != nil {
		return Stats{}, err
	}
	return Stats{Count: count, Version: "MongoDB " + info.Version, Location: RedactURL(s.uri)}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client, s.coll = nil, nil
	return err
}
