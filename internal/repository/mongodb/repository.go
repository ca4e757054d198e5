package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/chatrelay/internal/config"
)

// Repository owns the MongoDB connection and hands out the collection-backed
// stores used by the relay.
type Repository struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    config.MongoDBConfig
}

// NewRepository connects to MongoDB and verifies the connection.
func NewRepository(ctx context.Context, cfg config.MongoDBConfig) (*Repository, error) {
	clientOptions := options.Client().ApplyURI(cfg.URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Repository{
		client: client,
		db:     client.Database(cfg.DBName),
		cfg:    cfg,
	}, nil
}

// ChatBots returns the chatbot configuration store.
func (r *Repository) ChatBots() *ChatBotRepository {
	return NewChatBotRepository(r.db.Collection(r.cfg.ChatBotsCollection))
}

// Events returns the webhook event log.
func (r *Repository) Events() *EventLog {
	return NewEventLog(r.db.Collection(r.cfg.EventsCollection))
}

// Cursors returns the change stream resume token store.
func (r *Repository) Cursors() *CursorStore {
	return NewCursorStore(r.db.Collection(r.cfg.CursorsCollection))
}

// Messages returns the client chat message log.
func (r *Repository) Messages() *MessageLog {
	return NewMessageLog(r.db.Collection(r.cfg.MessagesCollection))
}

// Close closes the MongoDB connection.
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
