package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
)

// ErrNotFound is returned when no document matches a lookup.
var ErrNotFound = errors.New("document not found")

// ChatBotRepository reads chatbot routing configuration.
type ChatBotRepository struct {
	coll *mongo.Collection
}

// NewChatBotRepository wraps the chatbots collection.
func NewChatBotRepository(coll *mongo.Collection) *ChatBotRepository {
	return &ChatBotRepository{coll: coll}
}

// FindByPhoneID returns the live chatbot bound to a provider phone number id.
// Deleted and disabled bots are ignored.
func (r *ChatBotRepository) FindByPhoneID(ctx context.Context, phoneID string) (*models.ChatBot, error) {
	filter := bson.D{
		{Key: "phoneId", Value: phoneID},
		{Key: "deleted", Value: bson.D{{Key: "$ne", Value: true}}},
		{Key: "disabled", Value: bson.D{{Key: "$ne", Value: true}}},
	}

	var bot models.ChatBot
	if err := r.coll.FindOne(ctx, filter).Decode(&bot); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find chatbot by phone id: %w", err)
	}
	return &bot, nil
}
