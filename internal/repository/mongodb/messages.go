package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
)

// MessageLog records payloads sent by connected clients.
type MessageLog struct {
	coll *mongo.Collection
}

// NewMessageLog wraps the chat messages collection.
func NewMessageLog(coll *mongo.Collection) *MessageLog {
	return &MessageLog{coll: coll}
}

// Append inserts a chat message.
func (l *MessageLog) Append(ctx context.Context, msg models.ChatMessage) error {
	if _, err := l.coll.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}
