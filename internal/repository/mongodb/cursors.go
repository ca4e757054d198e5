package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CursorStore persists change stream resume tokens by subscription name.
type CursorStore struct {
	coll *mongo.Collection
}

// NewCursorStore wraps the cursors collection.
func NewCursorStore(coll *mongo.Collection) *CursorStore {
	return &CursorStore{coll: coll}
}

type cursorDocument struct {
	Name      string    `bson:"_id"`
	Token     bson.Raw  `bson:"token"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Load returns the last saved token, or nil when none was saved yet.
func (s *CursorStore) Load(ctx context.Context, name string) (bson.Raw, error) {
	var doc cursorDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: name}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cursor %s: %w", name, err)
	}
	return doc.Token, nil
}

// Save upserts the token for a subscription.
func (s *CursorStore) Save(ctx context.Context, name string, token bson.Raw) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "token", Value: token},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}}

	_, err := s.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: name}}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", name, err)
	}
	return nil
}
