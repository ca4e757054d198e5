package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
)

// ChangeStream iterates over events inserted into the event log.
type ChangeStream interface {
	Next(ctx context.Context) bool
	Event() (models.ExternalEvent, error)
	ResumeToken() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

// EventLog is the append-only store of inbound webhook envelopes.
type EventLog struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewEventLog wraps the external events collection.
func NewEventLog(coll *mongo.Collection) *EventLog {
	return &EventLog{coll: coll, now: time.Now}
}

// Append stores a raw webhook envelope as received and returns its document
// id. Fields the relay does not model are kept.
func (l *EventLog) Append(ctx context.Context, raw []byte) (string, error) {
	doc, err := eventDocument(raw, l.now().UTC())
	if err != nil {
		return "", err
	}

	res, err := l.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert external event: %w", err)
	}

	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		return id.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

// eventDocument converts a JSON envelope into the stored document. Reserved
// keys supplied by the sender are replaced.
func eventDocument(raw []byte, now time.Time) (bson.D, error) {
	var body bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &body); err != nil {
		return nil, fmt.Errorf("convert webhook payload: %w", err)
	}

	doc := make(bson.D, 0, len(body)+2)
	for _, elem := range body {
		switch elem.Key {
		case "_id", "createdAt", "updatedAt":
			continue
		}
		doc = append(doc, elem)
	}
	return append(doc,
		bson.E{Key: "createdAt", Value: now},
		bson.E{Key: "updatedAt", Value: now},
	), nil
}

// Watch opens a change stream over inserts. A nil resumeAfter starts from now.
func (l *EventLog) Watch(ctx context.Context, resumeAfter bson.Raw) (ChangeStream, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}

	opts := options.ChangeStream()
	if len(resumeAfter) > 0 {
		opts.SetResumeAfter(resumeAfter)
	}

	stream, err := l.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("watch external events: %w", err)
	}
	return &changeStream{stream: stream}, nil
}

type changeEvent struct {
	OperationType string               `bson:"operationType"`
	FullDocument  models.ExternalEvent `bson:"fullDocument"`
}

type changeStream struct {
	stream *mongo.ChangeStream
}

func (s *changeStream) Next(ctx context.Context) bool { return s.stream.Next(ctx) }

func (s *changeStream) Event() (models.ExternalEvent, error) {
	var ev changeEvent
	if err := s.stream.Decode(&ev); err != nil {
		return models.ExternalEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	return ev.FullDocument, nil
}

func (s *changeStream) ResumeToken() bson.Raw { return s.stream.ResumeToken() }

func (s *changeStream) Err() error { return s.stream.Err() }

func (s *changeStream) Close(ctx context.Context) error { return s.stream.Close(ctx) }
