package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExternalEvent is a webhook envelope as stored in the event log.
type ExternalEvent struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	WebhookPayload `bson:",inline"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt" json:"updatedAt"`
}
