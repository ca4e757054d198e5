package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatBot is the per-line routing configuration keyed by the provider phone number id.
// Only the fields the relay reads are mapped; the rest of the document is ignored.
type ChatBot struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Phone       string             `bson:"phone" json:"phone"`
	PhoneID     string             `bson:"phoneId" json:"phoneId"`
	WhatsAppKey string             `bson:"whatsAppKey" json:"-"`
	Disabled    bool               `bson:"disabled" json:"disabled"`
	Deleted     bool               `bson:"deleted" json:"deleted"`
	CreatedAt   time.Time          `bson:"createdAt,omitempty" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt,omitempty" json:"updatedAt"`
}

// HasToken reports whether the bot can authenticate against the provider.
func (b *ChatBot) HasToken() bool {
	return b != nil && strings.TrimSpace(b.WhatsAppKey) != ""
}
