package models

import "time"

// ChatMessage is an append-only record of a payload a connected client sent.
type ChatMessage struct {
	Content   string    `bson:"content" json:"content"`
	UserID    string    `bson:"userId" json:"userId"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
