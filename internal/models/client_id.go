package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const placeholderPrefix = "local:"

// NewClientID returns a correlation token for an outbound send. ObjectIDs
// embed a timestamp and a per-process counter, so tokens stay unique under
// rapid repeated sends.
func NewClientID() string {
	return primitive.NewObjectID().Hex()
}

// PlaceholderID is the message id used for an optimistic placeholder until
// the server assigns one.
func PlaceholderID(clientID string) string {
	return placeholderPrefix + clientID
}
