package models

import "time"

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

type Role string

const (
	RolePlayer     Role = "player"
	RoleGameMaster Role = "gm"
	RoleHelper     Role = "helper"
)

// Presence is a user's live status as pushed by the server.
type Presence struct {
	UserID   string         `json:"id"`
	Username string         `json:"username"`
	Status   PresenceStatus `json:"status"`
	IsTyping bool           `json:"isTyping"`
	LastSeen *time.Time     `json:"lastSeen,omitempty"`
	Role     Role           `json:"role"`
}

// TypingSignal reports that a user started or stopped typing. ChannelID is
// empty when the server scopes the signal to the connection's channel.
type TypingSignal struct {
	ChannelID string `json:"channelId,omitempty"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	IsTyping  bool   `json:"isTyping"`
}
