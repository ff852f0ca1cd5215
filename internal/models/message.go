package models

import (
	"time"

	"github.com/spf13/cast"
)

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeSystem   MessageType = "system"
	MessageTypeDiceRoll MessageType = "dice_roll"
	MessageTypeOOC      MessageType = "ooc"
	MessageTypeWhisper  MessageType = "whisper"
	MessageTypeAction   MessageType = "action"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeSystem, MessageTypeDiceRoll,
		MessageTypeOOC, MessageTypeWhisper, MessageTypeAction:
		return true
	}
	return false
}

// DeliveryStatus is local bookkeeping for optimistic sends. Messages that
// came from the server are always DeliveryStatusSent.
type DeliveryStatus string

const (
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

type Message struct {
	ID        string         `json:"id"`
	ChannelID string         `json:"channelId"`
	UserID    string         `json:"userId"`
	Username  string         `json:"username"`
	Content   string         `json:"content"`
	Type      MessageType    `json:"type"`
	CreatedAt time.Time      `json:"timestamp"`
	EditedAt  *time.Time     `json:"editedAt,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Reactions []Reaction     `json:"reactions,omitempty"`
	// ClientID is the correlation token of the send that produced this
	// message, echoed back by the server.
	ClientID string         `json:"clientId,omitempty"`
	Status   DeliveryStatus `json:"status,omitempty"`
}

func (m *Message) IsPlaceholder() bool {
	return m.Status == DeliveryStatusPending || m.Status == DeliveryStatusFailed
}

// Before reports whether m sorts ahead of o: by creation time, then id.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

type Reaction struct {
	Emoji     string    `json:"emoji"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"timestamp"`
}

type DiceRoll struct {
	Formula  string `json:"formula"`
	Results  []int  `json:"results"`
	Total    int    `json:"total"`
	Critical bool   `json:"critical"`
}

// DiceRoll decodes the dice-roll metadata of a dice_roll message. Numbers
// arrive as JSON floats or strings depending on the producer.
func (m *Message) DiceRoll() (*DiceRoll, bool) {
	if m.Type != MessageTypeDiceRoll || m.Metadata == nil {
		return nil, false
	}
	formula, err := cast.ToStringE(m.Metadata["formula"])
	if err != nil || formula == "" {
		return nil, false
	}
	roll := &DiceRoll{
		Formula:  formula,
		Total:    cast.ToInt(m.Metadata["total"]),
		Critical: cast.ToBool(m.Metadata["critical"]),
	}
	if results, err := cast.ToSliceE(m.Metadata["results"]); err == nil {
		roll.Results = make([]int, 0, len(results))
		for _, r := range results {
			roll.Results = append(roll.Results, cast.ToInt(r))
		}
	}
	return roll, true
}
