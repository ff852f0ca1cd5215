// Package protocol maps commands to wire frames and wire frames to events.
package protocol

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
)

var validate = validator.New()

type outboundFrame struct {
	Type string         `json:"type"`
	Data models.Command `json:"data"`
}

// Encode serializes a command into its wire frame:
//
//	{"type": "send_message", "data": {"channelId", "content", "type", "clientId"}}
//	{"type": "typing", "data": {"channelId", "isTyping"}}
//	{"type": "mark_read", "data": {"channelId"}}
//
// Empty message content is the caller's concern and is not checked here.
func Encode(cmd models.Command) ([]byte, error) {
	switch cmd.(type) {
	case models.SendMessage, models.SetTyping, models.MarkRead:
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}

	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("invalid %s command: %w", cmd.CommandType(), err)
	}

	data, err := json.Marshal(outboundFrame{Type: cmd.CommandType(), Data: cmd})
	if err != nil {
		return nil, fmt.Errorf("marshal %s command: %w", cmd.CommandType(), err)
	}
	return data, nil
}
