package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		cmd     models.Command
		want    string
		wantErr bool
	}{
		{
			name: "send message",
			cmd:  models.SendMessage{ChannelID: "c1", Content: "hello", Type: models.MessageTypeText, ClientID: "k1"},
			want: `{"type":"send_message","data":{"channelId":"c1","content":"hello","type":"text","clientId":"k1"}}`,
		},
		{
			name: "send message without client id",
			cmd:  models.SendMessage{ChannelID: "c1", Content: "hi", Type: models.MessageTypeOOC},
			want: `{"type":"send_message","data":{"channelId":"c1","content":"hi","type":"ooc"}}`,
		},
		{
			name: "typing start",
			cmd:  models.SetTyping{ChannelID: "c1", IsTyping: true},
			want: `{"type":"typing","data":{"channelId":"c1","isTyping":true}}`,
		},
		{
			name: "typing stop",
			cmd:  models.SetTyping{ChannelID: "c1"},
			want: `{"type":"typing","data":{"channelId":"c1","isTyping":false}}`,
		},
		{
			name: "mark read",
			cmd:  models.MarkRead{ChannelID: "c1"},
			want: `{"type":"mark_read","data":{"channelId":"c1"}}`,
		},
		{
			name:    "missing channel",
			cmd:     models.SetTyping{IsTyping: true},
			wantErr: true,
		},
		{
			name:    "missing message type",
			cmd:     models.SendMessage{ChannelID: "c1", Content: "x"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.cmd)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestEncodeDoesNotRejectEmptyContent(t *testing.T) {
	_, err := Encode(models.SendMessage{ChannelID: "c1", Type: models.MessageTypeText})
	assert.NoError(t, err)
}
