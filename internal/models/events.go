package models

type FrameKind string

const (
	FrameMessage  FrameKind = "message"
	FramePresence FrameKind = "user_update"
	FrameTyping   FrameKind = "typing"
	FrameError    FrameKind = "error"
)

// InboundFrame is a decoded server event. The set of implementations is
// closed: MessageFrame, PresenceFrame, TypingFrame, ErrorFrame.
type InboundFrame interface {
	Kind() FrameKind
	inbound()
}

type MessageFrame struct {
	Message Message `json:"message"`
}

type PresenceFrame struct {
	User Presence `json:"user"`
}

type TypingFrame struct {
	Typing TypingSignal `json:"typing"`
}

type ErrorFrame struct {
	Error string `json:"error"`
}

func (MessageFrame) Kind() FrameKind  { return FrameMessage }
func (PresenceFrame) Kind() FrameKind { return FramePresence }
func (TypingFrame) Kind() FrameKind   { return FrameTyping }
func (ErrorFrame) Kind() FrameKind    { return FrameError }

func (MessageFrame) inbound()  {}
func (PresenceFrame) inbound() {}
func (TypingFrame) inbound()   {}
func (ErrorFrame) inbound()    {}

// Command is an outbound user action. The set of implementations is closed:
// SendMessage, SetTyping, MarkRead.
type Command interface {
	CommandType() string
	command()
}

type SendMessage struct {
	ChannelID string      `json:"channelId" validate:"required"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type" validate:"required"`
	ClientID  string      `json:"clientId,omitempty"`
}

type SetTyping struct {
	ChannelID string `json:"channelId" validate:"required"`
	IsTyping  bool   `json:"isTyping"`
}

type MarkRead struct {
	ChannelID string `json:"channelId" validate:"required"`
}

func (SendMessage) CommandType() string { return "send_message" }
func (SetTyping) CommandType() string   { return "typing" }
func (MarkRead) CommandType() string    { return "mark_read" }

func (SendMessage) command() {}
func (SetTyping) command()   {}
func (MarkRead) command()    {}
