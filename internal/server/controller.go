package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	"github.com/nguyentranbao-ct/campaign-chat/internal/store"
	"github.com/nguyentranbao-ct/campaign-chat/internal/usecase"
)

// SessionService is the part of *usecase.Session the gateway drives.
type SessionService interface {
	State() usecase.Snapshot
	Store() *store.Store
	Subscribe(fn func(usecase.Change)) func()
	Retry(ctx context.Context) error
	SelectChannel(ctx context.Context, channelID string) error
	LoadOlder(ctx context.Context, channelID string) (int, error)
	SendMessage(ctx context.Context, channelID, content string, typ models.MessageType) (models.Message, error)
	RetrySend(ctx context.Context, channelID, clientID string) (models.Message, error)
	EditMessage(ctx context.Context, messageID, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	AddReaction(ctx context.Context, messageID, emoji string) (models.Message, error)
	RemoveReaction(ctx context.Context, messageID, emoji string) (models.Message, error)
	Keystroke(ctx context.Context, channelID string) error
	StopTyping(ctx context.Context) error
	MarkRead(ctx context.Context, channelID string) (time.Time, error)
}

type Controller interface {
	Health(c echo.Context) error
	Events(c echo.Context) error

	GetSession(c echo.Context, req struct{}) (usecase.Snapshot, error)
	RetrySession(c echo.Context, req struct{}) (usecase.Snapshot, error)
	ListChannels(c echo.Context, req struct{}) ([]models.Channel, error)
	SelectChannel(c echo.Context, req ChannelRequest) (usecase.Snapshot, error)
	ListMessages(c echo.Context, req ListMessagesRequest) (*MessagesResponse, error)
	SendMessage(c echo.Context, req SendMessageRequest) (models.Message, error)
	RetryMessage(c echo.Context, req RetryMessageRequest) (models.Message, error)
	EditMessage(c echo.Context, req EditMessageRequest) (models.Message, error)
	DeleteMessage(c echo.Context, req MessageRequest) error
	AddReaction(c echo.Context, req ReactionRequest) (models.Message, error)
	RemoveReaction(c echo.Context, req ReactionRequest) (models.Message, error)
	SetTyping(c echo.Context, req TypingRequest) error
	ListTyping(c echo.Context, req ChannelRequest) ([]store.TypingUser, error)
	MarkRead(c echo.Context, req ChannelRequest) (*ReadResponse, error)
	ListUsers(c echo.Context, req struct{}) ([]models.Presence, error)
}

type ChannelRequest struct {
	ChannelID string `param:"channel_id" validate:"required"`
}

type ListMessagesRequest struct {
	ChannelID string `param:"channel_id" validate:"required"`
	// Before, when set, pages older history in before returning.
	Before string `query:"before"`
}

type SendMessageRequest struct {
	ChannelID string             `param:"channel_id" validate:"required"`
	Content   string             `json:"content" validate:"notblank"`
	Type      models.MessageType `json:"type" validate:"omitempty,message_type"`
}

type RetryMessageRequest struct {
	ChannelID string `param:"channel_id" validate:"required"`
	ClientID  string `param:"client_id" validate:"required"`
}

type MessageRequest struct {
	MessageID string `param:"message_id" validate:"required"`
}

type EditMessageRequest struct {
	MessageID string `param:"message_id" validate:"required"`
	Content   string `json:"content" validate:"notblank"`
}

// ReactionRequest takes the emoji from the body on add and from the query
// on remove.
type ReactionRequest struct {
	MessageID string `param:"message_id" validate:"required"`
	Emoji     string `json:"emoji" query:"emoji" validate:"required"`
}

type TypingRequest struct {
	ChannelID string `param:"channel_id" validate:"required"`
	Typing    *bool  `json:"typing" validate:"required"`
}

type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
	Ready    bool             `json:"ready"`
	Error    string           `json:"error,omitempty"`
	// Fetched is the number of older messages loaded by this request.
	Fetched int `json:"fetched,omitempty"`
}

type ReadResponse struct {
	ChannelID  string    `json:"channelId"`
	LastReadAt time.Time `json:"lastReadAt"`
}

type controller struct {
	session SessionService
}

func NewHandler(session SessionService) Controller {
	return &controller{
		session: session,
	}
}

func (h *controller) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "campaign-chat",
		"session": string(h.session.State().State),
	})
}

func (h *controller) GetSession(c echo.Context, _ struct{}) (usecase.Snapshot, error) {
	return h.session.State(), nil
}

func (h *controller) RetrySession(c echo.Context, _ struct{}) (usecase.Snapshot, error) {
	if err := h.session.Retry(c.Request().Context()); err != nil {
		return usecase.Snapshot{}, err
	}
	return h.session.State(), nil
}

func (h *controller) ListChannels(c echo.Context, _ struct{}) ([]models.Channel, error) {
	return h.session.Store().Channels(), nil
}

func (h *controller) SelectChannel(c echo.Context, req ChannelRequest) (usecase.Snapshot, error) {
	if err := h.session.SelectChannel(c.Request().Context(), req.ChannelID); err != nil {
		return usecase.Snapshot{}, err
	}
	return h.session.State(), nil
}

func (h *controller) ListMessages(c echo.Context, req ListMessagesRequest) (*MessagesResponse, error) {
	resp := &MessagesResponse{}
	if req.Before != "" {
		n, err := h.session.LoadOlder(c.Request().Context(), req.ChannelID)
		if err != nil {
			return nil, err
		}
		resp.Fetched = n
	}

	st := h.session.Store()
	resp.Messages = st.MessagesFor(req.ChannelID)
	resp.Ready = st.Ready(req.ChannelID)
	if err := st.HistoryError(req.ChannelID); err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

func (h *controller) SendMessage(c echo.Context, req SendMessageRequest) (models.Message, error) {
	return h.session.SendMessage(c.Request().Context(), req.ChannelID, req.Content, req.Type)
}

func (h *controller) RetryMessage(c echo.Context, req RetryMessageRequest) (models.Message, error) {
	return h.session.RetrySend(c.Request().Context(), req.ChannelID, req.ClientID)
}

func (h *controller) EditMessage(c echo.Context, req EditMessageRequest) (models.Message, error) {
	return h.session.EditMessage(c.Request().Context(), req.MessageID, req.Content)
}

func (h *controller) DeleteMessage(c echo.Context, req MessageRequest) error {
	return h.session.DeleteMessage(c.Request().Context(), req.MessageID)
}

func (h *controller) AddReaction(c echo.Context, req ReactionRequest) (models.Message, error) {
	return h.session.AddReaction(c.Request().Context(), req.MessageID, req.Emoji)
}

func (h *controller) RemoveReaction(c echo.Context, req ReactionRequest) (models.Message, error) {
	return h.session.RemoveReaction(c.Request().Context(), req.MessageID, req.Emoji)
}

func (h *controller) SetTyping(c echo.Context, req TypingRequest) error {
	ctx := c.Request().Context()
	if *req.Typing {
		return h.session.Keystroke(ctx, req.ChannelID)
	}
	return h.session.StopTyping(ctx)
}

func (h *controller) ListTyping(c echo.Context, req ChannelRequest) ([]store.TypingUser, error) {
	return h.session.Store().TypingUsersFor(req.ChannelID), nil
}

func (h *controller) MarkRead(c echo.Context, req ChannelRequest) (*ReadResponse, error) {
	at, err := h.session.MarkRead(c.Request().Context(), req.ChannelID)
	if err != nil {
		return nil, err
	}
	return &ReadResponse{ChannelID: req.ChannelID, LastReadAt: at}, nil
}

func (h *controller) ListUsers(c echo.Context, _ struct{}) ([]models.Presence, error) {
	return h.session.Store().Presence(), nil
}

// Events streams session changes as server-sent events until the client
// disconnects. A slow client loses changes rather than stalling the
// session; every event is a hint to refetch.
func (h *controller) Events(c echo.Context) error {
	changes := make(chan usecase.Change, 64)
	unsubscribe := h.session.Subscribe(func(ch usecase.Change) {
		select {
		case changes <- ch:
		default:
		}
	})
	defer unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	if err := writeEvent(res, "session", h.session.State()); err != nil {
		return err
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ch := <-changes:
			if err := writeEvent(res, string(ch.Kind), ch); err != nil {
				return err
			}
		}
	}
}

func writeEvent(res *echo.Response, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	res.Flush()
	return nil
}
