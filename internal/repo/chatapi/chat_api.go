package chatapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nguyentranbao-ct/campaign-chat/internal/config"
	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger/log"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/util"
)

const headerRequestID = "X-Request-ID"

var historyFetch = util.MustHistogramVec(
	"chat_history_fetch_seconds",
	"Latency of channel history fetches.",
	"status",
)

type SendMessageRequest struct {
	ChannelID string             `json:"channelId" validate:"required"`
	Content   string             `json:"content" validate:"required"`
	Type      models.MessageType `json:"type"`
	ClientID  string             `json:"clientId,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// Client is the chat REST API as seen by one viewer. Every request carries
// the viewer's bearer credential.
type Client interface {
	GetMessages(ctx context.Context, channelID string, query models.HistoryQuery) ([]models.Message, error)
	GetChannels(ctx context.Context, campaignID string) ([]models.Channel, error)
	GetUsers(ctx context.Context, campaignID string) ([]models.Presence, error)
	MarkRead(ctx context.Context, channelID string) error
	SendMessage(ctx context.Context, req SendMessageRequest) (*models.Message, error)
	EditMessage(ctx context.Context, messageID string, req EditMessageRequest) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	AddReaction(ctx context.Context, messageID, emoji string) (*models.Message, error)
	RemoveReaction(ctx context.Context, messageID, emoji string) (*models.Message, error)
}

type chatAPIClient struct {
	client *resty.Client
}

func NewChatAPIClient(conf *config.Config) Client {
	return New(conf.API.BaseURL, conf.Session.Credential, util.RestyOptions{
		RetryCount: conf.API.RetryCount,
		Timeout:    conf.API.Timeout,
	})
}

func New(baseURL, credential string, opts util.RestyOptions) Client {
	c := util.NewRestyClient(opts).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetError(&models.APIError{})
	if credential != "" {
		c.SetAuthToken(credential)
	}
	return &chatAPIClient{client: c}
}

func (c *chatAPIClient) GetMessages(ctx context.Context, channelID string, query models.HistoryQuery) ([]models.Message, error) {
	start := time.Now()
	var messages []models.Message
	req := c.request(ctx).
		SetPathParam("channelId", channelID).
		SetResult(&messages)
	if query.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(query.Limit))
	}
	if query.Before != "" {
		req.SetQueryParam("before", query.Before)
	}
	if query.After != "" {
		req.SetQueryParam("after", query.After)
	}

	resp, err := req.Get("/channels/{channelId}/messages")
	err = check(resp, err)
	historyFetch.WithLabelValues(statusLabel(resp, err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("get messages of channel %s: %w", channelID, err)
	}
	return messages, nil
}

func (c *chatAPIClient) GetChannels(ctx context.Context, campaignID string) ([]models.Channel, error) {
	var channels []models.Channel
	resp, err := c.request(ctx).
		SetPathParam("campaignId", campaignID).
		SetResult(&channels).
		Get("/campaigns/{campaignId}/channels")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("get channels of campaign %s: %w", campaignID, err)
	}
	return channels, nil
}

func (c *chatAPIClient) GetUsers(ctx context.Context, campaignID string) ([]models.Presence, error) {
	var users []models.Presence
	resp, err := c.request(ctx).
		SetPathParam("campaignId", campaignID).
		SetResult(&users).
		Get("/campaigns/{campaignId}/users")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("get users of campaign %s: %w", campaignID, err)
	}
	return users, nil
}

func (c *chatAPIClient) MarkRead(ctx context.Context, channelID string) error {
	resp, err := c.request(ctx).
		SetPathParam("channelId", channelID).
		Post("/channels/{channelId}/read")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("mark channel %s read: %w", channelID, err)
	}
	return nil
}

func (c *chatAPIClient) SendMessage(ctx context.Context, req SendMessageRequest) (*models.Message, error) {
	if req.Type == "" {
		req.Type = models.MessageTypeText
	}
	var msg models.Message
	resp, err := c.request(ctx).
		SetBody(req).
		SetResult(&msg).
		Post("/messages")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}

func (c *chatAPIClient) EditMessage(ctx context.Context, messageID string, req EditMessageRequest) (*models.Message, error) {
	var msg models.Message
	resp, err := c.request(ctx).
		SetPathParam("messageId", messageID).
		SetBody(req).
		SetResult(&msg).
		Put("/messages/{messageId}")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("edit message %s: %w", messageID, err)
	}
	return &msg, nil
}

func (c *chatAPIClient) DeleteMessage(ctx context.Context, messageID string) error {
	resp, err := c.request(ctx).
		SetPathParam("messageId", messageID).
		Delete("/messages/{messageId}")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return nil
}

func (c *chatAPIClient) AddReaction(ctx context.Context, messageID, emoji string) (*models.Message, error) {
	var msg models.Message
	resp, err := c.request(ctx).
		SetPathParam("messageId", messageID).
		SetBody(reactionRequest{Emoji: emoji}).
		SetResult(&msg).
		Post("/messages/{messageId}/reactions")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("add reaction to message %s: %w", messageID, err)
	}
	return &msg, nil
}

func (c *chatAPIClient) RemoveReaction(ctx context.Context, messageID, emoji string) (*models.Message, error) {
	var msg models.Message
	resp, err := c.request(ctx).
		SetPathParam("messageId", messageID).
		SetRawPathParam("emoji", url.PathEscape(emoji)).
		SetResult(&msg).
		Delete("/messages/{messageId}/reactions/{emoji}")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("remove reaction from message %s: %w", messageID, err)
	}
	return &msg, nil
}

// request starts a call bound to ctx. A gateway request id on ctx is
// forwarded so both sides log the same id.
func (c *chatAPIClient) request(ctx context.Context) *resty.Request {
	r := c.client.R().SetContext(ctx)
	if id := log.RequestID(ctx); id != "" {
		r.SetHeader(headerRequestID, id)
	}
	return r
}

// check folds transport errors and non-2xx replies into one error. 401 and
// 403 become models.ErrAuthRejected, 404 becomes models.ErrNotFound.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := &models.APIError{Status: resp.StatusCode()}
	if e, ok := resp.Error().(*models.APIError); ok && e != nil {
		apiErr.Message = e.Message
	}
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Join(models.ErrAuthRejected, apiErr)
	case http.StatusNotFound:
		return errors.Join(models.ErrNotFound, apiErr)
	}
	return apiErr
}

func statusLabel(resp *resty.Response, err error) string {
	if resp != nil && resp.StatusCode() != 0 {
		return strconv.Itoa(resp.StatusCode())
	}
	if err != nil {
		return "error"
	}
	return "ok"
}
