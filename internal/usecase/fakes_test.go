package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	"github.com/nguyentranbao-ct/campaign-chat/internal/repo/chatapi"
	"github.com/nguyentranbao-ct/campaign-chat/internal/repo/socket"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger/log"
)

type fakeTransport struct {
	mu         sync.Mutex
	cb         socket.Callbacks
	openErr    error
	opens      int
	connected  bool
	sent       [][]byte
	reconnects int
	closed     bool
}

func (f *fakeTransport) factory() TransportFactory {
	return func(cb socket.Callbacks) Transport {
		f.mu.Lock()
		f.cb = cb
		f.mu.Unlock()
		return f
	}
}

func (f *fakeTransport) Open(_ context.Context, _ socket.Endpoint, credential string) error {
	if credential == "" {
		return models.ErrNoCredential
	}
	f.mu.Lock()
	f.opens++
	err := f.openErr
	f.mu.Unlock()

	f.emit(socket.StateChange{State: socket.StateConnecting})
	if errors.Is(err, models.ErrAuthRejected) {
		f.emit(socket.StateChange{State: socket.StateFailed, Err: err})
		return err
	}
	if err != nil {
		f.emit(socket.StateChange{State: socket.StateDisconnected, Err: err})
		return err
	}
	f.emit(socket.StateChange{State: socket.StateConnected})
	return nil
}

func (f *fakeTransport) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return models.ErrNotConnected
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeTransport) Reconnect() (time.Duration, error) {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
	return time.Second, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.emit(socket.StateChange{State: socket.StateDisconnected})
	return nil
}

func (f *fakeTransport) emit(c socket.StateChange) {
	f.mu.Lock()
	f.connected = c.State == socket.StateConnected
	cb := f.cb
	f.mu.Unlock()
	cb.OnState(c)
}

func (f *fakeTransport) frame(raw string) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb.OnFrame([]byte(raw))
}

// sentTypes lists the command discriminators written so far.
func (f *fakeTransport) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, gjson.GetBytes(s, "type").String())
	}
	return out
}

func (f *fakeTransport) lastSent() gjson.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return gjson.Result{}
	}
	return gjson.ParseBytes(f.sent[len(f.sent)-1])
}

func (f *fakeTransport) reconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}

type historyCall struct {
	channelID string
	query     models.HistoryQuery
}

type fakeAPI struct {
	mu         sync.Mutex
	history    map[string][]models.Message
	historyErr map[string]error
	gate       map[string]chan struct{}
	calls      []historyCall
	channels   []models.Channel
	users      []models.Presence
	sends      []chatapi.SendMessageRequest
	sendIDs    []string
	sendErr    error
	marked     []string
	deleted    []string
	edited     map[string]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history:    map[string][]models.Message{},
		historyErr: map[string]error{},
		gate:       map[string]chan struct{}{},
		edited:     map[string]string{},
	}
}

func (a *fakeAPI) GetMessages(ctx context.Context, channelID string, query models.HistoryQuery) ([]models.Message, error) {
	a.mu.Lock()
	a.calls = append(a.calls, historyCall{channelID: channelID, query: query})
	gate := a.gate[channelID]
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.historyErr[channelID]; err != nil {
		return nil, err
	}
	return append([]models.Message(nil), a.history[channelID]...), nil
}

func (a *fakeAPI) historyCalls() []historyCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]historyCall(nil), a.calls...)
}

func (a *fakeAPI) GetChannels(context.Context, string) ([]models.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channels, nil
}

func (a *fakeAPI) GetUsers(context.Context, string) ([]models.Presence, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.users, nil
}

func (a *fakeAPI) MarkRead(_ context.Context, channelID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.marked = append(a.marked, channelID)
	return nil
}

func (a *fakeAPI) SendMessage(ctx context.Context, req chatapi.SendMessageRequest) (*models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sends = append(a.sends, req)
	a.sendIDs = append(a.sendIDs, log.RequestID(ctx))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	return &models.Message{
		ID:        "srv-" + req.ClientID,
		ChannelID: req.ChannelID,
		UserID:    "me",
		Content:   req.Content,
		Type:      req.Type,
		ClientID:  req.ClientID,
		CreatedAt: t0,
	}, nil
}

func (a *fakeAPI) sendRequestIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sendIDs...)
}

func (a *fakeAPI) sendCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sends)
}

func (a *fakeAPI) EditMessage(_ context.Context, messageID string, req chatapi.EditMessageRequest) (*models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edited[messageID] = req.Content
	return &models.Message{ID: messageID, ChannelID: "c1", UserID: "u1", Content: req.Content, CreatedAt: t0}, nil
}

func (a *fakeAPI) DeleteMessage(_ context.Context, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, messageID)
	return nil
}

func (a *fakeAPI) AddReaction(_ context.Context, messageID, emoji string) (*models.Message, error) {
	return &models.Message{
		ID:        messageID,
		ChannelID: "c1",
		UserID:    "u1",
		Content:   "hi",
		CreatedAt: t0,
		Reactions: []models.Reaction{{Emoji: emoji, UserID: "me", CreatedAt: t0}},
	}, nil
}

func (a *fakeAPI) RemoveReaction(_ context.Context, messageID, _ string) (*models.Message, error) {
	return &models.Message{ID: messageID, ChannelID: "c1", UserID: "u1", Content: "hi", CreatedAt: t0}, nil
}

var t0 = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
