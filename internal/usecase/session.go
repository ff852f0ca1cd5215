package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	"github.com/nguyentranbao-ct/campaign-chat/internal/protocol"
	"github.com/nguyentranbao-ct/campaign-chat/internal/repo/chatapi"
	"github.com/nguyentranbao-ct/campaign-chat/internal/repo/socket"
	"github.com/nguyentranbao-ct/campaign-chat/internal/store"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger/log"
)

type SessionState string

const (
	SessionIdle           SessionState = "idle"
	SessionLoadingHistory SessionState = "loading_history"
	SessionReady          SessionState = "ready"
	SessionReconnecting   SessionState = "reconnecting"
	SessionFailed         SessionState = "failed"
)

type ChangeKind string

const (
	ChangeMessages ChangeKind = "messages"
	ChangeTyping   ChangeKind = "typing"
	ChangePresence ChangeKind = "presence"
	ChangeChannels ChangeKind = "channels"
	ChangeSession  ChangeKind = "session"
)

// Change tells listeners which part of the session view moved. ChannelID
// is set for per-channel kinds.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	ChannelID string     `json:"channelId,omitempty"`
}

type Snapshot struct {
	State         SessionState `json:"state"`
	CampaignID    string       `json:"campaignId"`
	ViewerID      string       `json:"viewerId"`
	ActiveChannel string       `json:"activeChannel,omitempty"`
	Connection    socket.State `json:"connection"`
	Attempt       int          `json:"attempt,omitempty"`
	RetryInMS     int64        `json:"retryInMs,omitempty"`
	Error         string       `json:"error,omitempty"`
}

type SessionConfig struct {
	CampaignID     string
	ViewerID       string
	Credential     string
	SocketURL      string
	TypingIdle     time.Duration
	TypingTTL      time.Duration
	PendingTimeout time.Duration
	MatchWindow    time.Duration
	HistoryLimit   int
}

type SessionParams struct {
	Config    SessionConfig
	API       chatapi.Client
	Transport TransportFactory
	Clock     clockwork.Clock
	Logger    *logger.Logger
}

// Session coordinates one viewer's campaign: it owns the transport and the
// store, feeds dispatched frames into the store, and drives optimistic
// sends, typing and read state. All session state is mutated on a single
// loop goroutine; REST calls run outside the loop and post their results
// back, guarded by the channel generation they were issued under.
type Session struct {
	conf       SessionConfig
	api        chatapi.Client
	store      *store.Store
	transport  Transport
	dispatcher *protocol.Dispatcher
	clock      clockwork.Clock
	ctx        context.Context

	actions  chan func()
	done     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup

	// loop-owned
	state         SessionState
	active        string
	generation    uint64
	conn          socket.State
	everConnected bool
	attempt       int
	retryIn       time.Duration
	lastErr       error
	pending       map[string]clockwork.Timer
	typing        *typingDebouncer

	snapMu   sync.RWMutex
	snapshot Snapshot

	listenersMu sync.Mutex
	listeners   map[int]func(Change)
	nextID      int
}

func NewSession(p SessionParams) (*Session, error) {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = logger.MustNamed("session")
	}
	conf := p.Config
	if conf.PendingTimeout <= 0 {
		conf.PendingTimeout = 15 * time.Second
	}
	if conf.TypingIdle <= 0 {
		conf.TypingIdle = time.Second
	}
	if conf.HistoryLimit <= 0 {
		conf.HistoryLimit = 50
	}

	subject, err := CheckCredential(conf.Credential, p.Clock.Now())
	if err != nil {
		return nil, err
	}
	if conf.ViewerID == "" {
		conf.ViewerID = subject
	}

	s := &Session{
		conf:  conf,
		api:   p.API,
		clock: p.Clock,
		store: store.New(store.Options{
			ViewerID:    conf.ViewerID,
			Clock:       p.Clock,
			TypingTTL:   conf.TypingTTL,
			MatchWindow: conf.MatchWindow,
		}),
		actions:   make(chan func(), 256),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		state:     SessionIdle,
		conn:      socket.StateDisconnected,
		pending:   make(map[string]clockwork.Timer),
		listeners: make(map[int]func(Change)),
	}
	s.ctx = log.WithFields(log.WithLogger(context.Background(), p.Logger), "campaign_id", conf.CampaignID)
	s.dispatcher = protocol.NewDispatcher(protocol.Handlers{
		Message:  s.onMessage,
		Presence: s.onPresence,
		Typing:   s.onTyping,
		Error:    s.onServerError,
	})
	s.typing = newTypingDebouncer(p.Clock, conf.TypingIdle, s.announceTyping, func(seq uint64) {
		s.post(func() { s.typing.expired(seq) })
	})
	s.transport = p.Transport(socket.Callbacks{
		OnState: func(c socket.StateChange) { s.post(func() { s.onConnState(c) }) },
		OnFrame: func(raw []byte) { s.post(func() { s.dispatcher.OnFrame(s.ctx, raw) }) },
	})
	s.publish()

	go s.run()
	return s, nil
}

func (s *Session) Store() *store.Store {
	return s.store
}

func (s *Session) State() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapshot
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. fn runs on the session loop and must not block or call
// back into the session synchronously.
func (s *Session) Subscribe(fn func(Change)) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// Start opens the campaign stream. Missing or rejected credentials fail the
// session; transient dial errors are left to the reconnect schedule.
func (s *Session) Start(ctx context.Context) error {
	return s.open(ctx)
}

func (s *Session) open(ctx context.Context) error {
	endpoint := socket.Endpoint{URL: s.conf.SocketURL, CampaignID: s.conf.CampaignID}
	err := s.transport.Open(ctx, endpoint, s.conf.Credential)
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrNoCredential) || errors.Is(err, models.ErrAuthRejected) {
		_ = s.do(ctx, func() {
			s.lastErr = err
			s.setState(SessionFailed)
		})
		return err
	}
	log.Warnw(s.scoped(ctx), "initial connect failed, retrying in background", "error", err)
	return nil
}

// Stop closes the stream, cancels every timer and ends the loop.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		_ = s.transport.Close()
		_ = s.do(context.Background(), func() {
			s.typing.stop()
			for id, t := range s.pending {
				t.Stop()
				delete(s.pending, id)
			}
		})
		close(s.done)
		<-s.loopDone
		s.inflight.Wait()
	})
}

// LoadCampaign fetches the channel list and the presence snapshot
// concurrently and seeds the store with both.
func (s *Session) LoadCampaign(ctx context.Context) error {
	var (
		channels []models.Channel
		users    []models.Presence
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		channels, err = s.api.GetChannels(gctx, s.conf.CampaignID)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.api.GetUsers(gctx, s.conf.CampaignID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load campaign %s: %w", s.conf.CampaignID, err)
	}

	return s.do(ctx, func() {
		s.store.ApplyChannels(channels)
		s.store.ApplyPresenceSnapshot(users)
		s.notify(Change{Kind: ChangeChannels})
		s.notify(Change{Kind: ChangePresence})
	})
}

// SelectChannel makes channelID the active channel and loads its latest
// history. If another selection supersedes this one before the history
// arrives, the result is discarded and models.ErrChannelSwitched returned.
func (s *Session) SelectChannel(ctx context.Context, channelID string) error {
	var gen uint64
	if err := s.do(ctx, func() {
		if s.active != channelID {
			s.typing.stop()
		}
		s.generation++
		gen = s.generation
		s.active = channelID
		// A failed session stays failed until Retry reconnects it.
		if s.state != SessionFailed || s.conn == socket.StateConnected {
			s.setState(SessionLoadingHistory)
		}
	}); err != nil {
		return err
	}

	messages, fetchErr := s.api.GetMessages(ctx, channelID, models.HistoryQuery{Limit: s.conf.HistoryLimit})

	var result error
	if err := s.do(context.Background(), func() {
		if gen != s.generation {
			result = models.ErrChannelSwitched
			return
		}
		if fetchErr != nil {
			s.store.SetHistoryError(channelID, fetchErr)
			s.lastErr = fetchErr
			result = fetchErr
		} else {
			s.store.ApplyHistory(channelID, messages)
		}
		s.settle()
		s.notify(Change{Kind: ChangeMessages, ChannelID: channelID})
	}); err != nil {
		return err
	}
	if result != nil && !errors.Is(result, models.ErrChannelSwitched) {
		log.Warnw(s.scoped(ctx), "history fetch failed", "channel_id", channelID, "error", result)
	}
	return result
}

// LoadOlder fetches the page before the oldest held message and returns how
// many messages it carried.
func (s *Session) LoadOlder(ctx context.Context, channelID string) (int, error) {
	before := s.store.OldestID(channelID)
	messages, err := s.api.GetMessages(ctx, channelID, models.HistoryQuery{Limit: s.conf.HistoryLimit, Before: before})
	if err != nil {
		return 0, err
	}
	if err := s.do(ctx, func() {
		s.store.ApplyHistory(channelID, messages)
		s.notify(Change{Kind: ChangeMessages, ChannelID: channelID})
	}); err != nil {
		return 0, err
	}
	return len(messages), nil
}

// SendMessage shows the message immediately as a pending placeholder and
// sends it over the stream, or over REST when the stream is down. The
// placeholder is returned; it turns failed if no confirmation arrives
// within the pending timeout.
func (s *Session) SendMessage(ctx context.Context, channelID, content string, typ models.MessageType) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, models.ErrEmptyContent
	}
	if typ == "" {
		typ = models.MessageTypeText
	}

	var (
		placeholder models.Message
		viaREST     bool
	)
	if err := s.do(ctx, func() {
		placeholder = s.store.AddOptimisticMessage(models.Message{
			ChannelID: channelID,
			Content:   content,
			Type:      typ,
			ClientID:  models.NewClientID(),
		})
		s.typing.stopIn(channelID)
		viaREST = !s.deliver(placeholder)
		s.notify(Change{Kind: ChangeMessages, ChannelID: channelID})
	}); err != nil {
		return models.Message{}, err
	}

	if viaREST {
		s.sendViaREST(ctx, placeholder)
	}
	return placeholder, nil
}

// RetrySend re-issues a failed send under its original correlation id.
func (s *Session) RetrySend(ctx context.Context, channelID, clientID string) (models.Message, error) {
	var (
		msg     models.Message
		ok      bool
		viaREST bool
	)
	if err := s.do(ctx, func() {
		msg, ok = s.store.RetryOptimistic(channelID, clientID)
		if !ok {
			return
		}
		viaREST = !s.deliver(msg)
		s.notify(Change{Kind: ChangeMessages, ChannelID: channelID})
	}); err != nil {
		return models.Message{}, err
	}
	if !ok {
		return models.Message{}, fmt.Errorf("no failed message %s in channel %s: %w", clientID, channelID, models.ErrNotFound)
	}
	if viaREST {
		s.sendViaREST(ctx, msg)
	}
	return msg, nil
}

// deliver arms the pending timeout for a placeholder and tries the stream.
// It reports false when the caller has to fall back to REST.
func (s *Session) deliver(placeholder models.Message) bool {
	s.armPending(placeholder.ChannelID, placeholder.ClientID)
	return s.sendCommand(models.SendMessage{
		ChannelID: placeholder.ChannelID,
		Content:   placeholder.Content,
		Type:      placeholder.Type,
		ClientID:  placeholder.ClientID,
	})
}

// sendViaREST posts the placeholder outside the loop. The call outlives the
// request that issued it, so it runs under the session context and only
// borrows the request id.
func (s *Session) sendViaREST(reqCtx context.Context, placeholder models.Message) {
	base := s.scoped(reqCtx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(base, s.conf.PendingTimeout)
		defer cancel()

		reply, err := s.api.SendMessage(ctx, chatapi.SendMessageRequest{
			ChannelID: placeholder.ChannelID,
			Content:   placeholder.Content,
			Type:      placeholder.Type,
			ClientID:  placeholder.ClientID,
		})
		s.post(func() {
			channelID, clientID := placeholder.ChannelID, placeholder.ClientID
			s.disarmPending(clientID)
			if err != nil {
				log.Warnw(base, "send over rest failed", "channel_id", channelID, "client_id", clientID, "error", err)
				s.store.FailOptimistic(channelID, clientID)
			} else {
				s.store.ReconcileOptimistic(channelID, clientID, *reply)
			}
			s.notify(Change{Kind: ChangeMessages, ChannelID: channelID})
		})
	}()
}

// scoped returns the session context tagged with the request id carried by
// ctx, if any.
func (s *Session) scoped(ctx context.Context) context.Context {
	if id := log.RequestID(ctx); id != "" {
		return log.WithRequestID(s.ctx, id)
	}
	return s.ctx
}

func (s *Session) armPending(channelID, clientID string) {
	s.disarmPending(clientID)
	s.pending[clientID] = s.clock.AfterFunc(s.conf.PendingTimeout, func() {
		s.post(func() {
			delete(s.pending, clientID)
			if s.store.FailOptimistic(channelID, clientID) {
				log.Warnw(s.ctx, "message not confirmed in time", "channel_id", channelID, "client_id", clientID)
				s.notify(Change{Kind: ChangeMessages, ChannelID: channelID})
			}
		})
	})
}

func (s *Session) disarmPending(clientID string) {
	if t, ok := s.pending[clientID]; ok {
		t.Stop()
		delete(s.pending, clientID)
	}
}

// Keystroke records local typing activity in channelID.
func (s *Session) Keystroke(ctx context.Context, channelID string) error {
	return s.do(ctx, func() { s.typing.keystroke(channelID) })
}

// StopTyping clears the local typing indicator right away.
func (s *Session) StopTyping(ctx context.Context) error {
	return s.do(ctx, func() { s.typing.stop() })
}

func (s *Session) announceTyping(channelID string, typing bool) {
	s.sendCommand(models.SetTyping{ChannelID: channelID, IsTyping: typing})
}

// MarkRead advances the channel's read watermark locally and acknowledges
// it to the server, over the stream when connected and over REST otherwise.
func (s *Session) MarkRead(ctx context.Context, channelID string) (time.Time, error) {
	var (
		at      time.Time
		viaREST bool
	)
	if err := s.do(ctx, func() {
		at = s.store.MarkRead(channelID)
		viaREST = !s.sendCommand(models.MarkRead{ChannelID: channelID})
		s.notify(Change{Kind: ChangeChannels, ChannelID: channelID})
	}); err != nil {
		return time.Time{}, err
	}
	if viaREST {
		if err := s.api.MarkRead(ctx, channelID); err != nil {
			return at, err
		}
	}
	return at, nil
}

func (s *Session) EditMessage(ctx context.Context, messageID, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, models.ErrEmptyContent
	}
	reply, err := s.api.EditMessage(ctx, messageID, chatapi.EditMessageRequest{Content: content})
	if err != nil {
		return models.Message{}, err
	}
	return *reply, s.applyReply(ctx, *reply)
}

func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	held, ok := s.store.FindMessage(messageID)
	if err := s.api.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.do(ctx, func() {
		if s.store.RemoveMessage(held.ChannelID, messageID) {
			s.notify(Change{Kind: ChangeMessages, ChannelID: held.ChannelID})
		}
	})
}

func (s *Session) AddReaction(ctx context.Context, messageID, emoji string) (models.Message, error) {
	reply, err := s.api.AddReaction(ctx, messageID, emoji)
	if err != nil {
		return models.Message{}, err
	}
	return *reply, s.applyReply(ctx, *reply)
}

func (s *Session) RemoveReaction(ctx context.Context, messageID, emoji string) (models.Message, error) {
	reply, err := s.api.RemoveReaction(ctx, messageID, emoji)
	if err != nil {
		return models.Message{}, err
	}
	return *reply, s.applyReply(ctx, *reply)
}

func (s *Session) applyReply(ctx context.Context, msg models.Message) error {
	return s.do(ctx, func() {
		s.store.ApplyIncomingMessage(msg)
		s.notify(Change{Kind: ChangeMessages, ChannelID: msg.ChannelID})
	})
}

// Retry leaves the failed state: it reopens the stream with a fresh attempt
// counter and reloads the active channel. It is a no-op in any other state.
func (s *Session) Retry(ctx context.Context) error {
	var (
		failed bool
		active string
	)
	if err := s.do(ctx, func() {
		failed = s.state == SessionFailed
		active = s.active
		if failed {
			s.lastErr = nil
			s.attempt, s.retryIn = 0, 0
		}
	}); err != nil {
		return err
	}
	if !failed {
		return nil
	}
	if err := s.open(ctx); err != nil {
		return err
	}
	if active == "" {
		return s.do(ctx, func() { s.settle() })
	}
	return s.SelectChannel(ctx, active)
}

// onConnState runs on the loop for every transport transition.
func (s *Session) onConnState(c socket.StateChange) {
	s.conn = c.State
	switch c.State {
	case socket.StateConnected:
		reconnected := s.everConnected
		s.everConnected = true
		s.attempt, s.retryIn = 0, 0
		if reconnected {
			log.Infow(s.ctx, "connection restored")
			s.catchUp()
		}
	case socket.StateReconnecting:
		s.attempt, s.retryIn = c.Attempt, c.Delay
	case socket.StateDisconnected:
		if c.Err != nil {
			s.lastErr = c.Err
			go func() { _, _ = s.transport.Reconnect() }()
		}
	case socket.StateFailed:
		s.lastErr = c.Err
		s.typing.stop()
		log.Errorw(s.ctx, "connection failed", "error", c.Err)
	}
	s.settle()
}

// catchUp fetches what the active channel missed while disconnected.
func (s *Session) catchUp() {
	channelID := s.active
	if channelID == "" || !s.store.Ready(channelID) {
		return
	}
	after := s.store.NewestID(channelID)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.conf.PendingTimeout)
		defer cancel()

		messages, err := s.api.GetMessages(ctx, channelID, models.HistoryQuery{Limit: s.conf.HistoryLimit, After: after})
		if err != nil {
			log.Warnw(ctx, "catch-up fetch failed", "channel_id", channelID, "error", err)
			return
		}
		s.post(func() {
			s.store.ApplyHistory(channelID, messages)
			s.notify(Change{Kind: ChangeMessages, ChannelID: channelID})
		})
	}()
}

func (s *Session) onMessage(msg models.Message) {
	s.store.ApplyIncomingMessage(msg)
	if msg.ClientID != "" {
		s.disarmPending(msg.ClientID)
	}
	s.notify(Change{Kind: ChangeMessages, ChannelID: msg.ChannelID})
}

func (s *Session) onPresence(p models.Presence) {
	s.store.ApplyPresenceUpdate(p)
	s.notify(Change{Kind: ChangePresence})
}

func (s *Session) onTyping(signal models.TypingSignal) {
	channelID := signal.ChannelID
	if channelID == "" {
		channelID = s.active
	}
	if channelID == "" {
		return
	}
	s.store.ApplyTyping(channelID, signal)
	if signal.IsTyping {
		s.clock.AfterFunc(s.typingTTL(), func() { s.post(s.sweepTyping) })
	}
	s.notify(Change{Kind: ChangeTyping, ChannelID: channelID})
}

func (s *Session) sweepTyping() {
	for _, channelID := range s.store.Sweep() {
		s.notify(Change{Kind: ChangeTyping, ChannelID: channelID})
	}
}

func (s *Session) typingTTL() time.Duration {
	if s.conf.TypingTTL > 0 {
		return s.conf.TypingTTL
	}
	return store.DefaultTypingTTL
}

func (s *Session) onServerError(msg string) {
	log.Warnw(s.ctx, "server reported an error", "error", msg)
	s.lastErr = errors.New(msg)
	s.publish()
	s.notify(Change{Kind: ChangeSession})
}

// sendCommand encodes cmd and writes it to the stream. It reports false if
// the stream is not connected or the write failed.
func (s *Session) sendCommand(cmd models.Command) bool {
	if s.conn != socket.StateConnected {
		return false
	}
	frame, err := protocol.Encode(cmd)
	if err != nil {
		log.Errorw(s.ctx, "encode command", "command", cmd.CommandType(), "error", err)
		return false
	}
	if err := s.transport.Send(frame); err != nil {
		log.Warnw(s.ctx, "send command", "command", cmd.CommandType(), "error", err)
		return false
	}
	return true
}

// settle derives the session state from the connection once no history
// load is outstanding.
func (s *Session) settle() {
	next := s.state
	switch {
	case s.conn == socket.StateFailed:
		next = SessionFailed
	case s.state == SessionFailed && s.conn != socket.StateConnected:
		// Only an explicit Retry followed by a connect leaves failed.
	case s.active == "":
		next = SessionIdle
	case s.state == SessionLoadingHistory && s.stillLoading():
	case s.conn == socket.StateConnected:
		next = SessionReady
	default:
		next = SessionReconnecting
	}
	s.setState(next)
}

// stillLoading reports whether the active channel has neither history nor
// a history error yet.
func (s *Session) stillLoading() bool {
	return !s.store.Ready(s.active) && s.store.HistoryError(s.active) == nil
}

func (s *Session) setState(state SessionState) {
	changed := s.state != state
	if changed {
		log.Infow(s.ctx, "session state changed", "from", s.state, "to", state)
	}
	s.state = state
	s.publish()
	s.notify(Change{Kind: ChangeSession})
}

func (s *Session) publish() {
	snap := Snapshot{
		State:         s.state,
		CampaignID:    s.conf.CampaignID,
		ViewerID:      s.conf.ViewerID,
		ActiveChannel: s.active,
		Connection:    s.conn,
		Attempt:       s.attempt,
		RetryInMS:     s.retryIn.Milliseconds(),
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	s.snapMu.Lock()
	s.snapshot = snap
	s.snapMu.Unlock()
}

func (s *Session) notify(c Change) {
	s.listenersMu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (s *Session) run() {
	defer close(s.loopDone)
	for {
		select {
		case f := <-s.actions:
			f()
		case <-s.done:
			return
		}
	}
}

// do runs f on the loop and waits for it.
func (s *Session) do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	select {
	case s.actions <- func() { f(); close(finished) }:
	case <-s.done:
		return models.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return models.ErrSessionClosed
	}
}

// post queues f on the loop without waiting. It must not be called from
// the loop itself.
func (s *Session) post(f func()) {
	select {
	case s.actions <- f:
	case <-s.done:
	}
}
