// Package store holds the client-side view of a campaign: ordered messages
// per channel, read watermarks, typing sets and presence. Every merge
// de-duplicates by message id and re-sorts by (timestamp, id), so the final
// state does not depend on the order in which history pages and streamed
// events arrive.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/util"
)

const (
	DefaultTypingTTL   = 5 * time.Second
	DefaultMatchWindow = 10 * time.Second
)

type Options struct {
	// ViewerID is the user the store is kept for. Their own messages never
	// count as unread and their own typing signals are ignored.
	ViewerID    string
	Clock       clockwork.Clock
	TypingTTL   time.Duration
	MatchWindow time.Duration
}

type TypingUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type typingEntry struct {
	username string
	expires  time.Time
}

type channelState struct {
	meta       models.Channel
	listed     bool
	messages   []*models.Message
	byID       map[string]*models.Message
	lastReadAt time.Time
	typing     map[string]typingEntry
	ready      bool
	historyErr error
}

func newChannelState(id string) *channelState {
	return &channelState{
		meta:   models.Channel{ID: id},
		byID:   make(map[string]*models.Message),
		typing: make(map[string]typingEntry),
	}
}

type Store struct {
	viewerID    string
	clock       clockwork.Clock
	typingTTL   time.Duration
	matchWindow time.Duration

	mu       sync.RWMutex
	channels map[string]*channelState
	order    []string
	presence map[string]models.Presence
}

func New(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = DefaultTypingTTL
	}
	if opts.MatchWindow <= 0 {
		opts.MatchWindow = DefaultMatchWindow
	}
	return &Store{
		viewerID:    opts.ViewerID,
		clock:       opts.Clock,
		typingTTL:   opts.TypingTTL,
		matchWindow: opts.MatchWindow,
		channels:    make(map[string]*channelState),
		presence:    make(map[string]models.Presence),
	}
}

func (s *Store) ViewerID() string {
	return s.viewerID
}

// channel returns the state for id, creating it on first use. Callers hold
// the write lock.
func (s *Store) channel(id string) *channelState {
	ch, ok := s.channels[id]
	if !ok {
		ch = newChannelState(id)
		s.channels[id] = ch
		s.order = append(s.order, id)
	}
	return ch
}

// ApplyChannels seeds channel metadata from the campaign channel list. A
// server-side read watermark only ever moves the local one forward.
func (s *Store) ApplyChannels(channels []models.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listed := make([]string, 0, len(channels))
	for _, c := range channels {
		if c.ID == "" {
			continue
		}
		ch := s.channel(c.ID)
		ch.meta = c
		ch.meta.UnreadCount = 0
		ch.meta.LastReadAt = nil
		ch.listed = true
		if c.LastReadAt != nil && c.LastReadAt.After(ch.lastReadAt) {
			ch.lastReadAt = *c.LastReadAt
		}
		listed = append(listed, c.ID)
	}

	// Listed channels come first, in server order.
	seen := make(map[string]bool, len(listed))
	order := make([]string, 0, len(s.order))
	for _, id := range listed {
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	for _, id := range s.order {
		if !seen[id] {
			order = append(order, id)
		}
	}
	s.order = order
}

// ApplyHistory merges a fetched page into the channel and marks it ready.
func (s *Store) ApplyHistory(channelID string, messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.channel(channelID)
	for i := range messages {
		msg := messages[i]
		if msg.ChannelID == "" {
			msg.ChannelID = channelID
		}
		if msg.ChannelID != channelID || msg.ID == "" {
			continue
		}
		s.mergeLocked(ch, msg)
	}
	s.sortLocked(ch)
	ch.ready = true
	ch.historyErr = nil
}

// ApplyIncomingMessage merges one authoritative message. A message whose id
// is already held replaces it (edits, re-delivery). Otherwise it replaces
// the optimistic placeholder it confirms, if any, or is inserted.
func (s *Store) ApplyIncomingMessage(msg models.Message) {
	if msg.ID == "" || msg.ChannelID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.channel(msg.ChannelID)
	s.mergeLocked(ch, msg)
	s.sortLocked(ch)
}

// ReconcileOptimistic replaces the placeholder of clientID with the
// server's reply to that send.
func (s *Store) ReconcileOptimistic(channelID, clientID string, msg models.Message) {
	if msg.ClientID == "" {
		msg.ClientID = clientID
	}
	if msg.ChannelID == "" {
		msg.ChannelID = channelID
	}
	s.ApplyIncomingMessage(msg)
}

func (s *Store) mergeLocked(ch *channelState, msg models.Message) {
	msg.Status = models.DeliveryStatusSent
	if existing, ok := ch.byID[msg.ID]; ok {
		*existing = msg
		s.dropConfirmedPlaceholderLocked(ch, msg)
		return
	}
	if placeholder := s.matchPlaceholderLocked(ch, msg); placeholder != nil {
		delete(ch.byID, placeholder.ID)
		*placeholder = msg
		ch.byID[msg.ID] = placeholder
		return
	}
	m := msg
	ch.messages = append(ch.messages, &m)
	ch.byID[m.ID] = &m
}

// dropConfirmedPlaceholderLocked removes a placeholder still waiting on a
// message that already arrived under its real id through another path.
func (s *Store) dropConfirmedPlaceholderLocked(ch *channelState, msg models.Message) {
	if msg.ClientID == "" {
		return
	}
	if p, ok := ch.byID[models.PlaceholderID(msg.ClientID)]; ok && p.IsPlaceholder() {
		s.removeLocked(ch, p.ID)
	}
}

// matchPlaceholderLocked finds the placeholder an authoritative message
// confirms: by correlation id first, then for the viewer's own messages
// the oldest placeholder with the same content inside the match window.
func (s *Store) matchPlaceholderLocked(ch *channelState, msg models.Message) *models.Message {
	if msg.ClientID != "" {
		if p, ok := ch.byID[models.PlaceholderID(msg.ClientID)]; ok && p.IsPlaceholder() {
			return p
		}
	}
	if s.viewerID == "" || msg.UserID != s.viewerID {
		return nil
	}
	var best *models.Message
	for _, p := range ch.messages {
		if !p.IsPlaceholder() || p.Content != msg.Content {
			continue
		}
		if msg.ClientID != "" && p.ClientID != "" && p.ClientID != msg.ClientID {
			continue
		}
		if absDuration(msg.CreatedAt.Sub(p.CreatedAt)) > s.matchWindow {
			continue
		}
		if best == nil || p.Before(best) {
			best = p
		}
	}
	return best
}

func (s *Store) sortLocked(ch *channelState) {
	sort.SliceStable(ch.messages, func(i, j int) bool {
		return ch.messages[i].Before(ch.messages[j])
	})
}

// AddOptimisticMessage inserts a pending placeholder for a send that has
// not been confirmed yet and returns it. The placeholder is keyed by the
// client id, which must be set.
func (s *Store) AddOptimisticMessage(msg models.Message) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = models.PlaceholderID(msg.ClientID)
	msg.Status = models.DeliveryStatusPending
	if msg.UserID == "" {
		msg.UserID = s.viewerID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.clock.Now()
	}

	ch := s.channel(msg.ChannelID)
	if existing, ok := ch.byID[msg.ID]; ok {
		*existing = msg
	} else {
		m := msg
		ch.messages = append(ch.messages, &m)
		ch.byID[m.ID] = &m
	}
	s.sortLocked(ch)
	return msg
}

// FailOptimistic marks a still-pending placeholder failed. It reports
// false when the send was already confirmed.
func (s *Store) FailOptimistic(channelID, clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return false
	}
	p, ok := ch.byID[models.PlaceholderID(clientID)]
	if !ok || p.Status != models.DeliveryStatusPending {
		return false
	}
	p.Status = models.DeliveryStatusFailed
	return true
}

// RetryOptimistic flips a failed placeholder back to pending and returns
// it for re-sending.
func (s *Store) RetryOptimistic(channelID, clientID string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return models.Message{}, false
	}
	p, ok := ch.byID[models.PlaceholderID(clientID)]
	if !ok || p.Status != models.DeliveryStatusFailed {
		return models.Message{}, false
	}
	p.Status = models.DeliveryStatusPending
	return *p, true
}

func (s *Store) RemoveMessage(channelID, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return false
	}
	return s.removeLocked(ch, messageID)
}

func (s *Store) removeLocked(ch *channelState, messageID string) bool {
	if _, ok := ch.byID[messageID]; !ok {
		return false
	}
	delete(ch.byID, messageID)
	for i, m := range ch.messages {
		if m.ID == messageID {
			ch.messages = append(ch.messages[:i], ch.messages[i+1:]...)
			break
		}
	}
	return true
}

// FindMessage looks a message up by id across all channels.
func (s *Store) FindMessage(messageID string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.channels {
		if m, ok := ch.byID[messageID]; ok {
			return *m, true
		}
	}
	return models.Message{}, false
}

func (s *Store) MessagesFor(channelID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return []models.Message{}
	}
	out := make([]models.Message, len(ch.messages))
	for i, m := range ch.messages {
		out[i] = *m
	}
	return out
}

// NewestID and OldestID return the newest and oldest confirmed message ids,
// used as paging cursors.
func (s *Store) NewestID(channelID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ch, ok := s.channels[channelID]; ok {
		for i := len(ch.messages) - 1; i >= 0; i-- {
			if !ch.messages[i].IsPlaceholder() {
				return ch.messages[i].ID
			}
		}
	}
	return ""
}

func (s *Store) OldestID(channelID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ch, ok := s.channels[channelID]; ok {
		for _, m := range ch.messages {
			if !m.IsPlaceholder() {
				return m.ID
			}
		}
	}
	return ""
}

// UnreadCountFor counts confirmed messages from other users newer than the
// read watermark. It is recomputed on every call.
func (s *Store) UnreadCountFor(channelID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return 0
	}
	return s.unreadLocked(ch)
}

func (s *Store) unreadLocked(ch *channelState) int {
	n := 0
	for _, m := range ch.messages {
		if m.IsPlaceholder() || (s.viewerID != "" && m.UserID == s.viewerID) {
			continue
		}
		if m.CreatedAt.After(ch.lastReadAt) {
			n++
		}
	}
	return n
}

// MarkRead moves the read watermark up to the newest held message, or to
// now for a channel that was never read and holds nothing. It never moves
// the watermark backwards, so repeated calls are no-ops.
func (s *Store) MarkRead(channelID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.channel(channelID)
	var target time.Time
	for i := len(ch.messages) - 1; i >= 0; i-- {
		if !ch.messages[i].IsPlaceholder() {
			target = ch.messages[i].CreatedAt
			break
		}
	}
	if target.IsZero() && ch.lastReadAt.IsZero() {
		target = s.clock.Now()
	}
	if target.After(ch.lastReadAt) {
		ch.lastReadAt = target
	}
	return ch.lastReadAt
}

func (s *Store) LastReadAt(channelID string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ch, ok := s.channels[channelID]; ok {
		return ch.lastReadAt
	}
	return time.Time{}
}

// ApplyTyping records a remote typing signal. The viewer's own signals are
// ignored; a start refreshes the entry's expiry.
func (s *Store) ApplyTyping(channelID string, signal models.TypingSignal) {
	if channelID == "" || signal.UserID == "" || signal.UserID == s.viewerID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.channel(channelID)
	if !signal.IsTyping {
		delete(ch.typing, signal.UserID)
		return
	}
	username := signal.Username
	if username == "" {
		if p, ok := s.presence[signal.UserID]; ok {
			username = p.Username
		}
	}
	ch.typing[signal.UserID] = typingEntry{
		username: username,
		expires:  s.clock.Now().Add(s.typingTTL),
	}
}

// TypingUsersFor lists users whose typing signal has not expired, sorted by
// username.
func (s *Store) TypingUsersFor(channelID string) []TypingUser {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []TypingUser{}
	ch, ok := s.channels[channelID]
	if !ok {
		return out
	}
	now := s.clock.Now()
	for id, e := range ch.typing {
		if now.Before(e.expires) {
			out = append(out, TypingUser{UserID: id, Username: e.username})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Sweep drops expired typing entries and returns the channels that changed.
func (s *Store) Sweep() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var changed []string
	for _, id := range s.order {
		ch := s.channels[id]
		dropped := false
		for uid, e := range ch.typing {
			if !now.Before(e.expires) {
				delete(ch.typing, uid)
				dropped = true
			}
		}
		if dropped {
			changed = append(changed, id)
		}
	}
	return changed
}

func (s *Store) ClearTyping(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.channels[channelID]; ok {
		ch.typing = make(map[string]typingEntry)
	}
}

func (s *Store) ApplyPresenceUpdate(p models.Presence) {
	if p.UserID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[p.UserID] = p
}

// ApplyPresenceSnapshot replaces the whole presence table.
func (s *Store) ApplyPresenceSnapshot(users []models.Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.presence = make(map[string]models.Presence, len(users))
	for _, p := range users {
		if p.UserID != "" {
			s.presence[p.UserID] = p
		}
	}
}

// Presence lists every known user sorted by username.
func (s *Store) Presence() []models.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Presence, 0, len(s.presence))
	for _, p := range s.presence {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Channels lists channel metadata annotated with the local read state.
func (s *Store) Channels() []models.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Channel, 0, len(s.order))
	for _, id := range s.order {
		ch := s.channels[id]
		c := ch.meta
		c.UnreadCount = s.unreadLocked(ch)
		if !ch.lastReadAt.IsZero() {
			c.LastReadAt = util.Ptr(ch.lastReadAt)
		}
		if n := len(ch.messages); n > 0 {
			if t := ch.messages[n-1].CreatedAt; t.After(util.Val(c.LastMessageAt)) {
				c.LastMessageAt = util.Ptr(t)
			}
		}
		out = append(out, c)
	}
	return out
}

func (s *Store) SetHistoryError(channelID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel(channelID).historyErr = err
}

func (s *Store) HistoryError(channelID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ch, ok := s.channels[channelID]; ok {
		return ch.historyErr
	}
	return nil
}

// Ready reports whether at least one history page has been applied.
func (s *Store) Ready(channelID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ch, ok := s.channels[channelID]; ok {
		return ch.ready
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
