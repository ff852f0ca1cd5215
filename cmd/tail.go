package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	"github.com/nguyentranbao-ct/campaign-chat/internal/store"
	"github.com/nguyentranbao-ct/campaign-chat/internal/usecase"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/tmplx"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/util"
)

const defaultTailFormat = `[{{clock .CreatedAt}}] #{{.ChannelID}} {{default .UserID .Username}}: {{.Content}}` +
	`{{with .Roll}} ({{.Formula}} = {{.Total}}{{if .Critical}}, critical{{end}}){{end}}` +
	`{{if ne .Status "sent"}} [{{.Status}}]{{end}}`

// tailLine is the data a tail format renders.
type tailLine struct {
	models.Message
	Unread int
	Roll   *models.DiceRoll
}

func parseTailFormat(text string) (*tmplx.Template, error) {
	sample := tailLine{Message: models.Message{
		ID: "m1", ChannelID: "general", UserID: "u1", Username: "gm",
		Content: "sample", Type: models.MessageTypeText, Status: models.DeliveryStatusSent,
	}}
	return tmplx.Parse("tail", text, tmplx.WithValidate(sample, func(buf *bytes.Buffer) error {
		if buf.Len() == 0 {
			return errors.New("format renders an empty line")
		}
		return nil
	}))
}

// tailSource is the part of *usecase.Session tail reads.
type tailSource interface {
	State() usecase.Snapshot
	Store() *store.Store
}

// tail prints messages and logs the other store changes of a headless
// session. Its methods run on the session loop.
type tail struct {
	session tailSource
	format  *tmplx.Template
	out     io.Writer
	log     *logger.Logger
	// seen holds, per channel, the revision last printed for each message.
	seen map[string]map[string]string
}

func newTail(session tailSource, format *tmplx.Template, out io.Writer) *tail {
	return &tail{
		session: session,
		format:  format,
		out:     out,
		log:     logger.MustNamed("tail"),
		seen:    make(map[string]map[string]string),
	}
}

func startTail(lc fx.Lifecycle, session *usecase.Session, format *tmplx.Template, out io.Writer) {
	t := newTail(session, format, out)
	unsubscribe := session.Subscribe(t.onChange)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			unsubscribe()
			return nil
		},
	})
}

func (t *tail) onChange(c usecase.Change) {
	st := t.session.Store()
	switch c.Kind {
	case usecase.ChangeSession:
		snap := t.session.State()
		t.log.Infow("session", "state", snap.State, "connection", snap.Connection,
			"active_channel", snap.ActiveChannel, "attempt", snap.Attempt, "error", snap.Error)
	case usecase.ChangeMessages:
		t.printChanged(c.ChannelID)
	case usecase.ChangeTyping:
		names := util.ConvertList(st.TypingUsersFor(c.ChannelID), func(u store.TypingUser) string {
			return u.Username
		})
		t.log.Infow("typing", "channel_id", c.ChannelID, "users", names)
	case usecase.ChangePresence:
		t.log.Infow("presence", "users", len(st.Presence()))
	case usecase.ChangeChannels:
		t.log.Infow("read", "channel_id", c.ChannelID, "last_read_at", st.LastReadAt(c.ChannelID))
	}
}

// printChanged prints, in channel order, every message of channelID that is
// new or whose status, content or edit time moved since the last call, and
// logs confirmed messages that went away.
func (t *tail) printChanged(channelID string) {
	st := t.session.Store()
	messages := st.MessagesFor(channelID)
	unread := st.UnreadCountFor(channelID)

	prev := t.seen[channelID]
	next := make(map[string]string, len(messages))
	for _, m := range messages {
		rev := revision(m)
		next[m.ID] = rev
		if prev[m.ID] != rev {
			t.printMessage(m, unread)
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok && !strings.HasPrefix(id, models.PlaceholderID("")) {
			t.log.Infow("message removed", "channel_id", channelID, "id", id)
		}
	}
	t.seen[channelID] = next
}

func revision(m models.Message) string {
	var edited int64
	if m.EditedAt != nil {
		edited = m.EditedAt.UnixNano()
	}
	return fmt.Sprintf("%s|%d|%s", m.Status, edited, m.Content)
}

func (t *tail) printMessage(m models.Message, unread int) {
	line := tailLine{Message: m, Unread: unread}
	if roll, ok := m.DiceRoll(); ok {
		line.Roll = roll
	}
	text, err := t.format.RenderLine(line)
	if err != nil {
		t.log.Warnw("render message", "id", m.ID, "error", err)
		return
	}
	fmt.Fprintln(t.out, text)
}
