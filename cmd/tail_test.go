package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	"github.com/nguyentranbao-ct/campaign-chat/internal/store"
	"github.com/nguyentranbao-ct/campaign-chat/internal/usecase"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger"
)

func TestDefaultTailFormat(t *testing.T) {
	format, err := parseTailFormat(defaultTailFormat)
	require.NoError(t, err)

	var out bytes.Buffer
	tl := &tail{format: format, out: &out, log: logger.NewNop()}
	at := time.Date(2024, 3, 1, 20, 4, 5, 0, time.Local)

	tl.printMessage(models.Message{
		ID: "m1", ChannelID: "tavern", UserID: "u1", Username: "Mira",
		Content: "hello", CreatedAt: at, Status: models.DeliveryStatusSent,
	}, 0)
	tl.printMessage(models.Message{
		ID: "local:c1", ChannelID: "tavern", UserID: "me",
		Content: "on my way", CreatedAt: at, Status: models.DeliveryStatusPending,
	}, 0)
	tl.printMessage(models.Message{
		ID: "m2", ChannelID: "tavern", UserID: "u2", Username: "GM", Content: "rolls",
		Type: models.MessageTypeDiceRoll, CreatedAt: at, Status: models.DeliveryStatusSent,
		Metadata: map[string]any{"formula": "1d20", "results": []any{20.0}, "total": 20.0, "critical": true},
	}, 0)

	assert.Equal(t,
		"[20:04:05] #tavern Mira: hello\n"+
			"[20:04:05] #tavern me: on my way [pending]\n"+
			"[20:04:05] #tavern GM: rolls (1d20 = 20, critical)\n",
		out.String())
}

func TestCustomTailFormat(t *testing.T) {
	format, err := parseTailFormat(`{{.Username}} ({{.Unread}} unread)`)
	require.NoError(t, err)

	var out bytes.Buffer
	tl := &tail{format: format, out: &out, log: logger.NewNop()}
	tl.printMessage(models.Message{ID: "m1", Username: "Mira"}, 3)
	assert.Equal(t, "Mira (3 unread)\n", out.String())
}

func TestTailFormatRejected(t *testing.T) {
	_, err := parseTailFormat(`{{.Nope`)
	assert.Error(t, err)

	_, err = parseTailFormat(`{{if false}}x{{end}}`)
	assert.ErrorContains(t, err, "empty line")
}

type tailSession struct {
	st *store.Store
}

func (s tailSession) State() usecase.Snapshot { return usecase.Snapshot{} }
func (s tailSession) Store() *store.Store     { return s.st }

func TestTailPrintsEveryChangedMessage(t *testing.T) {
	base := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	st := store.New(store.Options{ViewerID: "me", Clock: clockwork.NewFakeClockAt(base.Add(time.Minute))})

	format, err := parseTailFormat(`{{.ID}} {{.Content}}{{if ne .Status "sent"}} [{{.Status}}]{{end}}`)
	require.NoError(t, err)
	var out bytes.Buffer
	tl := newTail(tailSession{st: st}, format, &out)
	tl.log = logger.NewNop()

	changed := func() string {
		out.Reset()
		tl.onChange(usecase.Change{Kind: usecase.ChangeMessages, ChannelID: "c1"})
		return out.String()
	}

	st.ApplyHistory("c1", []models.Message{
		{ID: "m3", UserID: "u1", Content: "three", CreatedAt: base.Add(3 * time.Second)},
		{ID: "m1", UserID: "u1", Content: "one", CreatedAt: base.Add(time.Second)},
		{ID: "m2", UserID: "u1", Content: "two", CreatedAt: base.Add(2 * time.Second)},
	})
	assert.Equal(t, "m1 one\nm2 two\nm3 three\n", changed())
	assert.Empty(t, changed())

	edited := base.Add(time.Minute)
	st.ApplyIncomingMessage(models.Message{
		ID: "m1", ChannelID: "c1", UserID: "u1", Content: "one, fixed",
		CreatedAt: base.Add(time.Second), EditedAt: &edited,
	})
	assert.Equal(t, "m1 one, fixed\n", changed())

	placeholder := st.AddOptimisticMessage(models.Message{ChannelID: "c1", Content: "mine", ClientID: "k1"})
	assert.Equal(t, placeholder.ID+" mine [pending]\n", changed())

	st.ApplyHistory("c1", []models.Message{
		{ID: "m0", UserID: "u1", Content: "zero", CreatedAt: base},
	})
	st.ReconcileOptimistic("c1", "k1", models.Message{ID: "m4", UserID: "me", Content: "mine", CreatedAt: base.Add(time.Minute)})
	assert.Equal(t, "m0 zero\nm4 mine\n", changed())

	st.RemoveMessage("c1", "m2")
	assert.Empty(t, changed())
}
