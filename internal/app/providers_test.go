package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	"github.com/nguyentranbao-ct/campaign-chat/internal/config"
	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	"github.com/nguyentranbao-ct/campaign-chat/internal/repo/chatapi"
	"github.com/nguyentranbao-ct/campaign-chat/internal/usecase"
)

func testConfig(apiURL, socketURL string) *config.Config {
	conf := &config.Config{}
	conf.API.BaseURL = apiURL
	conf.API.Timeout = 2 * time.Second
	conf.Socket.URL = socketURL
	conf.Socket.ReconnectBase = time.Second
	conf.Socket.MaxAttempts = 5
	conf.Socket.HandshakeTimeout = 2 * time.Second
	conf.Socket.WriteTimeout = time.Second
	conf.Session.CampaignID = "camp-1"
	conf.Session.UserID = "me"
	conf.Session.Credential = "opaque-token"
	conf.Session.ChannelID = "c1"
	conf.Session.HistoryLimit = 50
	return conf
}

func buildSession(t *testing.T, conf *config.Config) *usecase.Session {
	t.Helper()
	factory := newTransportFactory(conf, newSocketDialer(conf))
	s, err := newSession(conf, chatapi.NewChatAPIClient(conf), factory)
	require.NoError(t, err)
	return s
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNewSessionFromConfig(t *testing.T) {
	conf := testConfig("http://127.0.0.1:1", "ws://127.0.0.1:1/ws")
	s := buildSession(t, conf)
	defer s.Stop()

	snap := s.State()
	assert.Equal(t, "me", snap.ViewerID)
	assert.Equal(t, "camp-1", snap.CampaignID)
	assert.Equal(t, usecase.SessionIdle, snap.State)
}

func TestStartSessionRejectedCredentialAbortsStart(t *testing.T) {
	socketSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer socketSrv.Close()

	conf := testConfig("http://127.0.0.1:1", wsURL(socketSrv))
	s := buildSession(t, conf)

	lc := fxtest.NewLifecycle(t)
	StartSession(lc, conf, s)

	err := lc.Start(context.Background())
	assert.ErrorIs(t, err, models.ErrAuthRejected)
	assert.Equal(t, usecase.SessionFailed, s.State().State)
	s.Stop()
}

func TestStartSessionBootstrapsInitialChannel(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/campaigns/camp-1/channels":
			_, _ = w.Write([]byte(`[{"id":"c1","name":"tavern","category":"general"}]`))
		case "/campaigns/camp-1/users":
			_, _ = w.Write([]byte(`[{"id":"u1","username":"Mira","status":"online","role":"player"}]`))
		case "/channels/c1/messages":
			_, _ = w.Write([]byte(`[{"id":"m1","channelId":"c1","userId":"u1","username":"Mira","content":"hello","type":"text","timestamp":"2024-03-01T20:00:00Z"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer apiSrv.Close()

	upgrader := websocket.Upgrader{}
	socketSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "camp-1", r.URL.Query().Get("campaignId"))
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer socketSrv.Close()

	conf := testConfig(apiSrv.URL, wsURL(socketSrv))
	s := buildSession(t, conf)

	lc := fxtest.NewLifecycle(t)
	StartSession(lc, conf, s)
	lc.RequireStart()

	require.Eventually(t, func() bool {
		snap := s.State()
		return snap.State == usecase.SessionReady && snap.ActiveChannel == "c1"
	}, 3*time.Second, 10*time.Millisecond)

	messages := s.Store().MessagesFor("c1")
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)

	require.Eventually(t, func() bool {
		return len(s.Store().Presence()) == 1 && len(s.Store().Channels()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "tavern", s.Store().Channels()[0].Name)

	lc.RequireStop()
}
