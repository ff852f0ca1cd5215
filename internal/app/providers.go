package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/campaign-chat/internal/config"
	"github.com/nguyentranbao-ct/campaign-chat/internal/repo/chatapi"
	"github.com/nguyentranbao-ct/campaign-chat/internal/repo/socket"
	"github.com/nguyentranbao-ct/campaign-chat/internal/server"
	"github.com/nguyentranbao-ct/campaign-chat/internal/usecase"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger/log"
)

func newSocketDialer(conf *config.Config) socket.Dialer {
	return socket.NewWebsocketDialer(conf.Socket.HandshakeTimeout, conf.Socket.WriteTimeout)
}

func newTransportFactory(conf *config.Config, dialer socket.Dialer) usecase.TransportFactory {
	return usecase.NewSocketTransportFactory(dialer, socket.Options{
		Backoff: socket.BackoffPolicy{
			Base:        conf.Socket.ReconnectBase,
			MaxAttempts: conf.Socket.MaxAttempts,
		},
		DialTimeout: conf.Socket.HandshakeTimeout,
	})
}

func newSession(conf *config.Config, api chatapi.Client, transport usecase.TransportFactory) (*usecase.Session, error) {
	return usecase.NewSession(usecase.SessionParams{
		Config: usecase.SessionConfig{
			CampaignID:     conf.Session.CampaignID,
			ViewerID:       conf.Session.UserID,
			Credential:     conf.Session.Credential,
			SocketURL:      conf.Socket.URL,
			TypingIdle:     conf.Session.TypingIdle,
			TypingTTL:      conf.Session.TypingTTL,
			PendingTimeout: conf.Session.PendingTimeout,
			MatchWindow:    conf.Session.MatchWindow,
			HistoryLimit:   conf.Session.HistoryLimit,
		},
		API:       api,
		Transport: transport,
		Logger:    logger.MustNamed("session"),
	})
}

func newSessionService(s *usecase.Session) server.SessionService {
	return s
}

// StartSession opens the campaign stream when the app starts and closes it
// on stop. A rejected credential aborts startup. The campaign snapshot and
// the initial channel load in the background so a slow chat API does not
// block the start timeout.
func StartSession(lc fx.Lifecycle, conf *config.Config, session *usecase.Session) {
	bootCtx, cancel := context.WithCancel(context.Background())
	bootCtx = log.WithLogger(bootCtx, logger.MustNamed("boot"))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := session.Start(ctx); err != nil {
				cancel()
				return err
			}
			go bootstrap(bootCtx, session, conf.Session.ChannelID)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			session.Stop()
			return nil
		},
	})
}

func bootstrap(ctx context.Context, session *usecase.Session, channelID string) {
	if err := session.LoadCampaign(ctx); err != nil {
		log.Warnw(ctx, "load campaign snapshot", "error", err)
	}
	if channelID == "" {
		return
	}
	if err := session.SelectChannel(ctx, channelID); err != nil {
		log.Warnw(ctx, "select initial channel", "channel_id", channelID, "error", err)
	}
}
