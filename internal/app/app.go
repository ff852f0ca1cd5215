package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/nguyentranbao-ct/campaign-chat/internal/config"
	"github.com/nguyentranbao-ct/campaign-chat/internal/repo/chatapi"
	"github.com/nguyentranbao-ct/campaign-chat/internal/server"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger"
)

// Invoke builds the application graph around one campaign session and runs
// funcs against it. The session is started and stopped with the app.
func Invoke(funcs ...any) *fx.App {
	conf := config.MustLoad()
	if err := logger.Init(conf.Log); err != nil {
		panic(err)
	}
	log := logger.MustNamed("app")
	log.Debugw("config loaded",
		"server_addr", conf.Server.Addr,
		"api_base_url", conf.API.BaseURL,
		"socket_url", conf.Socket.URL,
		"campaign_id", conf.Session.CampaignID,
		"has_credential", conf.Session.Credential != "",
	)

	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{
				Logger: log.Unwrap().Desugar(),
			}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			chatapi.NewChatAPIClient,
			newSocketDialer,
			newTransportFactory,
			newSession,
			newSessionService,

			server.NewHandler,
		),
		fx.Supply(conf),
		fx.Invoke(StartSession),
		fx.Invoke(funcs...),
	)
}
