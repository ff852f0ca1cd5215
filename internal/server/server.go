package server

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/campaign-chat/internal/config"
	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	pkgmdw "github.com/nguyentranbao-ct/campaign-chat/internal/server/middleware"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger/log"
)

// NewEcho builds the gateway with its middleware chain and routes.
func NewEcho(conf *config.Config, handler Controller) (*echo.Echo, error) {
	origins, err := regexp.Compile(conf.Server.CORSOrigins)
	if err != nil {
		return nil, err
	}
	httpLog := logger.MustNamed("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = pkgmdw.NewValidator().
		RegisterValidation("message_type", func(fl validator.FieldLevel) bool {
			return models.MessageType(fl.Field().String()).Valid()
		})
	e.HTTPErrorHandler = errorHandler(httpLog)

	quiet := func(c echo.Context) bool {
		switch c.Path() {
		case "/health", "/metrics", "/api/v1/events":
			return true
		}
		return false
	}

	e.Use(pkgmdw.Metrics("/metrics", quiet))
	e.Use(pkgmdw.RequestID())
	e.Use(pkgmdw.CORS(origins))
	e.Use(pkgmdw.LogRequest(pkgmdw.LogRequestConfig{
		Logger:  httpLog,
		Skipper: quiet,
		RequestBody: func(c echo.Context) bool {
			return c.Request().Method != http.MethodGet
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Errorw(c.Request().Context(), "PANIC RECOVER", "error", err, "stack", string(stack))
			return nil
		},
	}))

	e.GET("/health", handler.Health)

	api := e.Group("/api/v1")
	api.GET("/events", handler.Events)
	api.GET("/session", pkgmdw.WrapHandler(handler.GetSession))
	api.POST("/session/retry", pkgmdw.WrapHandler(handler.RetrySession))
	api.GET("/users", pkgmdw.WrapHandler(handler.ListUsers))

	channels := api.Group("/channels")
	channels.GET("", pkgmdw.WrapHandler(handler.ListChannels))
	channels.POST("/:channel_id/select", pkgmdw.WrapHandler(handler.SelectChannel))
	channels.GET("/:channel_id/messages", pkgmdw.WrapHandler(handler.ListMessages))
	channels.POST("/:channel_id/messages", pkgmdw.WrapHandler(handler.SendMessage))
	channels.POST("/:channel_id/messages/:client_id/retry", pkgmdw.WrapHandler(handler.RetryMessage))
	channels.GET("/:channel_id/typing", pkgmdw.WrapHandler(handler.ListTyping))
	channels.POST("/:channel_id/typing", pkgmdw.WrapHandler(handler.SetTyping))
	channels.POST("/:channel_id/read", pkgmdw.WrapHandler(handler.MarkRead))

	messages := api.Group("/messages")
	messages.PUT("/:message_id", pkgmdw.WrapHandler(handler.EditMessage))
	messages.DELETE("/:message_id", pkgmdw.WrapHandler(handler.DeleteMessage))
	messages.POST("/:message_id/reactions", pkgmdw.WrapHandler(handler.AddReaction))
	messages.DELETE("/:message_id/reactions", pkgmdw.WrapHandler(handler.RemoveReaction))

	return e, nil
}

func StartServer(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	conf *config.Config,
	handler Controller,
) error {
	e, err := NewEcho(conf, handler)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Infow(ctx, "starting session gateway", "addr", conf.Server.Addr)
				if err := e.Start(conf.Server.Addr); !errors.Is(err, http.ErrServerClosed) {
					log.Errorw(context.Background(), "session gateway stopped", "error", err)
					_ = sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
	return nil
}
