package cmd

import (
	"log/slog"

	"github.com/webitel/im-support-service/config"
	grpcsrv "github.com/webitel/im-support-service/infra/server/grpc"
	httpsrv "github.com/webitel/im-support-service/infra/server/http"
	"github.com/webitel/im-support-service/internal/adapter/persist"
	pubsubadapter "github.com/webitel/im-support-service/internal/adapter/pubsub"
	"github.com/webitel/im-support-service/internal/domain/registry"
	amqpdi "github.com/webitel/im-support-service/internal/handler/amqp"
	"github.com/webitel/im-support-service/internal/handler/rest"
	"github.com/webitel/im-support-service/internal/service"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(options(cfg)...)
}

func options(cfg *config.Config) []fx.Option {
	return []fx.Option{
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvidePubSub,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		pubsubadapter.Module,
		persist.Module,
		service.DomainModule,
		registry.Module,
		service.Module,
		rest.Module,
		httpsrv.Module,
		grpcsrv.Module,
		amqpdi.Module,
	}
}
