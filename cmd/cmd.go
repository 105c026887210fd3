package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/webitel/im-support-service/config"
	"github.com/webitel/im-support-service/internal/domain/model"
)

const (
	ServiceName      = "im-support-service"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	model.ServerVersion = version

	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Peer support chat: presence, pairing and live dashboards",
		Version: version + " (" + commit + "@" + branch + ")",
		Commands: []*cli.Command{
			serverCmd(),
			monitorCmd(),
			snapshotCmd(),
			kickCmd(),
			terminateCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:      "server",
		Aliases:   []string{"s"},
		Usage:     "Run the HTTP, WebSocket and gRPC servers",
		ArgsUsage: "[-- --key=value ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Usage:   "Path to the configuration file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG_FILE"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"), c.Args().Slice())
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}
			slog.Info("[SERVER] started",
				slog.String("version", version),
				slog.String("commit", commit),
				slog.String("commit_date", commitDate),
				slog.String("build_ts", buildTimestamp),
				slog.String("http", cfg.HTTP.Address),
				slog.String("grpc", cfg.GRPC.Address),
			)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return app.Stop(ctx)
		},
	}
}

// viewerFlags identify the operator against the dashboard endpoints.
func viewerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Value:   "http://localhost:8080",
			Usage:   "Base URL of a running server",
			EnvVars: []string{config.EnvPrefix + "_ADDR"},
		},
		&cli.Int64Flag{
			Name:  "user_id",
			Value: 1,
			Usage: "Operator user id",
		},
		&cli.StringFlag{
			Name:  "role",
			Value: model.RoleAdmin.String(),
			Usage: "Operator role (LISTENER or ADMIN)",
		},
	}
}

func viewerOf(c *cli.Context) (model.UserIdentity, error) {
	role, err := model.ParseRole(c.String("role"))
	if err != nil {
		return model.UserIdentity{}, err
	}
	return model.UserIdentity{ID: model.UserID(c.Int64("user_id")), Role: role}, nil
}
