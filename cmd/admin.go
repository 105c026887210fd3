package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"github.com/webitel/im-support-service/config"
	"github.com/webitel/im-support-service/infra/pubsub"
	pubsubadapter "github.com/webitel/im-support-service/internal/adapter/pubsub"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/service/dto"
)

var errNoBroker = errors.New("admin commands need --amqp_url: the in-process bus does not reach a server")

func busFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "amqp_url",
			Usage:   "Broker the servers consume admin commands from",
			EnvVars: []string{config.EnvPrefix + "_PUBSUB_AMQP_URL"},
		},
		&cli.StringFlag{
			Name:    "exchange",
			Value:   "im_support.commands",
			Usage:   "Admin command exchange",
			EnvVars: []string{config.EnvPrefix + "_PUBSUB_COMMAND_EXCHANGE"},
		},
		&cli.StringFlag{
			Name:  "reason",
			Usage: "Reason shown to the affected users",
		},
		&cli.StringFlag{
			Name:  "issued_by",
			Value: os.Getenv("USER"),
			Usage: "Operator name recorded with the command",
		},
	}
}

func kickCmd() *cli.Command {
	return &cli.Command{
		Name:      "kick",
		Usage:     "Force a user offline on every node",
		ArgsUsage: "<user_id>",
		Flags:     busFlags(),
		Action: func(c *cli.Context) error {
			id, err := model.ParseUserID(c.Args().First())
			if err != nil {
				return err
			}
			return publishCommand(c, &dto.KickUserV1{
				UserID:   id,
				Reason:   c.String("reason"),
				IssuedBy: c.String("issued_by"),
			})
		},
	}
}

func terminateCmd() *cli.Command {
	return &cli.Command{
		Name:      "terminate",
		Usage:     "End a session on behalf of an operator",
		ArgsUsage: "<session_id>",
		Flags:     busFlags(),
		Action: func(c *cli.Context) error {
			id, err := uuid.Parse(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", c.Args().First(), err)
			}
			return publishCommand(c, &dto.TerminateSessionV1{
				SessionID: id,
				Reason:    c.String("reason"),
				IssuedBy:  c.String("issued_by"),
			})
		},
	}
}

type adminCommand interface {
	event.Exportable
	Validate() error
}

func publishCommand(c *cli.Context, cmd adminCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	url := c.String("amqp_url")
	if url == "" {
		return errNoBroker
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	bus := pubsub.NewProvider(url, watermill.NewSlogLogger(logger))
	defer bus.Close()

	pubs := pubsubadapter.NewPublisherProvider(bus)
	defer pubs.Close()

	pub, err := pubs.Build(c.String("exchange"))
	if err != nil {
		return err
	}

	if err := pubsubadapter.NewEventDispatcher(pub).Publish(c.Context, cmd); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s published\n", cmd.GetRoutingKey())
	return nil
}
