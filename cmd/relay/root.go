package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pagure/eventrelay/internal/config"
	"github.com/pagure/eventrelay/internal/health"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "eventrelay",
		Short:         "Relay daemons bridging forge events to the outside world",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/pagure/eventrelay.yml", "config file path")

	cmd.AddCommand(
		newEvCmd(&configPath),
		newWebhookCmd(&configPath),
		newCICmd(&configPath),
		newLoadJSONCmd(&configPath),
	)

	return cmd
}

// setup loads the configuration and builds the per-daemon logger every
// subcommand starts from.
func setup(configPath, daemon string) (*config.Config, *logrus.Entry, error) {
	cfg, err := config.New(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return cfg, logger.WithField("daemon", daemon), nil
}

// signalContext is cancelled on SIGINT or SIGTERM so every daemon can
// close its sockets and broker connection before exiting 0.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// startHealth runs the operator endpoint in the background when one is
// configured. It never takes the daemon down with it.
func startHealth(ctx context.Context, addr, daemon string, stats func() int64, log *logrus.Entry) {
	if addr == "" {
		return
	}

	go func() {
		if err := health.New(daemon, stats).Serve(ctx, addr); err != nil {
			log.Errorf("health endpoint: %v", err)
		}
	}()
}
