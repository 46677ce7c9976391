package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pagure/eventrelay/internal/broker"
	"github.com/pagure/eventrelay/internal/ci"
	"github.com/pagure/eventrelay/internal/config"
	"github.com/pagure/eventrelay/internal/ev"
	"github.com/pagure/eventrelay/internal/gitsync"
	"github.com/pagure/eventrelay/internal/notify"
	"github.com/pagure/eventrelay/internal/resolver"
	"github.com/pagure/eventrelay/internal/store"
	"github.com/pagure/eventrelay/internal/webhook"
	"github.com/pagure/eventrelay/pkg/channel"
)

// brokerSource adapts the broker client to the stream relay's
// per-session subscription interface.
type brokerSource struct {
	broker *broker.Broker
}

func (s brokerSource) Subscribe(ctx context.Context, name string) (ev.Subscription, error) {
	return s.broker.Subscribe(ctx, name)
}

func newEvCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ev",
		Short: "Run the eventsource stream relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath, "ev")
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			st, err := store.Open(cfg.DBURL)
			if err != nil {
				return err
			}
			defer st.Close()

			b := broker.New(cfg.RedisAddr(), cfg.Redis.DB)
			defer b.Close()

			srv := ev.NewServer(ev.Config{
				Addr:   fmt.Sprintf(":%d", cfg.EventSource.Port),
				Origin: cfg.Origin(),
			}, brokerSource{broker: b}, resolver.New(st), log)

			if cfg.EventSource.StatsPort != 0 {
				stats := ev.NewStatsServer(fmt.Sprintf(":%d", cfg.EventSource.StatsPort), srv.ActiveClients, log)
				go func() {
					if err := stats.Start(ctx); err != nil {
						log.Errorf("stats server: %v", err)
					}
				}()
			}

			startHealth(ctx, cfg.HealthAddr, "ev", srv.ActiveClients, log)

			err = srv.Start(ctx)
			if ctx.Err() != nil {
				log.Info("shutting down")
				return nil
			}
			return err
		},
	}
}

func newWebhookCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "webhook",
		Short: "Run the webhook dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath, "webhook")
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			st, err := store.Open(cfg.DBURL)
			if err != nil {
				return err
			}
			defer st.Close()

			startHealth(ctx, cfg.HealthAddr, "webhook", nil, log)

			dispatcher := webhook.NewDispatcher(st, cfg.Origin(), log)

			return runSubscribed(ctx, cfg, channel.Hook, log, func(ctx context.Context, sub *broker.Subscription) error {
				return dispatcher.Run(ctx, sub)
			})
		},
	}
}

func newCICmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ci",
		Short: "Run the CI trigger relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath, "ci")
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			st, err := store.Open(cfg.DBURL)
			if err != nil {
				return err
			}
			defer st.Close()

			startHealth(ctx, cfg.HealthAddr, "ci", nil, log)

			relay := ci.New(ci.RelayOptions{Store: st, GitURL: cfg.GitURL}, log)

			return runSubscribed(ctx, cfg, channel.CI, log, func(ctx context.Context, sub *broker.Subscription) error {
				return relay.Run(ctx, sub)
			})
		},
	}
}

func newLoadJSONCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "loadjson",
		Short: "Run the git-to-database sync relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath, "loadjson")
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			st, err := store.Open(cfg.DBURL)
			if err != nil {
				return err
			}
			defer st.Close()

			startHealth(ctx, cfg.HealthAddr, "loadjson", nil, log)

			mailer := notify.NewSMTPMailer(notify.SMTPOptions{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				From:     cfg.SMTP.From,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
			})

			relay := gitsync.New(st, gitsync.LocalGit{}, mailer, log)

			return runSubscribed(ctx, cfg, channel.LoadJSON, log, func(ctx context.Context, sub *broker.Subscription) error {
				return relay.Run(ctx, sub)
			})
		},
	}
}

// runSubscribed opens the daemon's single always-on subscription and
// runs its loop until the broker is lost (exit non-zero, the
// supervisor restarts us) or the process is told to stop (exit 0).
func runSubscribed(ctx context.Context, cfg *config.Config, name string, log *logrus.Entry, run func(context.Context, *broker.Subscription) error) error {
	b := broker.New(cfg.RedisAddr(), cfg.Redis.DB)
	defer b.Close()

	subscribeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sub, err := b.Subscribe(subscribeCtx, name)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", name, err)
	}
	defer sub.Close()

	log.Infof("subscribed to %s", name)

	err = run(ctx, sub)
	if ctx.Err() != nil {
		log.Info("shutting down")
		return nil
	}
	return err
}
