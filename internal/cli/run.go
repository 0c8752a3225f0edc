package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/warble-im/warble"
	"github.com/warble-im/warble/internal/config"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot against the configured puppet",
		Long: "Run starts the configured puppet, archives inbound traffic, and\n" +
			"answers pings: direct messages saying \"ping\" and room messages that\n" +
			"mention the bot get a reply.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			pup, archive, err := buildPuppet(cfg)
			if err != nil {
				return err
			}
			defer archive.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bot := warble.New(pup, log)
			bot.OnMessage(func(m *warble.Message) {
				if pl, err := bot.Puppet().MessagePayload(ctx, m.ID()); err == nil {
					if err := archive.Put(pl); err != nil {
						log.Warn().Err(err).Str("messageId", m.ID()).Msg("archiving message")
					}
				}
				handleMessage(ctx, bot, m)
			})

			errCh := make(chan error, 1)
			go func() {
				errCh <- pup.Start(ctx)
			}()

			log.Info().Str("puppet", pup.Kind()).Str("selfId", pup.SelfID()).Msg("bot running")

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				return pup.Stop(context.Background())
			}
		},
	}
	return cmd
}

// handleMessage archives the message and answers pings.
func handleMessage(ctx context.Context, bot *warble.Bot, m *warble.Message) {
	log.Info().Str("message", m.String()).Msg("message received")

	if m.Self() {
		return
	}

	text, err := m.Text()
	if err != nil {
		return
	}

	room, err := m.Room()
	if err != nil {
		return
	}

	if room == nil {
		if text == "ping" {
			if _, err := m.Say(ctx, "pong"); err != nil {
				log.Error().Err(err).Msg("replying to ping")
			}
		}
		return
	}

	mentioned, err := m.MentionSelf(ctx)
	if err != nil || !mentioned {
		return
	}
	rest, err := m.MentionText(ctx)
	if err != nil {
		return
	}
	if rest == "ping" {
		if _, err := m.Say(ctx, "pong"); err != nil {
			log.Error().Err(err).Msg("replying to ping")
		}
	}
}
