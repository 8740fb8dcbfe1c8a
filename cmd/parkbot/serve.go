package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/punchagan/childrens-park/bot"
	"github.com/punchagan/childrens-park/history"
	"github.com/punchagan/childrens-park/internal/logutil"
	"github.com/punchagan/childrens-park/state"
	"github.com/punchagan/childrens-park/transport"
	"github.com/punchagan/childrens-park/transport/xmppclient"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 2 * time.Minute
	dialTimeout        = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the XMPP server and run the channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			addr := strings.TrimSpace(viper.GetString("xmpp.jid"))
			password := viper.GetString("xmpp.password")
			if addr == "" || password == "" {
				return fmt.Errorf("missing xmpp.jid or xmpp.password (set via config or %s_XMPP_JID / %s_XMPP_PASSWORD)",
					envPrefix, envPrefix)
			}

			net := &reconnectingNetwork{}
			b, err := buildBot(logger, net, viper.GetDuration("bot.flush_interval"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- b.Run(runCtx)
				cancel()
			}()

			delay := reconnectBaseDelay
			for runCtx.Err() == nil {
				dialCtx, dialCancel := context.WithTimeout(runCtx, dialTimeout)
				client, err := xmppclient.Dial(dialCtx, xmppclient.Config{
					JID:      addr,
					Password: password,
					Logger:   logger,
				})
				dialCancel()
				if err != nil {
					if runCtx.Err() != nil {
						break
					}
					logger.Warn("connect failed", "error", err, "retry_in", delay.String())
					select {
					case <-runCtx.Done():
					case <-time.After(delay):
					}
					delay = min(delay*2, reconnectMaxDelay)
					continue
				}
				delay = reconnectBaseDelay
				logger.Info("connected", "jid", addr)

				net.set(client)
				err = client.Run(runCtx, func(m transport.Message) {
					b.HandleInbound(runCtx, m)
				})
				net.set(nil)
				_ = client.Close()
				if runCtx.Err() != nil {
					break
				}
				logger.Warn("connection lost, reconnecting", "error", err)
			}

			err = <-done
			if errors.Is(err, bot.ErrRestartRequested) {
				logger.Info("restart requested, exiting for the supervisor")
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	return cmd
}

func buildBot(logger *slog.Logger, net bot.Network, flushInterval time.Duration) (*bot.Bot, error) {
	store := state.NewFileStore(expandPath(viper.GetString("bot.state_path")))

	var hist *history.Store
	if viper.GetBool("history.enabled") {
		var err error
		hist, err = history.Open(expandPath(viper.GetString("history.dsn")))
		if err != nil {
			// History is auxiliary: the channel runs without it.
			logger.Warn("history unavailable", "error", err)
			hist = nil
		}
	}

	return bot.New(bot.Options{
		ChannelName:   viper.GetString("bot.channel_name"),
		CommandPrefix: viper.GetString("bot.command_prefix"),
		FlushInterval: flushInterval,
		ChunkLimit:    viper.GetInt("bot.chunk_limit"),
		Admins:        viper.GetStringSlice("bot.admins"),
		PluginDir:     expandPath(viper.GetString("bot.plugin_dir")),
	}, bot.Deps{
		Logger:  logger,
		Store:   store,
		History: hist,
		Network: net,
	})
}

// reconnectingNetwork lets the bot outlive individual XMPP connections: the
// serve loop swaps the live client in and out while the bot keeps running.
type reconnectingNetwork struct {
	mu     sync.Mutex
	client transport.Transport
}

var errNotConnected = errors.New("parkbot: not connected")

func (r *reconnectingNetwork) set(client transport.Transport) {
	r.mu.Lock()
	r.client = client
	r.mu.Unlock()
}

func (r *reconnectingNetwork) current() (transport.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil, errNotConnected
	}
	return r.client, nil
}

func (r *reconnectingNetwork) Send(ctx context.Context, identity, text string) error {
	client, err := r.current()
	if err != nil {
		return err
	}
	return client.Send(ctx, identity, text)
}

func (r *reconnectingNetwork) Friends(ctx context.Context) ([]string, error) {
	client, err := r.current()
	if err != nil {
		return nil, err
	}
	return client.Friends(ctx)
}

func (r *reconnectingNetwork) Invite(ctx context.Context, identity string) error {
	client, err := r.current()
	if err != nil {
		return err
	}
	return client.Invite(ctx, identity)
}
