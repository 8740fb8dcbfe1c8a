package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/punchagan/childrens-park/bot"
	"github.com/punchagan/childrens-park/internal/logutil"
	"github.com/punchagan/childrens-park/transport"
	"github.com/punchagan/childrens-park/transport/console"
)

func newConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run the channel locally on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			term := console.New("", cmd.InOrStdin(), cmd.OutOrStdout())
			b, err := buildBot(logger, term, viper.GetDuration("console.flush_interval"))
			if err != nil {
				return err
			}
			if err := b.Bootstrap(console.DefaultIdentity); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- b.Run(runCtx)
			}()

			err = term.Run(runCtx, func(m transport.Message) {
				b.HandleInbound(runCtx, m)
			})
			cancel()
			runErr := <-done

			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, bot.ErrRestartRequested) {
				return runErr
			}
			return nil
		},
	}
	return cmd
}
