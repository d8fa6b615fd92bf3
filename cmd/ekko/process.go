package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/2re1million/ekko/internal/output"
)

func newProcessCmd(deps *dependencies) *cobra.Command {
	var deleteAudio bool

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Transcribe, name speakers, analyze and store an existing recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(os.Stdout)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := deps.newApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = a.Shutdown(shutdownCtx)
			}()
			if err := a.Start(); err != nil {
				return err
			}

			start := time.Now()
			err = processAndFollow(ctx, a, f, os.Stdin, args[0], deleteAudio)
			a.Logger.Debug().Dur("elapsed", time.Since(start)).Msg("Processing finished")
			return err
		},
	}

	cmd.Flags().BoolVar(&deleteAudio, "delete-audio", false, "Delete the audio and speaker samples once the meeting is saved")
	return cmd
}
