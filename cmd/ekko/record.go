package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/2re1million/ekko/internal/events"
	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/output"
)

func newRecordCmd(deps *dependencies) *cobra.Command {
	var (
		process     bool
		deleteAudio bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the default microphone until Ctrl+C",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(os.Stdout)

			a, err := deps.newApp(cmd.Context())
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

			ch, unsubscribe := a.Bus.Subscribe(64)
			defer unsubscribe()

			sigCtx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()

			started, err := a.Recorder.Start(sigCtx)
			if err != nil {
				return err
			}
			f.RecordingStarted(started.FilePath)

			if err := waitForStop(sigCtx, f, ch); err != nil {
				return err
			}
			stopSignals()

			stopped, err := a.Recorder.Stop()
			if err != nil {
				return err
			}
			f.RecordingStopped(time.Duration(stopped.DurationSeconds) * time.Second)
			unsubscribe()

			if !process {
				f.Info("Process it later with: ekko process " + stopped.FilePath)
				return nil
			}

			procCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return processAndFollow(procCtx, a, f, os.Stdin, stopped.FilePath, deleteAudio)
		},
	}

	cmd.Flags().BoolVar(&process, "process", false, "Process the recording as soon as it stops")
	cmd.Flags().BoolVar(&deleteAudio, "delete-audio", false, "Delete the audio once the meeting is saved (with --process)")
	return cmd
}

// waitForStop prints status and warnings until ctx is done. A recorder
// error ends the wait with that error.
func waitForStop(ctx context.Context, f *output.Formatter, ch <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			switch p := ev.Payload.(type) {
			case models.RecordingStatus:
				f.RecordingStatus(p)
			case models.TimeWarning:
				f.TimeWarning(p)
			case models.RecordingError:
				f.Error(p.Message)
				return errors.New(p.Message)
			}
		}
	}
}
