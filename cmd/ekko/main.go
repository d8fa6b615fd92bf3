package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/2re1million/ekko/internal/app"
	"github.com/2re1million/ekko/internal/config"
	"github.com/2re1million/ekko/internal/output"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type dependencies struct {
	cfg *config.Configuration
}

func (d *dependencies) newApp(ctx context.Context) (*app.Application, error) {
	a, err := app.New(ctx, d.cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func main() {
	if err := run(); err != nil {
		output.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return newRootCmd(&dependencies{cfg: cfg}).Execute()
}

func newRootCmd(deps *dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ekko",
		Short:         "Record meetings, transcribe, and summarize",
		Long:          "Ekko records meetings from the default microphone, transcribes them, lets you name the speakers, and stores an AI summary with decisions and action items.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd(deps))
	rootCmd.AddCommand(newRecordCmd(deps))
	rootCmd.AddCommand(newProcessCmd(deps))
	rootCmd.AddCommand(newMeetingsCmd(deps))
	rootCmd.AddCommand(newDoctorCmd(deps))

	return rootCmd
}
