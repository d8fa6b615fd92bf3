package main

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/2re1million/ekko/internal/output"
	"github.com/2re1million/ekko/internal/service/recorder"
	"github.com/2re1million/ekko/internal/storage"
)

func newDoctorCmd(deps *dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(os.Stdout)
			cfg := deps.cfg
			ok := true

			if b, err := recorder.Discover(cfg.Recorder.Backend, nil); err != nil {
				f.SetupCheck("Capture backend", false, err.Error()+". Install sox, alsa-utils or ffmpeg")
				ok = false
			} else {
				f.SetupCheck("Capture backend", true, b.Name)
			}

			if cfg.Diarization.Enabled && cfg.Diarization.FFmpegPath != "" {
				if _, err := exec.LookPath(cfg.Diarization.FFmpegPath); err != nil {
					f.SetupCheck("ffmpeg", false, "not found; speaker samples will be skipped")
				} else {
					f.SetupCheck("ffmpeg", true, "installed")
				}
			}

			switch strings.ToLower(cfg.STT.Provider) {
			case "mistral":
				ok = keyCheck(f, "Mistral API key", cfg.STT.MistralAPIKey, "MISTRAL_API_KEY") && ok
			case "google":
				ok = keyCheck(f, "Google credentials", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), "GOOGLE_APPLICATION_CREDENTIALS") && ok
			default:
				f.SetupCheck("Transcription", true, "mock provider (set STT_PROVIDER for real transcripts)")
			}

			if strings.EqualFold(cfg.Analysis.Provider, "anthropic") {
				ok = keyCheck(f, "Anthropic API key", cfg.Analysis.AnthropicAPIKey, "ANTHROPIC_API_KEY") && ok
			} else {
				f.SetupCheck("Analysis", true, "mock provider (set ANALYSIS_PROVIDER=anthropic for AI summaries)")
			}

			if err := cfg.EnsureDirs(); err != nil {
				f.SetupCheck("Recordings directory", false, err.Error())
				ok = false
			} else {
				f.SetupCheck("Recordings directory", true, cfg.Storage.RecordingsDir)
			}

			if err := checkDatabase(cmd.Context(), cfg.Storage.DatabasePath); err != nil {
				f.SetupCheck("Database", false, err.Error())
				ok = false
			} else {
				f.SetupCheck("Database", true, cfg.Storage.DatabasePath)
			}

			if cfg.Kafka.Enabled {
				f.SetupCheck("Kafka", len(cfg.Kafka.Brokers) > 0, strings.Join(cfg.Kafka.Brokers, ","))
			}

			if ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

func keyCheck(f *output.Formatter, name, value, env string) bool {
	if value == "" {
		f.SetupCheck(name, false, "not set. Set "+env+" or add it to the config file")
		return false
	}
	f.SetupCheck(name, true, "configured")
	return true
}

func checkDatabase(ctx context.Context, path string) error {
	store, err := storage.NewMeetingStore(path)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return store.Ping(ctx)
}
