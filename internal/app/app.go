// Package app builds the recorder, the pipeline and their collaborators
// from configuration and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/2re1million/ekko/internal/config"
	"github.com/2re1million/ekko/internal/events"
	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/observability"
	"github.com/2re1million/ekko/internal/observability/logging"
	"github.com/2re1million/ekko/internal/observability/metrics"
	"github.com/2re1million/ekko/internal/service/analysis"
	"github.com/2re1million/ekko/internal/service/analysis/anthropic"
	analysismock "github.com/2re1million/ekko/internal/service/analysis/mock"
	"github.com/2re1million/ekko/internal/service/diarization"
	"github.com/2re1million/ekko/internal/service/pipeline"
	"github.com/2re1million/ekko/internal/service/recorder"
	"github.com/2re1million/ekko/internal/service/recording"
	"github.com/2re1million/ekko/internal/service/stt"
	"github.com/2re1million/ekko/internal/service/stt/google"
	"github.com/2re1million/ekko/internal/service/stt/mistral"
	sttmock "github.com/2re1million/ekko/internal/service/stt/mock"
	"github.com/2re1million/ekko/internal/storage"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Metrics  *metrics.Metrics
	Bus      *events.Bus
	Recorder *recording.Controller
	Pipeline *pipeline.Pipeline
	Meetings *storage.MeetingStore

	publisher     *events.Publisher
	health        *observability.HealthServer
	metricsServer *observability.Server
	stopForward   context.CancelFunc
	closers       []func() error
}

// New constructs a new Application from the provided configuration.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a := &Application{
		Cfg:     cfg,
		Logger:  logging.WithComponent("application"),
		Metrics: metrics.DefaultMetrics,
	}

	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	store, err := storage.NewMeetingStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	a.Meetings = store
	a.closers = append(a.closers, store.Close)

	transcriber, err := a.newTranscriber(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	analyzer, err := a.newAnalyzer()
	if err != nil {
		a.close()
		return nil, err
	}

	a.Bus = events.NewBus(a.Metrics)

	rcfg := recording.Config{
		RecordingsDir:  cfg.Storage.RecordingsDir,
		SampleRateHz:   cfg.Recorder.SampleRateHz,
		StatusInterval: cfg.Recorder.StatusInterval,
		WarningAfter:   cfg.Recorder.WarningAfter,
		CriticalAfter:  cfg.Recorder.CriticalAfter,
		StopTimeout:    cfg.Recorder.StopTimeout,
	}
	launcher := recorder.NewExecLauncher(cfg.Recorder.Backend, cfg.Recorder.SampleRateHz)
	a.Recorder = recording.NewController(rcfg, launcher, a.Bus, recording.WithMetrics(a.Metrics))

	a.Pipeline = pipeline.New(pipeline.Deps{
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Store:       store,
		Deleter:     storage.NewCleaner(),
		Publisher:   a.Bus,
		Metrics:     a.Metrics,
	})

	a.Logger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("analysisProvider", cfg.Analysis.Provider).
		Bool("diarization", cfg.Diarization.Enabled).
		Str("recordingsDir", cfg.Storage.RecordingsDir).
		Msg("Ekko application created")
	return a, nil
}

func (a *Application) newTranscriber(ctx context.Context) (stt.Client, error) {
	cfg := a.Cfg
	var client stt.Client

	switch strings.ToLower(cfg.STT.Provider) {
	case "", "mock":
		client = sttmock.New()
	case "google":
		gcfg := google.DefaultConfig()
		gcfg.LanguageCode = cfg.STT.LanguageCode
		gcfg.AudioEncoding = cfg.STT.AudioEncoding
		gcfg.SampleRateHz = cfg.Recorder.SampleRateHz
		gcfg.EnableDiarization = cfg.Diarization.Enabled
		gc, err := google.New(ctx, gcfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gc.Close)
		client = gc
	case "mistral":
		client = mistral.New(cfg.STT.MistralAPIKey, cfg.STT.MistralModel)
	default:
		return nil, fmt.Errorf("%w: unknown STT provider %q", models.ErrNotConfigured, cfg.STT.Provider)
	}

	if !cfg.Diarization.Enabled {
		return client, nil
	}
	var extractor diarization.ExemplarExtractor
	if cfg.Diarization.FFmpegPath != "" {
		extractor = diarization.NewFFmpegExtractor(cfg.Diarization.FFmpegPath)
	}
	return stt.WithSpeakerEstimate(client, diarization.NewEstimator(extractor, a.Metrics)), nil
}

func (a *Application) newAnalyzer() (analysis.Client, error) {
	cfg := a.Cfg.Analysis
	switch strings.ToLower(cfg.Provider) {
	case "", "mock":
		return analysismock.New(), nil
	case "anthropic":
		return anthropic.New(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("%w: unknown analysis provider %q", models.ErrNotConfigured, cfg.Provider)
	}
}

// Start mirrors bus events to Kafka until Shutdown.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()

	k := a.Cfg.Kafka
	a.publisher = events.NewPublisher(&events.Config{
		Enabled:        k.Enabled,
		Brokers:        k.Brokers,
		TopicRecording: k.TopicRecording,
		TopicPipeline:  k.TopicPipeline,
		Principal:      k.Principal,
	}, a.Metrics)

	ctx, cancel := context.WithCancel(context.Background())
	a.stopForward = cancel
	a.publisher.Forward(ctx, a.Bus)

	a.Logger.Info().Time("startupTime", a.StartupTime).Msg("Ekko starting")
	return nil
}

// ServeObservability starts the metrics HTTP server and the gRPC health
// server.
func (a *Application) ServeObservability() error {
	a.metricsServer = observability.NewServer(a.Cfg.Service.MetricsAddr, a.Ready)
	a.metricsServer.Start()

	a.health = observability.NewHealthServer(a.Cfg.Service.GRPCAddr, a.Metrics)
	if err := a.health.Start(); err != nil {
		return fmt.Errorf("grpc health: %w", err)
	}
	_, err := recorder.Discover(a.Cfg.Recorder.Backend, nil)
	a.health.SetServing(observability.HealthRecorder, err == nil)
	a.health.SetServing(observability.HealthPipeline, true)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("No capture backend found; recording unavailable")
	}
	return nil
}

// Ready reports whether the meeting store is reachable.
func (a *Application) Ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return a.Meetings.Ping(ctx)
}

// ProcessRecording starts a pipeline run for a WAV file on disk.
func (a *Application) ProcessRecording(ctx context.Context, audioPath string, deleteSource bool) (*pipeline.Run, error) {
	req, err := RequestFor(audioPath, deleteSource)
	if err != nil {
		return nil, err
	}
	return a.Pipeline.Start(ctx, req)
}

// RequestFor builds a pipeline request for audioPath. The recording time
// comes from the recorder's file name when it has one, else the file's
// modification time; the duration comes from the WAV header when readable.
func RequestFor(audioPath string, deleteSource bool) (pipeline.Request, error) {
	abs, err := filepath.Abs(audioPath)
	if err != nil {
		return pipeline.Request{}, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return pipeline.Request{}, err
	}
	if fi.IsDir() {
		return pipeline.Request{}, fmt.Errorf("%s is a directory", abs)
	}

	req := pipeline.Request{
		AudioPath:                abs,
		DeleteSourceOnCompletion: deleteSource,
		RecordedAt:               fi.ModTime(),
	}
	if t, ok := recordedAtFromName(abs); ok {
		req.RecordedAt = t
	}
	if info, err := recorder.ReadWAVInfo(abs); err == nil {
		req.DurationSeconds = int(info.Duration() / time.Second)
	}
	return req, nil
}

// recordedAtFromName parses recording_YYYYMMDD_HHMMSS[_N].wav.
func recordedAtFromName(path string) (time.Time, bool) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name, ok := strings.CutPrefix(name, "recording_")
	if !ok || len(name) < len("20060102_150405") {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("20060102_150405", name[:len("20060102_150405")], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Shutdown stops recording, lets unfinished runs settle and releases every
// resource. It is safe to call once.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Logger.Info().Msg("Ekko shutting down")

	var errs []error
	a.Recorder.Shutdown()
	if err := a.Pipeline.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}
	if a.health != nil {
		a.health.Stop()
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.stopForward != nil {
		a.stopForward()
	}
	a.Bus.Close()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Application) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
