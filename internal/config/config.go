// Package config loads service configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration is the full process configuration.
type Configuration struct {
	Service       ServiceConfig       `yaml:"service"`
	Storage       StorageConfig       `yaml:"storage"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	STT           STTConfig           `yaml:"stt"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Diarization   DiarizationConfig   `yaml:"diarization"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Principal   string `yaml:"principal"`
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	RecordingsDir string `yaml:"recordings_dir"`
	DatabasePath  string `yaml:"database"`
}

type RecorderConfig struct {
	Backend        string        `yaml:"backend"` // sox, arecord, ffmpeg or empty for auto
	SampleRateHz   int           `yaml:"sample_rate_hz"`
	StatusInterval time.Duration `yaml:"status_interval"`
	WarningAfter   time.Duration `yaml:"warning_after"`
	CriticalAfter  time.Duration `yaml:"critical_after"`
	StopTimeout    time.Duration `yaml:"stop_timeout"`
}

type STTConfig struct {
	Provider      string `yaml:"provider"` // mock, google, mistral
	LanguageCode  string `yaml:"language_code"`
	AudioEncoding string `yaml:"audio_encoding"`
	MistralAPIKey string `yaml:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model"`
}

type AnalysisConfig struct {
	Provider        string `yaml:"provider"` // mock, anthropic
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
	MaxTokens       int    `yaml:"max_tokens"`
}

type DiarizationConfig struct {
	Enabled    bool   `yaml:"enabled"`
	FFmpegPath string `yaml:"ffmpeg_path"`
}

type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	TopicRecording string   `yaml:"topic_recording"`
	TopicPipeline  string   `yaml:"topic_pipeline"`
	Principal      string   `yaml:"principal"`
}

type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() *Configuration {
	dataDir := defaultDataDir()
	return &Configuration{
		Service: ServiceConfig{
			Principal:   "svc-ekko",
			HTTPAddr:    "127.0.0.1:7070",
			GRPCAddr:    "127.0.0.1:7071",
			MetricsAddr: "127.0.0.1:9090",
		},
		Storage: StorageConfig{
			DataDir:       dataDir,
			RecordingsDir: filepath.Join(dataDir, "recordings"),
			DatabasePath:  filepath.Join(dataDir, "meetings.db"),
		},
		Recorder: RecorderConfig{
			SampleRateHz:   16000,
			StatusInterval: time.Second,
			WarningAfter:   70 * time.Minute,
			CriticalAfter:  90 * time.Minute,
			StopTimeout:    3 * time.Second,
		},
		STT: STTConfig{
			Provider:      "mock",
			LanguageCode:  "en-US",
			AudioEncoding: "LINEAR16",
			MistralModel:  "voxtral-mini-latest",
		},
		Analysis: AnalysisConfig{
			Provider:       "mock",
			AnthropicModel: "claude-haiku-4-5",
			MaxTokens:      4096,
		},
		Diarization: DiarizationConfig{
			Enabled:    true,
			FFmpegPath: "ffmpeg",
		},
		Kafka: KafkaConfig{
			TopicRecording: "ekko.recording.events",
			TopicPipeline:  "ekko.pipeline.events",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Load builds the configuration. EKKO_CONFIG_FILE names an optional YAML
// file; environment variables override it. Unparseable environment values
// are ignored.
func Load() (*Configuration, error) {
	cfg := Default()

	if path := os.Getenv("EKKO_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(expandTilde(path)); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Configuration) applyEnv() {
	c.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", c.Service.Principal)
	c.Service.HTTPAddr = envOrDefault("EKKO_HTTP_ADDR", c.Service.HTTPAddr)
	c.Service.GRPCAddr = envOrDefault("EKKO_GRPC_ADDR", c.Service.GRPCAddr)
	c.Service.MetricsAddr = envOrDefault("EKKO_METRICS_ADDR", c.Service.MetricsAddr)

	if v := os.Getenv("EKKO_DATA_DIR"); v != "" {
		c.Storage.DataDir = expandTilde(v)
		c.Storage.RecordingsDir = filepath.Join(c.Storage.DataDir, "recordings")
		c.Storage.DatabasePath = filepath.Join(c.Storage.DataDir, "meetings.db")
	}
	c.Storage.RecordingsDir = expandTilde(envOrDefault("EKKO_RECORDINGS_DIR", c.Storage.RecordingsDir))
	c.Storage.DatabasePath = expandTilde(envOrDefault("EKKO_DATABASE", c.Storage.DatabasePath))

	c.Recorder.Backend = envOrDefault("EKKO_CAPTURE_BACKEND", c.Recorder.Backend)
	c.Recorder.SampleRateHz = envOrDefaultInt("EKKO_SAMPLE_RATE_HZ", c.Recorder.SampleRateHz)
	c.Recorder.StatusInterval = envOrDefaultDuration("EKKO_STATUS_INTERVAL", c.Recorder.StatusInterval)
	c.Recorder.WarningAfter = envOrDefaultDuration("EKKO_WARNING_AFTER", c.Recorder.WarningAfter)
	c.Recorder.CriticalAfter = envOrDefaultDuration("EKKO_CRITICAL_AFTER", c.Recorder.CriticalAfter)
	c.Recorder.StopTimeout = envOrDefaultDuration("EKKO_STOP_TIMEOUT", c.Recorder.StopTimeout)

	c.STT.Provider = envOrDefault("STT_PROVIDER", c.STT.Provider)
	c.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", c.STT.LanguageCode)
	c.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", c.STT.AudioEncoding)
	c.STT.MistralAPIKey = envOrDefault("MISTRAL_API_KEY", c.STT.MistralAPIKey)
	c.STT.MistralModel = envOrDefault("MISTRAL_MODEL", c.STT.MistralModel)

	c.Analysis.Provider = envOrDefault("ANALYSIS_PROVIDER", c.Analysis.Provider)
	c.Analysis.AnthropicAPIKey = envOrDefault("ANTHROPIC_API_KEY", c.Analysis.AnthropicAPIKey)
	c.Analysis.AnthropicModel = envOrDefault("ANTHROPIC_MODEL", c.Analysis.AnthropicModel)
	c.Analysis.MaxTokens = envOrDefaultInt("ANALYSIS_MAX_TOKENS", c.Analysis.MaxTokens)

	c.Diarization.Enabled = envOrDefaultBool("DIARIZATION_ENABLED", c.Diarization.Enabled)
	c.Diarization.FFmpegPath = envOrDefault("FFMPEG_PATH", c.Diarization.FFmpegPath)

	c.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", c.Kafka.Enabled)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	c.Kafka.TopicRecording = envOrDefault("KAFKA_TOPIC_RECORDING", c.Kafka.TopicRecording)
	c.Kafka.TopicPipeline = envOrDefault("KAFKA_TOPIC_PIPELINE", c.Kafka.TopicPipeline)
	c.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Kafka.Principal)
	if c.Kafka.Principal == "" {
		c.Kafka.Principal = c.Service.Principal
	}

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
}

// Validate rejects values the recorder and pipeline cannot work with.
func (c *Configuration) Validate() error {
	if c.Recorder.SampleRateHz <= 0 {
		return fmt.Errorf("config: sample rate must be > 0, got %d", c.Recorder.SampleRateHz)
	}
	if c.Recorder.StatusInterval <= 0 {
		return fmt.Errorf("config: status interval must be > 0, got %v", c.Recorder.StatusInterval)
	}
	if c.Recorder.WarningAfter <= 0 || c.Recorder.CriticalAfter <= c.Recorder.WarningAfter {
		return fmt.Errorf("config: critical threshold (%v) must exceed warning threshold (%v)",
			c.Recorder.CriticalAfter, c.Recorder.WarningAfter)
	}
	if c.Storage.RecordingsDir == "" || c.Storage.DatabasePath == "" {
		return fmt.Errorf("config: recordings dir and database path are required")
	}
	return nil
}

// EnsureDirs creates the data and recordings directories.
func (c *Configuration) EnsureDirs() error {
	for _, dir := range []string{c.Storage.DataDir, c.Storage.RecordingsDir, filepath.Dir(c.Storage.DatabasePath)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".ekko")
	}
	return filepath.Join(".", ".ekko")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
