package common

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Config holds all application configuration
type Config struct {
	Paths       PathsConfig
	Retry       RetryConfig
	Concurrency ConcurrencyConfig
	LLM         LLMConfig
	Transcribe  TranscribeConfig
	Scenes      ScenesConfig
	Journal     JournalConfig
	Pipeline    PipelineConfig

	MinTranscriptLength int
	ExportXLSX          bool
	PipelineConfigPath  string
	LogLevel            string
}

// PathsConfig holds the directory layout; every path is absolute after LoadConfig.
type PathsConfig struct {
	Root        string
	Videos      string
	Screenshots string
	Audio       string
	CSV         string
	Logs        string
}

// RetryConfig holds the fixed-delay retry policy shared by every external call.
type RetryConfig struct {
	MaxRetries     int
	Delay          time.Duration
	RateLimitDelay time.Duration
}

// ConcurrencyConfig holds the admission gate sizes.
type ConcurrencyConfig struct {
	Transcribe  int
	Summarize   int
	GenAI       int
	Videos      int
	Screenshots int
}

// LLMConfig holds generation-provider configuration
type LLMConfig struct {
	Provider    string
	Model       string
	VisionModel string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// TranscribeConfig holds speech-to-text and audio extraction configuration
type TranscribeConfig struct {
	Engine        string
	FFmpegBin     string
	WhisperBin    string
	WhisperModel  string
	Language      string
	AssemblyAIKey string
}

// ScenesConfig holds scene detection configuration
type ScenesConfig struct {
	Enabled           bool
	Threshold         float64
	FallbackThreshold float64
}

// JournalConfig holds the run journal database settings
type JournalConfig struct {
	DSN         string
	DialTimeout time.Duration
}

const (
	ProviderOpenAI     = "openai"
	EngineWhisper      = "whisper"
	EngineAssemblyAI   = "assemblyai"
	JournalDisabledDSN = "off"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	root := getEnv("VI_ROOT_DIR", ".")
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	under := func(key, def string) string {
		p := getEnv(key, def)
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}

	return &Config{
		Paths: PathsConfig{
			Root:        root,
			Videos:      under("VIDEOS_DIR", "videos"),
			Screenshots: under("SCREENSHOTS_DIR", "screenshots"),
			Audio:       under("AUDIO_DIR", "audio"),
			CSV:         under("CSV_DIR", "csv"),
			Logs:        under("LOGS_DIR", "logs"),
		},
		Retry: RetryConfig{
			MaxRetries:     getEnvAsInt("MAX_RETRIES", 3),
			Delay:          getEnvAsDuration("RETRY_DELAY", 2*time.Second),
			RateLimitDelay: getEnvAsDuration("RATE_LIMIT_DELAY", 5*time.Second),
		},
		Concurrency: ConcurrencyConfig{
			Transcribe:  getEnvAsInt("TRANSCRIBE_CONCURRENCY", 10),
			Summarize:   getEnvAsInt("SUMMARIZE_CONCURRENCY", 5),
			GenAI:       getEnvAsInt("GENAI_CONCURRENCY", 5),
			Videos:      getEnvAsInt("VIDEO_CONCURRENCY", 10),
			Screenshots: getEnvAsInt("SCREENSHOT_CONCURRENCY", 10),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("MODEL_PROVIDER", ProviderOpenAI)),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			VisionModel: getEnv("OPENAI_VISION_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.7),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
		},
		Transcribe: TranscribeConfig{
			Engine:        strings.ToLower(getEnv("TRANSCRIBER", EngineWhisper)),
			FFmpegBin:     getEnv("FFMPEG_BIN", "ffmpeg"),
			WhisperBin:    getEnv("WHISPER_BIN", "whisper-cli"),
			WhisperModel:  under("WHISPER_MODEL", filepath.Join("models", "ggml-base.en.bin")),
			Language:      getEnv("WHISPER_LANGUAGE", "en"),
			AssemblyAIKey: getEnv("ASSEMBLYAI_API_KEY", ""),
		},
		Scenes: ScenesConfig{
			Enabled:           getEnvAsBool("CREATE_SCREENSHOTS", true),
			Threshold:         getEnvAsFloat64("SCENE_THRESHOLD", 0.3),
			FallbackThreshold: getEnvAsFloat64("SCENE_FALLBACK_THRESHOLD", 0.1),
		},
		Journal: JournalConfig{
			DSN:         getEnv("JOURNAL_DSN", "sqlite://"+filepath.Join(root, ".video-insights", "journal.db")),
			DialTimeout: getEnvAsDuration("JOURNAL_DIAL_TIMEOUT", 3*time.Second),
		},
		Pipeline:            DefaultPipelineConfig(),
		MinTranscriptLength: getEnvAsInt("MIN_TRANSCRIPT_LENGTH", 10),
		ExportXLSX:          getEnvAsBool("EXPORT_XLSX", true),
		PipelineConfigPath:  getEnv("PIPELINE_CONFIG", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := cast.ToIntE(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := cast.ToBoolE(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := cast.ToFloat64E(strings.TrimSpace(value)); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	return float32(getEnvAsFloat64(key, float64(defaultValue)))
}

// getEnvAsDuration accepts Go duration strings ("2s") or bare integers, read as milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if ms, err := cast.ToInt64E(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := cast.ToDurationE(value); err == nil {
		return d
	}
	return defaultValue
}

// Validate checks the loaded configuration and loads the pipeline file when set.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("MODEL_PROVIDER", c.LLM.Provider, OneOf(ProviderOpenAI))
	v.Field("TRANSCRIBER", c.Transcribe.Engine, OneOf(EngineWhisper, EngineAssemblyAI))
	v.Field("MAX_RETRIES", c.Retry.MaxRetries, Positive)
	v.Field("TRANSCRIBE_CONCURRENCY", c.Concurrency.Transcribe, Positive)
	v.Field("SUMMARIZE_CONCURRENCY", c.Concurrency.Summarize, Positive)
	v.Field("GENAI_CONCURRENCY", c.Concurrency.GenAI, Positive)
	v.Field("VIDEO_CONCURRENCY", c.Concurrency.Videos, Positive)
	v.Field("SCREENSHOT_CONCURRENCY", c.Concurrency.Screenshots, Positive)
	v.Field("SCENE_THRESHOLD", c.Scenes.Threshold, UnitInterval)
	v.Field("SCENE_FALLBACK_THRESHOLD", c.Scenes.FallbackThreshold, UnitInterval)
	if c.Transcribe.Engine == EngineAssemblyAI {
		v.Field("ASSEMBLYAI_API_KEY", c.Transcribe.AssemblyAIKey, Required)
	}
	if err := v.Error(); err != nil {
		return err
	}

	if c.PipelineConfigPath != "" {
		pc, err := LoadPipelineConfig(c.PipelineConfigPath)
		if err != nil {
			return NewAppError("CONFIG_ERROR", "invalid PIPELINE_CONFIG", err)
		}
		c.Pipeline = pc
	}
	return nil
}

// RequireGenerator checks the settings needed by any stage that calls the generation API.
func (c *Config) RequireGenerator() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	return nil
}
