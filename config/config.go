package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is read once at startup. Session-level knobs (interval, overlap,
// sample rate) are copied into each session at start and never mutated while
// a session is running.
type Config struct {
	Port     string
	Language string

	// Providers
	AIProvider  string // gemini|openai
	STTProvider string // google|whisper

	OpenAIKey      string
	OpenAIModel    string
	OpenAIBaseURL  string
	WhisperBaseURL string
	WhisperToken   string
	GCPProject     string
	GCPLocation    string
	GeminiModel    string

	// Recording
	SampleRate int
	Channels   int

	// Live pipeline
	ChunkInterval time.Duration
	Overlap       time.Duration
	MinChunk      time.Duration
	CallTimeout   time.Duration
	StopGrace     time.Duration

	// Artifacts
	RecordingsDir  string
	TranscriptsDir string
	GCSBucket      string // optional; local disk when empty

	RedisAddr string // optional; answers uncached when empty
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:     envOr("PORT", "8080"),
		Language: envOr("LANGUAGE", "en-US"),

		AIProvider:  envOr("AI_PROVIDER", "gemini"),
		STTProvider: envOr("STT_PROVIDER", "google"),

		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    envOr("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:  envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		WhisperBaseURL: os.Getenv("WHISPER_BASE_URL"),
		WhisperToken:   os.Getenv("WHISPER_TOKEN"),
		GCPProject:     os.Getenv("GCP_PROJECT"),
		GCPLocation:    envOr("GCP_LOCATION", "us-central1"),
		GeminiModel:    envOr("GEMINI_MODEL", "gemini-1.5-flash"),

		RecordingsDir:  envOr("RECORDINGS_DIR", "recordings"),
		TranscriptsDir: envOr("TRANSCRIPTS_DIR", "transcripts"),
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		RedisAddr:      firstEnv("REDIS_ADDR", "REDIS_URI", "REDIS_URL"),
	}

	var err error
	if cfg.SampleRate, err = envInt("SAMPLE_RATE", 16000); err != nil {
		return nil, err
	}
	if cfg.Channels, err = envInt("CHANNELS", 1); err != nil {
		return nil, err
	}
	if cfg.ChunkInterval, err = envSeconds("CHUNK_INTERVAL_SEC", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Overlap, err = envSeconds("CHUNK_OVERLAP_SEC", 2*time.Second); err != nil {
		return nil, err
	}
	cfg.MinChunk = 500 * time.Millisecond
	if cfg.CallTimeout, err = envSeconds("CALL_TIMEOUT_SEC", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.StopGrace, err = envSeconds("STOP_GRACE_SEC", 5*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.AIProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("invalid AI_PROVIDER %q: must be gemini or openai", c.AIProvider)
	}
	switch c.STTProvider {
	case "google", "whisper":
	default:
		return fmt.Errorf("invalid STT_PROVIDER %q: must be google or whisper", c.STTProvider)
	}
	if c.STTProvider == "whisper" && c.WhisperBaseURL == "" {
		return fmt.Errorf("WHISPER_BASE_URL is required when STT_PROVIDER=whisper")
	}
	if c.AIProvider == "openai" && c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER=openai")
	}
	if c.AIProvider == "gemini" && c.GCPProject == "" {
		return fmt.Errorf("GCP_PROJECT is required when AI_PROVIDER=gemini")
	}
	if c.Overlap >= c.ChunkInterval {
		return fmt.Errorf("CHUNK_OVERLAP_SEC (%s) must be smaller than CHUNK_INTERVAL_SEC (%s)", c.Overlap, c.ChunkInterval)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envSeconds(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(n) * time.Second, nil
}
