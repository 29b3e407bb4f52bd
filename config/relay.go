package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RelayConfig is everything the relay server reads from the environment.
type RelayConfig struct {
	Port      string
	RelayPath string

	SilenceWindow   time.Duration
	StageTimeout    time.Duration
	HTTPTimeout     time.Duration
	MaxMessageBytes int64
	InboundRate     float64
	InboundBurst    int

	STTProvider string // openai | google
	LLMProvider string // openai | vertex

	OpenAIAPIKey     string
	OpenAIChatModel  string
	ElevenLabsAPIKey string

	GCPProjectID   string
	GCPLocation    string
	VertexModel    string
	GCSAudioBucket string

	TurnLogTTL      time.Duration
	SessionCacheTTL time.Duration

	// Demo is set when no Postgres is configured; every session is then in-memory.
	Demo bool
}

func LoadRelay() (RelayConfig, error) {
	c := RelayConfig{
		Port:             envOr("PORT", "8080"),
		RelayPath:        envOr("RELAY_PATH", "/websocket"),
		STTProvider:      strings.ToLower(envOr("STT_PROVIDER", "openai")),
		LLMProvider:      strings.ToLower(envOr("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIChatModel:  envOr("OPENAI_CHAT_MODEL", "gpt-4-turbo-preview"),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),
		GCPProjectID:     os.Getenv("GCP_PROJECT_ID"),
		GCPLocation:      envOr("GCP_LOCATION", "us-central1"),
		VertexModel:      envOr("VERTEX_MODEL", "gemini-1.5-flash"),
		GCSAudioBucket:   os.Getenv("GCS_AUDIO_BUCKET"),
		Demo:             strings.TrimSpace(os.Getenv("POSTGRES_URI")) == "",
	}
	if !strings.HasPrefix(c.RelayPath, "/") {
		c.RelayPath = "/" + c.RelayPath
	}

	var err error
	if c.SilenceWindow, err = envMillis("SILENCE_WINDOW_MS", time.Second); err != nil {
		return c, err
	}
	if c.StageTimeout, err = envDuration("STAGE_TIMEOUT", 20*time.Second); err != nil {
		return c, err
	}
	if c.HTTPTimeout, err = envDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return c, err
	}
	if c.TurnLogTTL, err = envDuration("TURN_LOG_TTL", 7*24*time.Hour); err != nil {
		return c, err
	}
	if c.SessionCacheTTL, err = envDuration("SESSION_CACHE_TTL", 10*time.Minute); err != nil {
		return c, err
	}
	if c.MaxMessageBytes, err = envInt64("MAX_MESSAGE_BYTES", 4<<20); err != nil {
		return c, err
	}
	if c.InboundRate, err = envFloat("INBOUND_RATE", 50); err != nil {
		return c, err
	}
	burst, err := envInt64("INBOUND_BURST", 100)
	if err != nil {
		return c, err
	}
	c.InboundBurst = int(burst)

	switch c.STTProvider {
	case "openai", "google":
	default:
		return c, fmt.Errorf("STT_PROVIDER must be openai or google, got %q", c.STTProvider)
	}
	switch c.LLMProvider {
	case "openai", "vertex":
	default:
		return c, fmt.Errorf("LLM_PROVIDER must be openai or vertex, got %q", c.LLMProvider)
	}
	if c.LLMProvider == "vertex" && c.GCPProjectID == "" {
		return c, fmt.Errorf("GCP_PROJECT_ID is required when LLM_PROVIDER=vertex")
	}
	return c, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func envMillis(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: invalid milliseconds %q", key, v)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func envInt64(key string, def int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}
