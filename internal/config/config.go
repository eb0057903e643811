package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ariavoice/voice-gateway/internal/session"
)

// Config holds all configuration for the voice gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Upstream realtime speech/LLM service
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIRealtimeURL string `envconfig:"OPENAI_REALTIME_URL" default:"wss://api.openai.com/v1/realtime"`
	OpenAIModel       string `envconfig:"OPENAI_REALTIME_MODEL" default:"gpt-4o-realtime-preview"`

	// ElevenLabs TTS API configuration
	ElevenLabsAPIKey  string `envconfig:"ELEVENLABS_API_KEY" required:"true"`
	ElevenLabsBaseURL string `envconfig:"ELEVENLABS_BASE_URL" default:"https://api.elevenlabs.io"`

	// Agent profile (welcome message, persona, voice and VAD parameters).
	// Optional YAML file; compiled-in defaults apply when unset.
	AgentProfilePath string `envconfig:"AGENT_PROFILE_PATH" default:""`

	// Session pacing and policy
	PreSegmentDelayMs      int     `envconfig:"TTS_PRE_SEGMENT_DELAY_MS" default:"500"`  // Pause before each spoken segment
	InterFrameDelayMs      int     `envconfig:"TTS_INTER_FRAME_DELAY_MS" default:"10"`   // Pause between relayed audio frames
	PostSegmentDelayMs     int     `envconfig:"TTS_POST_SEGMENT_DELAY_MS" default:"350"` // Pause after each spoken segment
	WelcomeSettleDelayMs   int     `envconfig:"WELCOME_SETTLE_DELAY_MS" default:"1500"`  // Echo settle wait before the mic gate opens
	PreSpeechSuppressLimit int     `envconfig:"PRE_SPEECH_SUPPRESS_LIMIT" default:"1"`   // Responses before first speech to discard; -1 = all
	MaxCallDurationSec     int     `envconfig:"MAX_CALL_DURATION_SEC" default:"600"`     // Hard per-call cap; 0 disables
	SilenceTimeoutSec      int     `envconfig:"SILENCE_TIMEOUT_SEC" default:"90"`        // End call after this much caller silence; 0 disables
	SilenceThreshold       float64 `envconfig:"SILENCE_THRESHOLD" default:"500.0"`       // RMS energy below which caller audio is silence

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	UpstreamConnectAttempts    int `envconfig:"UPSTREAM_CONNECT_ATTEMPTS" default:"3"`      // Dial attempts before giving up
	UpstreamConnectBackoffMs   int `envconfig:"UPSTREAM_CONNECT_BACKOFF_MS" default:"1000"` // Linear backoff step in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Missing credentials are a fatal configuration error: no session may
	// ever reach the connecting state without them.
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.ElevenLabsAPIKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required")
	}

	return &cfg, nil
}

// SessionConfig maps the environment values onto the session's timing and
// policy knobs.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		PreSegmentDelay:        time.Duration(c.PreSegmentDelayMs) * time.Millisecond,
		InterFrameDelay:        time.Duration(c.InterFrameDelayMs) * time.Millisecond,
		PostSegmentDelay:       time.Duration(c.PostSegmentDelayMs) * time.Millisecond,
		WelcomeSettleDelay:     time.Duration(c.WelcomeSettleDelayMs) * time.Millisecond,
		PreSpeechSuppressLimit: c.PreSpeechSuppressLimit,
		MaxCallDuration:        time.Duration(c.MaxCallDurationSec) * time.Second,
		SilenceTimeout:         time.Duration(c.SilenceTimeoutSec) * time.Second,
		SilenceThreshold:       c.SilenceThreshold,
		QueueSize:              64,
	}
}
