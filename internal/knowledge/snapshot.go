package knowledge

// VoiceParams parameterize one TTS synthesis request.
type VoiceParams struct {
	VoiceID         string  `yaml:"voice_id"`
	ModelID         string  `yaml:"model_id"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
	Style           float64 `yaml:"style"`
	Speed           float64 `yaml:"speed"`
	UseSpeakerBoost bool    `yaml:"use_speaker_boost"`
	// OutputFormat is a raw PCM format identifier, e.g. pcm_24000.
	OutputFormat             string `yaml:"output_format"`
	OptimizeStreamingLatency int    `yaml:"optimize_streaming_latency"`
}

// VADParams configure the upstream server-side voice activity detector.
type VADParams struct {
	Type              string  `yaml:"type"`
	Threshold         float64 `yaml:"threshold"`
	SilenceDurationMs int     `yaml:"silence_duration_ms"`
	PrefixPaddingMs   int     `yaml:"prefix_padding_ms"`
}

// LLMParams tune upstream response generation.
type LLMParams struct {
	Temperature             float64 `yaml:"temperature"`
	MaxResponseOutputTokens int     `yaml:"max_response_output_tokens"`
}

// Snapshot is an immutable copy of the agent configuration captured once at
// session start. A running call keeps its snapshot even if the store is
// updated mid-call; the next session picks up the change.
type Snapshot struct {
	WelcomeMessage     string
	SystemInstructions string
	Voice              VoiceParams
	VAD                VADParams
	LLM                LLMParams
}

// Provider hands out configuration snapshots. The session fetches exactly
// one snapshot per call.
type Provider interface {
	Snapshot(languagePreference string) Snapshot
}
