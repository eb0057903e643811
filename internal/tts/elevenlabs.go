package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ariavoice/voice-gateway/internal/knowledge"
	"github.com/ariavoice/voice-gateway/internal/resilience"
)

// DefaultBaseURL is the ElevenLabs API root.
const DefaultBaseURL = "https://api.elevenlabs.io"

// ElevenLabsClient implements Synthesizer against the ElevenLabs streaming
// text-to-speech endpoint, requesting raw PCM16 output.
type ElevenLabsClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	logger     zerolog.Logger
}

// synthesisRequest is the request payload for the streaming endpoint.
type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed"`
}

// NewElevenLabsClient creates a streaming TTS client. The circuit breaker is
// shared across sessions so a failing TTS backend sheds load process-wide.
func NewElevenLabsClient(apiKey, baseURL string, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *ElevenLabsClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &ElevenLabsClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		breaker:    breaker,
		logger:     logger,
	}
}

// Synthesize requests synthesized speech for one text segment and returns the
// audio as a lazy stream of PCM16 frames.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string, voice knowledge.VoiceParams) (<-chan []byte, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	var resp *http.Response
	err := c.breaker.Call(func() error {
		var callErr error
		resp, callErr = c.request(ctx, text, voice)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	// Read the first frame eagerly so an empty response surfaces as a
	// per-segment error instead of a silent zero-frame stream.
	first := make([]byte, FrameSize)
	n, readErr := io.ReadFull(resp.Body, first)
	if n == 0 {
		resp.Body.Close()
		c.breaker.RecordResult(false)
		return nil, ErrEmptyAudio
	}
	first = first[:n]

	frames := make(chan []byte, 8)
	go func() {
		defer resp.Body.Close()
		defer close(frames)

		select {
		case frames <- first:
		case <-ctx.Done():
			return
		}
		if readErr != nil {
			return
		}

		for {
			buf := make([]byte, FrameSize)
			n, err := io.ReadFull(resp.Body, buf)
			if n > 0 {
				select {
				case frames <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF && err != io.ErrUnexpectedEOF {
					c.logger.Warn().Err(err).Msg("TTS audio stream ended early")
				}
				return
			}
		}
	}()

	return frames, nil
}

func (c *ElevenLabsClient) request(ctx context.Context, text string, voice knowledge.VoiceParams) (*http.Response, error) {
	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?optimize_streaming_latency=%d&output_format=%s",
		c.baseURL, voice.VoiceID, voice.OptimizeStreamingLatency, voice.OutputFormat)

	payload := synthesisRequest{
		Text:    text,
		ModelID: voice.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       voice.Stability,
			SimilarityBoost: voice.SimilarityBoost,
			Style:           voice.Style,
			UseSpeakerBoost: voice.UseSpeakerBoost,
			Speed:           voice.Speed,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/pcm, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: string(detail)}
	}

	return resp, nil
}
