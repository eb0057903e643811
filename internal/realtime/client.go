package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ariavoice/voice-gateway/internal/auth"
	"github.com/ariavoice/voice-gateway/internal/knowledge"
	"github.com/ariavoice/voice-gateway/internal/resilience"
)

// Options configure one upstream realtime connection.
type Options struct {
	// URL is the websocket endpoint without the model query parameter,
	// e.g. wss://api.openai.com/v1/realtime.
	URL   string
	Model string

	// Tokens supplies the bearer credential.
	Tokens *auth.TokenCache

	// Instructions is the system prompt sent in session.update.
	Instructions string
	VAD          knowledge.VADParams
	LLM          knowledge.LLMParams

	// TranscriptionLanguage is the hint for the upstream transcription model.
	TranscriptionLanguage string

	ConnectAttempts int           // default 3
	ConnectBackoff  time.Duration // linear: 1x, 2x, 3x; default 1s
	DialTimeout     time.Duration // default 15s

	Logger zerolog.Logger
}

// Client owns one outbound websocket connection to the realtime speech/LLM
// service and demultiplexes its inbound frames into typed ServerEvents.
type Client struct {
	opts   Options
	logger zerolog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	events chan ServerEvent

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient creates an unconnected client.
func NewClient(opts Options) *Client {
	if opts.ConnectAttempts == 0 {
		opts.ConnectAttempts = 3
	}
	if opts.ConnectBackoff == 0 {
		opts.ConnectBackoff = time.Second
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 15 * time.Second
	}
	return &Client{
		opts:   opts,
		logger: opts.Logger,
		events: make(chan ServerEvent, 256),
		closed: make(chan struct{}),
	}
}

// Connect dials the upstream service, retrying with linear backoff, and on
// success sends the session configuration and starts the inbound listener.
// Exhausting all attempts returns a *ConnectError; the session treats that
// as fatal.
func (c *Client) Connect(ctx context.Context) error {
	token, err := c.opts.Tokens.Token(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNotConfigured
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("OpenAI-Beta", "realtime=v1")

	url := c.opts.URL + "?model=" + c.opts.Model

	attempt := 0
	retryCfg := &resilience.RetryConfig{
		MaxAttempts: c.opts.ConnectAttempts,
		Backoff:     c.opts.ConnectBackoff,
		Strategy:    resilience.Linear,
	}

	err = resilience.Retry(ctx, func() error {
		attempt++
		c.logger.Info().Int("attempt", attempt).Int("max", c.opts.ConnectAttempts).
			Msg("Connecting to realtime upstream")

		dialer := websocket.Dialer{HandshakeTimeout: c.opts.DialTimeout}
		conn, resp, dialErr := dialer.DialContext(ctx, url, header)
		if dialErr != nil {
			if resp != nil {
				resp.Body.Close()
			}
			c.logger.Warn().Err(dialErr).Int("attempt", attempt).Msg("Realtime dial failed")
			return dialErr
		}
		c.conn = conn
		return nil
	}, retryCfg)

	if err != nil {
		return &ConnectError{Attempts: c.opts.ConnectAttempts, Err: err}
	}

	if err := c.configureSession(); err != nil {
		c.conn.Close()
		return &ConnectError{Attempts: attempt, Err: err}
	}

	go c.listen()

	c.logger.Info().Str("model", c.opts.Model).Msg("Realtime upstream connected")
	return nil
}

// configureSession sends session.update: text-only modality (audio is
// synthesized locally by the TTS client), pcm16 input, server VAD, and the
// system instructions.
func (c *Client) configureSession() error {
	return c.send(map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":         []string{"text"},
			"instructions":       c.opts.Instructions,
			"input_audio_format": "pcm16",
			"input_audio_transcription": map[string]any{
				"model":    "whisper-1",
				"language": c.transcriptionLanguage(),
			},
			"turn_detection": map[string]any{
				"type":                c.opts.VAD.Type,
				"threshold":           c.opts.VAD.Threshold,
				"silence_duration_ms": c.opts.VAD.SilenceDurationMs,
				"prefix_padding_ms":   c.opts.VAD.PrefixPaddingMs,
			},
			"temperature":                c.opts.LLM.Temperature,
			"max_response_output_tokens": c.opts.LLM.MaxResponseOutputTokens,
		},
	})
}

func (c *Client) transcriptionLanguage() string {
	if c.opts.TranscriptionLanguage != "" {
		return c.opts.TranscriptionLanguage
	}
	return "en"
}

// serverFrame is the superset of inbound frame fields we care about.
type serverFrame struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	Delta      string `json:"delta"`
	Text       string `json:"text"`
	Error      struct {
		Message string `json:"message"`
	} `json:"error"`
}

// listen decodes inbound frames until the transport closes, then closes the
// event channel. Malformed frames are dropped; the session treats channel
// closure as session-ending.
func (c *Client) listen() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Info().Err(err).Msg("Realtime upstream connection ended")
			}
			return
		}

		var frame serverFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug().Err(err).Msg("Dropping malformed upstream frame")
			continue
		}

		ev, ok := c.mapFrame(frame)
		if !ok {
			continue
		}

		select {
		case c.events <- ev:
		case <-c.closed:
			return
		}
	}
}

func (c *Client) mapFrame(frame serverFrame) (ServerEvent, bool) {
	switch frame.Type {
	case "session.created":
		return ServerEvent{Kind: EventSessionReady}, true
	case "session.updated":
		c.logger.Debug().Msg("Upstream session config acknowledged")
		return ServerEvent{}, false
	case "input_audio_buffer.speech_started":
		return ServerEvent{Kind: EventSpeechStarted}, true
	case "input_audio_buffer.speech_stopped":
		return ServerEvent{Kind: EventSpeechStopped}, true
	case "input_audio_buffer.committed":
		c.logger.Debug().Msg("Upstream committed audio buffer")
		return ServerEvent{}, false
	case "conversation.item.input_audio_transcription.completed":
		return ServerEvent{Kind: EventTranscriptFinal, Text: frame.Transcript}, true
	case "conversation.item.input_audio_transcription.failed":
		c.logger.Warn().Msg("Upstream transcription failed")
		return ServerEvent{}, false
	case "response.text.delta":
		return ServerEvent{Kind: EventResponseTextDelta, Text: frame.Delta}, true
	case "response.text.done":
		return ServerEvent{Kind: EventResponseTextDone, Text: frame.Text}, true
	case "response.created", "response.done":
		return ServerEvent{}, false
	case "error":
		return ServerEvent{Kind: EventUpstreamError, Message: frame.Error.Message}, true
	default:
		c.logger.Debug().Str("type", frame.Type).Msg("Ignoring upstream event")
		return ServerEvent{}, false
	}
}

// Events returns the inbound typed event stream.
func (c *Client) Events() <-chan ServerEvent {
	return c.events
}

// AppendAudio base64-encodes one PCM16 chunk into the upstream audio buffer.
func (c *Client) AppendAudio(pcm []byte) error {
	return c.send(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

// ClearAudioBuffer discards uncommitted upstream audio. Used around the
// welcome greeting so playback echo cannot trip the voice activity detector.
func (c *Client) ClearAudioBuffer() error {
	return c.send(map[string]any{"type": "input_audio_buffer.clear"})
}

// CreateAssistantMessage injects text into the conversation history as an
// assistant turn the model believes it already spoke.
func (c *Client) CreateAssistantMessage(text string) error {
	return c.send(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
		},
	})
}

// CreateUserMessage injects typed text as a user turn.
func (c *Client) CreateUserMessage(text string) error {
	return c.send(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// CreateResponse asks the model to generate a response now.
func (c *Client) CreateResponse() error {
	return c.send(map[string]any{"type": "response.create"})
}

func (c *Client) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(v)
}

// Close tears down the connection; the listener then closes Events.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
