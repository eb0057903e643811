package realtime

import (
	"errors"
	"fmt"
)

// EventKind identifies an event received from the upstream realtime service.
type EventKind int

const (
	EventSessionReady EventKind = iota
	EventSpeechStarted
	EventSpeechStopped
	EventTranscriptFinal
	EventResponseTextDelta
	EventResponseTextDone
	EventUpstreamError
)

func (k EventKind) String() string {
	switch k {
	case EventSessionReady:
		return "session_ready"
	case EventSpeechStarted:
		return "speech_started"
	case EventSpeechStopped:
		return "speech_stopped"
	case EventTranscriptFinal:
		return "transcript_final"
	case EventResponseTextDelta:
		return "response_text_delta"
	case EventResponseTextDone:
		return "response_text_done"
	case EventUpstreamError:
		return "upstream_error"
	default:
		return "unknown"
	}
}

// ServerEvent is a typed event demultiplexed from the upstream connection.
// Text carries the transcript or response text; Message carries an error
// description for EventUpstreamError.
type ServerEvent struct {
	Kind    EventKind
	Text    string
	Message string
}

// Upstream is the session-facing contract of the realtime adapter.
type Upstream interface {
	// Events returns the inbound event stream. The channel is closed when
	// the upstream connection ends for any reason.
	Events() <-chan ServerEvent

	// AppendAudio forwards one client PCM16 chunk to the upstream audio buffer.
	AppendAudio(pcm []byte) error

	// ClearAudioBuffer discards audio accumulated upstream but not yet committed.
	ClearAudioBuffer() error

	// CreateAssistantMessage injects text into the conversation history as an
	// already-spoken assistant turn.
	CreateAssistantMessage(text string) error

	// CreateUserMessage injects text as a user turn (typed text fallback).
	CreateUserMessage(text string) error

	// CreateResponse asks the upstream model to generate a response now.
	CreateResponse() error

	Close() error
}

// ErrNotConfigured indicates missing upstream credentials. Fatal before the
// session ever reaches the connecting state.
var ErrNotConfigured = errors.New("realtime: upstream API key not configured")

// ErrNotConnected is returned for sends before Connect succeeds.
var ErrNotConnected = errors.New("realtime: not connected")

// ConnectError wraps the last error after all connection attempts failed.
type ConnectError struct {
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("realtime: connection failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
