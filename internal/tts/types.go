package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariavoice/voice-gateway/internal/knowledge"
)

// FrameSize is the maximum size of one relayed audio frame. The TTS service
// returns raw PCM with no internal framing, so any split boundary is safe;
// 16 KiB keeps playback latency low.
const FrameSize = 16 * 1024

// Synthesizer converts one text segment into a stream of PCM16 frames.
type Synthesizer interface {
	// Synthesize requests audio for text and returns it as a lazy sequence
	// of frames of at most FrameSize bytes. The channel is closed when the
	// audio is exhausted or the context is cancelled. Errors are per-segment
	// and non-fatal to the session.
	Synthesize(ctx context.Context, text string, voice knowledge.VoiceParams) (<-chan []byte, error)
}

// ErrNotConfigured indicates a missing TTS API key: fatal at startup.
var ErrNotConfigured = errors.New("tts: API key not configured")

// ErrEmptyAudio indicates the service returned a 2xx with no audio bytes.
// The segment is skipped; the session continues.
var ErrEmptyAudio = errors.New("tts: service returned empty audio")

// StatusError reports a non-2xx synthesis response. Per-segment, non-fatal.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tts: service returned status %d: %s", e.Code, e.Body)
}
