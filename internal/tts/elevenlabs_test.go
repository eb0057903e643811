package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ariavoice/voice-gateway/internal/knowledge"
	"github.com/ariavoice/voice-gateway/internal/resilience"
)

func testVoice() knowledge.VoiceParams {
	return knowledge.VoiceParams{
		VoiceID:                  "voice-1",
		ModelID:                  "model-1",
		Stability:                0.4,
		SimilarityBoost:          0.85,
		Style:                    0.35,
		Speed:                    0.95,
		UseSpeakerBoost:          true,
		OutputFormat:             "pcm_24000",
		OptimizeStreamingLatency: 4,
	}
}

func newTestClient(url string) *ElevenLabsClient {
	breaker := resilience.NewCircuitBreaker("tts", 100, time.Minute)
	return NewElevenLabsClient("test-key", url, breaker, zerolog.Nop())
}

func collectFrames(t *testing.T, frames <-chan []byte) [][]byte {
	t.Helper()
	var out [][]byte
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-timeout:
			t.Fatal("timed out collecting frames")
		}
	}
}

func TestSynthesize_StreamsFrames(t *testing.T) {
	audio := make([]byte, FrameSize*2+100) // 2 full frames + remainder
	for i := range audio {
		audio[i] = byte(i % 251)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/v1/text-to-speech/voice-1/stream") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Error("missing api key header")
		}
		if got := r.URL.Query().Get("output_format"); got != "pcm_24000" {
			t.Errorf("output_format = %q", got)
		}

		var req synthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request payload: %v", err)
		}
		if req.Text != "Haan ji, bilkul." {
			t.Errorf("text = %q", req.Text)
		}
		if req.ModelID != "model-1" {
			t.Errorf("model = %q", req.ModelID)
		}
		if req.VoiceSettings.Speed != 0.95 {
			t.Errorf("speed = %v", req.VoiceSettings.Speed)
		}

		w.Write(audio)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	frames, err := c.Synthesize(context.Background(), "Haan ji, bilkul.", testVoice())
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	got := collectFrames(t, frames)
	if len(got) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(got))
	}
	total := 0
	for i, f := range got {
		if len(f) > FrameSize {
			t.Errorf("frame %d exceeds FrameSize: %d", i, len(f))
		}
		total += len(f)
	}
	if total != len(audio) {
		t.Errorf("expected %d audio bytes, got %d", len(audio), total)
	}

	// Byte-for-byte reassembly.
	var joined []byte
	for _, f := range got {
		joined = append(joined, f...)
	}
	for i := range audio {
		if joined[i] != audio[i] {
			t.Fatalf("audio corrupted at byte %d", i)
		}
	}
}

func TestSynthesize_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Synthesize(context.Background(), "text", testVoice())

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", statusErr.Code)
	}
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Synthesize(context.Background(), "text", testVoice())
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestSynthesize_MissingKey(t *testing.T) {
	breaker := resilience.NewCircuitBreaker("tts", 5, time.Minute)
	c := NewElevenLabsClient("", "http://example.invalid", breaker, zerolog.Nop())

	_, err := c.Synthesize(context.Background(), "text", testVoice())
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSynthesize_CircuitOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := resilience.NewCircuitBreaker("tts", 2, time.Minute)
	c := NewElevenLabsClient("test-key", server.URL, breaker, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if _, err := c.Synthesize(context.Background(), "text", testVoice()); err == nil {
			t.Fatal("expected failure")
		}
	}

	_, err := c.Synthesize(context.Background(), "text", testVoice())
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen after repeated failures, got %v", err)
	}
}

func TestSynthesize_SmallAudioSingleFrame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tiny-pcm-bytes"))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	frames, err := c.Synthesize(context.Background(), "text", testVoice())
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	got := collectFrames(t, frames)
	if len(got) != 1 || string(got[0]) != "tiny-pcm-bytes" {
		t.Errorf("unexpected frames: %v", got)
	}
}
