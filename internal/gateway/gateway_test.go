package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ariavoice/voice-gateway/internal/knowledge"
	"github.com/ariavoice/voice-gateway/internal/realtime"
	"github.com/ariavoice/voice-gateway/internal/session"
)

type fakeUpstream struct {
	mu         sync.Mutex
	connectErr error
	connects   int
	events     chan realtime.ServerEvent
	appended   int
	user       []string
	responses  int
	closeOnce  sync.Once
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{events: make(chan realtime.ServerEvent, 16)}
}

func (u *fakeUpstream) Connect(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.connects++
	return u.connectErr
}

func (u *fakeUpstream) Events() <-chan realtime.ServerEvent { return u.events }

func (u *fakeUpstream) AppendAudio(pcm []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.appended++
	return nil
}

func (u *fakeUpstream) ClearAudioBuffer() error { return nil }

func (u *fakeUpstream) CreateAssistantMessage(text string) error { return nil }

func (u *fakeUpstream) CreateUserMessage(text string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.user = append(u.user, text)
	return nil
}

func (u *fakeUpstream) CreateResponse() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.responses++
	return nil
}

func (u *fakeUpstream) Close() error {
	u.closeOnce.Do(func() { close(u.events) })
	return nil
}

type fakeSynth struct{}

func (fakeSynth) Synthesize(ctx context.Context, text string, voice knowledge.VoiceParams) (<-chan []byte, error) {
	ch := make(chan []byte, 1)
	ch <- []byte("pcm:" + text)
	close(ch)
	return ch, nil
}

func testHandler(up *fakeUpstream, welcome string) *Handler {
	profile := knowledge.DefaultProfile()
	profile.WelcomeMessage = welcome
	return NewHandler(Options{
		Profiles:      knowledge.NewStore(profile),
		Synth:         fakeSynth{},
		SessionConfig: session.Config{SilenceThreshold: 500, QueueSize: 64},
		Logger:        zerolog.Nop(),
		NewUpstream: func(snapshot knowledge.Snapshot, language string, logger zerolog.Logger) session.Upstream {
			return up
		},
	})
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// nextFrame reads one frame with a deadline; JSON frames come back decoded,
// binary frames as nil maps with the payload set.
func nextFrame(t *testing.T, conn *websocket.Conn) (map[string]any, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if mt == websocket.BinaryMessage {
		return nil, data
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("bad server frame: %v", err)
	}
	return msg, nil
}

// awaitEvent reads frames until the named event arrives, returning it and
// how many binary frames were seen on the way.
func awaitEvent(t *testing.T, conn *websocket.Conn, name string) (map[string]any, int) {
	t.Helper()
	binaries := 0
	for i := 0; i < 50; i++ {
		msg, bin := nextFrame(t, conn)
		if bin != nil {
			binaries++
			continue
		}
		if msg["event"] == name {
			return msg, binaries
		}
	}
	t.Fatalf("event %q never arrived", name)
	return nil, 0
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("send failed: %v", err)
	}
}

func TestGateway_StartHandshakeAndWelcome(t *testing.T) {
	up := newFakeUpstream()
	server := httptest.NewServer(testHandler(up, "Hello there.").Handle())
	defer server.Close()

	conn := dial(t, server)

	// Audio before start must be discarded, not crash the handshake.
	conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4})
	sendJSON(t, conn, map[string]any{"event": "start", "language": "en"})

	msg, _ := awaitEvent(t, conn, "session_started")
	if id, _ := msg["session_id"].(string); id == "" {
		t.Error("session_started missing session_id")
	}

	_, binaries := awaitEvent(t, conn, "agent_audio_end")
	if binaries == 0 {
		t.Error("welcome produced no audio frames")
	}

	up.mu.Lock()
	connects := up.connects
	up.mu.Unlock()
	if connects != 1 {
		t.Errorf("connects = %d, want 1", connects)
	}
}

func TestGateway_StopBeforeStartClosesWithoutSession(t *testing.T) {
	up := newFakeUpstream()
	server := httptest.NewServer(testHandler(up, "").Handle())
	defer server.Close()

	conn := dial(t, server)
	sendJSON(t, conn, map[string]any{"event": "stop"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection close after pre-start stop")
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if up.connects != 0 {
		t.Errorf("upstream connected despite pre-start stop")
	}
}

func TestGateway_StopTearsDownSession(t *testing.T) {
	up := newFakeUpstream()
	server := httptest.NewServer(testHandler(up, "").Handle())
	defer server.Close()

	conn := dial(t, server)
	sendJSON(t, conn, map[string]any{"event": "start"})
	awaitEvent(t, conn, "session_started")

	sendJSON(t, conn, map[string]any{"event": "end_call"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// The session must close its upstream exactly once on teardown.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case _, open := <-up.events:
			if !open {
				return
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatal("upstream not closed after end_call")
}

func TestGateway_TextMessageInjected(t *testing.T) {
	up := newFakeUpstream()
	server := httptest.NewServer(testHandler(up, "").Handle())
	defer server.Close()

	conn := dial(t, server)
	sendJSON(t, conn, map[string]any{"event": "start"})
	awaitEvent(t, conn, "session_started")

	sendJSON(t, conn, map[string]any{"event": "text_message", "text": "what is the price"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		up.mu.Lock()
		n, r := len(up.user), up.responses
		up.mu.Unlock()
		if n == 1 && r == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("typed message never reached upstream")
}

func TestGateway_AudioRelayedAfterGate(t *testing.T) {
	up := newFakeUpstream()
	server := httptest.NewServer(testHandler(up, "").Handle())
	defer server.Close()

	conn := dial(t, server)
	sendJSON(t, conn, map[string]any{"event": "start"})
	awaitEvent(t, conn, "agent_state")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.WriteMessage(websocket.BinaryMessage, make([]byte, 320))
		up.mu.Lock()
		n := up.appended
		up.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("audio never forwarded upstream after gate opened")
}

func TestGateway_UpstreamConnectFailure(t *testing.T) {
	up := newFakeUpstream()
	up.connectErr = fmt.Errorf("connection refused")
	server := httptest.NewServer(testHandler(up, "").Handle())
	defer server.Close()

	conn := dial(t, server)
	sendJSON(t, conn, map[string]any{"event": "start"})

	msg, _ := nextFrame(t, conn)
	if msg["event"] != "error" {
		t.Fatalf("expected error event first, got %v", msg)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection not closed after fatal connect failure")
	}
}

func TestTranscriptionLanguage(t *testing.T) {
	cases := map[string]string{"hi": "hi", "hinglish": "hi", "en": "en", "": "en", "fr": "en"}
	for in, want := range cases {
		if got := transcriptionLanguage(in); got != want {
			t.Errorf("transcriptionLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
