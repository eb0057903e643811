package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ariavoice/voice-gateway/internal/auth"
	"github.com/ariavoice/voice-gateway/internal/knowledge"
	"github.com/ariavoice/voice-gateway/internal/observability"
	"github.com/ariavoice/voice-gateway/internal/realtime"
	"github.com/ariavoice/voice-gateway/internal/session"
	"github.com/ariavoice/voice-gateway/internal/tts"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins during development.
		// TODO: restrict to the dashboard origin once it is deployed.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// clientMessage is the superset of client control frames.
type clientMessage struct {
	Event    string `json:"event"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text,omitempty"`
	Value    string `json:"value,omitempty"`
}

// UpstreamFactory builds the realtime connection for one session. Swappable
// in tests.
type UpstreamFactory func(snapshot knowledge.Snapshot, language string, logger zerolog.Logger) session.Upstream

// Options configure the gateway handler.
type Options struct {
	Profiles      knowledge.Provider
	Tokens        *auth.TokenCache
	RealtimeURL   string
	RealtimeModel string
	Synth         tts.Synthesizer
	SessionConfig session.Config
	Logger        zerolog.Logger

	ConnectAttempts int
	ConnectBackoff  time.Duration

	// NewUpstream overrides the default realtime client constructor.
	NewUpstream UpstreamFactory
}

// Handler accepts client websocket connections and owns one session per
// connection.
type Handler struct {
	opts Options
}

// NewHandler creates the gateway handler.
func NewHandler(opts Options) *Handler {
	h := &Handler{opts: opts}
	if h.opts.NewUpstream == nil {
		h.opts.NewUpstream = h.defaultUpstream
	}
	return h
}

func (h *Handler) defaultUpstream(snapshot knowledge.Snapshot, language string, logger zerolog.Logger) session.Upstream {
	return realtime.NewClient(realtime.Options{
		URL:                   h.opts.RealtimeURL,
		Model:                 h.opts.RealtimeModel,
		Tokens:                h.opts.Tokens,
		Instructions:          snapshot.SystemInstructions,
		VAD:                   snapshot.VAD,
		LLM:                   snapshot.LLM,
		TranscriptionLanguage: transcriptionLanguage(language),
		ConnectAttempts:       h.opts.ConnectAttempts,
		ConnectBackoff:        h.opts.ConnectBackoff,
		Logger:                logger,
	})
}

// transcriptionLanguage maps the client's preference to an upstream
// transcription hint. Hinglish speech is transcribed with the Hindi model.
func transcriptionLanguage(preference string) string {
	switch preference {
	case "hi", "hinglish":
		return "hi"
	default:
		return "en"
	}
}

// Handle is the websocket entry point for voice sessions.
func (h *Handler) Handle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.opts.Logger.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}
		defer conn.Close()

		correlationID := observability.NewCorrelationID()
		logger := h.opts.Logger.With().Str("correlation_id", correlationID).Logger()

		// The token is issued elsewhere; its presence is only logged here.
		if token := r.URL.Query().Get("token"); token != "" {
			logger.Debug().Msg("Client presented a session token")
		}

		language, ok := h.awaitStart(conn, logger)
		if !ok {
			return
		}

		snapshot := h.opts.Profiles.Snapshot(language)
		client := &wsClient{conn: conn}
		s := session.New(session.Deps{
			Client:   client,
			Upstream: h.opts.NewUpstream(snapshot, language, logger),
			Synth:    h.opts.Synth,
			Snapshot: snapshot,
			Config:   h.opts.SessionConfig,
			Metrics:  observability.NewSessionMetrics(correlationID),
			Logger:   logger,
		})

		if err := s.Start(r.Context()); err != nil {
			return
		}
		defer s.End("connection closed")

		// A session-initiated end (timeout, upstream loss) must unblock the
		// read loop below.
		go func() {
			<-s.Done()
			conn.Close()
		}()

		h.relay(conn, s, logger)
	}
}

// awaitStart reads frames until the start handshake arrives. Audio sent
// before start is discarded. Returns false when the client went away or
// asked to stop before starting.
func (h *Handler) awaitStart(conn *websocket.Conn, logger zerolog.Logger) (string, bool) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return "", false
		}
		if mt == websocket.BinaryMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug().Err(err).Msg("Dropping malformed control frame before start")
			continue
		}

		switch msg.Event {
		case "start":
			logger.Info().Str("language", msg.Language).Msg("Client started a voice session")
			return msg.Language, true
		case "stop", "end_call":
			return "", false
		default:
			logger.Debug().Str("event", msg.Event).Msg("Ignoring control frame before start")
		}
	}
}

// relay forwards client frames into the session until either side ends.
func (h *Handler) relay(conn *websocket.Conn, s *session.Session, logger zerolog.Logger) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			s.End("client disconnected")
			return
		}

		if mt == websocket.BinaryMessage {
			s.HandleAudio(data)
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug().Err(err).Msg("Dropping malformed control frame")
			continue
		}

		switch msg.Event {
		case "stop", "end_call":
			s.End("client requested stop")
			return
		case "text_message":
			s.HandleTextMessage(msg.Text)
		case "language":
			s.SetLanguage(msg.Value)
		default:
			logger.Debug().Str("event", msg.Event).Msg("Ignoring unknown control frame")
		}
	}
}

// wsClient adapts the websocket connection to the session's client contract.
// Session goroutines send concurrently, so writes are serialized here.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) SendEvent(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsClient) SendAudio(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}
