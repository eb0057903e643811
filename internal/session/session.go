package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ariavoice/voice-gateway/internal/audio"
	"github.com/ariavoice/voice-gateway/internal/knowledge"
	"github.com/ariavoice/voice-gateway/internal/observability"
	"github.com/ariavoice/voice-gateway/internal/realtime"
	"github.com/ariavoice/voice-gateway/internal/textproc"
	"github.com/ariavoice/voice-gateway/internal/tts"
)

// Upstream is the session's view of the realtime speech/LLM connection.
// Satisfied by *realtime.Client.
type Upstream interface {
	Connect(ctx context.Context) error
	Events() <-chan realtime.ServerEvent
	AppendAudio(pcm []byte) error
	ClearAudioBuffer() error
	CreateAssistantMessage(text string) error
	CreateUserMessage(text string) error
	CreateResponse() error
	Close() error
}

// Config holds the tunable timing and policy knobs of one session.
type Config struct {
	// PreSegmentDelay is the pause before each spoken segment.
	PreSegmentDelay time.Duration
	// InterFrameDelay is the pause between relayed audio frames.
	InterFrameDelay time.Duration
	// PostSegmentDelay is the pause after each spoken segment.
	PostSegmentDelay time.Duration
	// WelcomeSettleDelay is the wait between the two audio-buffer clears
	// after the welcome greeting, letting playback echo die down before the
	// microphone gate opens.
	WelcomeSettleDelay time.Duration

	// PreSpeechSuppressLimit is how many upstream responses arriving before
	// any final user transcript are discarded as false triggers. Negative
	// means suppress all of them.
	PreSpeechSuppressLimit int

	// MaxCallDuration ends the session when exceeded. Zero disables.
	MaxCallDuration time.Duration
	// SilenceTimeout ends the session after this much caller silence.
	// Zero disables.
	SilenceTimeout time.Duration
	// SilenceThreshold is the RMS energy below which caller audio counts
	// as silence.
	SilenceThreshold float64

	// QueueSize bounds the TTS work queue. Zero means 64.
	QueueSize int
}

// DefaultConfig returns production timing values.
func DefaultConfig() Config {
	return Config{
		PreSegmentDelay:        500 * time.Millisecond,
		InterFrameDelay:        10 * time.Millisecond,
		PostSegmentDelay:       350 * time.Millisecond,
		WelcomeSettleDelay:     1500 * time.Millisecond,
		PreSpeechSuppressLimit: 1,
		MaxCallDuration:        10 * time.Minute,
		SilenceTimeout:         90 * time.Second,
		SilenceThreshold:       500,
		QueueSize:              64,
	}
}

// Deps are the collaborators of one session.
type Deps struct {
	Client   ClientSender
	Upstream Upstream
	Synth    tts.Synthesizer
	Snapshot knowledge.Snapshot
	Config   Config
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

// Session owns the lifecycle of one call: it relays client audio upstream,
// turns upstream response text into synthesized speech, and coordinates
// barge-in, the welcome bootstrap, and teardown.
type Session struct {
	ID string

	logger  zerolog.Logger
	metrics *observability.Metrics

	machine  *Machine
	client   ClientSender
	upstream Upstream
	synth    tts.Synthesizer
	snapshot knowledge.Snapshot
	cfg      Config

	queue chan WorkItem

	interrupted        atomic.Bool
	readyForAudio      atomic.Bool
	gotFirstUserSpeech atomic.Bool
	suppressedCount    atomic.Int64
	responseCount      atomic.Int64

	deltaMu  sync.Mutex
	deltaBuf strings.Builder

	langMu   sync.Mutex
	language string

	silence *audio.SilenceTracker
	started time.Time

	ctx    context.Context
	cancel context.CancelFunc

	endOnce sync.Once
	done    chan struct{}
}

// New creates an unstarted session.
func New(deps Deps) *Session {
	cfg := deps.Config
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 64
	}

	id := uuid.New().String()
	return &Session{
		ID:       id,
		logger:   deps.Logger.With().Str("session_id", id).Logger(),
		metrics:  deps.Metrics,
		machine:  NewMachine(),
		client:   deps.Client,
		upstream: deps.Upstream,
		synth:    deps.Synth,
		snapshot: deps.Snapshot,
		cfg:      cfg,
		queue:    make(chan WorkItem, cfg.QueueSize),
		silence:  audio.NewSilenceTracker(cfg.SilenceThreshold),
		done:     make(chan struct{}),
	}
}

// Start connects upstream and launches the session's goroutines. A connection
// failure is fatal: the client receives exactly one error event and the
// session never starts.
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = time.Now()
	s.machine.Transition(StateConnecting)

	if err := s.upstream.Connect(s.ctx); err != nil {
		s.metrics.RecordUpstreamConnect(false)
		s.metrics.RecordError("upstream_connect_failed", "realtime")
		s.logger.Error().Err(err).Msg("Upstream connection failed, session not started")
		s.sendEvent(errorEvent("could not reach the speech service"))
		s.finish("upstream connect failed")
		return err
	}
	s.metrics.RecordUpstreamConnect(true)
	s.metrics.RecordSessionStart()

	s.sendEvent(sessionStarted(s.ID))
	s.logger.Info().Msg("Session started")

	go s.worker()
	go s.watchdog()
	go s.eventLoop()
	go s.welcome()

	return nil
}

// Done is closed when the session has fully torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.machine.State()
}

// End tears the session down exactly once: upstream closed, goroutines
// cancelled. Safe to call from any goroutine and any state.
func (s *Session) End(reason string) {
	s.finish(reason)
}

func (s *Session) finish(reason string) {
	s.endOnce.Do(func() {
		s.machine.End()
		s.logger.Info().Str("reason", reason).Msg("Session ended")
		if s.cancel != nil {
			s.cancel()
		}
		s.upstream.Close()
		s.metrics.RecordSessionEnd()
		close(s.done)
	})
}

func (s *Session) ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// welcome runs the greeting bootstrap: speak the first welcome line, wait for
// its playback to drain, tell the upstream model it already greeted, then
// scrub the upstream audio buffer twice around a settle delay so playback
// echo cannot trip voice activity detection. Only after that does the
// microphone gate open.
func (s *Session) welcome() {
	s.machine.Transition(StateWelcome)

	full := textproc.Normalize(s.snapshot.WelcomeMessage)
	line := full
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}

	if line != "" {
		s.setSpeaking()
		// The client transcript shows the whole welcome; only its first line
		// is spoken.
		s.sendEvent(agentText(full))
		for _, seg := range textproc.Chunk(line) {
			s.enqueue(WorkItem{Text: seg})
		}
		done := make(chan struct{})
		if s.enqueue(WorkItem{EndOfResponse: true, Done: done}) {
			select {
			case <-done:
			case <-s.ctx.Done():
				return
			}
		}
	}

	if err := s.upstream.CreateAssistantMessage(s.snapshot.WelcomeMessage); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to inject welcome into conversation history")
	}

	if err := s.upstream.ClearAudioBuffer(); err != nil {
		s.logger.Warn().Err(err).Msg("Audio buffer clear failed")
	}
	if !s.sleep(s.cfg.WelcomeSettleDelay) {
		return
	}
	if err := s.upstream.ClearAudioBuffer(); err != nil {
		s.logger.Warn().Err(err).Msg("Audio buffer clear failed")
	}

	s.silence.Reset()
	s.readyForAudio.Store(true)
	s.logger.Info().Msg("Microphone gate open, forwarding client audio")

	// With a spoken welcome the worker already moved to listening when the
	// sentinel drained. With nothing queued, move there now.
	if line == "" {
		if s.machine.Transition(StateListening) {
			s.sendEvent(agentState(StateListening))
		}
	}
}

// eventLoop consumes upstream events until the stream closes or the session
// ends. Stream closure while the session is still live is a fatal upstream
// failure.
func (s *Session) eventLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.upstream.Events():
			if !ok {
				if !s.ended() {
					s.metrics.RecordError("upstream_closed", "realtime")
					s.sendEvent(errorEvent("speech service connection lost"))
					s.finish("upstream connection ended")
				}
				return
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev realtime.ServerEvent) {
	s.metrics.RecordUpstreamEvent(ev.Kind.String())

	switch ev.Kind {
	case realtime.EventSessionReady:
		s.logger.Debug().Msg("Upstream session ready")

	case realtime.EventSpeechStarted:
		s.handleSpeechStarted()

	case realtime.EventSpeechStopped:
		if s.machine.Transition(StateThinking) {
			s.sendEvent(agentState(StateThinking))
		}

	case realtime.EventTranscriptFinal:
		s.handleTranscript(ev.Text)

	case realtime.EventResponseTextDelta:
		s.deltaMu.Lock()
		s.deltaBuf.WriteString(ev.Text)
		s.deltaMu.Unlock()

	case realtime.EventResponseTextDone:
		s.handleResponseDone(ev.Text)

	case realtime.EventUpstreamError:
		s.metrics.RecordError("upstream_error", "realtime")
		s.logger.Warn().Str("message", ev.Message).Msg("Upstream reported an error")
	}
}

// handleSpeechStarted handles barge-in: if the agent is mid-speech, stop
// playback before any further audio reaches the client and flush every queued
// segment of the in-flight response.
func (s *Session) handleSpeechStarted() {
	s.silence.Reset()

	if !s.machine.Is(StateSpeaking) {
		return
	}

	s.interrupted.Store(true)
	s.drainQueue()
	s.sendEvent(audioStop())
	s.metrics.RecordBargeIn()
	s.logger.Info().Msg("Barge-in: user interrupted agent speech")

	if s.machine.Transition(StateListening) {
		s.sendEvent(agentState(StateListening))
	}
}

func (s *Session) handleTranscript(text string) {
	clean := textproc.StripTimecodes(text)
	if strings.TrimSpace(clean) == "" {
		return
	}
	s.gotFirstUserSpeech.Store(true)
	s.silence.Reset()
	s.sendEvent(transcript(clean))
	s.logger.Info().Str("transcript", clean).Msg("User said")
}

// handleResponseDone turns one completed upstream response into speech. A
// response arriving before any final user transcript is treated as a false
// trigger from welcome-window noise and suppressed, emitting only the
// end-of-response sentinel so the worker's queue state stays consistent.
func (s *Session) handleResponseDone(text string) {
	s.responseCount.Add(1)

	full := text
	if full == "" {
		full = s.takeDeltas()
	} else {
		s.takeDeltas()
	}

	if !s.gotFirstUserSpeech.Load() && s.shouldSuppress() {
		s.suppressedCount.Add(1)
		s.metrics.RecordSuppressedResponse()
		s.logger.Info().Msg("Suppressing upstream response before first user speech")
		s.enqueue(WorkItem{EndOfResponse: true})
		return
	}

	clean := textproc.StripTimecodes(full)
	if clean == "" {
		s.enqueue(WorkItem{EndOfResponse: true})
		return
	}

	s.interrupted.Store(false)
	s.setSpeaking()
	s.sendEvent(agentText(clean))
	s.metrics.RecordAgentResponse()
	s.logger.Info().Str("response", clean).Msg("Agent responding")

	// The transcript keeps the original script; only the text handed to the
	// TTS voice is normalized to Roman script.
	for _, seg := range textproc.Chunk(textproc.Normalize(clean)) {
		s.enqueue(WorkItem{Text: seg})
	}
	s.enqueue(WorkItem{EndOfResponse: true})
}

func (s *Session) shouldSuppress() bool {
	limit := s.cfg.PreSpeechSuppressLimit
	if limit < 0 {
		return true
	}
	return s.suppressedCount.Load() < int64(limit)
}

func (s *Session) takeDeltas() string {
	s.deltaMu.Lock()
	defer s.deltaMu.Unlock()
	text := s.deltaBuf.String()
	s.deltaBuf.Reset()
	return text
}

func (s *Session) setSpeaking() {
	if s.machine.Transition(StateSpeaking) {
		s.sendEvent(agentState(StateSpeaking))
	}
}

// HandleAudio forwards one client PCM chunk upstream. Chunks arriving before
// the microphone gate opens are discarded so welcome-playback echo cannot
// trigger false voice activity.
func (s *Session) HandleAudio(pcm []byte) {
	if !s.readyForAudio.Load() || s.ended() {
		return
	}
	s.silence.Observe(pcm)
	s.metrics.RecordAudioBytes("in", int64(len(pcm)))
	if err := s.upstream.AppendAudio(pcm); err != nil {
		s.metrics.RecordError("upstream_append_failed", "realtime")
		s.logger.Warn().Err(err).Msg("Failed to forward audio upstream")
	}
}

// HandleTextMessage injects typed text as a user turn and asks for a
// response, for clients without a working microphone.
func (s *Session) HandleTextMessage(text string) {
	clean := textproc.StripTimecodes(text)
	if strings.TrimSpace(clean) == "" {
		return
	}
	s.gotFirstUserSpeech.Store(true)
	s.silence.Reset()
	s.sendEvent(transcript(clean))

	if err := s.upstream.CreateUserMessage(clean); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to inject typed user message")
		return
	}
	if err := s.upstream.CreateResponse(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to request response for typed message")
	}
}

// SetLanguage updates the caller's language preference. The upstream session
// keeps the instructions it was configured with; the preference applies to
// labeling and to the next session.
func (s *Session) SetLanguage(lang string) {
	s.langMu.Lock()
	s.language = lang
	s.langMu.Unlock()
	s.logger.Info().Str("language", lang).Msg("Language preference updated")
}

// watchdog enforces the per-call duration cap and silence-based termination.
func (s *Session) watchdog() {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.cfg.MaxCallDuration > 0 && time.Since(s.started) > s.cfg.MaxCallDuration {
				s.finish("max call duration reached")
				return
			}
			if s.cfg.SilenceTimeout > 0 && s.readyForAudio.Load() &&
				!s.machine.Is(StateSpeaking) && s.silence.Idle() > s.cfg.SilenceTimeout {
				s.finish("silence timeout")
				return
			}
		}
	}
}

func (s *Session) enqueue(item WorkItem) bool {
	select {
	case s.queue <- item:
		return true
	default:
		s.logger.Warn().Msg("TTS work queue full, dropping segment")
		s.metrics.RecordError("work_queue_full", "session")
		return false
	}
}

func (s *Session) drainQueue() {
	for {
		select {
		case item := <-s.queue:
			if item.Done != nil {
				close(item.Done)
			}
		default:
			return
		}
	}
}

func (s *Session) sendEvent(v any) {
	if err := s.client.SendEvent(v); err != nil {
		s.logger.Debug().Err(err).Msg("Client event send failed")
	}
}

// sleep waits for d, returning false if the session ends first.
func (s *Session) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
