package session

// ClientSender is the session's view of the client connection. The gateway
// implements it over the websocket; tests implement it in memory.
type ClientSender interface {
	// SendEvent writes one JSON control event to the client.
	SendEvent(v any) error
	// SendAudio writes one binary PCM frame to the client.
	SendAudio(frame []byte) error
}

// Server to client control events.

type SessionStartedEvent struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
}

type AgentStateEvent struct {
	Event string `json:"event"`
	State string `json:"state"`
}

// TranscriptEvent carries the user's recognized speech (or typed text).
type TranscriptEvent struct {
	Event   string `json:"event"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// AgentTextEvent carries the agent's full response text before its audio.
type AgentTextEvent struct {
	Event     string `json:"event"`
	Text      string `json:"text"`
	Language  string `json:"language"`
	IsOnTopic bool   `json:"is_on_topic"`
}

// AudioChunkEvent brackets the binary frames of one spoken segment.
type AudioChunkEvent struct {
	Event       string `json:"event"`
	TextPreview string `json:"text_preview"`
}

// SignalEvent is a bare marker: agent_audio_end when a response drained
// normally, agent_audio_stop when a barge-in cut it short.
type SignalEvent struct {
	Event string `json:"event"`
}

type ErrorEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

func sessionStarted(id string) SessionStartedEvent {
	return SessionStartedEvent{Event: "session_started", SessionID: id}
}

func agentState(s State) AgentStateEvent {
	return AgentStateEvent{Event: "agent_state", State: s.String()}
}

func transcript(text string) TranscriptEvent {
	return TranscriptEvent{Event: "transcript", Text: text, IsFinal: true}
}

func agentText(text string) AgentTextEvent {
	return AgentTextEvent{
		Event:     "agent_text",
		Text:      text,
		Language:  DetectLanguage(text),
		IsOnTopic: IsOnTopic(text),
	}
}

func audioChunkStart(preview string) AudioChunkEvent {
	return AudioChunkEvent{Event: "agent_audio_chunk_start", TextPreview: preview}
}

func audioChunkEnd(preview string) AudioChunkEvent {
	return AudioChunkEvent{Event: "agent_audio_chunk_end", TextPreview: preview}
}

func audioEnd() SignalEvent {
	return SignalEvent{Event: "agent_audio_end"}
}

func audioStop() SignalEvent {
	return SignalEvent{Event: "agent_audio_stop"}
}

func errorEvent(message string) ErrorEvent {
	return ErrorEvent{Event: "error", Message: message}
}
