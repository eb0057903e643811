package knowledge

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
)

// FAQ is a question/answer pair folded into the system instructions.
type FAQ struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// Objection pairs a common customer objection with the scripted response.
type Objection struct {
	Objection string `yaml:"objection"`
	Response  string `yaml:"response"`
}

// Profile is the editable agent configuration backing the snapshots.
type Profile struct {
	AgentName      string      `yaml:"agent_name"`
	CompanyName    string      `yaml:"company_name"`
	AgentIdentity  string      `yaml:"agent_identity"`
	WelcomeMessage string      `yaml:"welcome_message"`
	SystemPrompt   string      `yaml:"system_prompt"`
	CallObjective  string      `yaml:"call_objective"`
	FAQs           []FAQ       `yaml:"faqs"`
	Objections     []Objection `yaml:"objections"`
	Voice          VoiceParams `yaml:"voice"`
	VAD            VADParams   `yaml:"vad"`
	LLM            LLMParams   `yaml:"llm"`
}

// DefaultProfile returns the compiled-in agent profile, used when no profile
// file is configured.
func DefaultProfile() Profile {
	return Profile{
		AgentName:      "Aria",
		CompanyName:    "Aria Realty",
		AgentIdentity:  "a warm, soft-spoken sales agent on a live phone call",
		WelcomeMessage: "Namaste! Mera naam Aria hai. Aapko English mein baat karni hai ya Hindi mein?",
		CallObjective:  "Answer questions about available projects and book a site visit.",
		Voice: VoiceParams{
			VoiceID:                  "NXsB2Ew7UyH5JDkfI3LF",
			ModelID:                  "eleven_turbo_v2_5",
			Stability:                0.40,
			SimilarityBoost:          0.85,
			Style:                    0.35,
			Speed:                    0.95,
			UseSpeakerBoost:          true,
			OutputFormat:             "pcm_24000",
			OptimizeStreamingLatency: 4,
		},
		VAD: VADParams{
			Type:              "server_vad",
			Threshold:         0.60,
			SilenceDurationMs: 1000,
			PrefixPaddingMs:   300,
		},
		LLM: LLMParams{
			Temperature:             0.7,
			MaxResponseOutputTokens: 300,
		},
	}
}

// Store is the configuration collaborator. It is the only mutable shared
// configuration state in the process and is guarded by a mutex; sessions
// read it exactly once through Snapshot.
type Store struct {
	mu      sync.RWMutex
	profile Profile
}

// NewStore creates a store seeded with the given profile.
func NewStore(p Profile) *Store {
	return &Store{profile: p}
}

// LoadStore builds a store from an optional YAML profile file. An empty path
// yields the compiled-in defaults.
func LoadStore(path string) (*Store, error) {
	profile := DefaultProfile()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read agent profile %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("failed to parse agent profile %s: %w", path, err)
		}
	}
	return NewStore(profile), nil
}

// Profile returns a copy of the current profile.
func (s *Store) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Update replaces the profile. Running sessions keep their snapshots.
func (s *Store) Update(p Profile) {
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
}

// Snapshot captures an immutable configuration snapshot for one session.
func (s *Store) Snapshot(languagePreference string) Snapshot {
	p := s.Profile()
	return Snapshot{
		WelcomeMessage:     p.WelcomeMessage,
		SystemInstructions: buildSystemInstructions(p, languagePreference),
		Voice:              p.Voice,
		VAD:                p.VAD,
		LLM:                p.LLM,
	}
}

// buildSystemInstructions compiles the profile into a compact instruction
// string for the upstream session. Kept short to minimize per-turn latency.
func buildSystemInstructions(p Profile, languagePreference string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, %s. You work for %s.\n",
		p.AgentName, p.AgentIdentity, p.CompanyName)

	b.WriteString("The welcome greeting has ALREADY been spoken to the user by the system. ")
	b.WriteString("Do NOT greet or introduce yourself again. Wait for the user to speak first.\n")

	switch languagePreference {
	case "en":
		b.WriteString("Speak natural conversational English.\n")
	case "hi":
		b.WriteString("Speak Hindi written in Roman script only, never Devanagari.\n")
	default:
		b.WriteString("Speak natural Indian Hinglish in Roman script only, never Devanagari.\n")
	}

	b.WriteString("Keep responses short: at most 2-3 sentences per reply. ")
	b.WriteString("You are spoken aloud by a TTS engine; spell out numbers the way they should be said.\n")

	if p.SystemPrompt != "" {
		b.WriteString(p.SystemPrompt)
		b.WriteString("\n")
	}
	if p.CallObjective != "" {
		fmt.Fprintf(&b, "Call objective: %s\n", p.CallObjective)
	}

	if len(p.FAQs) > 0 {
		b.WriteString("FAQs: ")
		for i, f := range p.FAQs {
			if i > 0 {
				b.WriteString(" | ")
			}
			fmt.Fprintf(&b, "%s -> %s", f.Question, f.Answer)
		}
		b.WriteString("\n")
	}
	if len(p.Objections) > 0 {
		b.WriteString("Objection handling: ")
		for i, o := range p.Objections {
			if i > 0 {
				b.WriteString(" | ")
			}
			fmt.Fprintf(&b, "%s -> %s", o.Objection, o.Response)
		}
		b.WriteString("\n")
	}

	return b.String()
}
