package session

import "testing"

func TestMachine_LegalLifecycle(t *testing.T) {
	m := NewMachine()

	steps := []State{StateConnecting, StateWelcome, StateSpeaking, StateListening,
		StateThinking, StateSpeaking, StateListening}
	for _, next := range steps {
		if !m.Transition(next) {
			t.Fatalf("transition %v -> %v refused", m.State(), next)
		}
	}
	if got := m.State(); got != StateListening {
		t.Errorf("final state = %v", got)
	}
}

func TestMachine_IllegalTransitionsRefused(t *testing.T) {
	cases := []struct {
		name string
		walk []State
		deny State
	}{
		{"speaking from init", nil, StateSpeaking},
		{"welcome from init", nil, StateWelcome},
		{"thinking from connecting", []State{StateConnecting}, StateThinking},
		{"connecting from listening", []State{StateConnecting, StateWelcome, StateListening}, StateConnecting},
		{"welcome again from speaking", []State{StateConnecting, StateWelcome, StateSpeaking}, StateWelcome},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMachine()
			for _, s := range tc.walk {
				if !m.Transition(s) {
					t.Fatalf("setup transition to %v refused", s)
				}
			}
			before := m.State()
			if m.Transition(tc.deny) {
				t.Fatalf("transition %v -> %v should be refused", before, tc.deny)
			}
			if got := m.State(); got != before {
				t.Errorf("refused transition changed state to %v", got)
			}
		})
	}
}

func TestMachine_NoTransitionOutOfEnded(t *testing.T) {
	m := NewMachine()
	m.Transition(StateConnecting)
	if !m.End() {
		t.Fatal("End refused")
	}
	if m.End() {
		t.Error("second End should report already ended")
	}

	for _, s := range []State{StateConnecting, StateWelcome, StateListening, StateThinking, StateSpeaking} {
		if m.Transition(s) {
			t.Errorf("transition out of ended to %v allowed", s)
		}
	}
}

func TestState_String(t *testing.T) {
	if StateSpeaking.String() != "speaking" || StateEnded.String() != "ended" {
		t.Error("state names wrong")
	}
	if State(99).String() != "unknown" {
		t.Error("unknown state name wrong")
	}
}
