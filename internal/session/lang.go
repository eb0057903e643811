package session

import "strings"

// DetectLanguage classifies agent text by script: Devanagari only is Hindi,
// Devanagari mixed with Latin is Hinglish, anything else is English.
func DetectLanguage(text string) string {
	var devanagari, latin bool
	for _, r := range text {
		switch {
		case r >= 0x0900 && r <= 0x097F:
			devanagari = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			latin = true
		}
	}
	switch {
	case devanagari && latin:
		return "hinglish"
	case devanagari:
		return "hi"
	default:
		return "en"
	}
}

// offTopicMarkers are phrases that indicate the model has stepped outside its
// sales-agent persona.
var offTopicMarkers = []string{
	"as an ai",
	"as a language model",
	"i cannot help with that",
	"i can't help with that",
	"i am not able to assist",
	"outside my area",
}

// IsOnTopic reports whether agent text stays within the configured persona.
func IsOnTopic(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range offTopicMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
