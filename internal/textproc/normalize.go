package textproc

import (
	"regexp"
	"strings"
)

// timecodeRE matches timecode-like tokens that the upstream model sometimes
// prepends to transcripts and responses: 00:05, 0:05, 00:05:12, [00:05],
// (00:05). The token must stand alone (preceded by start/whitespace, followed
// by whitespace, punctuation or end).
var timecodeRE = regexp.MustCompile(
	`(^|\s)[\[\({]?\d{1,2}:\d{2}(?::\d{2})?[\]\)}]?([\s.,;:!?)]|$)`,
)

// leadingTimecodeRE catches repeated leading patterns like "00:05 00:05 ".
var leadingTimecodeRE = regexp.MustCompile(`^(?:\s*:?0?\d{1,2}:\d{2}\s*)+`)

// devanagariRE matches the Devanagari block (U+0900..U+097F). The TTS voice
// speaks Roman-script Hinglish; Devanagari runs cause prosody resets.
var devanagariRE = regexp.MustCompile("[ऀ-ॿ]+")

var multiSpaceRE = regexp.MustCompile(`\s{2,}`)

// StripTimecodes removes timecode tokens from text, keeping surrounding
// whitespace collapsed. Applied to user transcripts, typed messages, and
// agent responses before they reach the client or the TTS service.
func StripTimecodes(text string) string {
	if text == "" {
		return text
	}
	cleaned := timecodeRE.ReplaceAllString(text, "$1$2")
	// The regexp above consumes the trailing delimiter, so adjacent tokens
	// need a second pass.
	cleaned = timecodeRE.ReplaceAllString(cleaned, "$1$2")
	cleaned = leadingTimecodeRE.ReplaceAllString(cleaned, "")
	cleaned = multiSpaceRE.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// Normalize prepares text for TTS and for the client transcript:
// timecodes removed, Devanagari danda replaced with a period, Devanagari
// characters stripped, ellipses collapsed to a single period, whitespace
// runs collapsed. Digits are preserved so numbers are spoken reliably.
// Normalize is idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = StripTimecodes(text)

	// Devanagari danda ends a sentence.
	text = strings.ReplaceAll(text, "।", ".")
	text = devanagariRE.ReplaceAllString(text, "")

	text = strings.ReplaceAll(text, "…", ".")
	text = strings.ReplaceAll(text, "...", ".")

	text = multiSpaceRE.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
