package textproc

import (
	"regexp"
	"strings"
)

// Chunking limits. Short segments keep the TTS voice from resetting its
// prosody mid-thought and bound barge-in latency to one segment.
const (
	MaxChunkChars = 80
	MaxChunkWords = 20
	WindowWords   = 15
)

var sentenceBoundaryRE = regexp.MustCompile(`([.?!])\s+|\n+`)

// Chunk splits text into short speakable segments: split on sentence
// boundaries, greedily merge adjacent sentences while the segment stays
// within MaxChunkChars and MaxChunkWords, then break any oversized segment
// on commas or, failing that, into fixed windows of WindowWords words.
// A non-empty input always yields at least one non-empty segment, and the
// segments preserve every non-whitespace character of the input.
func Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)

	var merged []string
	var current string
	for _, part := range sentences {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if current != "" &&
			len(current)+1+len(part) <= MaxChunkChars &&
			wordCount(current+" "+part) <= MaxChunkWords {
			current += " " + part
		} else {
			if current != "" {
				merged = append(merged, current)
			}
			current = part
		}
	}
	if current != "" {
		merged = append(merged, current)
	}

	var out []string
	for _, c := range merged {
		if wordCount(c) <= MaxChunkWords && len(c) <= MaxChunkChars {
			out = append(out, c)
			continue
		}
		out = append(out, splitOversized(c)...)
	}

	if len(out) == 0 {
		return []string{text}
	}
	return out
}

// splitSentences splits on sentence-ending punctuation followed by
// whitespace, and on newlines, keeping the punctuation with the sentence.
func splitSentences(text string) []string {
	marked := sentenceBoundaryRE.ReplaceAllString(text, "$1\x00")
	return strings.Split(marked, "\x00")
}

// splitOversized breaks a too-long segment on commas (comma stays with the
// left part), falling back to fixed word windows when there is no comma to
// split on.
func splitOversized(c string) []string {
	var parts []string
	for _, p := range strings.SplitAfter(c, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 1 {
		var out []string
		for _, p := range parts {
			if wordCount(p) > MaxChunkWords || len(p) > MaxChunkChars {
				out = append(out, windowWords(p)...)
			} else {
				out = append(out, p)
			}
		}
		return out
	}
	return windowWords(c)
}

// windowWords packs words greedily into windows of at most WindowWords
// words and MaxChunkChars characters. A single word longer than the char
// limit becomes its own window.
func windowWords(c string) []string {
	words := strings.Fields(c)
	var out []string
	var cur []string
	curLen := 0
	for _, w := range words {
		add := len(w)
		if len(cur) > 0 {
			add++ // joining space
		}
		if len(cur) > 0 && (len(cur) >= WindowWords || curLen+add > MaxChunkChars) {
			out = append(out, strings.Join(cur, " "))
			cur = cur[:0]
			curLen = 0
			add = len(w)
		}
		cur = append(cur, w)
		curLen += add
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
