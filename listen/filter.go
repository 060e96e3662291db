// Package listen turns raw perception from a call or meeting into decided
// human turns. It holds the caption noise filter, the silence tracker, the
// polling detector used for live captions and the push inbox used when the
// provider delivers finished utterances.
package listen

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// AgentLabel is the caption label a meeting renders for the agent's own speech.
const AgentLabel = "You"

// DefaultVocabulary lists caption-UI chrome that is never spoken content.
var DefaultVocabulary = []string{
	"language", "English", "format_size", "Font size",
	"circle", "Font color", "settings", "Open caption settings",
	"Hindi", "Spanish", "French", "German", AgentLabel,
}

// CaptionFilter strips caption-UI noise from scraped text.
//
// Speaker labels are recognized heuristically: a line of at most two words,
// each starting with an upper-case letter, is taken to be a name label. A
// candidate who answers with a short capitalized phrase ("Yes", "New York")
// is indistinguishable from a label and that line is dropped.
type CaptionFilter struct {
	vocab map[string]struct{}
}

// NewCaptionFilter builds a filter over vocab, or DefaultVocabulary when empty.
func NewCaptionFilter(vocab ...string) *CaptionFilter {
	if len(vocab) == 0 {
		vocab = DefaultVocabulary
	}
	f := &CaptionFilter{vocab: make(map[string]struct{}, len(vocab))}
	for _, v := range vocab {
		f.vocab[v] = struct{}{}
	}
	return f
}

// IsNoise reports whether a trimmed line is UI vocabulary.
func (f *CaptionFilter) IsNoise(line string) bool {
	_, ok := f.vocab[line]
	return ok
}

// IsLabel reports whether a trimmed line looks like a speaker-name label.
func IsLabel(line string) bool {
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 2 {
		return false
	}
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// Clean removes noise and label lines and joins what remains with spaces.
// Clean(Clean(s)) == Clean(s).
func (f *CaptionFilter) Clean(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || f.IsNoise(line) || IsLabel(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

// LatestHumanBlock returns only the newest block of human speech in a
// cumulative caption snapshot. Every label line starts a new block; the
// agent label starts a block that is discarded. Lines before any label are
// unattributed and never count as human speech.
func (f *CaptionFilter) LatestHumanBlock(snapshot string) string {
	var block []string
	human := false
	for _, line := range strings.Split(snapshot, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case line == AgentLabel:
			human = false
			block = block[:0]
		case f.IsNoise(line):
		case IsLabel(line):
			human = true
			block = block[:0]
		case human:
			block = append(block, line)
		}
	}
	return strings.Join(block, " ")
}

// CleanTranscript removes caption noise from a stored transcript while
// keeping its line structure and any speaker-prefixed line.
func (f *CaptionFilter) CleanTranscript(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || f.IsNoise(trimmed) {
			continue
		}
		if !hasSpeakerPrefix(trimmed) && IsLabel(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func hasSpeakerPrefix(line string) bool {
	return strings.HasPrefix(line, "Agent:") || strings.HasPrefix(line, "Candidate:")
}
