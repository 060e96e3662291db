package transcript

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bosley/parley/conversation"
)

// ErrNoHeader is returned when a document has no recognizable header.
var ErrNoHeader = errors.New("transcript: missing header")

// Document is a parsed transcript file.
type Document struct {
	Session    conversation.SessionContext
	Date       time.Time
	Reason     conversation.EndReason
	Utterances []conversation.Utterance
	// Body is everything after the header rule.
	Body string
}

// ParseFile reads and parses the transcript at path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	return Parse(string(data))
}

// Parse reads a transcript document. Header fields are optional; missing
// ones stay empty. Body lines without a speaker prefix continue the
// previous utterance.
func Parse(text string) (*Document, error) {
	doc := &Document{}
	lines := strings.Split(text, "\n")

	i := 0
	sawHeader := false
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "=") || strings.HasPrefix(line, "---") {
			i++
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Interview Transcript", "Candidate":
			doc.Session.CandidateName = value
		case "Email":
			if value != notProvided {
				doc.Session.Email = value
			}
		case "Role":
			doc.Session.Role = value
		case "Salary Range":
			doc.Session.SalaryRange = value
		case "Session":
			doc.Session.ID = value
		case "Channel":
			doc.Session.Channel = conversation.ChannelKind(value)
		case "Date":
			if t, err := time.ParseInLocation(dateLayout, value, time.Local); err == nil {
				doc.Date = t
			}
		case "Ended":
			doc.Reason = conversation.EndReason(value)
		default:
			continue
		}
		sawHeader = true
	}
	if !sawHeader {
		return nil, ErrNoHeader
	}

	body := lines[min(i, len(lines)):]
	doc.Body = strings.TrimSpace(strings.Join(body, "\n"))
	doc.Utterances = parseBody(body)
	return doc, nil
}

func parseBody(lines []string) []conversation.Utterance {
	var out []conversation.Utterance
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case hasPrefixFold(line, "Agent:"), hasPrefixFold(line, "Assistant:"):
			out = append(out, conversation.Utterance{Speaker: conversation.Agent, Text: afterColon(line)})
		case hasPrefixFold(line, "Candidate:"), hasPrefixFold(line, "User:"):
			out = append(out, conversation.Utterance{Speaker: conversation.Human, Text: afterColon(line)})
		case len(out) > 0:
			out[len(out)-1].Text += " " + line
		}
	}
	return out
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func afterColon(line string) string {
	_, v, _ := strings.Cut(line, ":")
	return strings.TrimSpace(v)
}
