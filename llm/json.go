package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bosley/parley/conversation"
)

// ErrNoJSON is returned when a reply holds no JSON object.
var ErrNoJSON = errors.New("llm: no JSON object in reply")

// ExtractJSON returns the outermost JSON object in reply, tolerating code
// fences and prose around it.
func ExtractJSON(reply string) (string, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	candidate := reply[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", fmt.Errorf("%w: invalid object", ErrNoJSON)
	}
	return candidate, nil
}

// CompleteJSON asks for a JSON object reply and decodes it into out.
func CompleteJSON(ctx context.Context, c conversation.Completer, msgs []conversation.Message, temperature float64, out any) error {
	reply, err := c.Complete(ctx, msgs, conversation.CompletionOptions{
		Temperature: temperature,
		JSON:        true,
	})
	if err != nil {
		return err
	}
	obj, err := ExtractJSON(reply)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	return nil
}
