package meet

import (
	"context"
	"log/slog"
	"strings"
)

// DefaultCaptionSelectors are the element shapes live captions render as.
// The first selector that yields text wins.
var DefaultCaptionSelectors = []string{
	`[jsname="tgaKEf"] span`,
	`.a4cQT`,
	`[data-message-text]`,
	`.iOzk7`,
	`[jscontroller="LQRnv"] span`,
}

const defaultCaptionLimit = 5

// CaptionSource reads the visible caption lines of a meeting page.
type CaptionSource struct {
	Page      Page
	Selectors []string
	// Limit keeps only the trailing elements of a match.
	Limit int
}

func NewCaptionSource(page Page) *CaptionSource {
	return &CaptionSource{
		Page:      page,
		Selectors: DefaultCaptionSelectors,
		Limit:     defaultCaptionLimit,
	}
}

// Snapshot returns the latest caption lines joined by newlines, or an empty
// string when no captions are on screen or the page cannot be read.
func (c *CaptionSource) Snapshot(ctx context.Context) string {
	for _, sel := range c.Selectors {
		texts, err := c.Page.Texts(ctx, sel)
		if err != nil {
			slog.Debug("Caption selector failed", "selector", sel, "error", err)
			continue
		}
		if c.Limit > 0 && len(texts) > c.Limit {
			texts = texts[len(texts)-c.Limit:]
		}
		lines := make([]string, 0, len(texts))
		for _, t := range texts {
			if t = strings.TrimSpace(t); t != "" {
				lines = append(lines, t)
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}
	return ""
}
