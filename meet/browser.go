package meet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

const defaultActionTimeout = 15 * time.Second

// Browser launches Chrome with a persistent profile so a signed-in meeting
// account survives between interviews.
type Browser struct {
	ProfileDir    string
	Headless      bool
	ActionTimeout time.Duration
}

// Open starts a browser and returns its first tab. The browser lives until
// the page is closed, independent of ctx.
func (b *Browser) Open(ctx context.Context) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("mute-audio", false),
	)
	if b.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(b.ProfileDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			slog.Debug("Browser error", "detail", fmt.Sprintf(format, args...))
		}))

	p := &chromePage{
		tab:     tabCtx,
		timeout: b.ActionTimeout,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}
	if p.timeout <= 0 {
		p.timeout = defaultActionTimeout
	}

	slog.Info("Launching browser", "profile", b.ProfileDir, "headless", b.Headless)
	if err := p.run(ctx); err != nil {
		p.cancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return p, nil
}

type chromePage struct {
	tab     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// run executes actions on the tab, bounded by the action timeout and ctx.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tab, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (p *chromePage) Press(ctx context.Context, chord string) error {
	key, mods := parseChord(chord)
	return p.run(ctx, chromedp.KeyEvent(key, chromedp.KeyModifiers(mods...)))
}

const clickButtonScript = `(function(labels) {
	for (const b of document.querySelectorAll('button, [role="button"]')) {
		const text = (b.innerText || '').trim();
		if (labels.some(l => text.includes(l))) {
			b.click();
			return true;
		}
	}
	return false;
})(%s)`

func (p *chromePage) ClickButton(ctx context.Context, labels ...string) (bool, error) {
	arg, err := json.Marshal(labels)
	if err != nil {
		return false, err
	}
	var clicked bool
	err = p.run(ctx, chromedp.Evaluate(fmt.Sprintf(clickButtonScript, arg), &clicked))
	return clicked, err
}

const textsScript = `Array.from(document.querySelectorAll(%s)).map(e => (e.innerText || '').trim())`

func (p *chromePage) Texts(ctx context.Context, selector string) ([]string, error) {
	arg, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	var texts []string
	err = p.run(ctx, chromedp.Evaluate(fmt.Sprintf(textsScript, arg), &texts))
	return texts, err
}

func (p *chromePage) Eval(ctx context.Context, script string) error {
	return p.run(ctx, chromedp.Evaluate(script, nil))
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

// parseChord splits "Control+Shift+x" into its key and modifiers.
func parseChord(chord string) (string, []input.Modifier) {
	parts := strings.Split(chord, "+")
	key := parts[len(parts)-1]
	var mods []input.Modifier
	for _, m := range parts[:len(parts)-1] {
		switch strings.ToLower(m) {
		case "control", "ctrl":
			mods = append(mods, input.ModifierCtrl)
		case "shift":
			mods = append(mods, input.ModifierShift)
		case "alt":
			mods = append(mods, input.ModifierAlt)
		case "meta", "cmd":
			mods = append(mods, input.ModifierMeta)
		}
	}
	return key, mods
}
