package meet

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTabNotOpen is returned by page calls made before the tab was opened.
var ErrTabNotOpen = errors.New("meet: browser tab is not open")

// tab is a Page that opens its browser lazily, when the meeting is joined.
type tab struct {
	opener Opener

	mu   sync.Mutex
	page Page
}

func (t *tab) open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.page != nil {
		return nil
	}
	page, err := t.opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	t.page = page
	return nil
}

func (t *tab) current() (Page, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.page == nil {
		return nil, ErrTabNotOpen
	}
	return t.page, nil
}

func (t *tab) Navigate(ctx context.Context, url string) error {
	p, err := t.current()
	if err != nil {
		return err
	}
	return p.Navigate(ctx, url)
}

func (t *tab) URL(ctx context.Context) (string, error) {
	p, err := t.current()
	if err != nil {
		return "", err
	}
	return p.URL(ctx)
}

func (t *tab) Press(ctx context.Context, chord string) error {
	p, err := t.current()
	if err != nil {
		return err
	}
	return p.Press(ctx, chord)
}

func (t *tab) ClickButton(ctx context.Context, labels ...string) (bool, error) {
	p, err := t.current()
	if err != nil {
		return false, err
	}
	return p.ClickButton(ctx, labels...)
}

func (t *tab) Texts(ctx context.Context, selector string) ([]string, error) {
	p, err := t.current()
	if err != nil {
		return nil, err
	}
	return p.Texts(ctx, selector)
}

func (t *tab) Eval(ctx context.Context, script string) error {
	p, err := t.current()
	if err != nil {
		return err
	}
	return p.Eval(ctx, script)
}

// Close closes the browser if it was opened.
func (t *tab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.page == nil {
		return nil
	}
	err := t.page.Close()
	t.page = nil
	return err
}

// browserRoom opens the tab as part of joining, so a browser that fails to
// start ends the session like any other failed join.
type browserRoom struct {
	*Room
	tab *tab
}

func (r *browserRoom) Join(ctx context.Context) error {
	if err := r.tab.open(ctx); err != nil {
		return err
	}
	return r.Room.Join(ctx)
}
