// Package automationtest provides an in-memory automation.Browser for tests.
package automationtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wiki-pdf-export/internal/automation"
	"wiki-pdf-export/internal/snapshot"
)

type Click struct {
	Element automation.Element
	Force   bool
}

// Browser is a scripted automation.Browser. Selectors are keyed by
// Selector.Name. The zero value has no elements and an empty URL.
type Browser struct {
	mu sync.Mutex

	// URLs is returned by successive URL calls; the last entry repeats.
	URLs []string
	// All is what FindAll returns per selector.
	All map[string][]automation.Element
	// Visible is what WaitVisible returns per selector; absent selectors
	// fail with automation.ErrNotVisible.
	Visible map[string]automation.Element

	NavigateErr error
	ClickErr    error
	// FailClicks fails clicks on elements by Handle; ClickErr fails all.
	FailClicks map[any]error
	Download    automation.Download
	DownloadErr error
	PDF         []byte
	PDFErr      error
	Jar         []snapshot.Cookie

	Navigated  []string
	Waited     []string
	Clicks     []Click
	Downloads  int
	Printed    []automation.PDFOptions
	URLCalls   int
	Closed     bool
	CookiesSet []snapshot.Cookie
}

func (b *Browser) Navigate(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Navigated = append(b.Navigated, url)
	return b.NavigateErr
}

func (b *Browser) WaitNetworkIdle(context.Context, time.Duration) error { return nil }

func (b *Browser) URL(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.URLCalls++
	if len(b.URLs) == 0 {
		return "", nil
	}
	i := min(b.URLCalls, len(b.URLs)) - 1
	return b.URLs[i], nil
}

func (b *Browser) FindAll(_ context.Context, sel automation.Selector) ([]automation.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.All[sel.Name], nil
}

func (b *Browser) WaitVisible(_ context.Context, sel automation.Selector, bound time.Duration) (automation.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Waited = append(b.Waited, sel.Name)
	el, ok := b.Visible[sel.Name]
	if !ok {
		return automation.Element{}, fmt.Errorf("%w: %s within %s", automation.ErrNotVisible, sel, bound)
	}
	return el, nil
}

func (b *Browser) Click(_ context.Context, el automation.Element, force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Clicks = append(b.Clicks, Click{Element: el, Force: force})
	if err, ok := b.FailClicks[el.Handle]; ok {
		return err
	}
	return b.ClickErr
}

func (b *Browser) WaitLoad(context.Context, time.Duration) error { return nil }

func (b *Browser) ClickForDownload(_ context.Context, el automation.Element, _ time.Duration) (automation.Download, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Clicks = append(b.Clicks, Click{Element: el})
	b.Downloads++
	return b.Download, b.DownloadErr
}

func (b *Browser) PrintPDF(_ context.Context, opts automation.PDFOptions) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Printed = append(b.Printed, opts)
	return b.PDF, b.PDFErr
}

func (b *Browser) SetCookies(_ context.Context, cookies []snapshot.Cookie) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CookiesSet = append(b.CookiesSet, cookies...)
	return nil
}

func (b *Browser) Cookies(context.Context) ([]snapshot.Cookie, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Jar, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

// Launcher hands out Browser, recording each launch.
type Launcher struct {
	Browser  *Browser
	Err      error
	Headless []bool
}

func (l *Launcher) Launch(_ context.Context, headless bool) (automation.Browser, error) {
	l.Headless = append(l.Headless, headless)
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Browser, nil
}

func (l *Launcher) Launches() int { return len(l.Headless) }
