// Package automation describes the browser operations the capture and export
// flows need, independent of the DevTools client that performs them.
package automation

import (
	"context"
	"errors"
	"time"

	"wiki-pdf-export/internal/snapshot"
)

// ErrNotVisible is returned when a selector did not match a visible element
// within its bound.
var ErrNotVisible = errors.New("element not visible")

// Element is a located node. X is the left edge of its border box in CSS
// pixels; HasBox is false for nodes that are not rendered.
type Element struct {
	Handle any
	X      float64
	HasBox bool
}

// Download is a file the page handed to the browser's download manager.
type Download struct {
	SuggestedName string
	Path          string // where the browser wrote it
	Size          int64
}

// Browser is one launched browser with a single page.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	WaitNetworkIdle(ctx context.Context, bound time.Duration) error
	URL(ctx context.Context) (string, error)

	// FindAll returns every current match without waiting.
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
	// WaitVisible returns the first match once it is visible.
	WaitVisible(ctx context.Context, sel Selector, bound time.Duration) (Element, error)
	// Click dispatches a mouse click at the element. force skips the
	// visibility wait and clicks wherever the element's box is.
	Click(ctx context.Context, el Element, force bool) error
	WaitLoad(ctx context.Context, bound time.Duration) error
	// ClickForDownload subscribes to download events, clicks el, and waits
	// for the resulting download to complete.
	ClickForDownload(ctx context.Context, el Element, bound time.Duration) (Download, error)
	PrintPDF(ctx context.Context, opts PDFOptions) ([]byte, error)

	SetCookies(ctx context.Context, cookies []snapshot.Cookie) error
	Cookies(ctx context.Context) ([]snapshot.Cookie, error)

	Close() error
}

// Launcher starts browsers. Headful is forced for interactive login.
type Launcher interface {
	Launch(ctx context.Context, headless bool) (Browser, error)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
