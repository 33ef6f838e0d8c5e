package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"wiki-pdf-export/internal/automation"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var errDownloadCanceled = errors.New("download canceled by the browser")

type downloadResult struct {
	guid string
	name string
	err  error
}

// downloadTracker follows the first download that starts after it is
// registered. Its handler runs on chromedp's event goroutine and never blocks.
type downloadTracker struct {
	mu       sync.Mutex
	guid     string
	name     string
	finished bool
	done     chan downloadResult

	out      io.Writer
	progress *mpb.Progress
	bar      *mpb.Bar
}

func newDownloadTracker(out io.Writer) *downloadTracker {
	return &downloadTracker{out: out, done: make(chan downloadResult, 1)}
}

func (t *downloadTracker) handle(ev any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	switch ev := ev.(type) {
	case *browser.EventDownloadWillBegin:
		if t.guid == "" {
			t.guid = ev.GUID
			t.name = ev.SuggestedFilename
		}
	case *browser.EventDownloadProgress:
		if t.guid == "" {
			t.guid = ev.GUID
		}
		if ev.GUID != t.guid {
			return
		}
		t.render(int64(ev.ReceivedBytes), int64(ev.TotalBytes))
		switch ev.State {
		case browser.DownloadProgressStateCompleted:
			t.finish(nil)
		case browser.DownloadProgressStateCanceled:
			t.finish(errDownloadCanceled)
		}
	}
}

func (t *downloadTracker) render(received, total int64) {
	if t.out == nil {
		return
	}
	if t.bar == nil {
		name := "Download PDF"
		t.progress = mpb.New(mpb.WithOutput(t.out), mpb.WithWidth(64))
		t.bar = t.progress.AddBar(total,
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
				decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "done"),
			),
			mpb.AppendDecorators(decor.CountersKibiByte("% .1f / % .1f")),
		)
	}
	if total > 0 {
		t.bar.SetTotal(total, false)
	}
	t.bar.SetCurrent(received)
}

// finish must be called with mu held.
func (t *downloadTracker) finish(err error) {
	t.finished = true
	if t.bar != nil {
		if err == nil {
			t.bar.SetTotal(-1, true)
		} else {
			t.bar.Abort(false)
		}
	}
	t.done <- downloadResult{guid: t.guid, name: t.name, err: err}
}

// stop abandons a download that never finished and flushes the bar.
func (t *downloadTracker) stop() {
	t.mu.Lock()
	if !t.finished {
		t.finished = true
		if t.bar != nil {
			t.bar.Abort(false)
		}
	}
	p := t.progress
	t.mu.Unlock()
	if p != nil {
		p.Wait()
	}
}

// ClickForDownload registers the download listener before clicking so a
// fast download cannot start unobserved, then waits up to bound.
func (c *Chrome) ClickForDownload(ctx context.Context, el automation.Element, bound time.Duration) (automation.Download, error) {
	n, err := nodeOf(el)
	if err != nil {
		return automation.Download{}, err
	}
	dir, err := c.tempDir()
	if err != nil {
		return automation.Download{}, fmt.Errorf("download dir: %w", err)
	}

	rctx, cancel := c.scope(ctx, bound)
	defer cancel()

	if err := chromedp.Run(rctx, browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
		WithDownloadPath(dir).
		WithEventsEnabled(true)); err != nil {
		return automation.Download{}, fmt.Errorf("set download behavior: %w", err)
	}

	lctx, stopListening := context.WithCancel(rctx)
	defer stopListening()
	tr := newDownloadTracker(c.progress)
	defer tr.stop()
	chromedp.ListenTarget(lctx, tr.handle)

	if err := chromedp.Run(rctx, chromedp.MouseClickNode(n)); err != nil {
		return automation.Download{}, fmt.Errorf("click: %w", err)
	}

	select {
	case res := <-tr.done:
		if res.err != nil {
			return automation.Download{}, res.err
		}
		p := filepath.Join(dir, res.guid)
		fi, err := os.Stat(p)
		if err != nil {
			return automation.Download{}, fmt.Errorf("downloaded file: %w", err)
		}
		c.logger.Debug("download complete", "guid", res.guid, "name", res.name, "bytes", fi.Size())
		return automation.Download{SuggestedName: res.name, Path: p, Size: fi.Size()}, nil
	case <-rctx.Done():
		if ctx.Err() != nil {
			return automation.Download{}, ctx.Err()
		}
		return automation.Download{}, fmt.Errorf("download did not complete within %s: %w", bound, rctx.Err())
	}
}
