// Package browser drives a local Chrome over the DevTools protocol with
// chromedp and implements automation.Browser.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"wiki-pdf-export/internal/automation"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

type Options struct {
	ExecPath    string       // optional Chrome binary; empty => chromedp's lookup
	UserDataDir string       // optional Chrome profile dir; empty => temp
	UserAgent   string       // optional override
	Width       int          // window size; the toolbar heuristics assume a desktop layout
	Height      int          //
	Logger      *slog.Logger // optional: route chromedp logs to slog
	Quiet       bool         // if true, suppress chromedp debug/log output
	NoSandbox   bool         // needed when Chrome runs as root, e.g. in containers
	Progress    io.Writer    // download progress bar output; nil => none
}

type Launcher struct {
	opts Options
}

func NewLauncher(opts Options) *Launcher {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1440, 900
	}
	return &Launcher{opts: opts}
}

// Launch starts Chrome with one tab. The browser lives until Close or until
// ctx is done.
func (l *Launcher) Launch(ctx context.Context, headless bool) (automation.Browser, error) {
	opts := l.opts
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if headless {
		allocOpts = append(allocOpts, chromedp.Headless)
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}

	actx, acancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	var ctxOpts []chromedp.ContextOption
	if opts.Quiet {
		ctxOpts = append(ctxOpts,
			chromedp.WithLogf(func(string, ...any) {}),
			chromedp.WithDebugf(func(string, ...any) {}),
			chromedp.WithErrorf(func(string, ...any) {}),
		)
	} else if opts.Logger != nil {
		ctxOpts = append(ctxOpts,
			chromedp.WithLogf(func(f string, a ...any) { opts.Logger.Info(fmt.Sprintf(f, a...)) }),
			chromedp.WithDebugf(func(f string, a ...any) { opts.Logger.Debug(fmt.Sprintf(f, a...)) }),
			chromedp.WithErrorf(func(f string, a ...any) { opts.Logger.Warn(fmt.Sprintf(f, a...)) }),
		)
	}
	cctx, ccancel := chromedp.NewContext(actx, ctxOpts...) // creates a new browser tab

	// First Run starts the browser. Network domain is needed for cookies
	// and idle tracking.
	if err := chromedp.Run(cctx, network.Enable()); err != nil {
		ccancel()
		acancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Chrome{
		ctx:         cctx,
		cancel:      ccancel,
		allocCancel: acancel,
		logger:      logger,
		progress:    opts.Progress,
	}, nil
}

// Chrome is a launched browser holding one page.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *slog.Logger
	progress    io.Writer

	mu       sync.Mutex
	tempDirs []string
	closed   bool
}

// scope derives a context carrying the tab's executor that is also done when
// the caller's ctx is, and after bound if bound > 0.
func (c *Chrome) scope(ctx context.Context, bound time.Duration) (context.Context, context.CancelFunc) {
	rctx, cancel := context.WithCancel(c.ctx)
	stop := context.AfterFunc(ctx, cancel)
	if bound <= 0 {
		return rctx, func() { stop(); cancel() }
	}
	tctx, tcancel := context.WithTimeout(rctx, bound)
	return tctx, func() { tcancel(); stop(); cancel() }
}

func (c *Chrome) run(ctx context.Context, bound time.Duration, actions ...chromedp.Action) error {
	rctx, cancel := c.scope(ctx, bound)
	defer cancel()
	return chromedp.Run(rctx, actions...)
}

// Close shuts the browser down and removes download scratch dirs. It is
// safe to call more than once.
func (c *Chrome) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dirs := c.tempDirs
	c.tempDirs = nil
	c.mu.Unlock()

	err := chromedp.Cancel(c.ctx)
	c.cancel()
	c.allocCancel()
	for _, d := range dirs {
		_ = os.RemoveAll(d)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Chrome) tempDir() (string, error) {
	dir, err := os.MkdirTemp("", "wiki-pdf-export-*")
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.tempDirs = append(c.tempDirs, dir)
	c.mu.Unlock()
	return dir, nil
}
