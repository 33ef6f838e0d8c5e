// Package capture runs the interactive login and saves the resulting
// browser cookies as a snapshot.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wiki-pdf-export/internal/automation"
	"wiki-pdf-export/internal/snapshot"
)

// ErrLoginTimeout means the human did not finish logging in within MaxWait.
var ErrLoginTimeout = errors.New("timed out waiting for login")

type Policy struct {
	Interval      time.Duration // URL check period
	ProgressEvery time.Duration // "still waiting" log period
	MaxWait       time.Duration
	WikiMarker    string // must be in the URL once logged in
	LoginMarker   string // must not be in the URL once logged in
}

// LoggedIn reports whether u looks like an authenticated wiki page.
func (p Policy) LoggedIn(u string) bool {
	return strings.Contains(u, p.WikiMarker) &&
		!strings.Contains(strings.ToLower(u), strings.ToLower(p.LoginMarker))
}

type URLSource interface {
	URL(ctx context.Context) (string, error)
}

// WaitForLogin checks src every Interval and returns the first URL that
// satisfies LoggedIn. elapsed advances by Interval per tick, so progress is
// logged at multiples of ProgressEvery regardless of how long a check took.
// A login first seen on the tick that reaches MaxWait still counts as a
// timeout.
func WaitForLogin(ctx context.Context, src URLSource, p Policy, logger *slog.Logger) (string, error) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	var (
		elapsed time.Duration
		found   string
	)
	for elapsed < p.MaxWait {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		elapsed += p.Interval

		u, err := src.URL(ctx)
		if err != nil {
			// The tab is mid-navigation through the identity provider.
			logger.Debug("read url", slog.String("err", err.Error()))
		} else if p.LoggedIn(u) {
			found = u
			break
		}

		if p.ProgressEvery > 0 && elapsed%p.ProgressEvery == 0 {
			logger.Info("still waiting for login", slog.Duration("elapsed", elapsed))
		}
	}
	if elapsed >= p.MaxWait {
		return "", fmt.Errorf("%w after %s", ErrLoginTimeout, p.MaxWait)
	}
	logger.Info("login detected", slog.String("url", found), slog.Duration("elapsed", elapsed))
	return found, nil
}

type Options struct {
	LoginURL string
	Policy   Policy
	Settle   time.Duration // after login, before reading cookies
	Linger   time.Duration // after saving, before closing the window
}

// Capture opens a visible browser at the login page, waits for the human to
// log in, and saves every browser cookie to store. On timeout nothing is
// written.
func Capture(ctx context.Context, launcher automation.Launcher, store snapshot.Store, opts Options, logger *slog.Logger) error {
	b, err := launcher.Launch(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	logger.Info("manual login required: log in in the browser window; login is detected automatically",
		slog.String("login_url", opts.LoginURL),
		slog.Duration("max_wait", opts.Policy.MaxWait),
	)
	if err := b.Navigate(ctx, opts.LoginURL); err != nil {
		return err
	}

	logger.Info("waiting for login to complete", slog.Duration("interval", opts.Policy.Interval))
	if _, err := WaitForLogin(ctx, b, opts.Policy, logger); err != nil {
		return err
	}

	if err := automation.Sleep(ctx, opts.Settle); err != nil {
		return err
	}
	cookies, err := b.Cookies(ctx)
	if err != nil {
		return err
	}
	if err := store.Save(cookies); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	logger.Info("cookies saved; you can close the browser window",
		slog.Int("count", len(cookies)),
		slog.String("store", store.Location()),
	)

	return automation.Sleep(ctx, opts.Linger)
}
