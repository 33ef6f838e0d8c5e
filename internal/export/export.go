// Package export produces a PDF of a wiki page, through the site's own PDF
// export when the UI cooperates and through Chrome's print-to-PDF otherwise.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wiki-pdf-export/internal/automation"
	"wiki-pdf-export/internal/snapshot"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
)

var (
	// ErrNoSnapshot means no login has been captured yet.
	ErrNoSnapshot = errors.New("no cookie snapshot; run with --login first")
	// ErrSessionExpired means the site redirected to its login page.
	ErrSessionExpired = errors.New("cookies expired or invalid; run with --login to re-authenticate")
)

type Method int

const (
	Scripted Method = iota // the site generated the PDF
	Rendered               // Chrome printed the loaded page
)

func (m Method) String() string {
	switch m {
	case Scripted:
		return "site export"
	case Rendered:
		return "browser print"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// Outcome describes the PDF a run produced. ScriptErr and Step say why the
// site export was abandoned when Method is Rendered.
type Outcome struct {
	Method    Method
	Path      string
	Size      int64
	Step      string
	ScriptErr error
}

type Options struct {
	PageURL      string
	OutputPath   string
	LoginMarker  string
	Headless     bool
	RightRegionX float64
	NetworkIdle  time.Duration
	Labels       Labels
	Timeouts     Timeouts
	PDF          automation.PDFOptions
}

type Runner struct {
	launcher automation.Launcher
	store    snapshot.Store
	fs       afero.Fs
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

func NewRunner(launcher automation.Launcher, store snapshot.Store, fsys afero.Fs, opts Options, logger *slog.Logger) *Runner {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Runner{
		launcher: launcher,
		store:    store,
		fs:       fsys,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Run exports the configured page. It fails without launching a browser
// when there is no snapshot, and without falling back when the session is
// no longer valid; any failure of the site export itself falls back to
// printing the page.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	ok, err := r.store.Exists()
	if err != nil {
		return Outcome{}, fmt.Errorf("check snapshot: %w", err)
	}
	if !ok {
		return Outcome{}, fmt.Errorf("%w (%s)", ErrNoSnapshot, r.store.Location())
	}
	cookies, err := r.store.Load()
	if errors.Is(err, snapshot.ErrNotFound) {
		return Outcome{}, fmt.Errorf("%w (%s)", ErrNoSnapshot, r.store.Location())
	}
	if err != nil {
		return Outcome{}, err
	}
	if valid := snapshot.Valid(cookies, r.now()); len(valid) < len(cookies) {
		r.logger.Warn("snapshot contains expired cookies",
			slog.Int("expired", len(cookies)-len(valid)),
			slog.Int("total", len(cookies)),
		)
	}

	b, err := r.launcher.Launch(ctx, r.opts.Headless)
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		if err := b.Close(); err != nil {
			r.logger.Warn("close browser", slog.String("err", err.Error()))
		}
	}()

	if err := b.SetCookies(ctx, cookies); err != nil {
		return Outcome{}, err
	}
	r.logger.Info("loading page", slog.String("url", r.opts.PageURL))
	if err := b.Navigate(ctx, r.opts.PageURL); err != nil {
		return Outcome{}, err
	}
	if err := b.WaitNetworkIdle(ctx, r.opts.NetworkIdle); err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		r.logger.Warn("network did not go idle; continuing", slog.String("err", err.Error()))
	}

	u, err := b.URL(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if strings.Contains(strings.ToLower(u), strings.ToLower(r.opts.LoginMarker)) {
		return Outcome{}, fmt.Errorf("%w: landed on %s", ErrSessionExpired, u)
	}
	r.logger.Info("page loaded", slog.String("url", u))

	if err := automation.Sleep(ctx, r.opts.Timeouts.PageSettle); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Method: Scripted, Path: r.opts.OutputPath}
	res := r.script(ctx, b)
	if res.OK {
		if err := r.moveFile(res.Download.Path, r.opts.OutputPath); err != nil {
			res = failed("save download", err)
		}
	}
	if !res.OK {
		r.logger.Warn("automated export failed; falling back to browser PDF generation",
			slog.String("step", res.Step),
			slog.String("err", res.Err.Error()),
		)
		out.Method, out.Step, out.ScriptErr = Rendered, res.Step, res.Err
		if err := r.render(ctx, b); err != nil {
			return out, err
		}
	}

	fi, err := r.fs.Stat(r.opts.OutputPath)
	if err != nil {
		return out, fmt.Errorf("stat output: %w", err)
	}
	out.Size = fi.Size()
	r.logger.Info("pdf exported",
		slog.String("path", out.Path),
		slog.String("method", out.Method.String()),
		slog.String("size", FormatKB(out.Size)),
	)
	return out, nil
}

func (r *Runner) render(ctx context.Context, b automation.Browser) error {
	pdf, err := b.PrintPDF(ctx, r.opts.PDF)
	if err != nil {
		return err
	}
	if err := r.mkdirFor(r.opts.OutputPath); err != nil {
		return err
	}
	if err := afero.WriteFile(r.fs, r.opts.OutputPath, pdf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", r.opts.OutputPath, err)
	}
	return nil
}

func (r *Runner) mkdirFor(path string) error {
	dir := filepath.Dir(path)
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// moveFile renames src to dst, copying when they are on different devices.
func (r *Runner) moveFile(src, dst string) error {
	if err := r.mkdirFor(dst); err != nil {
		return err
	}
	if err := r.fs.Rename(src, dst); err == nil {
		return nil
	}
	in, err := r.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open download: %w", err)
	}
	defer in.Close()
	o, err := r.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(o, in); err != nil {
		o.Close()
		return fmt.Errorf("copy download: %w", err)
	}
	if err := o.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	_ = r.fs.Remove(src)
	return nil
}

// FormatKB renders a byte count in KiB with one decimal, e.g. "93.4 KB".
func FormatKB(n int64) string {
	return decimal.NewFromInt(n).Div(decimal.NewFromInt(1024)).StringFixed(1) + " KB"
}
