package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wiki-pdf-export/internal/automation"
)

// Labels are the UI strings of the target site's locale.
type Labels struct {
	MoreActions string // toolbar overflow button
	Export      string // entry in the overflow menu
	PDFExport   string // entry in the export submenu
	PDFMenuHint string // fallback: menu item containing this text
	PDFHref     string // fallback: link whose href contains this
	Download    string // button on the generation page
}

type Timeouts struct {
	MenuSettle  time.Duration
	ExportEntry time.Duration
	PDFEntry    time.Duration
	PageLoad    time.Duration
	PageSettle  time.Duration
	Generation  time.Duration
	Download    time.Duration
}

// ScriptResult is the outcome of driving the site's own export.
type ScriptResult struct {
	OK       bool
	Step     string // step that failed
	Err      error
	Download automation.Download
}

func failed(step string, err error) ScriptResult {
	return ScriptResult{Step: step, Err: err}
}

var errNoMoreActions = errors.New("no more-actions button on the page")

// pdfSelectors lists the ways the PDF export entry has been seen to render,
// most specific first.
func pdfSelectors(l Labels) []automation.Selector {
	sels := []automation.Selector{
		automation.HasText("button", l.PDFExport),
		automation.HasText("a", l.PDFExport),
		automation.ExactText(l.PDFExport),
	}
	if l.PDFMenuHint != "" {
		sels = append(sels, automation.RoleHasText("menuitem", l.PDFMenuHint))
	}
	if l.PDFHref != "" {
		sels = append(sels, automation.CSSSelector(fmt.Sprintf(`a[href*=%q]`, l.PDFHref)))
	}
	return sels
}

// toolbarCandidates returns the indexes of buttons right of threshold, in
// page order; left of it sits the sidebar copy.
func toolbarCandidates(els []automation.Element, threshold float64) []int {
	var out []int
	for i, el := range els {
		if el.HasBox && el.X > threshold {
			out = append(out, i)
		}
	}
	return out
}

// clickMoreActions force-clicks the first toolbar candidate that accepts the
// click, else the last match. It returns the index clicked.
func clickMoreActions(ctx context.Context, b automation.Browser, els []automation.Element, threshold float64, logger *slog.Logger) (int, error) {
	if len(els) == 0 {
		return -1, errNoMoreActions
	}
	for _, i := range toolbarCandidates(els, threshold) {
		if err := b.Click(ctx, els[i], true); err != nil {
			if ctx.Err() != nil {
				return -1, ctx.Err()
			}
			logger.Debug("more-actions click failed; trying next", slog.Int("index", i+1), slog.String("err", err.Error()))
			continue
		}
		return i, nil
	}
	last := len(els) - 1
	if err := b.Click(ctx, els[last], true); err != nil {
		return -1, err
	}
	return last, nil
}

// firstVisible tries sels in order and returns the first that becomes
// visible within per.
func firstVisible(ctx context.Context, b automation.Browser, sels []automation.Selector, per time.Duration) (automation.Element, automation.Selector, error) {
	for _, sel := range sels {
		el, err := b.WaitVisible(ctx, sel, per)
		if err == nil {
			return el, sel, nil
		}
		if ctx.Err() != nil {
			return automation.Element{}, sel, ctx.Err()
		}
	}
	return automation.Element{}, automation.Selector{}, fmt.Errorf("%w: none of %d selectors matched", automation.ErrNotVisible, len(sels))
}

func (r *Runner) script(ctx context.Context, b automation.Browser) ScriptResult {
	l, t, logger := r.opts.Labels, r.opts.Timeouts, r.logger

	logger.Info("opening more-actions menu", slog.String("label", l.MoreActions))
	buttons, err := b.FindAll(ctx, automation.HasText("button", l.MoreActions))
	if err != nil {
		return failed("more actions", err)
	}
	logger.Info("found more-actions buttons", slog.Int("count", len(buttons)))
	idx, err := clickMoreActions(ctx, b, buttons, r.opts.RightRegionX, logger)
	if err != nil {
		return failed("more actions", err)
	}
	logger.Info("clicked more-actions button", slog.Int("index", idx+1))
	if err := automation.Sleep(ctx, t.MenuSettle); err != nil {
		return failed("more actions", err)
	}

	exportEntry, err := b.WaitVisible(ctx, automation.ExactText(l.Export), t.ExportEntry)
	if err != nil {
		return failed("export menu", err)
	}
	if err := b.Click(ctx, exportEntry, false); err != nil {
		return failed("export menu", err)
	}
	logger.Info("clicked export entry", slog.String("label", l.Export))
	if err := automation.Sleep(ctx, t.MenuSettle); err != nil {
		return failed("export menu", err)
	}

	pdfEntry, sel, err := firstVisible(ctx, b, pdfSelectors(l), t.PDFEntry)
	if err != nil {
		return failed("pdf export entry", fmt.Errorf("could not find %q in the export submenu: %w", l.PDFExport, err))
	}
	logger.Info("found pdf export entry", slog.String("selector", sel.Name))
	if err := b.Click(ctx, pdfEntry, false); err != nil {
		return failed("pdf export entry", err)
	}

	if err := b.WaitLoad(ctx, t.PageLoad); err != nil {
		return failed("generation page", err)
	}
	if err := automation.Sleep(ctx, t.PageSettle); err != nil {
		return failed("generation page", err)
	}
	if u, err := b.URL(ctx); err == nil {
		logger.Info("navigated to generation page", slog.String("url", u))
	}

	logger.Info("waiting for download button", slog.String("label", l.Download), slog.Duration("bound", t.Generation))
	dl, err := b.WaitVisible(ctx, automation.ExactText(l.Download), t.Generation)
	if err != nil {
		return failed("pdf generation", err)
	}

	d, err := b.ClickForDownload(ctx, dl, t.Download)
	if err != nil {
		return failed("download", err)
	}
	logger.Info("download finished", slog.String("suggested_name", d.SuggestedName), slog.Int64("bytes", d.Size))
	return ScriptResult{OK: true, Download: d}
}
