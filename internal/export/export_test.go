package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"wiki-pdf-export/internal/automation"
	"wiki-pdf-export/internal/automation/automationtest"
	"wiki-pdf-export/internal/snapshot"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pageURL     = "https://janishuser.atlassian.net/wiki/spaces/~x/pages/294914/Testseite"
	loginURL    = "https://id.atlassian.com/login?continue=" + pageURL
	pdfURL      = "https://janishuser.atlassian.net/wiki/spaces/flyingpdf/pdfpageexport.action?pageId=294914"
	downloadTmp = "/tmp/chrome-dl/5f1c"
	outputPath  = "/out/Testseite.pdf"
)

var (
	sitePDF     = []byte("%PDF-1.7 from the site")
	renderedPDF = []byte("%PDF-1.4 printed by chrome")

	sidebar = automation.Element{Handle: "sidebar", X: 100, HasBox: true}
	toolbar = automation.Element{Handle: "toolbar", X: 500, HasBox: true}
)

func labels() Labels {
	return Labels{
		MoreActions: "Weitere Aktionen",
		Export:      "Exportieren",
		PDFExport:   "PDF Exportieren",
		PDFMenuHint: "PDF",
		PDFHref:     "flyingpdf",
		Download:    "Download PDF",
	}
}

func moreActions() string { return automation.HasText("button", labels().MoreActions).Name }

type fixture struct {
	fs       afero.Fs
	store    *snapshot.FileStore
	browser  *automationtest.Browser
	launcher *automationtest.Launcher
	runner   *Runner
}

// newFixture wires a runner whose fake site supports the whole scripted
// export; tests knock out pieces of it.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	fsys := afero.NewMemMapFs()
	store := snapshot.NewFileStore(fsys, "/auth_cookies.json")
	require.NoError(t, store.Save([]snapshot.Cookie{{Name: "cloud.session.token", Value: "v", Domain: ".atlassian.net", Path: "/", Expires: -1}}))
	require.NoError(t, afero.WriteFile(fsys, downloadTmp, sitePDF, 0o644))

	l := labels()
	b := &automationtest.Browser{
		URLs: []string{pageURL, pdfURL},
		All:  map[string][]automation.Element{moreActions(): {sidebar, toolbar}},
		Visible: map[string]automation.Element{
			automation.ExactText(l.Export).Name:            {Handle: "export"},
			automation.HasText("button", l.PDFExport).Name: {Handle: "pdf"},
			automation.ExactText(l.Download).Name:          {Handle: "download"},
		},
		Download: automation.Download{SuggestedName: "Testseite.pdf", Path: downloadTmp, Size: int64(len(sitePDF))},
		PDF:      renderedPDF,
	}
	launcher := &automationtest.Launcher{Browser: b}
	pdf, err := automation.NewPDFOptions("A4", "20px", true)
	require.NoError(t, err)
	opts := Options{
		PageURL:      pageURL,
		OutputPath:   outputPath,
		LoginMarker:  "login",
		RightRegionX: 400,
		Labels:       l,
		PDF:          pdf,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		fs:       fsys,
		store:    store,
		browser:  b,
		launcher: launcher,
		runner:   NewRunner(launcher, store, fsys, opts, logger),
	}
}

func (f *fixture) output(t *testing.T) []byte {
	t.Helper()
	b, err := afero.ReadFile(f.fs, outputPath)
	require.NoError(t, err)
	return b
}

func TestRunScriptedExport(t *testing.T) {
	f := newFixture(t)
	out, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Scripted, out.Method)
	assert.Equal(t, outputPath, out.Path)
	assert.Equal(t, int64(len(sitePDF)), out.Size)
	assert.Equal(t, sitePDF, f.output(t))
	assert.Empty(t, f.browser.Printed, "no fallback after a site export")
	assert.Equal(t, []string{pageURL}, f.browser.Navigated)
	assert.Len(t, f.browser.CookiesSet, 1)
	assert.True(t, f.browser.Closed)
	assert.Equal(t, 1, f.browser.Downloads)

	require.NotEmpty(t, f.browser.Clicks)
	first := f.browser.Clicks[0]
	assert.Equal(t, toolbar, first.Element, "the toolbar button right of the threshold is clicked")
	assert.True(t, first.Force)
	ok, err := afero.Exists(f.fs, downloadTmp)
	require.NoError(t, err)
	assert.False(t, ok, "download is moved, not copied")
}

func TestRunWithoutSnapshotLaunchesNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.fs.Remove("/auth_cookies.json"))

	_, err := f.runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.Equal(t, 0, f.launcher.Launches())
}

func TestRunExpiredSessionDoesNotFallBack(t *testing.T) {
	f := newFixture(t)
	f.browser.URLs = []string{loginURL}

	_, err := f.runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, f.browser.Printed)
	assert.Empty(t, f.browser.Clicks)
	assert.True(t, f.browser.Closed)
	ok, err := afero.Exists(f.fs, outputPath)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunFallsBackOnAnyScriptFailure(t *testing.T) {
	l := labels()
	cases := map[string]struct {
		breakSite func(b *automationtest.Browser)
		step      string
	}{
		"no more-actions button": {
			breakSite: func(b *automationtest.Browser) { b.All = nil },
			step:      "more actions",
		},
		"click rejected": {
			breakSite: func(b *automationtest.Browser) { b.ClickErr = errors.New("node detached") },
			step:      "more actions",
		},
		"export entry missing": {
			breakSite: func(b *automationtest.Browser) { delete(b.Visible, automation.ExactText(l.Export).Name) },
			step:      "export menu",
		},
		"pdf entry missing": {
			breakSite: func(b *automationtest.Browser) { delete(b.Visible, automation.HasText("button", l.PDFExport).Name) },
			step:      "pdf export entry",
		},
		"generation never finishes": {
			breakSite: func(b *automationtest.Browser) { delete(b.Visible, automation.ExactText(l.Download).Name) },
			step:      "pdf generation",
		},
		"download fails": {
			breakSite: func(b *automationtest.Browser) { b.DownloadErr = errors.New("download did not complete") },
			step:      "download",
		},
		"downloaded file vanished": {
			breakSite: func(b *automationtest.Browser) { b.Download.Path = "/tmp/chrome-dl/missing" },
			step:      "save download",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			tc.breakSite(f.browser)

			out, err := f.runner.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, Rendered, out.Method)
			assert.Equal(t, tc.step, out.Step)
			assert.Error(t, out.ScriptErr)
			assert.Equal(t, int64(len(renderedPDF)), out.Size)
			assert.Equal(t, renderedPDF, f.output(t))
			require.Len(t, f.browser.Printed, 1)
			assert.True(t, f.browser.Printed[0].PrintBackground)
			assert.Equal(t, 8.27, f.browser.Printed[0].PaperWidth)
			assert.True(t, f.browser.Closed)
		})
	}
}

func TestRunRenderFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.browser.All = nil
	f.browser.PDFErr = errors.New("printing failed")

	out, err := f.runner.Run(context.Background())
	assert.ErrorContains(t, err, "printing failed")
	assert.Equal(t, Rendered, out.Method)
	assert.True(t, f.browser.Closed)
}

func TestPDFSelectorsTriedInOrder(t *testing.T) {
	f := newFixture(t)
	l := labels()
	delete(f.browser.Visible, automation.HasText("button", l.PDFExport).Name)
	href := automation.CSSSelector(`a[href*="flyingpdf"]`)
	f.browser.Visible[href.Name] = automation.Element{Handle: "href"}

	out, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Scripted, out.Method)

	var names []string
	for _, s := range pdfSelectors(l) {
		names = append(names, s.Name)
	}
	require.Len(t, names, 5)
	assert.Equal(t, href.Name, names[4])
	// Waited: export entry, the five pdf strategies, download button.
	assert.Equal(t, names, f.browser.Waited[1:6])
}

func TestToolbarCandidates(t *testing.T) {
	hidden := automation.Element{Handle: "hidden"}
	wide := automation.Element{Handle: "wide", X: 900, HasBox: true}
	assert.Equal(t, []int{1, 3}, toolbarCandidates([]automation.Element{sidebar, toolbar, hidden, wide}, 400))
	assert.Empty(t, toolbarCandidates([]automation.Element{sidebar, hidden}, 400))
	assert.Empty(t, toolbarCandidates(nil, 400))
}

func TestRunTriesNextToolbarButtonWhenClickFails(t *testing.T) {
	f := newFixture(t)
	second := automation.Element{Handle: "toolbar-2", X: 700, HasBox: true}
	f.browser.All[moreActions()] = []automation.Element{sidebar, toolbar, second}
	f.browser.FailClicks = map[any]error{toolbar.Handle: errors.New("element is detached")}

	out, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Scripted, out.Method)
	require.GreaterOrEqual(t, len(f.browser.Clicks), 2)
	assert.Equal(t, toolbar, f.browser.Clicks[0].Element)
	assert.Equal(t, second, f.browser.Clicks[1].Element)
	assert.True(t, f.browser.Clicks[1].Force)
}

func TestRunFallsBackToLastMoreActionsButton(t *testing.T) {
	f := newFixture(t)
	hidden := automation.Element{Handle: "hidden"}
	f.browser.All[moreActions()] = []automation.Element{sidebar, hidden}

	out, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Scripted, out.Method)
	assert.Equal(t, hidden, f.browser.Clicks[0].Element)
	assert.True(t, f.browser.Clicks[0].Force)
}

func TestFormatKB(t *testing.T) {
	assert.Equal(t, "0.0 KB", FormatKB(0))
	assert.Equal(t, "1.5 KB", FormatKB(1536))
	assert.Equal(t, "93.4 KB", FormatKB(95642))
}

func TestMethodString(t *testing.T) {
	assert.Equal(t, "site export", Scripted.String())
	assert.Equal(t, "browser print", Rendered.String())
}
