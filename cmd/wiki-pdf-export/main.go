package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"wiki-pdf-export/internal/automation"
	"wiki-pdf-export/internal/browser"
	"wiki-pdf-export/internal/capture"
	"wiki-pdf-export/internal/config"
	"wiki-pdf-export/internal/export"
	"wiki-pdf-export/internal/snapshot"

	"github.com/urfave/cli"
)

var version = "dev"

const loginHint = "Tip: run with --login to capture a fresh session."

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "wiki-pdf-export: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "wiki-pdf-export"
	app.HelpName = "wiki-pdf-export"
	app.Usage = "export a Confluence wiki page to PDF with a saved browser session"
	app.UsageText = "wiki-pdf-export [--login] [--config FILE]"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "login",
			Usage: "open a browser window, log in by hand and save the session cookies",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to the YAML config (a missing file means defaults)",
			Value: "config.yaml",
		},
	}
	app.Action = run
	return app
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("load config: %v", err), 1)
	}
	logger := config.NewLogger(cfg.LogLevel)

	store, err := snapshot.Open(cfg.CookieStore, cfg.CookiesFile, cfg.Host())
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	launcher := browser.NewLauncher(browser.Options{
		ExecPath:  cfg.ChromePath,
		Logger:    logger,
		Quiet:     cfg.LogLevel != "debug",
		NoSandbox: os.Geteuid() == 0,
		Progress:  os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Bool("login") {
		return runCapture(ctx, cfg, launcher, store, logger)
	}
	return runExport(ctx, cfg, launcher, store, logger)
}

func runCapture(ctx context.Context, cfg config.Config, launcher automation.Launcher, store snapshot.Store, logger *slog.Logger) error {
	opts := capture.Options{
		LoginURL: cfg.LoginURL,
		Policy: capture.Policy{
			Interval:      cfg.Timeouts.LoginPoll,
			ProgressEvery: cfg.Timeouts.LoginProgress,
			MaxWait:       cfg.Timeouts.LoginMaxWait,
			WikiMarker:    cfg.WikiMarker,
			LoginMarker:   cfg.LoginMarker,
		},
		Settle: cfg.Timeouts.LoginSettle,
		Linger: cfg.Timeouts.LoginLinger,
	}
	err := capture.Capture(ctx, launcher, store, opts, logger)
	return captureExit(err)
}

// captureExit maps a capture result to the process exit: a login that never
// completed is reported but is not a failure.
func captureExit(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, capture.ErrLoginTimeout):
		fmt.Fprintf(os.Stderr, "%v; no cookies were saved\n", err)
		return nil
	default:
		return cli.NewExitError(fmt.Sprintf("login failed: %v", err), 1)
	}
}

func runExport(ctx context.Context, cfg config.Config, launcher automation.Launcher, store snapshot.Store, logger *slog.Logger) error {
	pdf, err := automation.NewPDFOptions(cfg.PDF.Paper, cfg.PDF.Margin, cfg.PDF.Background)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	t := cfg.Timeouts
	opts := export.Options{
		PageURL:      cfg.PageURL,
		OutputPath:   cfg.OutputFile,
		LoginMarker:  cfg.LoginMarker,
		Headless:     cfg.Headless,
		RightRegionX: cfg.RightRegionX,
		NetworkIdle:  t.NetworkIdle,
		Labels: export.Labels{
			MoreActions: cfg.Labels.MoreActions,
			Export:      cfg.Labels.Export,
			PDFExport:   cfg.Labels.PDFExport,
			PDFMenuHint: cfg.Labels.PDFMenuHint,
			PDFHref:     cfg.Labels.PDFHref,
			Download:    cfg.Labels.Download,
		},
		Timeouts: export.Timeouts{
			MenuSettle:  t.MenuSettle,
			ExportEntry: t.ExportEntry,
			PDFEntry:    t.PDFEntry,
			PageLoad:    t.PageLoad,
			PageSettle:  t.PageSettle,
			Generation:  t.Generation,
			Download:    t.Download,
		},
		PDF: pdf,
	}

	out, err := export.NewRunner(launcher, store, nil, opts, logger).Run(ctx)
	if err != nil {
		return exportExit(err)
	}
	fmt.Printf("Saved %s (%s, %s)\n", out.Path, export.FormatKB(out.Size), out.Method)
	return nil
}

func exportExit(err error) error {
	msg := fmt.Sprintf("export failed: %v", err)
	if errors.Is(err, export.ErrNoSnapshot) || errors.Is(err, export.ErrSessionExpired) {
		msg += "\n" + loginHint
	}
	return cli.NewExitError(msg, 1)
}
