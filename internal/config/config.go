package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"wiki-pdf-export/internal/automation"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Labels struct {
	MoreActions string `yaml:"more_actions"`
	Export      string `yaml:"export"`
	PDFExport   string `yaml:"pdf_export"`
	PDFMenuHint string `yaml:"pdf_menu_hint"`
	PDFHref     string `yaml:"pdf_href"`
	Download    string `yaml:"download"`
}

type Timeouts struct {
	LoginPoll     time.Duration `yaml:"login_poll"`
	LoginProgress time.Duration `yaml:"login_progress"`
	LoginMaxWait  time.Duration `yaml:"login_max_wait"`
	LoginSettle   time.Duration `yaml:"login_settle"`
	LoginLinger   time.Duration `yaml:"login_linger"`
	NetworkIdle   time.Duration `yaml:"network_idle"`
	PageSettle    time.Duration `yaml:"page_settle"`
	MenuSettle    time.Duration `yaml:"menu_settle"`
	ExportEntry   time.Duration `yaml:"export_entry"`
	PDFEntry      time.Duration `yaml:"pdf_entry"`
	PageLoad      time.Duration `yaml:"page_load"`
	Generation    time.Duration `yaml:"generation"`
	Download      time.Duration `yaml:"download"`
}

type PDF struct {
	Paper      string `yaml:"paper"`
	Margin     string `yaml:"margin"`
	Background bool   `yaml:"background"`
}

type Config struct {
	PageURL      string   `yaml:"page_url"`
	LoginURL     string   `yaml:"login_url"`
	OutputFile   string   `yaml:"output_file"`
	CookiesFile  string   `yaml:"cookies_file"`
	CookieStore  string   `yaml:"cookie_store"`
	LogLevel     string   `yaml:"log_level"`
	Headless     bool     `yaml:"headless"`
	ChromePath   string   `yaml:"chrome_path"`
	WikiMarker   string   `yaml:"wiki_marker"`
	LoginMarker  string   `yaml:"login_marker"`
	RightRegionX float64  `yaml:"right_region_x"`
	Labels       Labels   `yaml:"labels"`
	Timeouts     Timeouts `yaml:"timeouts"`
	PDF          PDF      `yaml:"pdf"`
}

func defaults() Config {
	return Config{
		PageURL:      "https://janishuser.atlassian.net/wiki/spaces/~70121f63681e6d9614e7185f1d55159cde9f5/pages/294914/Testseite",
		LoginURL:     "https://janishuser.atlassian.net/wiki",
		OutputFile:   "Testseite.pdf",
		CookiesFile:  "auth_cookies.json",
		CookieStore:  "file",
		LogLevel:     "info",
		Headless:     false,
		WikiMarker:   "atlassian.net/wiki",
		LoginMarker:  "login",
		RightRegionX: 400,
		Labels: Labels{
			MoreActions: "Weitere Aktionen",
			Export:      "Exportieren",
			PDFExport:   "PDF Exportieren",
			PDFMenuHint: "PDF",
			PDFHref:     "flyingpdf",
			Download:    "Download PDF",
		},
		Timeouts: Timeouts{
			LoginPoll:     2 * time.Second,
			LoginProgress: 10 * time.Second,
			LoginMaxWait:  300 * time.Second,
			LoginSettle:   3 * time.Second,
			LoginLinger:   5 * time.Second,
			NetworkIdle:   30 * time.Second,
			PageSettle:    2 * time.Second,
			MenuSettle:    1 * time.Second,
			ExportEntry:   5 * time.Second,
			PDFEntry:      3 * time.Second,
			PageLoad:      30 * time.Second,
			Generation:    2 * time.Minute,
			Download:      time.Minute,
		},
		PDF: PDF{
			Paper:      "A4",
			Margin:     "20px",
			Background: true,
		},
	}
}

// Load reads path (a missing file is fine, defaults apply), then .env and
// WIKI_PDF_* overrides.
func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}

	_ = godotenv.Load() // best-effort: .env is optional
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.CookieStore = strings.ToLower(strings.TrimSpace(cfg.CookieStore))
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("WIKI_PDF_PAGE_URL", &cfg.PageURL)
	str("WIKI_PDF_LOGIN_URL", &cfg.LoginURL)
	str("WIKI_PDF_OUTPUT", &cfg.OutputFile)
	str("WIKI_PDF_COOKIES", &cfg.CookiesFile)
	str("WIKI_PDF_COOKIE_STORE", &cfg.CookieStore)
	str("WIKI_PDF_LOG_LEVEL", &cfg.LogLevel)
	str("WIKI_PDF_CHROME_PATH", &cfg.ChromePath)
	if v := os.Getenv("WIKI_PDF_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WIKI_PDF_HEADLESS: %w", err)
		}
		cfg.Headless = b
	}
	return nil
}

func (c Config) Validate() error {
	for name, raw := range map[string]string{"page_url": c.PageURL, "login_url": c.LoginURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.OutputFile == "" {
		return errors.New("output_file is required")
	}
	switch strings.ToLower(c.CookieStore) {
	case "file":
		if c.CookiesFile == "" {
			return errors.New("cookies_file is required for the file cookie store")
		}
	case "keyring":
	default:
		return fmt.Errorf(`cookie_store must be "file" or "keyring", got %q`, c.CookieStore)
	}
	if c.LoginMarker == "" {
		return errors.New("login_marker must not be empty")
	}
	if c.Labels.MoreActions == "" || c.Labels.Export == "" || c.Labels.PDFExport == "" || c.Labels.Download == "" {
		return errors.New("labels.more_actions, labels.export, labels.pdf_export and labels.download are required")
	}
	if _, err := automation.NewPDFOptions(c.PDF.Paper, c.PDF.Margin, c.PDF.Background); err != nil {
		return fmt.Errorf("pdf: %w", err)
	}
	t := c.Timeouts
	for name, d := range map[string]time.Duration{
		"login_poll":     t.LoginPoll,
		"login_progress": t.LoginProgress,
		"login_max_wait": t.LoginMaxWait,
		"network_idle":   t.NetworkIdle,
		"export_entry":   t.ExportEntry,
		"pdf_entry":      t.PDFEntry,
		"page_load":      t.PageLoad,
		"generation":     t.Generation,
		"download":       t.Download,
	} {
		if d <= 0 {
			return fmt.Errorf("timeouts.%s must be positive", name)
		}
	}
	return nil
}

// Host is the target site's host name; the keyring store is keyed on it.
func (c Config) Host() string {
	u, err := url.Parse(c.PageURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
