package cookies

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"wiki-pdf-export/internal/snapshot"
)

// Entry is one cookie together with the browser store it came from.
type Entry struct {
	Browser string
	Profile string
	File    string
	Cookie  snapshot.Cookie
}

// List returns every cookie local browsers would send to siteURL, without
// de-duplication, ordered by store then domain, path and name.
func List(ctx context.Context, browser, siteURL string) ([]Entry, error) {
	return list(ctx, findStores, browser, siteURL)
}

func list(ctx context.Context, src Source, browser, siteURL string) ([]Entry, error) {
	out, err := matching(ctx, src, browser, siteURL)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Browser != b.Browser {
			return a.Browser < b.Browser
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Cookie.Domain != b.Cookie.Domain {
			return a.Cookie.Domain < b.Cookie.Domain
		}
		if a.Cookie.Path != b.Cookie.Path {
			return a.Cookie.Path < b.Cookie.Path
		}
		return a.Cookie.Name < b.Cookie.Name
	})
	return out, nil
}

const valueWidth = 80

// WriteTable prints entries grouped by store. Values are cut at 80 bytes
// unless full; a hex dump follows values that are not plain ASCII.
func WriteTable(w io.Writer, entries []Entry, full bool, now time.Time) {
	last := ""
	for _, e := range entries {
		store := e.Browser + " :: " + e.File
		if store != last {
			fmt.Fprintf(w, "=== %s\n", store)
			if e.Profile != "" {
				fmt.Fprintf(w, " profile: %s\n", prettifyPath(e.Profile))
			}
			last = store
		}
		c := e.Cookie
		fmt.Fprintf(w, "- domain: %s path: %s name: %s\n", c.Domain, c.Path, c.Name)
		fmt.Fprintf(w, "  value : %s\n", truncate(c.Value, full))
		if !plainASCII(c.Value) {
			fmt.Fprintf(w, "  value-hex: %s\n", hex.EncodeToString([]byte(c.Value)))
		}
		sameSite := c.SameSite
		if sameSite == "" {
			sameSite = "Default"
		}
		fmt.Fprintf(w, "  flags : secure=%v httpOnly=%v sameSite=%s hostOnly=%v\n",
			c.Secure, c.HTTPOnly, sameSite, hostOnly(c.Domain))
		fmt.Fprintf(w, "  times : expires=%s\n", expiry(c, now))
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No matching cookies. Log in to the wiki in your browser and re-run.")
	}
}

func truncate(v string, full bool) string {
	if full || len(v) <= valueWidth {
		return v
	}
	return v[:valueWidth] + "..."
}

func plainASCII(v string) bool {
	if !utf8.ValidString(v) {
		return false
	}
	for _, r := range v {
		if r > 127 {
			return false
		}
	}
	return true
}

// Browsers store host-only cookies without a leading dot.
func hostOnly(domain string) bool {
	d := strings.TrimSpace(domain)
	return d != "" && !strings.HasPrefix(d, ".")
}

func expiry(c snapshot.Cookie, now time.Time) string {
	if c.Session() {
		return "session"
	}
	s := c.ExpiresAt().UTC().Format(time.RFC3339)
	if c.Expired(now) {
		s += " (expired)"
	}
	return s
}

func prettifyPath(p string) string {
	home, _ := os.UserHomeDir()
	if home != "" {
		if rel, err := filepath.Rel(home, p); err == nil && !strings.HasPrefix(rel, "..") {
			return "~/" + rel
		}
	}
	return p
}
