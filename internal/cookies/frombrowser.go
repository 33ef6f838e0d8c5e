package cookies

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"wiki-pdf-export/internal/snapshot"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register finders (Chrome, Chromium, Edge, Brave, Firefox, Safari, ...)
)

// Store is the part of kooky.CookieStore this package uses.
type Store interface {
	ReadCookies(filters ...kooky.Filter) ([]*kooky.Cookie, error)
	Browser() string
	Profile() string
	FilePath() string
	Close() error
}

// Source lists the local browser cookie stores. The default asks every
// registered kooky finder; tests substitute fixed stores.
type Source func() []Store

func findStores() []Store {
	found := kooky.FindAllCookieStores()
	out := make([]Store, 0, len(found))
	for _, s := range found {
		out = append(out, s)
	}
	return out
}

// ExtractFromBrowser loads unexpired cookies for siteURL's registrable
// domain from local browser profiles. browser narrows the stores
// ("chrome", "firefox", ...); empty means all. The result is de-duplicated
// on domain, path and name, first store wins.
func ExtractFromBrowser(ctx context.Context, browser, siteURL string) ([]snapshot.Cookie, error) {
	return extract(ctx, findStores, browser, siteURL)
}

func extract(ctx context.Context, src Source, browser, siteURL string) ([]snapshot.Cookie, error) {
	entries, err := matching(ctx, src, browser, siteURL)
	if err != nil {
		return nil, err
	}
	var out []snapshot.Cookie
	seen := map[string]bool{}
	for _, e := range entries {
		c := e.Cookie
		key := dedupeKey(c.Domain, c.Path, c.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out, nil
}

// matching reads the cookies a browser would send to siteURL, tagged with
// the store they came from, optionally from one browser only. Every store is
// closed before it returns. It fails when nothing matches.
func matching(ctx context.Context, src Source, browser, siteURL string) ([]Entry, error) {
	if siteURL == "" {
		return nil, errors.New("site URL required")
	}
	u, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("parse site URL: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("invalid site URL host in %q", siteURL)
	}

	stores := src()
	defer func() {
		for _, s := range stores {
			_ = s.Close()
		}
	}()

	want := NormalizeBrowser(browser)
	var (
		out  []Entry
		errs []error
	)
	for _, s := range stores {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if want != "" && NormalizeBrowser(s.Browser()) != want {
			continue
		}
		kcs, err := s.ReadCookies(kooky.Valid, kooky.DomainHasSuffix(parentDomain(host)))
		if err != nil {
			// Some stores fail to decrypt while others succeed; keep what was read.
			errs = append(errs, fmt.Errorf("%s %s: %w", s.Browser(), s.FilePath(), err))
		}
		for _, kc := range kcs {
			if kc == nil || !domainMatches(host, kc.Domain) {
				continue
			}
			hc := kc.Cookie
			out = append(out, Entry{
				Browser: s.Browser(),
				Profile: s.Profile(),
				File:    s.FilePath(),
				Cookie:  snapshot.FromHTTP(&hc),
			})
		}
	}

	if len(out) == 0 {
		if len(errs) > 0 {
			return nil, fmt.Errorf("read browser cookies: %w", errors.Join(errs...))
		}
		if want == "" {
			want = "any browser"
		}
		return nil, fmt.Errorf("no cookies for %q found in %s", host, want)
	}
	return out, nil
}

// NormalizeBrowser maps user spellings onto kooky's browser names.
func NormalizeBrowser(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "chrome", "google chrome":
		return "chrome"
	case "edge", "microsoft edge":
		return "edge"
	case "", "all", "any":
		return ""
	default:
		return s
	}
}

// parentDomain strips the first label so host-only and site-wide cookies
// (".atlassian.net") are both candidates.
func parentDomain(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[1:], ".")
}

// domainMatches applies the browser's domain-match rule for sending a
// cookie to host.
func domainMatches(host, cookieDomain string) bool {
	host = strings.ToLower(host)
	d := strings.ToLower(strings.TrimPrefix(cookieDomain, "."))
	return host == d || strings.HasSuffix(host, "."+d)
}

func dedupeKey(domain, path, name string) string {
	// NB: case-insensitive domain comparison
	return strings.ToLower(domain) + "\t" + path + "\t" + name
}
