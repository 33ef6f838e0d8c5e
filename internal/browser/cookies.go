package browser

import (
	"context"
	"fmt"
	"strings"

	"wiki-pdf-export/internal/snapshot"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

func (c *Chrome) SetCookies(ctx context.Context, cookies []snapshot.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, ck := range cookies {
		params = append(params, toParam(ck))
	}
	if err := c.run(ctx, 0, network.SetCookies(params)); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// Cookies returns every cookie in the browser, not only those for the
// current page.
func (c *Chrome) Cookies(ctx context.Context) ([]snapshot.Cookie, error) {
	var out []snapshot.Cookie
	err := c.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		cks, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, ck := range cks {
			out = append(out, fromCDP(ck))
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return out, nil
}

func toParam(ck snapshot.Cookie) *network.CookieParam {
	p := &network.CookieParam{
		Name:     ck.Name,
		Value:    ck.Value,
		Domain:   ck.Domain,
		Path:     ck.Path,
		Secure:   ck.Secure,
		HTTPOnly: ck.HTTPOnly,
		SameSite: sameSite(ck.SameSite),
	}
	if !ck.Session() {
		exp := cdp.TimeSinceEpoch(ck.ExpiresAt())
		p.Expires = &exp
	}
	return p
}

func fromCDP(ck *network.Cookie) snapshot.Cookie {
	c := snapshot.Cookie{
		Name:     ck.Name,
		Value:    ck.Value,
		Domain:   ck.Domain,
		Path:     ck.Path,
		Expires:  ck.Expires,
		HTTPOnly: ck.HTTPOnly,
		Secure:   ck.Secure,
		SameSite: ck.SameSite.String(),
	}
	if ck.Session {
		c.Expires = -1
	}
	return c
}

func sameSite(s string) network.CookieSameSite {
	switch strings.ToLower(s) {
	case "strict":
		return network.CookieSameSiteStrict
	case "lax":
		return network.CookieSameSiteLax
	case "none":
		return network.CookieSameSiteNone
	default:
		return ""
	}
}
