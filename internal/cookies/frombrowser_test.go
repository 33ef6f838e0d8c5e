package cookies

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/browserutils/kooky"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	name, profile, file string
	cookies             []*kooky.Cookie
	err                 error

	filters int
	closed  bool
}

func (s *fakeStore) ReadCookies(filters ...kooky.Filter) ([]*kooky.Cookie, error) {
	s.filters = len(filters)
	var out []*kooky.Cookie
	for _, c := range s.cookies {
		if kooky.FilterCookie(c, filters...) {
			out = append(out, c)
		}
	}
	return out, s.err
}

func (s *fakeStore) Browser() string  { return s.name }
func (s *fakeStore) Profile() string  { return s.profile }
func (s *fakeStore) FilePath() string { return s.file }
func (s *fakeStore) Close() error     { s.closed = true; return nil }

func stores(ss ...*fakeStore) Source {
	return func() []Store {
		out := make([]Store, len(ss))
		for i, s := range ss {
			out[i] = s
		}
		return out
	}
}

func kc(domain, path, name, value string) *kooky.Cookie {
	return &kooky.Cookie{Cookie: http.Cookie{
		Domain:  domain,
		Path:    path,
		Name:    name,
		Value:   value,
		Expires: time.Now().Add(time.Hour),
	}}
}

func TestExtractFiltersAndDedupes(t *testing.T) {
	chrome := &fakeStore{name: "chrome", file: "/c/Cookies", cookies: []*kooky.Cookie{
		kc(".atlassian.net", "/", "cloud.session.token", "first"),
		kc(".ATLASSIAN.net", "/", "cloud.session.token", "dup"),
		kc("janishuser.atlassian.net", "/wiki", "JSESSIONID", "j"),
		kc("other.atlassian.net", "/", "foreign", "f"),
		kc(".example.com", "/", "unrelated", "u"),
	}}

	got, err := extract(context.Background(), stores(chrome), "", "https://janishuser.atlassian.net/wiki")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Value)
	assert.Equal(t, "JSESSIONID", got[1].Name)
	assert.False(t, got[0].Session())
	assert.Equal(t, 2, chrome.filters, "valid + domain suffix")
	assert.True(t, chrome.closed)
}

func TestExtractSkipsExpired(t *testing.T) {
	old := kc(".atlassian.net", "/", "stale", "s")
	old.Expires = time.Now().Add(-time.Hour)
	s := &fakeStore{name: "chrome", cookies: []*kooky.Cookie{old, kc(".atlassian.net", "/", "fresh", "f")}}

	got, err := extract(context.Background(), stores(s), "", "https://janishuser.atlassian.net")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Name)
}

func TestExtractPartialErrorKeepsCookies(t *testing.T) {
	firefox := &fakeStore{name: "firefox", err: errors.New("database is locked")}
	chrome := &fakeStore{name: "chrome", cookies: []*kooky.Cookie{kc(".atlassian.net", "/", "a", "b")}}

	got, err := extract(context.Background(), stores(firefox, chrome), "", "https://janishuser.atlassian.net")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.True(t, firefox.closed)
	assert.True(t, chrome.closed)
}

func TestExtractNarrowsToBrowser(t *testing.T) {
	firefox := &fakeStore{name: "firefox", cookies: []*kooky.Cookie{kc(".atlassian.net", "/", "tenant.session.token", "ff")}}
	chrome := &fakeStore{name: "chrome", cookies: []*kooky.Cookie{kc(".atlassian.net", "/", "tenant.session.token", "cr")}}

	got, err := extract(context.Background(), stores(firefox, chrome), "Google Chrome", "https://janishuser.atlassian.net/wiki")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cr", got[0].Value)
	assert.Zero(t, firefox.filters, "other browsers are not read")
	assert.True(t, firefox.closed)
}

func TestExtractErrors(t *testing.T) {
	_, err := extract(context.Background(), stores(), "", "")
	assert.Error(t, err)

	broken := &fakeStore{name: "chrome", err: errors.New("boom")}
	_, err = extract(context.Background(), stores(broken), "", "https://x.atlassian.net")
	assert.ErrorContains(t, err, "boom")

	_, err = extract(context.Background(), stores(), "chrome", "https://x.atlassian.net")
	assert.ErrorContains(t, err, "no cookies")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeStore{name: "chrome"}
	_, err = extract(ctx, stores(s), "", "https://x.atlassian.net")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, s.closed)
}

func TestListKeepsDuplicatesSortedByStore(t *testing.T) {
	firefox := &fakeStore{name: "firefox", profile: "default-release", file: "/f/cookies.sqlite", cookies: []*kooky.Cookie{
		kc(".atlassian.net", "/", "b", "1"),
	}}
	chrome := &fakeStore{name: "chrome", profile: "Default", file: "/c/Cookies", cookies: []*kooky.Cookie{
		kc(".atlassian.net", "/", "b", "2"),
		kc(".atlassian.net", "/", "a", "3"),
	}}

	got, err := list(context.Background(), stores(firefox, chrome), "", "https://janishuser.atlassian.net")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"3", "2", "1"}, []string{got[0].Cookie.Value, got[1].Cookie.Value, got[2].Cookie.Value})
	assert.Equal(t, "chrome", got[0].Browser)
	assert.Equal(t, "Default", got[0].Profile)
	assert.Equal(t, "/f/cookies.sqlite", got[2].File)
}

func TestNormalizeBrowser(t *testing.T) {
	assert.Equal(t, "chrome", NormalizeBrowser(" Google Chrome "))
	assert.Equal(t, "edge", NormalizeBrowser("Microsoft Edge"))
	assert.Equal(t, "firefox", NormalizeBrowser("firefox"))
	assert.Equal(t, "", NormalizeBrowser("all"))
}

func TestDomainMatches(t *testing.T) {
	assert.True(t, domainMatches("janishuser.atlassian.net", ".atlassian.net"))
	assert.True(t, domainMatches("janishuser.atlassian.net", "janishuser.atlassian.net"))
	assert.False(t, domainMatches("janishuser.atlassian.net", "other.atlassian.net"))
	assert.False(t, domainMatches("atlassian.net.evil.com", ".atlassian.net"))
	assert.Equal(t, "atlassian.net", parentDomain("janishuser.atlassian.net"))
	assert.Equal(t, "localhost", parentDomain("localhost"))
}
