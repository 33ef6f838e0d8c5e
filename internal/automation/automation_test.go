package automation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorBuilders(t *testing.T) {
	s := HasText("button", "Weitere Aktionen")
	assert.Equal(t, XPath, s.Kind)
	assert.Equal(t, `//button[contains(normalize-space(.), "Weitere Aktionen")]`, s.Expr)
	assert.Equal(t, `(//button[contains(normalize-space(.), "Weitere Aktionen")])[1]`, s.First().Expr)

	assert.Equal(t, `//*[normalize-space(text())="Download PDF"]`, ExactText("Download PDF").Expr)
	assert.Equal(t, `//*[@role="menuitem"][contains(normalize-space(.), "PDF")]`, RoleHasText("menuitem", "PDF").Expr)

	css := CSSSelector(`a[href*="flyingpdf"]`)
	assert.Equal(t, CSS, css.Kind)
	assert.Equal(t, css, css.First(), "css selectors already resolve to the first match")
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `"plain"`, xpathLiteral("plain"))
	assert.Equal(t, `'say "hi"'`, xpathLiteral(`say "hi"`))
	assert.Equal(t, `concat("it's ", '"', "x", '"', "")`, xpathLiteral(`it's "x"`))
}

func TestParseLength(t *testing.T) {
	cases := map[string]float64{
		"20px":   0.2083,
		"96":     1,
		"1in":    1,
		"2.54cm": 1,
		"25.4mm": 1,
		" 0 px":  0,
	}
	for in, want := range cases {
		got, err := ParseLength(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
	for _, bad := range []string{"wide", "-3px", "px"} {
		_, err := ParseLength(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewPDFOptions(t *testing.T) {
	o, err := NewPDFOptions("a4", "20px", true)
	require.NoError(t, err)
	assert.Equal(t, 8.27, o.PaperWidth)
	assert.Equal(t, 11.69, o.PaperHeight)
	assert.Equal(t, o.MarginTop, o.MarginLeft)
	assert.True(t, o.PrintBackground)

	_, err = NewPDFOptions("B7", "20px", true)
	assert.Error(t, err)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
