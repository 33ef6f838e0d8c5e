package automation

import (
	"fmt"
	"strings"
)

type Kind int

const (
	// CSS selectors resolve to the first match (querySelector).
	CSS Kind = iota
	// XPath selectors are run through DOM search and may match many nodes.
	XPath
)

// Selector names a way to locate an element. Name is what gets logged.
type Selector struct {
	Name string
	Expr string
	Kind Kind
}

func (s Selector) String() string { return s.Name }

// First narrows an XPath selector to its first match in document order.
func (s Selector) First() Selector {
	if s.Kind != XPath {
		return s
	}
	return Selector{Name: s.Name, Expr: "(" + s.Expr + ")[1]", Kind: XPath}
}

// HasText matches tag elements whose text content contains text.
func HasText(tag, text string) Selector {
	return Selector{
		Name: fmt.Sprintf(`%s:has-text(%q)`, tag, text),
		Expr: fmt.Sprintf(`//%s[contains(normalize-space(.), %s)]`, tag, xpathLiteral(text)),
		Kind: XPath,
	}
}

// ExactText matches the innermost element whose own text equals text after
// whitespace normalization.
func ExactText(text string) Selector {
	return Selector{
		Name: fmt.Sprintf(`text=%q`, text),
		Expr: fmt.Sprintf(`//*[normalize-space(text())=%s]`, xpathLiteral(text)),
		Kind: XPath,
	}
}

// RoleHasText matches elements with the given ARIA role containing text.
func RoleHasText(role, text string) Selector {
	return Selector{
		Name: fmt.Sprintf(`[role=%q]:has-text(%q)`, role, text),
		Expr: fmt.Sprintf(`//*[@role=%s][contains(normalize-space(.), %s)]`, xpathLiteral(role), xpathLiteral(text)),
		Kind: XPath,
	}
}

func CSSSelector(expr string) Selector {
	return Selector{Name: expr, Expr: expr, Kind: CSS}
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, '"', `)
		}
		b.WriteString(`"` + p + `"`)
	}
	b.WriteString(")")
	return b.String()
}
