package automation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PDFOptions are page.printToPDF parameters; lengths are in inches.
type PDFOptions struct {
	PaperWidth      float64
	PaperHeight     float64
	MarginTop       float64
	MarginRight     float64
	MarginBottom    float64
	MarginLeft      float64
	PrintBackground bool
}

var papers = map[string][2]string{
	"a3":     {"11.69", "16.54"},
	"a4":     {"8.27", "11.69"},
	"a5":     {"5.83", "8.27"},
	"letter": {"8.5", "11"},
	"legal":  {"8.5", "14"},
}

var (
	perInch = map[string]decimal.Decimal{
		"in": decimal.NewFromInt(1),
		"px": decimal.NewFromInt(96),
		"cm": decimal.RequireFromString("2.54"),
		"mm": decimal.RequireFromString("25.4"),
	}
)

// ParseLength converts a CSS length ("20px", "1cm", "0.5in") to inches.
// A bare number is taken as pixels.
func ParseLength(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	unit := "px"
	for u := range perInch {
		if strings.HasSuffix(s, u) {
			unit = u
			s = strings.TrimSpace(strings.TrimSuffix(s, u))
			break
		}
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("length %q: %w", s, err)
	}
	if v.IsNegative() {
		return 0, fmt.Errorf("length %q is negative", s)
	}
	return v.Div(perInch[unit]).Round(4).InexactFloat64(), nil
}

// NewPDFOptions builds print options for a named paper size and a single
// margin applied to all four sides.
func NewPDFOptions(paper, margin string, background bool) (PDFOptions, error) {
	dims, ok := papers[strings.ToLower(strings.TrimSpace(paper))]
	if !ok {
		return PDFOptions{}, fmt.Errorf("unknown paper size %q", paper)
	}
	m, err := ParseLength(margin)
	if err != nil {
		return PDFOptions{}, fmt.Errorf("margin: %w", err)
	}
	return PDFOptions{
		PaperWidth:      decimal.RequireFromString(dims[0]).InexactFloat64(),
		PaperHeight:     decimal.RequireFromString(dims[1]).InexactFloat64(),
		MarginTop:       m,
		MarginRight:     m,
		MarginBottom:    m,
		MarginLeft:      m,
		PrintBackground: background,
	}, nil
}
