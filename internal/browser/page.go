package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wiki-pdf-export/internal/automation"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

func by(sel automation.Selector) chromedp.QueryOption {
	if sel.Kind == automation.XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, 0, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) URL(ctx context.Context) (string, error) {
	var u string
	if err := c.run(ctx, 0, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return u, nil
}

func (c *Chrome) FindAll(ctx context.Context, sel automation.Selector) ([]automation.Element, error) {
	var nodes []*cdp.Node
	var els []automation.Element
	err := c.run(ctx, 0,
		chromedp.Nodes(sel.Expr, &nodes, by(sel), chromedp.AtLeast(0)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, n := range nodes {
				els = append(els, element(ctx, n))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", sel, err)
	}
	return els, nil
}

// element reads n's border box; unrendered nodes come back without one.
func element(ctx context.Context, n *cdp.Node) automation.Element {
	el := automation.Element{Handle: n}
	box, err := dom.GetBoxModel().WithNodeID(n.NodeID).Do(ctx)
	if err != nil || box == nil || len(box.Border) < 8 {
		return el
	}
	x := box.Border[0]
	for i := 2; i < 8; i += 2 {
		x = min(x, box.Border[i])
	}
	el.X = x
	el.HasBox = true
	return el
}

func (c *Chrome) WaitVisible(ctx context.Context, sel automation.Selector, bound time.Duration) (automation.Element, error) {
	first := sel.First()
	var nodes []*cdp.Node
	var el automation.Element
	err := c.run(ctx, bound,
		chromedp.Nodes(first.Expr, &nodes, by(first), chromedp.NodeVisible),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(nodes) == 0 {
				return automation.ErrNotVisible
			}
			el = element(ctx, nodes[0])
			return nil
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return el, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return el, fmt.Errorf("%w: %s within %s", automation.ErrNotVisible, sel, bound)
		}
		return el, fmt.Errorf("wait for %s: %w", sel, err)
	}
	return el, nil
}

func nodeOf(el automation.Element) (*cdp.Node, error) {
	n, ok := el.Handle.(*cdp.Node)
	if !ok || n == nil {
		return nil, fmt.Errorf("element handle %T is not a DOM node", el.Handle)
	}
	return n, nil
}

// Click dispatches a left click at the node's center. Without force the node
// must currently have a box; with force the click is dispatched regardless
// of what covers that point.
func (c *Chrome) Click(ctx context.Context, el automation.Element, force bool) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	actions := []chromedp.Action{}
	if !force {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			if !element(ctx, n).HasBox {
				return fmt.Errorf("%w: node %d has no box", automation.ErrNotVisible, n.NodeID)
			}
			return nil
		}))
	}
	actions = append(actions, chromedp.MouseClickNode(n))
	if err := c.run(ctx, 0, actions...); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

// WaitLoad polls document.readyState until the current document finished
// loading. Evaluation errors during a navigation are retried.
func (c *Chrome) WaitLoad(ctx context.Context, bound time.Duration) error {
	rctx, cancel := c.scope(ctx, bound)
	defer cancel()
	for {
		var state string
		if err := chromedp.Run(rctx, chromedp.Evaluate(`document.readyState`, &state)); err == nil && state == "complete" {
			return nil
		}
		if err := automation.Sleep(rctx, 100*time.Millisecond); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("page did not finish loading within %s: %w", bound, err)
		}
	}
}

func (c *Chrome) PrintPDF(ctx context.Context, o automation.PDFOptions) ([]byte, error) {
	var buf []byte
	err := c.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		b, _, err := page.PrintToPDF().
			WithPaperWidth(o.PaperWidth).
			WithPaperHeight(o.PaperHeight).
			WithMarginTop(o.MarginTop).
			WithMarginRight(o.MarginRight).
			WithMarginBottom(o.MarginBottom).
			WithMarginLeft(o.MarginLeft).
			WithPrintBackground(o.PrintBackground).
			Do(ctx)
		buf = b
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return buf, nil
}
