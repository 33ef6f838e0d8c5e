package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	idleQuiet    = 500 * time.Millisecond
	idleInterval = 50 * time.Millisecond
)

// WaitNetworkIdle blocks until no request has been in flight for 500ms.
func (c *Chrome) WaitNetworkIdle(ctx context.Context, bound time.Duration) error {
	rctx, cancel := c.scope(ctx, 0)
	defer cancel()

	var mu sync.Mutex
	active := make(map[network.RequestID]bool)
	idleSince := time.Now()

	chromedp.ListenTarget(rctx, func(ev any) {
		mu.Lock()
		defer mu.Unlock()
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			active[ev.RequestID] = true
			idleSince = time.Now()
		case *network.EventLoadingFinished:
			delete(active, ev.RequestID)
		case *network.EventLoadingFailed:
			delete(active, ev.RequestID)
		}
	})

	start := time.Now()
	for {
		mu.Lock()
		n := len(active)
		if n > 0 {
			idleSince = time.Now()
		}
		quiet := time.Since(idleSince)
		mu.Unlock()

		if n == 0 && quiet >= idleQuiet {
			return nil
		}
		if time.Since(start) > bound {
			return fmt.Errorf("timeout waiting for network idle (active: %d)", n)
		}
		select {
		case <-time.After(idleInterval):
		case <-rctx.Done():
			return rctx.Err()
		}
	}
}
