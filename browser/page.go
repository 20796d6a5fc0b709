// Package browser implements the ownership graph (C6 Page Session, C7
// Context, C8 Browser Root): target/context lifecycle, deterministic LIFO
// teardown, and interception-config inheritance at page-attach time.
// Grounded on spec.md §§4.6-4.9 and on _teacher/chromium's browser.go,
// browser_context.go and page.go for the ownership-graph shape (creation
// via the root session, close() cascades), generalized from a
// Chromium-only object graph to an engine-neutral one.
package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ByteAshen/cdpgo/cdp"
	"github.com/ByteAshen/cdpgo/errdefs"
	"github.com/ByteAshen/cdpgo/intercept"
	"github.com/ByteAshen/cdpgo/internal/xlog"
	"github.com/ByteAshen/cdpgo/session"
	"github.com/ByteAshen/cdpgo/wire"
)

// Page is one logical attached target (C6): its own C2+C3 stack plus the
// Command Surface for that target. A Page never outlives its Context.
type Page struct {
	TargetID  string
	ContextID string

	sess *session.Session
	surf *cdp.Surface

	Page    *cdp.Page
	Network *cdp.Network
	Runtime *cdp.Runtime
	Fetch   *cdp.Fetch

	intercept *intercept.Engine

	root *Browser // for the browser-level "close target" command

	closed    atomic.Bool
	closeOnce sync.Once
	log       *xlog.Logger
}

func newPage(root *Browser, targetID, contextID, wsURL string, connectTimeout, cmdTimeout time.Duration, log *xlog.Logger) (*Page, error) {
	if log == nil {
		log = xlog.Null()
	}
	ch, err := wire.Dial(context.Background(), wsURL, connectTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("dialing target %s: %w", targetID, err)
	}
	sess := session.New(ch, log, cmdTimeout)
	surf := cdp.NewSurface(sess, cmdTimeout)
	fetch := cdp.NewFetch(surf)

	p := &Page{
		TargetID:  targetID,
		ContextID: contextID,
		sess:      sess,
		surf:      surf,
		Page:      cdp.NewPage(surf),
		Network:   cdp.NewNetwork(surf),
		Runtime:   cdp.NewRuntime(surf),
		Fetch:     fetch,
		intercept: intercept.New(fetch, log),
		root:      root,
		log:       log.WithCategory("page"),
	}

	fetch.OnRequestPaused(func(e session.Event) {
		req, perr := cdp.ParseRequestPaused(e.Params)
		if perr != nil {
			p.log.Errorf("malformed Fetch.requestPaused: %v", perr)
			return
		}
		p.intercept.HandleRequestPaused(context.Background(), req)
	})

	return p, nil
}

// IsConnected reports whether this Page's Session is still usable (I6).
func (p *Page) IsConnected() bool {
	return !p.closed.Load() && p.sess.State() != session.StateClosed
}

// BringToFront is an ordinary command (spec.md §4.6).
func (p *Page) BringToFront(ctx context.Context) error {
	if err := p.checkClosed(); err != nil {
		return err
	}
	return p.Page.BringToFront(ctx)
}

// Navigate is a convenience passthrough to the Page domain's navigate.
func (p *Page) Navigate(ctx context.Context, url string) (cdp.NavigateResult, error) {
	if err := p.checkClosed(); err != nil {
		return cdp.NavigateResult{}, err
	}
	return p.Page.Navigate(ctx, url)
}

// Intercept registers a network interception rule scoped to this page.
func (p *Page) Intercept(ctx context.Context, pattern intercept.RequestPattern, cb intercept.Callback) (*intercept.Handle, error) {
	if err := p.checkClosed(); err != nil {
		return nil, err
	}
	return p.intercept.Intercept(ctx, pattern, cb)
}

func (p *Page) checkClosed() error {
	if !p.IsConnected() {
		return fmt.Errorf("page %s: %w", p.TargetID, errdefs.ErrPageClosed)
	}
	return nil
}

// Close is idempotent: it sends the browser-level "close target" command
// through the Browser Root's own Session (never this Page's own), then
// disconnects this Page's channel. After Close, every operation on this
// Page fails with a "closed" error without touching the channel (I6).
func (p *Page) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if p.root != nil {
			if cerr := p.root.closeTarget(ctx, p.TargetID); cerr != nil {
				p.log.Warnf("closing target %s on browser root: %v", p.TargetID, cerr)
			}
		}
		err = p.sess.Close()
	})
	return err
}
