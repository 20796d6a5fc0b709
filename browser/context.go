package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/ByteAshen/cdpgo/intercept"
)

// interceptConfig is {enabled, handler, patterns} from spec.md §3, shared by
// Context and Browser (whose "global" config is the same shape mirrored
// into every Context).
type interceptConfig struct {
	enabled  bool
	callback intercept.Callback
	patterns []intercept.RequestPattern
}

// Context is a browsing-data partition (C7). The empty id is the default
// Context. A Context owns the Page Sessions created within it and forwards
// its interception config to newly attached pages.
type Context struct {
	ID      string
	browser *Browser

	mu        sync.Mutex
	pages     []*Page // creation order; closed LIFO
	intercept interceptConfig
}

// NewPage asks the Browser Root to create a target in this Context, wraps
// it as a Page, and — if interception is enabled on this Context — wires
// the same config into the new Page before returning it, so no navigation
// the caller triggers afterward can race past an unconfigured Fetch domain.
func (c *Context) NewPage(ctx context.Context, startURL string) (*Page, error) {
	page, err := c.browser.newAttachedPage(ctx, c.ID, startURL)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	cfg := c.intercept
	c.pages = append(c.pages, page)
	c.mu.Unlock()

	if cfg.enabled {
		for _, pat := range cfg.patterns {
			if _, ierr := page.intercept.Intercept(ctx, pat, cfg.callback); ierr != nil {
				return page, fmt.Errorf("inheriting interception config for new page: %w", ierr)
			}
		}
	}
	return page, nil
}

// Pages returns the non-closed Page Sessions owned by this Context.
func (c *Context) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Page, 0, len(c.pages))
	for _, p := range c.pages {
		if p.IsConnected() {
			out = append(out, p)
		}
	}
	return out
}

// EnableFetch enables interception with cb across patterns for every
// existing Page owned by this Context, and records the config so future
// pages inherit it at attach time.
func (c *Context) EnableFetch(ctx context.Context, cb intercept.Callback, patterns []intercept.RequestPattern) error {
	c.mu.Lock()
	c.intercept = interceptConfig{enabled: true, callback: cb, patterns: patterns}
	pages := append([]*Page(nil), c.pages...)
	c.mu.Unlock()

	for _, p := range pages {
		for _, pat := range patterns {
			if _, err := p.intercept.Intercept(ctx, pat, cb); err != nil {
				return err
			}
		}
	}
	return nil
}

// DisableFetch disables interception on every owned Page and clears the
// Context's inherited config.
func (c *Context) DisableFetch(ctx context.Context) error {
	c.mu.Lock()
	c.intercept = interceptConfig{}
	pages := append([]*Page(nil), c.pages...)
	c.mu.Unlock()

	var firstErr error
	for _, p := range pages {
		if err := p.intercept.Clear(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close disables interception on every owned page, closes each Page in
// LIFO order (I4), then — if this is not the default Context — disposes
// the browser context via the Browser Root's session.
func (c *Context) Close(ctx context.Context) error {
	_ = c.DisableFetch(ctx)

	c.mu.Lock()
	pages := c.pages
	c.pages = nil
	c.mu.Unlock()

	var firstErr error
	for i := len(pages) - 1; i >= 0; i-- {
		if err := pages[i].Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.ID == "" {
		return firstErr
	}
	if err := c.browser.disposeContext(ctx, c.ID); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("disposing context %s: %w", c.ID, err)
	}
	return firstErr
}

