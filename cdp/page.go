package cdp

import (
	"context"
	"time"

	"github.com/ByteAshen/cdpgo/session"
)

// Page wraps the Page domain's commands and events.
type Page struct {
	s *Surface
}

// NewPage binds a Page domain wrapper to s.
func NewPage(s *Surface) *Page { return &Page{s: s} }

// Enable turns on Page domain events (Page.loadEventFired and friends).
func (p *Page) Enable(ctx context.Context) error {
	if err := p.s.Call(ctx, "Page.enable", nil, nil); err != nil {
		return err
	}
	p.s.recordEnable("Page.enable", func(ctx context.Context) error {
		return p.s.Call(ctx, "Page.enable", nil, nil)
	})
	return nil
}

// Disable turns off Page domain events.
func (p *Page) Disable(ctx context.Context) error {
	if err := p.s.Call(ctx, "Page.disable", nil, nil); err != nil {
		return err
	}
	p.s.recordDisable("Page.enable")
	return nil
}

type navigateParams struct {
	URL string `json:"url"`
}

// NavigateResult is Page.navigate's response.
type NavigateResult struct {
	FrameID   string `json:"frameId"`
	LoaderID  string `json:"loaderId,omitempty"`
	ErrorText string `json:"errorText,omitempty"`
}

// Navigate sends Page.navigate.
func (p *Page) Navigate(ctx context.Context, url string) (NavigateResult, error) {
	var res NavigateResult
	err := p.s.Call(ctx, "Page.navigate", navigateParams{URL: url}, &res)
	return res, err
}

// BringToFront sends Page.bringToFront.
func (p *Page) BringToFront(ctx context.Context) error {
	return p.s.Call(ctx, "Page.bringToFront", nil, nil)
}

// OnLoadEventFired registers a handler for Page.loadEventFired.
func (p *Page) OnLoadEventFired(handler session.Handler) *session.Token {
	return p.s.On("Page.loadEventFired", handler)
}

// WaitForLoadEventFired blocks until the next Page.loadEventFired or timeout.
func (p *Page) WaitForLoadEventFired(ctx context.Context, timeout time.Duration) (session.Event, error) {
	return p.s.WaitFor(ctx, "Page.loadEventFired", timeout)
}
