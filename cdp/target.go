package cdp

import (
	"context"

	"github.com/ByteAshen/cdpgo/session"
)

// Target wraps the Target domain: target and browser-context lifecycle
// commands, issued exclusively on the Browser Root's own Session per
// spec.md §4.8 ("Page Sessions never create or dispose contexts themselves").
type Target struct {
	s *Surface
}

// NewTarget binds a Target domain wrapper to s.
func NewTarget(s *Surface) *Target { return &Target{s: s} }

type setDiscoverTargetsParams struct {
	Discover bool `json:"discover"`
}

// SetDiscoverTargets toggles Target.targetCreated/targetDestroyed events.
func (t *Target) SetDiscoverTargets(ctx context.Context, discover bool) error {
	return t.s.Call(ctx, "Target.setDiscoverTargets", setDiscoverTargetsParams{Discover: discover}, nil)
}

type createBrowserContextParams struct {
	ProxyServer string `json:"proxyServer,omitempty"`
}

type createBrowserContextResult struct {
	BrowserContextID string `json:"browserContextId"`
}

// CreateBrowserContext creates an isolated context, optionally proxied.
func (t *Target) CreateBrowserContext(ctx context.Context, proxyServer string) (string, error) {
	var res createBrowserContextResult
	err := t.s.Call(ctx, "Target.createBrowserContext", createBrowserContextParams{ProxyServer: proxyServer}, &res)
	return res.BrowserContextID, err
}

type disposeBrowserContextParams struct {
	BrowserContextID string `json:"browserContextId"`
}

// DisposeBrowserContext disposes a previously created isolated context.
func (t *Target) DisposeBrowserContext(ctx context.Context, contextID string) error {
	return t.s.Call(ctx, "Target.disposeBrowserContext", disposeBrowserContextParams{BrowserContextID: contextID}, nil)
}

type createTargetParams struct {
	URL              string `json:"url"`
	BrowserContextID string `json:"browserContextId,omitempty"`
}

type createTargetResult struct {
	TargetID string `json:"targetId"`
}

// CreateTarget opens a new target (page) in the given context (empty = default).
func (t *Target) CreateTarget(ctx context.Context, url, contextID string) (string, error) {
	var res createTargetResult
	err := t.s.Call(ctx, "Target.createTarget", createTargetParams{URL: url, BrowserContextID: contextID}, &res)
	return res.TargetID, err
}

type closeTargetParams struct {
	TargetID string `json:"targetId"`
}

// CloseTarget closes targetID.
func (t *Target) CloseTarget(ctx context.Context, targetID string) error {
	return t.s.Call(ctx, "Target.closeTarget", closeTargetParams{TargetID: targetID}, nil)
}

// TargetCreatedInfo is the payload of Target.targetCreated.
type TargetCreatedInfo struct {
	TargetInfo struct {
		TargetID string `json:"targetId"`
		Type     string `json:"type"`
		URL      string `json:"url"`
	} `json:"targetInfo"`
}

// OnTargetCreated registers a handler for Target.targetCreated.
func (t *Target) OnTargetCreated(handler session.Handler) *session.Token {
	return t.s.On("Target.targetCreated", handler)
}
