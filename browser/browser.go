package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/ByteAshen/cdpgo/cdp"
	"github.com/ByteAshen/cdpgo/config"
	"github.com/ByteAshen/cdpgo/discovery"
	"github.com/ByteAshen/cdpgo/errdefs"
	"github.com/ByteAshen/cdpgo/intercept"
	"github.com/ByteAshen/cdpgo/internal/xlog"
	"github.com/ByteAshen/cdpgo/session"
	"github.com/ByteAshen/cdpgo/supervisor"
	"github.com/ByteAshen/cdpgo/wire"
)

// Browser is the top-level handle (C8): the browser-level C2+C3 stack, the
// default Context, any isolated Contexts, and the target directory of page
// discovery.
type Browser struct {
	cfg  config.Config
	log  *xlog.Logger
	disc *discovery.Client

	sess *session.Session
	surf *cdp.Surface
	sup  *supervisor.Supervisor

	target *cdp.Target

	version discovery.VersionInfo

	mu          sync.Mutex
	defaultCtx  *Context
	isolated    []*Context // creation order; closed LIFO
	globalFetch interceptConfig

	closeOnce sync.Once
}

// Connect performs an HTTP GET to the discovery endpoint to obtain the
// browser-level debugger URL, opens a Message Channel to it, and wires the
// reconnect supervisor described in spec.md §4.4 over it (spec.md §4.8).
func Connect(ctx context.Context, host string, port int, log *xlog.Logger, cfg config.Config) (*Browser, error) {
	if log == nil {
		log = xlog.Null()
	}
	disc := discovery.New(host, port, cfg.ConnectionTimeout)

	v, err := disc.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering browser endpoint: %w", err)
	}

	ch, err := wire.Dial(ctx, v.WebSocketDebuggerURL, cfg.ConnectionTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("dialing browser endpoint: %w", err)
	}

	sess := session.New(ch, log, cfg.CommandTimeout)
	surf := cdp.NewSurface(sess, cfg.CommandTimeout)
	target := cdp.NewTarget(surf)

	b := &Browser{
		cfg:     cfg,
		log:     log.WithCategory("browser"),
		disc:    disc,
		sess:    sess,
		surf:    surf,
		target:  target,
		version: v,
	}
	b.defaultCtx = &Context{ID: "", browser: b}

	if err := target.SetDiscoverTargets(ctx, true); err != nil {
		sess.Close()
		return nil, fmt.Errorf("enabling target discovery: %w", err)
	}

	if cfg.EnableHeartbeat || cfg.AutoReconnect {
		b.sup = supervisor.New(
			sess,
			func(rctx context.Context) (*wire.Channel, error) {
				rv, rerr := disc.Version(rctx)
				if rerr != nil {
					return nil, rerr
				}
				return wire.Dial(rctx, rv.WebSocketDebuggerURL, cfg.ConnectionTimeout, log)
			},
			func(pctx context.Context) error {
				_, perr := disc.Version(pctx)
				return perr
			},
			surf.Replay,
			supervisor.Config{
				EnableHeartbeat:            cfg.EnableHeartbeat,
				HeartbeatInterval:          cfg.HeartbeatInterval,
				AutoReconnect:              cfg.AutoReconnect,
				ReconnectDelay:             cfg.ReconnectDelay,
				ReconnectMaxDelay:          cfg.ReconnectMaxDelay,
				ReconnectMaxAttempts:       cfg.ReconnectMaxAttempts,
				ReconnectBackoffMultiplier: cfg.ReconnectBackoffMultiplier,
			},
			supervisor.Hooks{},
			log,
		)
	}

	if cfg.AutoEnableDomains {
		_ = target.SetDiscoverTargets(ctx, true)
	}

	return b, nil
}

// Version returns the engine's self-reported version string.
func (b *Browser) Version() string { return b.version.Browser }

// UserAgent returns the engine's self-reported user agent.
func (b *Browser) UserAgent() string { return b.version.UserAgent }

// DefaultContext returns the always-present default Context.
func (b *Browser) DefaultContext() *Context { return b.defaultCtx }

// Contexts returns the isolated Contexts created so far, in creation order.
func (b *Browser) Contexts() []*Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Context(nil), b.isolated...)
}

// NewContext requests an isolated browsing-data partition from the Browser
// Root, optionally proxied, and mirrors any global interception config into
// it (spec.md §3: "Global config is ... mirrored into every isolated
// Context on creation").
func (b *Browser) NewContext(ctx context.Context, proxyServer string) (*Context, error) {
	id, err := b.target.CreateBrowserContext(ctx, proxyServer)
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}

	c := &Context{ID: id, browser: b}

	b.mu.Lock()
	c.intercept = b.globalFetch
	b.isolated = append(b.isolated, c)
	b.mu.Unlock()

	return c, nil
}

// EnableFetch mirrors interception to every existing and future Context
// (spec.md §4.9 scope rules).
func (b *Browser) EnableFetch(ctx context.Context, cb intercept.Callback, patterns []intercept.RequestPattern) error {
	b.mu.Lock()
	b.globalFetch = interceptConfig{enabled: true, callback: cb, patterns: patterns}
	contexts := append([]*Context{b.defaultCtx}, b.isolated...)
	b.mu.Unlock()

	for _, c := range contexts {
		if err := c.EnableFetch(ctx, cb, patterns); err != nil {
			return err
		}
	}
	return nil
}

// DisableFetch clears interception everywhere (disable flows down, never up).
func (b *Browser) DisableFetch(ctx context.Context) error {
	b.mu.Lock()
	b.globalFetch = interceptConfig{}
	contexts := append([]*Context{b.defaultCtx}, b.isolated...)
	b.mu.Unlock()

	var firstErr error
	for _, c := range contexts {
		if err := c.DisableFetch(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// newAttachedPage creates a target in contextID and opens a fresh Message
// Channel to it: this is C8's createTarget, the one place event data
// (Target.targetCreated) and HTTP discovery data are joined (spec.md §4.8).
func (b *Browser) newAttachedPage(ctx context.Context, contextID, startURL string) (*Page, error) {
	evCh, tok := b.sess.Once("Target.targetCreated")
	defer tok.Release()

	targetID, err := b.target.CreateTarget(ctx, startURL, contextID)
	if err != nil {
		return nil, fmt.Errorf("creating target: %w", err)
	}

	select {
	case <-evCh:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for target-created event: %w", errdefs.ErrCancelled)
	}

	targets, err := b.disc.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving debugger url for target %s: %w", targetID, err)
	}
	for _, t := range targets {
		if t.ID == targetID {
			return newPage(b, targetID, contextID, t.WebSocketDebuggerURL, b.cfg.ConnectionTimeout, b.cfg.CommandTimeout, b.log)
		}
	}
	return nil, fmt.Errorf("target %s not found in discovery listing: %w", targetID, errdefs.ErrTargetNotFound)
}

func (b *Browser) closeTarget(ctx context.Context, targetID string) error {
	return b.target.CloseTarget(ctx, targetID)
}

func (b *Browser) disposeContext(ctx context.Context, contextID string) error {
	return b.target.DisposeBrowserContext(ctx, contextID)
}

// Close closes all isolated Contexts (LIFO), then the default Context, then
// disconnects the browser-level channel. A second Close is a no-op (I5).
func (b *Browser) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		isolated := b.isolated
		b.isolated = nil
		b.mu.Unlock()

		for i := len(isolated) - 1; i >= 0; i-- {
			if cerr := isolated[i].Close(ctx); cerr != nil && err == nil {
				err = cerr
			}
		}
		if cerr := b.defaultCtx.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
		if b.sup != nil {
			b.sup.Close()
		}
		if cerr := b.sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
