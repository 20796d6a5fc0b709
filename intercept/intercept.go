// Package intercept implements the network interception engine (C9):
// pattern-matched request/response rules with ordered first-decision
// arbitration, grounded on
// _examples/original_source/include/cdp/highlevel/NetworkInterceptor.hpp
// and its .cpp counterpart.
package intercept

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/ByteAshen/cdpgo/errdefs"
	"github.com/ByteAshen/cdpgo/internal/xlog"
)

// Stage is the point in a request's lifecycle a rule fires at.
type Stage int

const (
	StageRequest Stage = iota
	StageResponse
)

// RequestPattern is one URL-glob + resource-type + stage filter, matching
// NetworkInterceptor's RequestPattern.
type RequestPattern struct {
	URLGlob      string
	ResourceType string // empty matches any resource type
	Stage        Stage
}

// InterceptedRequest is the data handed to a callback for one paused request.
type InterceptedRequest struct {
	RequestID    string
	URL          string
	Method       string
	Headers      map[string]string
	PostData     string
	ResourceType string
}

// ActionKind is the tagged-variant discriminant for Action.
type ActionKind int

const (
	ActionContinue ActionKind = iota
	ActionFulfill
	ActionFail
	ActionDefer
)

// Action is the tagged-variant InterceptAction from NetworkInterceptor.hpp:
// exactly one of Continue, Fulfill, Fail or Defer.
type Action struct {
	Kind ActionKind

	// ActionContinue
	HeaderOverrides map[string]string

	// ActionFulfill
	Status  int
	Headers map[string]string
	Body    []byte

	// ActionFail
	Reason string
}

// Continue lets the request proceed unmodified.
func Continue() Action { return Action{Kind: ActionContinue} }

// ContinueWithHeaders lets the request proceed with the given headers merged in.
func ContinueWithHeaders(headers map[string]string) Action {
	return Action{Kind: ActionContinue, HeaderOverrides: headers}
}

// Fulfill short-circuits the request with a synthetic response.
func Fulfill(status int, headers map[string]string, body []byte) Action {
	return Action{Kind: ActionFulfill, Status: status, Headers: headers, Body: body}
}

// Fail aborts the request with the given network-error reason.
func Fail(reason string) Action {
	return Action{Kind: ActionFail, Reason: reason}
}

// Defer declines to decide, deferring to the next matching rule.
func Defer() Action { return Action{Kind: ActionDefer} }

// Callback decides what happens to a paused request.
type Callback func(InterceptedRequest) Action

// ObserveCallback is invoked for observe-only rules, which never decide.
type ObserveCallback func(InterceptedRequest)

// FetchClient is the subset of the Fetch domain the engine drives. The
// concrete implementation is wired in from the cdp package at the page's
// attach time; the engine itself never talks to wire.Channel directly.
type FetchClient interface {
	EnableFetch(ctx context.Context, patterns []RequestPattern, handleAuth bool) error
	DisableFetch(ctx context.Context) error
	ContinueRequest(ctx context.Context, requestID string, headerOverrides map[string]string) error
	FulfillRequest(ctx context.Context, requestID string, status int, headers map[string]string, body []byte) error
	FailRequest(ctx context.Context, requestID string, reason string) error
}

type rule struct {
	id        uuid.UUID
	pattern   RequestPattern
	re        *regexp.Regexp
	callback  Callback
	observe   bool
	needsAuth bool
}

// Handle is the move-only token returned by Intercept/Observe; Remove is
// idempotent, matching the session.Token convention used elsewhere.
type Handle struct {
	engine *Engine
	id     uuid.UUID
	once   sync.Once
}

// Remove deregisters the rule. Safe to call more than once and safe on a
// zero-value Handle.
func (h *Handle) Remove() {
	if h == nil || h.engine == nil {
		return
	}
	h.once.Do(func() {
		h.engine.removeRule(h.id)
	})
}

// Engine is the network interception engine: an ordered rule set, arbitrated
// per request in registration order, with the Fetch domain enabled lazily
// the first time a rule is added and disabled once the last rule is removed.
type Engine struct {
	client FetchClient
	log    *xlog.Logger

	mu    sync.Mutex
	rules []*rule // registration order
}

// New builds an Engine bound to the Fetch domain surface of one page.
func New(client FetchClient, log *xlog.Logger) *Engine {
	if log == nil {
		log = xlog.Null()
	}
	return &Engine{client: client, log: log.WithCategory("intercept")}
}

// Intercept registers a decision callback for requests matching pattern.
func (e *Engine) Intercept(ctx context.Context, pattern RequestPattern, cb Callback) (*Handle, error) {
	return e.register(ctx, pattern, cb, nil, false)
}

// InterceptAuth is like Intercept but additionally declares that this rule's
// traffic requires Fetch's handleAuthRequests flag (NetworkInterceptor.hpp's
// authRequired rules pass handleAuthRequests=true on enable).
func (e *Engine) InterceptAuth(ctx context.Context, pattern RequestPattern, cb Callback) (*Handle, error) {
	return e.registerAuth(ctx, pattern, cb)
}

// Observe registers a rule that is always notified but never decides: it
// runs the callback then falls through as if Defer had been returned.
func (e *Engine) Observe(ctx context.Context, pattern RequestPattern, cb ObserveCallback) (*Handle, error) {
	wrapped := func(req InterceptedRequest) Action {
		cb(req)
		return Defer()
	}
	return e.register(ctx, pattern, wrapped, nil, true)
}

func (e *Engine) register(ctx context.Context, pattern RequestPattern, cb Callback, _ interface{}, observe bool) (*Handle, error) {
	re, err := compileGlob(pattern.URLGlob)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern.URLGlob, errdefs.ErrInvalidConfig)
	}
	r := &rule{id: uuid.New(), pattern: pattern, re: re, callback: cb, observe: observe}
	return e.addRule(ctx, r)
}

func (e *Engine) registerAuth(ctx context.Context, pattern RequestPattern, cb Callback) (*Handle, error) {
	re, err := compileGlob(pattern.URLGlob)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern.URLGlob, errdefs.ErrInvalidConfig)
	}
	r := &rule{id: uuid.New(), pattern: pattern, re: re, callback: cb, needsAuth: true}
	return e.addRule(ctx, r)
}

func (e *Engine) addRule(ctx context.Context, r *rule) (*Handle, error) {
	e.mu.Lock()
	e.rules = append(e.rules, r)
	patterns, handleAuth := e.snapshotLocked()
	e.mu.Unlock()

	if err := e.client.EnableFetch(ctx, patterns, handleAuth); err != nil {
		e.removeRule(r.id)
		return nil, err
	}
	return &Handle{engine: e, id: r.id}, nil
}

func (e *Engine) removeRule(id uuid.UUID) {
	e.mu.Lock()
	for i, r := range e.rules {
		if r.id == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			break
		}
	}
	remaining := len(e.rules)
	patterns, handleAuth := e.snapshotLocked()
	e.mu.Unlock()

	ctx := context.Background()
	if remaining == 0 {
		_ = e.client.DisableFetch(ctx)
		return
	}
	_ = e.client.EnableFetch(ctx, patterns, handleAuth)
}

// snapshotLocked must be called with e.mu held.
func (e *Engine) snapshotLocked() ([]RequestPattern, bool) {
	patterns := make([]RequestPattern, 0, len(e.rules))
	handleAuth := false
	for _, r := range e.rules {
		patterns = append(patterns, r.pattern)
		if r.needsAuth {
			handleAuth = true
		}
	}
	return patterns, handleAuth
}

// Clear removes every registered rule and disables the Fetch domain.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	e.rules = nil
	e.mu.Unlock()
	return e.client.DisableFetch(ctx)
}

// HandleRequestPaused is the dispatch entry point, wired to the engine's
// owning page's Fetch.requestPaused event handler. It walks matching rules
// in registration order (NetworkInterceptor::handleRequestPaused's
// first-decision arbitration): the first rule whose callback returns
// anything other than Defer wins; observe-only rules always fall through.
// If nothing decides, the request continues unmodified.
func (e *Engine) HandleRequestPaused(ctx context.Context, req InterceptedRequest) {
	e.mu.Lock()
	matching := make([]*rule, 0, len(e.rules))
	for _, r := range e.rules {
		if r.pattern.ResourceType != "" && r.pattern.ResourceType != req.ResourceType {
			continue
		}
		if r.re.MatchString(req.URL) {
			matching = append(matching, r)
		}
	}
	e.mu.Unlock()

	for _, r := range matching {
		action := e.invokeCallback(r, req)
		if action.Kind == ActionDefer {
			continue
		}
		if action.Kind == ActionContinue && len(action.HeaderOverrides) > 0 {
			merged := make(map[string]string, len(req.Headers)+len(action.HeaderOverrides))
			for k, v := range req.Headers {
				merged[k] = v
			}
			for k, v := range action.HeaderOverrides {
				merged[k] = v
			}
			action.HeaderOverrides = merged
		}
		e.apply(ctx, req.RequestID, action)
		return
	}
	e.apply(ctx, req.RequestID, Continue())
}

// invokeCallback runs a single rule's callback with the same exception
// safety as NetworkInterceptor::handleRequestPaused's per-rule try/catch: a
// panicking callback is logged and treated as Defer, so arbitration always
// falls through to the next rule and HandleRequestPaused always applies a
// final action.
func (e *Engine) invokeCallback(r *rule, req InterceptedRequest) (action Action) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Errorf("intercept callback for rule %s panicked: %v", r.id, rec)
			action = Defer()
		}
	}()
	return r.callback(req)
}

func (e *Engine) apply(ctx context.Context, requestID string, action Action) {
	switch action.Kind {
	case ActionContinue:
		_ = e.client.ContinueRequest(ctx, requestID, action.HeaderOverrides)
	case ActionFulfill:
		_ = e.client.FulfillRequest(ctx, requestID, action.Status, action.Headers, action.Body)
	case ActionFail:
		_ = e.client.FailRequest(ctx, requestID, action.Reason)
	default:
		_ = e.client.ContinueRequest(ctx, requestID, nil)
	}
}
