package cdp

import (
	"context"
	"encoding/json"
)

// Runtime wraps the Runtime domain's commands.
type Runtime struct {
	s *Surface
}

// NewRuntime binds a Runtime domain wrapper to s.
func NewRuntime(s *Surface) *Runtime { return &Runtime{s: s} }

// Enable turns on Runtime domain events.
func (r *Runtime) Enable(ctx context.Context) error {
	if err := r.s.Call(ctx, "Runtime.enable", nil, nil); err != nil {
		return err
	}
	r.s.recordEnable("Runtime.enable", func(ctx context.Context) error {
		return r.s.Call(ctx, "Runtime.enable", nil, nil)
	})
	return nil
}

// Disable turns off Runtime domain events.
func (r *Runtime) Disable(ctx context.Context) error {
	if err := r.s.Call(ctx, "Runtime.disable", nil, nil); err != nil {
		return err
	}
	r.s.recordDisable("Runtime.enable")
	return nil
}

type evaluateParams struct {
	Expression    string `json:"expression"`
	ReturnByValue bool   `json:"returnByValue"`
	AwaitPromise  bool   `json:"awaitPromise"`
}

// RemoteObject is a JS value handle or inline value, per Runtime.evaluate's result shape.
type RemoteObject struct {
	Type        string          `json:"type"`
	Value       json.RawMessage `json:"value,omitempty"`
	Description string          `json:"description,omitempty"`
	ObjectID    string          `json:"objectId,omitempty"`
}

type evaluateResult struct {
	Result           RemoteObject     `json:"result"`
	ExceptionDetails *json.RawMessage `json:"exceptionDetails,omitempty"`
}

// Evaluate runs expression in the page's main world.
func (r *Runtime) Evaluate(ctx context.Context, expression string, awaitPromise bool) (RemoteObject, error) {
	var res evaluateResult
	err := r.s.Call(ctx, "Runtime.evaluate", evaluateParams{
		Expression:    expression,
		ReturnByValue: true,
		AwaitPromise:  awaitPromise,
	}, &res)
	if err != nil {
		return RemoteObject{}, err
	}
	return res.Result, nil
}
