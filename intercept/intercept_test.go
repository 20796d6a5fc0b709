package intercept

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeFetchClient struct {
	mu         sync.Mutex
	enabled    bool
	handleAuth bool
	patterns   []RequestPattern

	continued []string
	fulfilled []string
	failed    []string
}

func (f *fakeFetchClient) EnableFetch(_ context.Context, patterns []RequestPattern, handleAuth bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = true
	f.handleAuth = handleAuth
	f.patterns = patterns
	return nil
}

func (f *fakeFetchClient) DisableFetch(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = false
	return nil
}

func (f *fakeFetchClient) ContinueRequest(_ context.Context, requestID string, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.continued = append(f.continued, requestID)
	return nil
}

func (f *fakeFetchClient) FulfillRequest(_ context.Context, requestID string, _ int, _ map[string]string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fulfilled = append(f.fulfilled, requestID)
	return nil
}

func (f *fakeFetchClient) FailRequest(_ context.Context, requestID string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, requestID)
	return nil
}

func TestFirstMatchingRuleWinsInRegistrationOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeFetchClient{}
	e := New(client, nil)

	_, err := e.Intercept(ctx, RequestPattern{URLGlob: "*/api/*"}, func(InterceptedRequest) Action {
		return Defer()
	})
	require.NoError(t, err)

	_, err = e.Intercept(ctx, RequestPattern{URLGlob: "*/api/*"}, func(InterceptedRequest) Action {
		return Fail("BlockedByClient")
	})
	require.NoError(t, err)

	e.HandleRequestPaused(ctx, InterceptedRequest{RequestID: "r1", URL: "https://example.com/api/x"})

	require.Equal(t, []string{"r1"}, client.failed)
	require.Empty(t, client.continued)
}

func TestUnmatchedRequestContinuesByDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeFetchClient{}
	e := New(client, nil)

	_, err := e.Intercept(ctx, RequestPattern{URLGlob: "*/api/*"}, func(InterceptedRequest) Action {
		return Fail("BlockedByClient")
	})
	require.NoError(t, err)

	e.HandleRequestPaused(ctx, InterceptedRequest{RequestID: "r2", URL: "https://example.com/static/app.js"})

	require.Equal(t, []string{"r2"}, client.continued)
	require.Empty(t, client.failed)
}

func TestObserveRuleNeverDecides(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeFetchClient{}
	e := New(client, nil)

	var observed []string
	_, err := e.Observe(ctx, RequestPattern{URLGlob: "*"}, func(req InterceptedRequest) {
		observed = append(observed, req.RequestID)
	})
	require.NoError(t, err)

	e.HandleRequestPaused(ctx, InterceptedRequest{RequestID: "r3", URL: "https://example.com/"})

	require.Equal(t, []string{"r3"}, observed)
	require.Equal(t, []string{"r3"}, client.continued)
}

func TestMockRequestFulfills(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeFetchClient{}
	e := New(client, nil)

	_, err := e.MockRequest(ctx, RequestPattern{URLGlob: "*/api/data"}, JSONResponse(`{"ok":true}`))
	require.NoError(t, err)

	e.HandleRequestPaused(ctx, InterceptedRequest{RequestID: "r4", URL: "https://example.com/api/data"})
	require.Equal(t, []string{"r4"}, client.fulfilled)
}

func TestRemoveHandleDisablesFetchWhenLastRuleGone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeFetchClient{}
	e := New(client, nil)

	h, err := e.Intercept(ctx, RequestPattern{URLGlob: "*"}, func(InterceptedRequest) Action {
		return Continue()
	})
	require.NoError(t, err)
	require.True(t, client.enabled)

	h.Remove()
	require.False(t, client.enabled)

	// idempotent
	h.Remove()
}

func TestPanickingCallbackIsTreatedAsDeferAndArbitrationContinues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeFetchClient{}
	e := New(client, nil)

	_, err := e.Intercept(ctx, RequestPattern{URLGlob: "*/api/*"}, func(InterceptedRequest) Action {
		panic("boom")
	})
	require.NoError(t, err)

	_, err = e.Intercept(ctx, RequestPattern{URLGlob: "*/api/*"}, func(InterceptedRequest) Action {
		return Fail("BlockedByClient")
	})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		e.HandleRequestPaused(ctx, InterceptedRequest{RequestID: "r5", URL: "https://example.com/api/x"})
	})

	require.Equal(t, []string{"r5"}, client.failed, "the second rule should still decide after the first rule's callback panics")
	require.Empty(t, client.continued)
}

func TestGlobCompilationIsCaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()
	re, err := compileGlob("*.PNG")
	require.NoError(t, err)
	require.True(t, re.MatchString("https://example.com/logo.png"))
	require.False(t, re.MatchString("https://example.com/logo.jpg"))
}
