package intercept

import "context"

// MockResponse is a builder for synthetic Fulfill responses, supplementing
// spec.md's distilled surface with the convenience constructors
// NetworkInterceptor.hpp exposes (JSONResponse, HTMLResponse, etc).
type MockResponse struct {
	status  int
	headers map[string]string
	body    []byte
}

// JSONResponse builds a 200 application/json response.
func JSONResponse(body string) MockResponse {
	return MockResponse{status: 200, headers: map[string]string{}, body: []byte(body)}.WithContentType("application/json")
}

// HTMLResponse builds a 200 text/html response.
func HTMLResponse(body string) MockResponse {
	return MockResponse{status: 200, headers: map[string]string{}, body: []byte(body)}.WithContentType("text/html")
}

// TextResponse builds a 200 text/plain response.
func TextResponse(body string) MockResponse {
	return MockResponse{status: 200, headers: map[string]string{}, body: []byte(body)}.WithContentType("text/plain")
}

// NotFoundResponse builds an empty-body 404.
func NotFoundResponse() MockResponse {
	return MockResponse{status: 404, headers: map[string]string{}}
}

// RedirectResponse builds a 302 redirect to location.
func RedirectResponse(location string) MockResponse {
	return MockResponse{status: 302, headers: map[string]string{"Location": location}}
}

// WithHeader returns a copy of m with the header set.
func (m MockResponse) WithHeader(key, value string) MockResponse {
	h := make(map[string]string, len(m.headers)+1)
	for k, v := range m.headers {
		h[k] = v
	}
	h[key] = value
	m.headers = h
	return m
}

// WithContentType is WithHeader("Content-Type", ct).
func (m MockResponse) WithContentType(ct string) MockResponse {
	return m.WithHeader("Content-Type", ct)
}

// WithStatus overrides the response status code.
func (m MockResponse) WithStatus(status int) MockResponse {
	m.status = status
	return m
}

func (m MockResponse) action() Action {
	return Fulfill(m.status, m.headers, m.body)
}

// MockRequest registers a rule that unconditionally fulfills every request
// matching pattern with resp, regardless of the request's own content.
func (e *Engine) MockRequest(ctx context.Context, pattern RequestPattern, resp MockResponse) (*Handle, error) {
	return e.Intercept(ctx, pattern, func(InterceptedRequest) Action {
		return resp.action()
	})
}

// BlockResourceType fails every request of the given resource type
// (e.g. "Image", "Stylesheet", "Font") with a blocked-by-client reason.
func (e *Engine) BlockResourceType(ctx context.Context, resourceType string) (*Handle, error) {
	return e.Intercept(ctx, RequestPattern{URLGlob: "*", ResourceType: resourceType}, func(InterceptedRequest) Action {
		return Fail("BlockedByClient")
	})
}

// BlockResource fails every request whose URL matches the glob.
func (e *Engine) BlockResource(ctx context.Context, urlGlob string) (*Handle, error) {
	return e.Intercept(ctx, RequestPattern{URLGlob: urlGlob}, func(InterceptedRequest) Action {
		return Fail("BlockedByClient")
	})
}

// ModifyRequestHeaders lets every request matching the glob through with the
// given headers merged into its outgoing request.
func (e *Engine) ModifyRequestHeaders(ctx context.Context, urlGlob string, headers map[string]string) (*Handle, error) {
	return e.Intercept(ctx, RequestPattern{URLGlob: urlGlob}, func(InterceptedRequest) Action {
		return ContinueWithHeaders(headers)
	})
}
