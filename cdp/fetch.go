package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/ByteAshen/cdpgo/intercept"
	"github.com/ByteAshen/cdpgo/session"
)

// Fetch wraps the Fetch domain and implements intercept.FetchClient, the
// seam the Network Interception Engine (C9) uses to drive request pausing
// without knowing about the wire protocol.
type Fetch struct {
	s *Surface
}

// NewFetch binds a Fetch domain wrapper to s.
func NewFetch(s *Surface) *Fetch { return &Fetch{s: s} }

type fetchPattern struct {
	URLPattern   string `json:"urlPattern,omitempty"`
	ResourceType string `json:"resourceType,omitempty"`
	RequestStage string `json:"requestStage,omitempty"`
}

type enableFetchParams struct {
	Patterns           []fetchPattern `json:"patterns,omitempty"`
	HandleAuthRequests bool           `json:"handleAuthRequests,omitempty"`
}

func stageString(st intercept.Stage) string {
	if st == intercept.StageResponse {
		return "Response"
	}
	return "Request"
}

// EnableFetch implements intercept.FetchClient.
func (f *Fetch) EnableFetch(ctx context.Context, patterns []intercept.RequestPattern, handleAuth bool) error {
	wire := make([]fetchPattern, 0, len(patterns))
	for _, p := range patterns {
		wire = append(wire, fetchPattern{URLPattern: p.URLGlob, ResourceType: p.ResourceType, RequestStage: stageString(p.Stage)})
	}
	if err := f.s.Call(ctx, "Fetch.enable", enableFetchParams{Patterns: wire, HandleAuthRequests: handleAuth}, nil); err != nil {
		return err
	}
	f.s.recordEnable("Fetch.enable", func(ctx context.Context) error {
		return f.s.Call(ctx, "Fetch.enable", enableFetchParams{Patterns: wire, HandleAuthRequests: handleAuth}, nil)
	})
	return nil
}

// DisableFetch implements intercept.FetchClient.
func (f *Fetch) DisableFetch(ctx context.Context) error {
	if err := f.s.Call(ctx, "Fetch.disable", nil, nil); err != nil {
		return err
	}
	f.s.recordDisable("Fetch.enable")
	return nil
}

type headerEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func toHeaderEntries(h map[string]string) []headerEntry {
	if len(h) == 0 {
		return nil
	}
	out := make([]headerEntry, 0, len(h))
	for k, v := range h {
		out = append(out, headerEntry{Name: k, Value: v})
	}
	return out
}

type continueRequestParams struct {
	RequestID string        `json:"requestId"`
	Headers   []headerEntry `json:"headers,omitempty"`
}

// ContinueRequest implements intercept.FetchClient.
func (f *Fetch) ContinueRequest(ctx context.Context, requestID string, headerOverrides map[string]string) error {
	return f.s.Call(ctx, "Fetch.continueRequest", continueRequestParams{
		RequestID: requestID,
		Headers:   toHeaderEntries(headerOverrides),
	}, nil)
}

type fulfillRequestParams struct {
	RequestID       string        `json:"requestId"`
	ResponseCode    int           `json:"responseCode"`
	ResponseHeaders []headerEntry `json:"responseHeaders,omitempty"`
	Body            string        `json:"body,omitempty"`
}

// FulfillRequest implements intercept.FetchClient.
func (f *Fetch) FulfillRequest(ctx context.Context, requestID string, status int, headers map[string]string, body []byte) error {
	return f.s.Call(ctx, "Fetch.fulfillRequest", fulfillRequestParams{
		RequestID:       requestID,
		ResponseCode:    status,
		ResponseHeaders: toHeaderEntries(headers),
		Body:            base64.StdEncoding.EncodeToString(body),
	}, nil)
}

type failRequestParams struct {
	RequestID   string `json:"requestId"`
	ErrorReason string `json:"errorReason"`
}

// FailRequest implements intercept.FetchClient.
func (f *Fetch) FailRequest(ctx context.Context, requestID string, reason string) error {
	return f.s.Call(ctx, "Fetch.failRequest", failRequestParams{RequestID: requestID, ErrorReason: reason}, nil)
}

// requestPausedPayload is the Fetch.requestPaused event shape.
type requestPausedPayload struct {
	RequestID string `json:"requestId"`
	Request   struct {
		URL      string            `json:"url"`
		Method   string            `json:"method"`
		Headers  map[string]string `json:"headers"`
		PostData string            `json:"postData"`
	} `json:"request"`
	ResourceType string `json:"resourceType"`
}

// OnRequestPaused registers handler for Fetch.requestPaused.
func (f *Fetch) OnRequestPaused(handler session.Handler) *session.Token {
	return f.s.On("Fetch.requestPaused", handler)
}

// ParseRequestPaused decodes a Fetch.requestPaused event's params into the
// intercept engine's InterceptedRequest snapshot.
func ParseRequestPaused(data json.RawMessage) (intercept.InterceptedRequest, error) {
	var p requestPausedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return intercept.InterceptedRequest{}, err
	}
	return intercept.InterceptedRequest{
		RequestID:    p.RequestID,
		URL:          p.Request.URL,
		Method:       p.Request.Method,
		Headers:      p.Request.Headers,
		PostData:     p.Request.PostData,
		ResourceType: p.ResourceType,
	}, nil
}
