// Package wstest provides an in-process mock engine server used by this
// module's own tests to drive the wire/session/supervisor/intercept layers
// without a real browser. Grounded on _teacher/tests/ws/server.go's
// httptest.NewServer + gorilla/websocket upgrader shape, adapted from CDP's
// cdproto/easyjson envelope to this module's plain session.Envelope (the
// generated per-domain bindings are out of SPEC_FULL.md's scope, so the
// mock engine speaks the same untyped JSON envelope the library itself
// does). The server side uses gorilla/websocket; the module's own client
// code (wire.Channel) never does — it is a hand-rolled RFC6455 client per
// spec.md §4.1/§4.2, and the two interoperate because both follow the same
// wire rules (client frames masked, server frames unmasked).
package wstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// Message mirrors session.Envelope's wire shape without importing the
// session package, to keep this test helper dependency-light.
type Message struct {
	ID        uint64          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *MessageError   `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// MessageError is the wire error shape.
type MessageError struct {
	Code    int32       `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Handler processes one inbound Message, optionally writing replies/events
// via writeCh. It runs on the connection's read goroutine.
type Handler func(msg *Message, writeCh chan<- Message)

// Server is a mock engine exposing one WS endpoint per registered path.
type Server struct {
	t       testing.TB
	mux     *http.ServeMux
	httpSrv *httptest.Server

	mu       sync.Mutex
	received []Message
}

// New starts a mock engine server with fn handling every message sent to
// path (default "/ws" if path is empty).
func New(t testing.TB, path string, fn Handler) *Server {
	t.Helper()
	if path == "" {
		path = "/ws"
	}

	s := &Server{t: t, mux: http.NewServeMux()}
	s.mux.Handle(path, s.wsHandler(fn))
	s.httpSrv = httptest.NewServer(s.mux)
	return s
}

// WSURL returns the ws://host:port/path URL for the given registered path.
func (s *Server) WSURL(path string) string {
	u, err := url.Parse(s.httpSrv.URL)
	require.NoError(s.t, err)
	return "ws://" + u.Host + path
}

// Close shuts the server down.
func (s *Server) Close() { s.httpSrv.Close() }

// Received returns every message the server has read so far, in arrival
// order.
func (s *Server) Received() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.received...)
}

func (s *Server) wsHandler(fn Handler) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		done := make(chan struct{})
		writeCh := make(chan Message, 64)

		go func() {
			for {
				select {
				case msg := <-writeCh:
					b, merr := json.Marshal(msg)
					if merr != nil {
						continue
					}
					if werr := conn.WriteMessage(websocket.TextMessage, b); werr != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, raw, rerr := conn.ReadMessage()
			if rerr != nil {
				close(done)
				return
			}
			var msg Message
			if jerr := json.Unmarshal(raw, &msg); jerr != nil {
				continue
			}
			s.mu.Lock()
			s.received = append(s.received, msg)
			s.mu.Unlock()
			if fn != nil {
				fn(&msg, writeCh)
			}
		}
	})
}

