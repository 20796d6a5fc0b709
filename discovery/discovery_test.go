package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVersionAndTargets(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(VersionInfo{
			Browser:              "cdpgo-mock/1.0",
			WebSocketDebuggerURL: "ws://127.0.0.1:1/devtools/browser/abc",
		})
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]TargetInfo{
			{ID: "t1", Type: "page", URL: "about:blank", WebSocketDebuggerURL: "ws://127.0.0.1:1/devtools/page/t1"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	c := New(u.Hostname(), port, time.Second)

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "cdpgo-mock/1.0", v.Browser)

	targets, err := c.Targets(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, "t1", targets[0].ID)
}

func TestNonOKStatusIsAnError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	c := New(u.Hostname(), port, time.Second)
	_, err = c.Version(context.Background())
	require.Error(t, err)
}
