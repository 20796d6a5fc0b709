package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ByteAshen/cdpgo/config"
	"github.com/ByteAshen/cdpgo/intercept"
	"github.com/ByteAshen/cdpgo/internal/wstest"
)

// multiTargetHandler hands out incrementing target ids on Target.createTarget
// and records the order Target.closeTarget is called in, so a test can
// assert Context.Close tears pages down LIFO (I4).
func multiTargetHandler(closeOrder *[]string, mu *sync.Mutex) wstest.Handler {
	var n int
	return func(msg *wstest.Message, writeCh chan<- wstest.Message) {
		switch msg.Method {
		case "Target.createTarget":
			n++
			id := "target-" + strconv.Itoa(n)
			result, _ := json.Marshal(map[string]string{"targetId": id})
			writeCh <- wstest.Message{ID: msg.ID, Result: result}
			params, _ := json.Marshal(map[string]interface{}{
				"targetInfo": map[string]string{"targetId": id, "type": "page"},
			})
			writeCh <- wstest.Message{Method: "Target.targetCreated", Params: params}
		case "Target.closeTarget":
			var p struct {
				TargetID string `json:"targetId"`
			}
			_ = json.Unmarshal(msg.Params, &p)
			mu.Lock()
			*closeOrder = append(*closeOrder, p.TargetID)
			mu.Unlock()
			writeCh <- wstest.Message{ID: msg.ID, Result: []byte(`{}`)}
		default:
			writeCh <- wstest.Message{ID: msg.ID, Result: []byte(`{}`)}
		}
	}
}

func connectForContextTest(t *testing.T, closeOrder *[]string, mu *sync.Mutex) (*Browser, *wstest.Server) {
	t.Helper()
	ctx := context.Background()

	browserWS := wstest.New(t, "/browser", multiTargetHandler(closeOrder, mu))
	t.Cleanup(browserWS.Close)
	pageWS := wstest.New(t, "/page", pageHandler())
	t.Cleanup(pageWS.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Browser":              "cdpgo-mock/1.0",
			"webSocketDebuggerUrl": browserWS.WSURL("/browser"),
		})
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"id": "target-1", "type": "page", "webSocketDebuggerUrl": pageWS.WSURL("/page")},
			{"id": "target-2", "type": "page", "webSocketDebuggerUrl": pageWS.WSURL("/page")},
		})
	})
	discSrv := httptest.NewServer(mux)
	t.Cleanup(discSrv.Close)

	u, err := url.Parse(discSrv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg, err := config.New(config.WithHeartbeat(false, time.Second), config.WithAutoReconnect(false))
	require.NoError(t, err)

	b, err := Connect(ctx, u.Hostname(), port, nil, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close(ctx) })

	return b, pageWS
}

func TestContextClosesPagesLIFO(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var closeOrder []string
	var mu sync.Mutex

	b, _ := connectForContextTest(t, &closeOrder, &mu)
	c := b.DefaultContext()

	page1, err := c.NewPage(ctx, "about:blank")
	require.NoError(t, err)
	page2, err := c.NewPage(ctx, "about:blank")
	require.NoError(t, err)
	require.Equal(t, "target-1", page1.TargetID)
	require.Equal(t, "target-2", page2.TargetID)

	require.NoError(t, c.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"target-2", "target-1"}, closeOrder)
	require.False(t, page1.IsConnected())
	require.False(t, page2.IsConnected())
}

func TestContextEnableFetchMirrorsToExistingAndInheritedPages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var closeOrder []string
	var mu sync.Mutex

	b, pageWS := connectForContextTest(t, &closeOrder, &mu)
	c := b.DefaultContext()

	page1, err := c.NewPage(ctx, "about:blank")
	require.NoError(t, err)

	cb := func(req intercept.InterceptedRequest) intercept.Action { return intercept.Continue() }
	err = c.EnableFetch(ctx, cb, []intercept.RequestPattern{{URLGlob: "*"}})
	require.NoError(t, err)

	page2, err := c.NewPage(ctx, "about:blank")
	require.NoError(t, err)

	_ = page1
	_ = page2

	var enableCount int
	for _, m := range pageWS.Received() {
		if m.Method == "Fetch.enable" {
			enableCount++
		}
	}
	require.Equal(t, 2, enableCount, "both the pre-existing page and the newly attached page should have Fetch.enable issued on them")

	require.NoError(t, c.DisableFetch(ctx))
}
