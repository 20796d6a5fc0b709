package cdp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ByteAshen/cdpgo/internal/wstest"
	"github.com/ByteAshen/cdpgo/session"
	"github.com/ByteAshen/cdpgo/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dialSession(t *testing.T, srv *wstest.Server) *session.Session {
	t.Helper()
	ch, err := wire.Dial(context.Background(), srv.WSURL("/ws"), time.Second, nil)
	require.NoError(t, err)
	return session.New(ch, nil, time.Second)
}

func TestReplayReissuesEnablesInFirstRecordedOrder(t *testing.T) {
	t.Parallel()

	var order []string
	srv := wstest.New(t, "/ws", func(msg *wstest.Message, writeCh chan<- wstest.Message) {
		order = append(order, msg.Method)
		writeCh <- wstest.Message{ID: msg.ID, Result: []byte(`{}`)}
	})
	defer srv.Close()

	sess := dialSession(t, srv)
	defer sess.Close()

	surf := NewSurface(sess, time.Second)
	page := NewPage(surf)
	network := NewNetwork(surf)

	require.NoError(t, page.Enable(context.Background()))
	require.NoError(t, network.Enable(context.Background()))

	order = nil
	require.NoError(t, surf.Replay(context.Background()))
	require.Equal(t, []string{"Page.enable", "Network.enable"}, order)
}

func TestDisableRemovesFromReplaySet(t *testing.T) {
	t.Parallel()

	srv := wstest.New(t, "/ws", func(msg *wstest.Message, writeCh chan<- wstest.Message) {
		writeCh <- wstest.Message{ID: msg.ID, Result: []byte(`{}`)}
	})
	defer srv.Close()

	sess := dialSession(t, srv)
	defer sess.Close()

	surf := NewSurface(sess, time.Second)
	page := NewPage(surf)

	require.NoError(t, page.Enable(context.Background()))
	require.True(t, surf.IsEnabled("Page.enable"))
	require.NoError(t, page.Disable(context.Background()))
	require.False(t, surf.IsEnabled("Page.enable"))
}
