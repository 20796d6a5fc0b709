package wire

import (
	"bufio"
	"context"
	"crypto/sha1" //nolint:gosec // test-only handshake emulation
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// serverUnmaskedFrame builds a frame as a real engine would send it:
// unmasked, since only client→server frames are masked per the protocol.
func serverUnmaskedFrame(opcode Opcode, payload []byte) []byte {
	first := byte(0x80) | byte(opcode)
	n := len(payload)
	var hdr []byte
	switch {
	case n < 126:
		hdr = []byte{first, byte(n)}
	case n <= 65535:
		hdr = make([]byte, 4)
		hdr[0], hdr[1] = first, 126
		binary.BigEndian.PutUint16(hdr[2:], uint16(n))
	default:
		hdr = make([]byte, 10)
		hdr[0], hdr[1] = first, 127
		binary.BigEndian.PutUint64(hdr[2:], uint64(n))
	}
	return append(hdr, payload...)
}

// acceptAndHandshake performs the server side of the upgrade handshake on a
// freshly accepted connection, returning the buffered reader/writer to use
// for the rest of the test.
func acceptAndHandshake(t *testing.T, conn net.Conn) *bufio.ReadWriter {
	t.Helper()
	br := bufio.NewReader(conn)
	var key string
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "sec-websocket-key:") {
			key = strings.TrimSpace(line[len("sec-websocket-key:"):])
		}
	}
	require.NotEmpty(t, key)

	h := sha1.New() //nolint:gosec
	h.Write([]byte(key))
	h.Write([]byte(wsMagicGUID))
	accept := base64.StdEncoding.EncodeToString(h.Sum(nil))

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	_, err := conn.Write([]byte(resp))
	require.NoError(t, err)

	return bufio.NewReadWriter(br, bufio.NewWriter(conn))
}

func startEchoServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		rw := acceptAndHandshake(t, conn)
		for {
			frame, err := Decode(rw.Reader)
			if err != nil {
				return
			}
			if IsControl(frame.Opcode) {
				if frame.Opcode == OpClose {
					_, _ = rw.Write(serverUnmaskedFrame(OpClose, frame.Payload))
					_ = rw.Flush()
					return
				}
				continue
			}
			_, _ = rw.Write(serverUnmaskedFrame(frame.Opcode, frame.Payload))
			_ = rw.Flush()
		}
	}()

	return ln.Addr().String(), func() { _ = ln.Close() }
}

func TestChannelDialSendRecvClose(t *testing.T) {
	t.Parallel()
	addr, stop := startEchoServer(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := Dial(ctx, fmt.Sprintf("ws://%s/echo", addr), time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, StateConnected, ch.State())

	require.NoError(t, ch.Send(OpText, []byte(`{"hello":"world"}`)))

	msg, err := ch.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, OpText, msg.Opcode)
	require.Equal(t, `{"hello":"world"}`, string(msg.Data))

	require.NoError(t, ch.Close(1000, "done"))
	require.Equal(t, StateClosed, ch.State())

	// Close is idempotent.
	require.NoError(t, ch.Close(1000, "done"))
}

func TestChannelDialRejectsBadScheme(t *testing.T) {
	t.Parallel()
	_, err := Dial(context.Background(), "not-a-url://nope", time.Second, nil)
	require.Error(t, err)
}
