// Package wire implements the frame codec and message channel (C1, C2): a
// hand-rolled client-side WebSocket-shaped framing and handshake, since the
// wire protocol itself is externally defined and spec.md scopes the codec
// as part of the core rather than a library concern to outsource.
//
// Grounded on _examples/original_source/src/net/WebSocket.cpp: the masking,
// fragmentation, and control-frame handling below follow that source's
// behavior, reshaped into idiomatic Go (io.Reader/io.Writer, not a raw
// socket wrapper).
package wire

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	mathrand "math/rand"
	"sync"

	"github.com/ByteAshen/cdpgo/errdefs"
)

// Opcode identifies a frame's payload interpretation, per the wire framing.
type Opcode uint8

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsControl reports whether op is a control opcode (close/ping/pong),
// which per the wire protocol are never fragmented and handled inline.
func IsControl(op Opcode) bool { return op&0x8 != 0 }

// MaxPayloadSize is the maximum application payload this codec accepts.
// Larger inbound frames are a protocol error per spec.md §4.1.
const MaxPayloadSize = 64 * 1024 * 1024 // 64 MiB

// Frame is one decoded wire frame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

// maskRand is the lazily-initialized, process-wide PRNG used to generate
// per-frame mask keys. The source uses a thread_local Mersenne Twister
// seeded from the OS entropy source on first use by a given thread; Go
// goroutines aren't OS threads, so the same lazy-init discipline is applied
// to one guarded package-level generator instead (see DESIGN.md).
var (
	maskRandOnce sync.Once
	maskRandMu   sync.Mutex
	maskRandSrc  *mathrand.Rand
)

func nextMaskKey() [4]byte {
	maskRandOnce.Do(func() {
		var seed int64
		if err := binary.Read(rand.Reader, binary.BigEndian, &seed); err != nil {
			seed = 0x5eed // crypto/rand failures are not expected; fall back deterministically.
		}
		maskRandSrc = mathrand.New(mathrand.NewSource(seed)) //nolint:gosec // masking, not a security boundary
	})
	maskRandMu.Lock()
	defer maskRandMu.Unlock()
	var key [4]byte
	_, _ = maskRandSrc.Read(key[:])
	return key
}

// Encode serializes opcode+payload as a single, unfragmented, masked frame.
// Like the C++ source, this client never splits an outgoing message into
// multiple frames — FIN is always set.
func Encode(opcode Opcode, payload []byte) []byte {
	mask := nextMaskKey()

	var header []byte
	first := byte(0x80) | byte(opcode) // FIN=1
	n := len(payload)

	switch {
	case n < 126:
		header = []byte{first, 0x80 | byte(n)}
	case n <= math.MaxUint16:
		header = make([]byte, 4)
		header[0] = first
		header[1] = 0x80 | 126
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = make([]byte, 10)
		header[0] = first
		header[1] = 0x80 | 127
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}

	out := make([]byte, 0, len(header)+4+n)
	out = append(out, header...)
	out = append(out, mask[:]...)
	masked := make([]byte, n)
	for i, b := range payload {
		masked[i] = b ^ mask[i%4]
	}
	out = append(out, masked...)
	return out
}

// Decode reads exactly one frame from r. It does not reassemble
// fragmentation; that is the message channel's job (wire/channel.go), since
// a fragmented message mixing text and binary continuations can only be
// detected with cross-frame state.
func Decode(r io.Reader) (Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, fmt.Errorf("reading frame header: %w", errdefs.ErrWireProtocol)
	}

	fin := hdr[0]&0x80 != 0
	rsv := hdr[0] & 0x70
	if rsv != 0 {
		return Frame{}, fmt.Errorf("reserved bits set: %w", errdefs.ErrWireProtocol)
	}
	opcode := Opcode(hdr[0] & 0x0f)

	masked := hdr[1]&0x80 != 0
	length := uint64(hdr[1] & 0x7f)

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, fmt.Errorf("reading extended length: %w", errdefs.ErrWireProtocol)
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, fmt.Errorf("reading extended length: %w", errdefs.ErrWireProtocol)
		}
		length = binary.BigEndian.Uint64(ext[:])
	}

	if length > MaxPayloadSize {
		return Frame{}, fmt.Errorf("frame of %d bytes exceeds %d byte cap: %w", length, MaxPayloadSize, errdefs.ErrWireProtocol)
	}

	var mask [4]byte
	if masked {
		if _, err := io.ReadFull(r, mask[:]); err != nil {
			return Frame{}, fmt.Errorf("reading mask key: %w", errdefs.ErrWireProtocol)
		}
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("reading payload: %w", errdefs.ErrWireProtocol)
		}
		if masked {
			for i := range payload {
				payload[i] ^= mask[i%4]
			}
		}
	}

	return Frame{Fin: fin, Opcode: opcode, Payload: payload}, nil
}
