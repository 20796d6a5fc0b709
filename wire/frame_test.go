package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	sizes := []int{0, 1, 125, 126, 65535, 65536}
	for _, n := range sizes {
		n := n
		t.Run("", func(t *testing.T) {
			t.Parallel()
			payload := bytes.Repeat([]byte{0xAB}, n)
			encoded := Encode(OpBinary, payload)

			decoded, err := Decode(bytes.NewReader(encoded))
			require.NoError(t, err)
			require.True(t, decoded.Fin)
			require.Equal(t, OpBinary, decoded.Opcode)
			require.Equal(t, payload, decoded.Payload)
		})
	}
}

func TestEncodeMasksEachFrameDifferently(t *testing.T) {
	t.Parallel()

	payload := []byte("identical payload")
	a := Encode(OpText, payload)
	b := Encode(OpText, payload)

	// Mask keys are drawn from a PRNG so two encodes of the same payload
	// should not usually produce identical wire bytes (flaky only with
	// astronomically unlikely PRNG collision).
	require.NotEqual(t, a, b)

	da, err := Decode(bytes.NewReader(a))
	require.NoError(t, err)
	db, err := Decode(bytes.NewReader(b))
	require.NoError(t, err)
	require.Equal(t, payload, da.Payload)
	require.Equal(t, payload, db.Payload)
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	t.Parallel()

	// Hand-build a header claiming a too-large 64-bit length without
	// supplying the payload; Decode must reject before trying to read it.
	header := []byte{0x82, 0xFF} // FIN+binary, masked, length=127 (extended 8-byte)
	var ext [8]byte
	ext[0] = 0x01 // high byte set => far larger than MaxPayloadSize
	buf := append(append([]byte{}, header...), ext[:]...)

	_, err := Decode(bytes.NewReader(buf))
	require.Error(t, err)
}

func TestDecodeRejectsReservedBits(t *testing.T) {
	t.Parallel()

	buf := []byte{0x90, 0x00} // RSV3 set, FIN set, opcode continuation, no mask, len 0
	_, err := Decode(bytes.NewReader(buf))
	require.Error(t, err)
}
