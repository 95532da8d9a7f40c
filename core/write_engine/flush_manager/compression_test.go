package flushmanager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func compressiblePage(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 5)
	}
	return data
}

func TestEncodeDecodePage_RoundTrip(t *testing.T) {
	for _, ct := range []CompressionType{CompressionNone, CompressionSnappy, CompressionLZ4} {
		data := compressiblePage(512)
		encoded, err := encodePage(data, ct)
		require.NoError(t, err)

		decoded := make([]byte, len(data))
		require.NoError(t, decodePage(encoded, decoded))
		require.Equal(t, data, decoded)
	}
}

func TestEncodeDecodePage_IncompressibleFallsBackToRaw(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i) // too short for compression to clear minCompressionSavings
	}
	encoded, err := encodePage(data, CompressionSnappy)
	require.NoError(t, err)
	require.Equal(t, CompressionType(encoded[2]), CompressionNone)

	decoded := make([]byte, len(data))
	require.NoError(t, decodePage(encoded, decoded))
	require.Equal(t, data, decoded)
}

func TestDecodePage_BadMagicIsRejected(t *testing.T) {
	data := compressiblePage(128)
	encoded, err := encodePage(data, CompressionNone)
	require.NoError(t, err)
	encoded[0] = 0xFF
	encoded[1] = 0xFF

	decoded := make([]byte, len(data))
	err = decodePage(encoded, decoded)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDecodePage_CorruptedPayloadFailsChecksum(t *testing.T) {
	data := compressiblePage(128)
	encoded, err := encodePage(data, CompressionNone)
	require.NoError(t, err)
	encoded[compressedHeaderSize] ^= 0xFF // flip every bit of the first payload byte

	decoded := make([]byte, len(data))
	err = decodePage(encoded, decoded)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}
