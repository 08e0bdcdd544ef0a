package audioconv

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(rate int, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return out
}

func writeWAV(t *testing.T, name string, pcm []float32, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, EncodeWAV(f, pcm, rate))
	require.NoError(t, f.Close())
	return path
}

func TestWAVAtTargetRateKeepsSamples(t *testing.T) {
	pcm := sine(TargetRate, 1600)
	path := writeWAV(t, "tone.wav", pcm, TargetRate)

	got, err := DecodeFile(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, got, len(pcm))
	for i := range pcm {
		assert.InDelta(t, pcm[i], got[i], 1e-3)
	}
}

func TestWAVIsResampled(t *testing.T) {
	path := writeWAV(t, "tone.bin", sine(48000, 4800), 48000)

	got, err := DecodeFile(context.Background(), path, Options{MaxSamples: 1000})
	require.NoError(t, err)
	assert.Len(t, got, 1000)

	all, err := DecodeFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Len(t, all, 1600)
}

func TestDecodeRejectsUnknownData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o600))

	_, err := DecodeFile(context.Background(), path, Options{})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Decode(bytes.NewReader(nil), "flac")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestResampleLinear(t *testing.T) {
	in := []float32{0, 1, 0, -1}
	assert.Equal(t, in, resampleLinear(in, 16000, 16000))
	assert.Len(t, resampleLinear(in, 32000, 16000), 2)
	assert.Equal(t, []float32{0.5}, downmixInterleaved([]float32{0, 1}, 2))
}
