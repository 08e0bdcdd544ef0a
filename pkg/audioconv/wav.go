package audioconv

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV writes mono float32 PCM as 16-bit WAV.
func EncodeWAV(w io.WriteSeeker, pcm []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)

	data := make([]int, len(pcm))
	for i, v := range pcm {
		data[i] = int(math.Round(clamp(float64(v), -1, 1) * math.MaxInt16))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return enc.Close()
}
