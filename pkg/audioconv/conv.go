// Package audioconv decodes wav, mp3 and ogg (vorbis or opus) audio into
// 16 kHz mono float32 PCM, the input format of the speech recognisers, and
// encodes PCM back to WAV for upload.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const TargetRate = 16000

var ErrUnsupported = errors.New("unsupported audio format")

type Options struct {
	MaxSamples int
}

// DecodeFile picks a decoder from the file extension, sniffing the header
// when the extension is unknown.
func DecodeFile(ctx context.Context, path string, opt Options) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	kind := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if kind != "wav" && kind != "mp3" && kind != "ogg" && kind != "oga" && kind != "opus" {
		kind, err = sniff(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	pcm, err := Decode(f, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if opt.MaxSamples > 0 && len(pcm) > opt.MaxSamples {
		pcm = pcm[:opt.MaxSamples]
	}
	return pcm, nil
}

func sniff(f io.ReadSeeker) (string, error) {
	magic, _ := bufio.NewReader(f).Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	switch string(magic) {
	case "RIFF":
		return "wav", nil
	case "OggS":
		return "ogg", nil
	case "ID3\x03", "ID3\x04":
		return "mp3", nil
	}
	return "", ErrUnsupported
}

// Decode reads a whole stream of the given kind (wav, mp3, ogg, oga, opus).
func Decode(r io.ReadSeeker, kind string) ([]float32, error) {
	switch kind {
	case "wav":
		return decodeWAV(r)
	case "mp3":
		return decodeMP3(r)
	case "opus":
		return decodeOggOpus(r)
	case "ogg", "oga":
		pcm, err := decodeOggVorbis(r)
		if err == nil {
			return pcm, nil
		}
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		pcm, opusErr := decodeOggOpus(r)
		if opusErr != nil {
			return nil, fmt.Errorf("ogg is neither vorbis (%v) nor opus (%w)", err, opusErr)
		}
		return pcm, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
}

func decodeWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	x := intSliceToFloat32(pb.Data, bd)

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	return toTarget(x, ch, sr), nil
}

func decodeMP3(r io.Reader) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	// go-mp3 always emits interleaved stereo
	return toTarget(int16SliceToFloat32(ints), 2, sr), nil
}

func decodeOggVorbis(r io.Reader) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	return toTarget(pcm, format.Channels, format.SampleRate), nil
}

func decodeOggOpus(r io.ReadSeeker) ([]float32, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	ch := max(dec.ChannelCount(), 1)

	// int16 PCM at 48 kHz, half a second per read
	var (
		pcm48 []float32
		buf   = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf) // samples per channel
		if n > 0 {
			pcm48 = append(pcm48, int16SliceToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if len(pcm48) == 0 {
		return nil, errors.New("empty opus stream")
	}
	return toTarget(pcm48, ch, 48000), nil
}

func toTarget(x []float32, channels, rate int) []float32 {
	return resampleLinear(downmixInterleaved(x, channels), rate, TargetRate)
}

func intSliceToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func int16SliceToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(x, hi))
}
