package audio

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// EncodeWAV serializes a buffer into a single-channel 16-bit PCM WAV
// container at the buffer's sample rate.
func EncodeWAV(buf Buffer) ([]byte, error) {
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", buf.SampleRate)
	}

	pcm := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: buf.SampleRate},
		SourceBitDepth: wavBitDepth,
		Data:           make([]int, len(buf.Samples)),
	}
	for i, s := range buf.Samples {
		pcm.Data[i] = sampleToInt16(s)
	}

	// wav.Encoder backpatches chunk sizes on Close, so it needs a WriteSeeker.
	sink := &seekBuffer{}
	enc := wav.NewEncoder(sink, buf.SampleRate, wavBitDepth, 1, 1)
	if err := enc.Write(pcm); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return sink.data, nil
}

// EncodeBase64WAV encodes the buffer as WAV and wraps it in standard base64
// for JSON transport.
func EncodeBase64WAV(buf Buffer) (string, error) {
	raw, err := EncodeWAV(buf)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeWAV parses a mono 16-bit WAV payload back into a buffer. Used by the
// client and by round-trip tests; the service itself only encodes.
func DecodeWAV(data []byte) (Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("decode wav: %w", err)
	}
	if pcm.Format == nil {
		return Buffer{}, fmt.Errorf("wav payload missing format chunk")
	}
	if pcm.Format.NumChannels != 1 {
		return Buffer{}, fmt.Errorf("expected mono wav, got %d channels", pcm.Format.NumChannels)
	}

	buf := Buffer{
		Samples:    make([]float64, len(pcm.Data)),
		SampleRate: pcm.Format.SampleRate,
	}
	for i, s := range pcm.Data {
		buf.Samples[i] = float64(s) / math.MaxInt16
	}
	return buf, nil
}

// DecodeBase64WAV reverses EncodeBase64WAV.
func DecodeBase64WAV(payload string) (Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Buffer{}, fmt.Errorf("decode base64: %w", err)
	}
	return DecodeWAV(raw)
}

func sampleToInt16(s float64) int {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int(math.Round(s * math.MaxInt16))
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.data) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = b.pos + int(offset)
	case io.SeekEnd:
		next = len(b.data) + int(offset)
	default:
		return 0, fmt.Errorf("unsupported whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek before start of buffer")
	}
	b.pos = next
	return int64(next), nil
}
