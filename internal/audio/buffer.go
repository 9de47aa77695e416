// Package audio holds the mono sample buffer produced by synthesis and the
// WAV/base64 codec used to put it on the wire.
package audio

// Buffer is an ordered sequence of float samples at a fixed rate. Each buffer
// is owned exclusively by the call that produced it and is never shared
// across requests.
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// DurationMS derives the playback duration from the actual sample count,
// rounded down to whole milliseconds.
func (b Buffer) DurationMS() int {
	if b.SampleRate <= 0 {
		return 0
	}
	return int(int64(len(b.Samples)) * 1000 / int64(b.SampleRate))
}
