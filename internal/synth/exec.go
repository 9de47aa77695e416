package synth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/sonalabs/sona-tts/internal/audio"
)

// execSynth runs the real model integration as a subprocess speaking JSON on
// stdio: one request object on stdin, audio frames as base64 PCM lines on
// stdout. One invocation per request, serialized.
type execSynth struct {
	cmd    []string
	device string
	mu     sync.Mutex
}

type execRequest struct {
	Text             string        `json:"text"`
	Speaker          int           `json:"speaker"`
	MaxAudioLengthMS int           `json:"max_audio_length_ms"`
	SampleRate       int           `json:"sample_rate"`
	Device           string        `json:"device"`
	Context          []execSegment `json:"context,omitempty"`
}

type execSegment struct {
	Text    string `json:"text"`
	Speaker int    `json:"speaker"`
}

type execFrame struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExec parses the runner command and verifies the binary is reachable, so
// an unconfigured or missing integration fails at resolution time and the
// cascade can advance.
func NewExec(command, device string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse runner command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("runner command is empty")
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("runner binary not found: %w", err)
	}
	return &execSynth{cmd: args, device: device}, nil
}

func (e *execSynth) Generate(ctx context.Context, req Request) (audio.Buffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload := execRequest{
		Text:             req.Text,
		Speaker:          req.Speaker,
		MaxAudioLengthMS: req.MaxAudioLengthMS,
		SampleRate:       SampleRate,
		Device:           e.device,
	}
	for _, seg := range req.Context {
		payload.Context = append(payload.Context, execSegment{Text: seg.Text, Speaker: seg.Speaker})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("encode runner request: %w", err)
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(data)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return audio.Buffer{}, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return audio.Buffer{}, fmt.Errorf("start runner: %w", err)
	}

	bound := boundedSampleCount(req.MaxAudioLengthMS)
	samples := make([]float64, 0, bound)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var frame execFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			cmd.Wait()
			return audio.Buffer{}, fmt.Errorf("decode runner frame: %w", err)
		}
		pcm, err := base64.StdEncoding.DecodeString(frame.PCMBase64)
		if err != nil {
			cmd.Wait()
			return audio.Buffer{}, fmt.Errorf("decode runner pcm: %w", err)
		}
		if len(pcm)%2 != 0 {
			cmd.Wait()
			return audio.Buffer{}, fmt.Errorf("runner pcm payload not aligned")
		}
		for i := 0; i+1 < len(pcm); i += 2 {
			s := int16(binary.LittleEndian.Uint16(pcm[i:]))
			samples = append(samples, float64(s)/math.MaxInt16)
		}
		if frame.Final {
			break
		}
	}
	if err := cmd.Wait(); err != nil {
		return audio.Buffer{}, fmt.Errorf("runner failed: %w: %s", err, stderr.String())
	}
	if err := scanner.Err(); err != nil {
		return audio.Buffer{}, fmt.Errorf("read runner output: %w", err)
	}

	if len(samples) > bound {
		samples = samples[:bound]
	}
	return audio.Buffer{Samples: samples, SampleRate: SampleRate}, nil
}

func (e *execSynth) SampleRate() int { return SampleRate }

func (e *execSynth) Tier() string { return TierProper }
