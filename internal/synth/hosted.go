package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sonalabs/sona-tts/internal/audio"
)

// hostedSynth generates through a hosted inference endpoint speaking the same
// wire contract as this service. Construction probes the endpoint so an
// unreachable host fails at resolution time and the cascade can advance.
type hostedSynth struct {
	endpoint string
	model    string
	device   string
	client   *http.Client
}

type hostedRequest struct {
	Text             string        `json:"text"`
	Speaker          int           `json:"speaker"`
	MaxAudioLengthMS int           `json:"max_audio_length_ms"`
	Model            string        `json:"model,omitempty"`
	Device           string        `json:"device,omitempty"`
	Context          []execSegment `json:"context,omitempty"`
}

type hostedResponse struct {
	AudioBase64 string `json:"audio_base64"`
	SampleRate  int    `json:"sample_rate"`
	Detail      string `json:"detail"`
}

// NewHosted builds the hosted tier client and verifies the endpoint answers
// its health check.
func NewHosted(ctx context.Context, endpoint, model, device string, timeout time.Duration) (Synthesizer, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("hosted endpoint not configured")
	}
	h := &hostedSynth{
		endpoint: endpoint,
		model:    model,
		device:   device,
		client:   &http.Client{Timeout: timeout},
	}
	if err := h.probe(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *hostedSynth) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("build hosted probe: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("hosted endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hosted endpoint health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (h *hostedSynth) Generate(ctx context.Context, req Request) (audio.Buffer, error) {
	payload := hostedRequest{
		Text:             req.Text,
		Speaker:          req.Speaker,
		MaxAudioLengthMS: req.MaxAudioLengthMS,
		Model:            h.model,
		Device:           h.device,
	}
	for _, seg := range req.Context {
		payload.Context = append(payload.Context, execSegment{Text: seg.Text, Speaker: seg.Speaker})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("encode hosted request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/generate", bytes.NewReader(body))
	if err != nil {
		return audio.Buffer{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("hosted generate call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024*1024))
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("read hosted response: %w", err)
	}
	var decoded hostedResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return audio.Buffer{}, fmt.Errorf("decode hosted response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Detail != "" {
			return audio.Buffer{}, fmt.Errorf("hosted generate returned status %d: %s", resp.StatusCode, decoded.Detail)
		}
		return audio.Buffer{}, fmt.Errorf("hosted generate returned status %d", resp.StatusCode)
	}

	buf, err := audio.DecodeBase64WAV(decoded.AudioBase64)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("decode hosted audio: %w", err)
	}
	if buf.SampleRate != SampleRate {
		return audio.Buffer{}, fmt.Errorf("hosted audio at %d Hz, expected %d", buf.SampleRate, SampleRate)
	}
	if bound := boundedSampleCount(req.MaxAudioLengthMS); len(buf.Samples) > bound {
		buf.Samples = buf.Samples[:bound]
	}
	return buf, nil
}

func (h *hostedSynth) SampleRate() int { return SampleRate }

func (h *hostedSynth) Tier() string { return TierHosted }
