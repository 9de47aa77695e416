// Package protocol defines the wire types shared by the HTTP surface, the
// worker surface, and the client.
package protocol

// GenerateRequest is the public generation request body. Context records are
// intentionally loose: anything without both a text and a speaker value is
// dropped during normalization, not rejected.
type GenerateRequest struct {
	Text             string           `json:"text"`
	Speaker          int              `json:"speaker,omitempty"`
	MaxAudioLengthMS int              `json:"max_audio_length_ms,omitempty"`
	Context          []map[string]any `json:"context,omitempty"`
}

// GenerateResponse carries one synthesized utterance: a base64 mono WAV plus
// the derived duration.
type GenerateResponse struct {
	AudioBase64 string `json:"audio_base64"`
	SampleRate  int    `json:"sample_rate"`
	DurationMS  int    `json:"duration_ms"`
}

// ErrorResponse is the HTTP failure body.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// MetadataResponse is the GET / body.
type MetadataResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Device    string            `json:"device"`
	Tier      string            `json:"tier,omitempty"`
	Endpoints map[string]string `json:"endpoints"`
}

// WorkerEvent is one serverless-style event: the request wrapped in an
// input envelope.
type WorkerEvent struct {
	Input GenerateRequest `json:"input"`
}

// WorkerResult is the worker reply. StatusCode is 200 on success, 400 for a
// missing text field and 500 for everything else.
type WorkerResult struct {
	AudioBase64 string `json:"audio_base64,omitempty"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	DurationMS  int    `json:"duration_ms,omitempty"`
	Error       string `json:"error,omitempty"`
	StatusCode  int    `json:"statusCode"`
}

// Bus subjects.
const (
	SubjectGenerate = "tts.generate"
)
