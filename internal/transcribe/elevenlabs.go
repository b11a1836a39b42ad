package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	elevenLabsURL   = "https://api.elevenlabs.io/v1/speech-to-text"
	elevenLabsModel = "scribe_v1"

	// defaultTimeout caps each transcription call; a slow provider is
	// treated as failed, not retried indefinitely.
	defaultTimeout = 60 * time.Second
)

// ElevenLabs is a Transcriber backed by the ElevenLabs speech-to-text API.
type ElevenLabs struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewElevenLabs creates an ElevenLabs transcriber. timeout <= 0 uses the
// 60-second default.
func NewElevenLabs(apiKey string, timeout time.Duration, logger *zap.Logger) *ElevenLabs {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ElevenLabs{
		apiKey:  apiKey,
		baseURL: elevenLabsURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio file and returns the transcript text.
func (e *ElevenLabs) Transcribe(ctx context.Context, audioPath string) (string, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("reading audio file: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("model_id", elevenLabsModel); err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, &body)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling speech-to-text API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		e.logger.Error("speech-to-text request failed",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("detail", detail),
		)
		return "", fmt.Errorf("speech-to-text API returned status %d", resp.StatusCode)
	}

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding transcription response: %w", err)
	}
	return result.Text, nil
}

var _ Transcriber = (*ElevenLabs)(nil)
