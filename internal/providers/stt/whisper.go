package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"time"
)

// WhisperConfig configures the remote Whisper-compatible HTTP client.
type WhisperConfig struct {
	BaseURL string
	Token   string // optional, sent as Bearer
	Model   string // default "whisper-1"
	Retries int    // default 3
}

// Whisper transcribes chunks against a remote Whisper-compatible API by
// uploading the WAV bytes as multipart form data. Transient failures (5xx,
// network) are retried with exponential backoff.
type Whisper struct {
	cfg         WhisperConfig
	client      *http.Client
	backoffBase time.Duration // tests override to keep retries fast
}

func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	return &Whisper{
		cfg:         cfg,
		backoffBase: time.Second,
		client:      &http.Client{},
	}
}

func (w *Whisper) Name() string { return "whisper" }

func (w *Whisper) Close() error { return nil }

type whisperResponse struct {
	Text string `json:"text"`
}

func (w *Whisper) Transcribe(ctx context.Context, audio []byte, language string) (string, float64, error) {
	var lastErr error
	for attempt := 0; attempt <= w.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.backoff(attempt)):
			case <-ctx.Done():
				return "", 0, ctx.Err()
			}
		}

		text, err := w.doTranscribe(ctx, audio, language)
		if err == nil {
			// The Whisper API reports no confidence; callers treat 0 as unknown.
			return text, 0, nil
		}
		if !isRetryable(err) {
			return "", 0, err
		}
		lastErr = err
	}
	return "", 0, fmt.Errorf("transcribe: all %d retries exhausted: %w", w.cfg.Retries, lastErr)
}

func (w *Whisper) doTranscribe(ctx context.Context, audio []byte, language string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	_ = writer.WriteField("model", w.cfg.Model)
	if language != "" {
		_ = writer.WriteField("language", language)
	}
	_ = writer.WriteField("response_format", "json")
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if w.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(respBody, 200))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var parsed whisperResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return parsed.Text, nil
}

// retryableError wraps errors that should trigger a retry.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*retryableError)
	return ok
}

// backoff returns base * 2^(attempt-1) plus 0-25% jitter.
func (w *Whisper) backoff(attempt int) time.Duration {
	base := w.backoffBase
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
