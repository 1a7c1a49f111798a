package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

const transcribePath = "/transcribe-audio"

// HTTPOption configures an HTTPTranscriber.
type HTTPOption func(*HTTPTranscriber)

// WithHTTPClient sets the client used for uploads.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTranscriber) {
		t.client = c
	}
}

// WithLanguage adds a language hint to each upload.
func WithLanguage(lang string) HTTPOption {
	return func(t *HTTPTranscriber) {
		t.language = lang
	}
}

// HTTPTranscriber uploads clips to the backend's transcription endpoint.
type HTTPTranscriber struct {
	endpoint string
	client   *http.Client
	language string
	log      *logger.Logger
}

var _ domain.Transcriber = (*HTTPTranscriber)(nil)

// NewHTTPTranscriber creates a transcriber for the backend at baseURL.
func NewHTTPTranscriber(baseURL string, log *logger.Logger, opts ...HTTPOption) *HTTPTranscriber {
	t := &HTTPTranscriber{
		endpoint: strings.TrimRight(baseURL, "/") + transcribePath,
		client:   &http.Client{Timeout: 60 * time.Second},
		log:      log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcribe encodes the clip as WAV and posts it as the multipart field
// "file". The backend answers {"text": "..."}.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, clip domain.Clip) (string, error) {
	wav := EncodeWAV(clip.PCM, clip.SampleRate, clip.Channels)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "voice.wav")
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("writing wav data: %w", err)
	}
	if t.language != "" {
		if err := mw.WriteField("language", t.language); err != nil {
			return "", fmt.Errorf("writing language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	t.log.Debug("uploading %d bytes for transcription", len(wav))

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting audio: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	return result.Text, nil
}
