package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

const speakPath = "/speak-text"

// HTTPSynthesizer asks the conversation backend to voice a reply. The
// backend answers with an audio/mpeg (or WAV) body.
type HTTPSynthesizer struct {
	endpoint string
	client   *http.Client
	log      *logger.Logger
}

var _ domain.Synthesizer = (*HTTPSynthesizer)(nil)

// NewHTTPSynthesizer creates a synthesizer for the backend at baseURL. A
// nil client gets a default with a 60s timeout.
func NewHTTPSynthesizer(baseURL string, client *http.Client, log *logger.Logger) *HTTPSynthesizer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPSynthesizer{
		endpoint: strings.TrimRight(baseURL, "/") + speakPath,
		client:   client,
		log:      log,
	}
}

// Voice identifies this synthesizer in cache keys.
func (s *HTTPSynthesizer) Voice() string { return "backend" }

// Synthesize posts {"text": ...} and returns the response body.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return fetchAudio(s.client, req, s.log)
}

// fetchAudio performs a synthesis request and returns the audio body.
// Non-200 answers and empty bodies are errors.
func fetchAudio(client *http.Client, req *http.Request, log *logger.Logger) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts error %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("tts returned no audio")
	}

	log.Debug("synthesized %d bytes (%s)", len(body), resp.Header.Get("Content-Type"))
	return body, nil
}
