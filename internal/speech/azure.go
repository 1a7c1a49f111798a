package speech

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// AzureOption configures the Azure synthesizer.
type AzureOption func(*AzureClient)

// WithVoice sets the neural voice. The SSML language follows the voice's
// locale prefix.
func WithVoice(voice string) AzureOption {
	return func(c *AzureClient) {
		if voice != "" {
			c.voice = voice
		}
	}
}

// WithAzureHTTPClient sets the client used for synthesis requests.
func WithAzureHTTPClient(h *http.Client) AzureOption {
	return func(c *AzureClient) {
		if h != nil {
			c.client = h
		}
	}
}

// withEndpoint overrides the regional endpoint. Used by tests.
func withEndpoint(url string) AzureOption {
	return func(c *AzureClient) {
		c.endpoint = url
	}
}

// AzureClient voices replies with Azure Cognitive Services directly,
// bypassing the backend's /speak-text endpoint.
type AzureClient struct {
	key      string
	endpoint string
	voice    string
	client   *http.Client
	log      *logger.Logger
}

var _ domain.Synthesizer = (*AzureClient)(nil)

// NewAzureClient creates a synthesizer for the given subscription key and
// region.
func NewAzureClient(key, region string, log *logger.Logger, opts ...AzureOption) *AzureClient {
	c := &AzureClient{
		key:      key,
		endpoint: fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region),
		voice:    DefaultAzureVoice,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Voice returns the configured voice name.
func (c *AzureClient) Voice() string { return c.voice }

// Synthesize returns a WAV clip of text spoken by the configured voice.
func (c *AzureClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	doc, err := xml.Marshal(newSSML(c.voice, text))
	if err != nil {
		return nil, fmt.Errorf("encoding ssml: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", DefaultAzureFormat)
	req.Header.Set("User-Agent", "tabkha")

	c.log.Debug("azure: voicing %d chars with %s", len([]rune(text)), c.voice)
	return fetchAudio(c.client, req, c.log)
}

// ssml is the minimal speak/voice document Azure accepts.
type ssml struct {
	XMLName xml.Name `xml:"speak"`
	Version string   `xml:"version,attr"`
	Lang    string   `xml:"xml:lang,attr"`
	Voice   struct {
		Name string `xml:"name,attr"`
		Text string `xml:",chardata"`
	} `xml:"voice"`
}

func newSSML(voice, text string) ssml {
	doc := ssml{Version: "1.0", Lang: voiceLocale(voice)}
	doc.Voice.Name = voice
	doc.Voice.Text = text
	return doc
}

// voiceLocale returns "ar-EG" for "ar-EG-SalmaNeural".
func voiceLocale(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 {
		return DefaultAzureLang
	}
	return parts[0] + "-" + parts[1]
}
