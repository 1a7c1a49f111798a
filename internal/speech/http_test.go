package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hammamikhairi/tabkha/internal/backendtest"
)

func TestHTTPSynthesizer(t *testing.T) {
	audio := wav(44100, 1, 1, 2, 3)
	b := backendtest.New(t, backendtest.WithSpeech(audio, "audio/wav"))
	s := NewHTTPSynthesizer(b.URL(), b.Client(), quiet())

	got, err := s.Synthesize(context.Background(), "تفضل")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(got) != string(audio) {
		t.Fatal("audio body mismatch")
	}
	if spoken := b.Spoken(); len(spoken) != 1 || spoken[0] != "تفضل" {
		t.Fatalf("spoken = %v", spoken)
	}
}

func TestHTTPSynthesizerFailure(t *testing.T) {
	b := backendtest.New(t, backendtest.WithFailure("/speak-text", http.StatusInternalServerError))
	s := NewHTTPSynthesizer(b.URL(), b.Client(), quiet())
	if _, err := s.Synthesize(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestAzureRequest(t *testing.T) {
	var gotBody, gotFormat, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotFormat = r.Header.Get("X-Microsoft-OutputFormat")
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		w.Write([]byte("RIFF"))
	}))
	defer srv.Close()

	c := NewAzureClient("secret", "westeurope", quiet(), withEndpoint(srv.URL))
	audio, err := c.Synthesize(context.Background(), "فول & طعمية <سخنة>")
	if err != nil {
		t.Fatal(err)
	}
	if string(audio) != "RIFF" {
		t.Fatalf("audio = %q", audio)
	}
	if gotKey != "secret" || gotFormat != DefaultAzureFormat {
		t.Fatalf("headers key=%q format=%q", gotKey, gotFormat)
	}
	if !strings.Contains(gotBody, "&amp;") || !strings.Contains(gotBody, "&lt;سخنة&gt;") {
		t.Fatalf("ssml not escaped: %s", gotBody)
	}
	if !strings.Contains(gotBody, DefaultAzureVoice) {
		t.Fatalf("voice missing: %s", gotBody)
	}
}

func TestSpeakable(t *testing.T) {
	in := "**المقادير:**\n- 2 كوب أرز\n1. اغسل الأرز \x1b[1mكويس\x1b[0m"
	want := "المقادير:\n2 كوب أرز\nاغسل الأرز كويس"
	if got := Speakable(in); got != want {
		t.Fatalf("Speakable = %q, want %q", got, want)
	}
}

func TestVoiceLocale(t *testing.T) {
	tests := map[string]string{
		"ar-EG-SalmaNeural": "ar-EG",
		"en-US-AvaNeural":   "en-US",
		"custom":            DefaultAzureLang,
	}
	for voice, want := range tests {
		if got := voiceLocale(voice); got != want {
			t.Errorf("voiceLocale(%q) = %q, want %q", voice, got, want)
		}
	}
}
