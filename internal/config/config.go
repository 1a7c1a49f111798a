// Package config loads client settings from defaults, an optional YAML file
// and the environment, in that order. Command-line flags are applied last by
// the caller through Overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// Config is the complete client configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend" envPrefix:"TABKHA_"`
	Session SessionConfig `yaml:"session" envPrefix:"TABKHA_"`
	Voice   VoiceConfig   `yaml:"voice" envPrefix:"TABKHA_VOICE_"`
	Speech  SpeechConfig  `yaml:"speech"`
	Log     LogConfig     `yaml:"log" envPrefix:"TABKHA_LOG_"`
}

// BackendConfig locates the conversation backend.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" env:"BACKEND_URL"`
	WSPath  string        `yaml:"ws_path" env:"WS_PATH"`
	Timeout time.Duration `yaml:"timeout" env:"BACKEND_TIMEOUT"`
}

// SessionConfig tunes the conversation controller.
type SessionConfig struct {
	// Mode preselects text or voice; empty asks the user.
	Mode                     domain.Mode   `yaml:"mode" env:"MODE"`
	Identity                 string        `yaml:"identity" env:"IDENTITY"`
	IdentityFile             string        `yaml:"identity_file" env:"IDENTITY_FILE"`
	TypingInterval           time.Duration `yaml:"typing_interval" env:"TYPING_INTERVAL"`
	InactivityTimeout        time.Duration `yaml:"inactivity_timeout" env:"INACTIVITY_TIMEOUT"`
	FatalTranscriptionErrors bool          `yaml:"fatal_transcription_errors" env:"FATAL_TRANSCRIPTION_ERRORS"`
	FatalSynthesisErrors     bool          `yaml:"fatal_synthesis_errors" env:"FATAL_SYNTHESIS_ERRORS"`
}

// VoiceBackend selects how speech input is captured and recognised.
type VoiceBackend string

const (
	// VoiceHTTP records with the microphone and uploads to /transcribe-audio.
	VoiceHTTP VoiceBackend = "http"
	// VoiceWhisperCLI records and recognises locally with whisper-cli.
	VoiceWhisperCLI VoiceBackend = "whisper-cli"
)

// IsValid reports whether b is a known voice backend.
func (b VoiceBackend) IsValid() bool {
	return b == VoiceHTTP || b == VoiceWhisperCLI
}

// VoiceConfig configures capture and recognition.
type VoiceConfig struct {
	Backend      VoiceBackend `yaml:"backend" env:"BACKEND"`
	SampleRate   int          `yaml:"sample_rate" env:"SAMPLE_RATE"`
	Channels     int          `yaml:"channels" env:"CHANNELS"`
	WhisperBin   string       `yaml:"whisper_bin" env:"WHISPER_BIN"`
	WhisperModel string       `yaml:"whisper_model" env:"WHISPER_MODEL"`
	Language     string       `yaml:"language" env:"LANGUAGE"`
}

// SpeechBackend selects the synthesizer used for bot replies.
type SpeechBackend string

const (
	SpeechHTTP  SpeechBackend = "http"
	SpeechAzure SpeechBackend = "azure"
	SpeechNone  SpeechBackend = "none"
)

// IsValid reports whether b is a known speech backend.
func (b SpeechBackend) IsValid() bool {
	switch b {
	case SpeechHTTP, SpeechAzure, SpeechNone:
		return true
	}
	return false
}

// SpeechConfig configures synthesis and playback.
type SpeechConfig struct {
	Backend     SpeechBackend `yaml:"backend" env:"TABKHA_SPEECH_BACKEND"`
	SampleRate  int           `yaml:"sample_rate" env:"TABKHA_SPEECH_SAMPLE_RATE"`
	Channels    int           `yaml:"channels" env:"TABKHA_SPEECH_CHANNELS"`
	CacheDir    string        `yaml:"cache_dir" env:"TABKHA_SPEECH_CACHE_DIR"`
	DiskCache   bool          `yaml:"disk_cache" env:"TABKHA_SPEECH_DISK_CACHE"`
	AzureKey    string        `yaml:"azure_key" env:"AZURE_SPEECH_KEY"`
	AzureRegion string        `yaml:"azure_region" env:"AZURE_SPEECH_REGION"`
	AzureVoice  string        `yaml:"azure_voice" env:"TABKHA_SPEECH_AZURE_VOICE"`
}

// LogConfig configures the log sink.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	File  string `yaml:"file" env:"FILE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8001",
			WSPath:  "/ws/chat",
			Timeout: 15 * time.Second,
		},
		Session: SessionConfig{
			IdentityFile:             ".tabkha/identity",
			TypingInterval:           30 * time.Millisecond,
			FatalTranscriptionErrors: true,
			FatalSynthesisErrors:     true,
		},
		Voice: VoiceConfig{
			Backend:      VoiceHTTP,
			SampleRate:   16000,
			Channels:     1,
			WhisperBin:   "whisper-cli",
			WhisperModel: "bin/ggml-small.bin",
			Language:     "ar",
		},
		Speech: SpeechConfig{
			Backend:    SpeechHTTP,
			SampleRate: 44100,
			Channels:   2,
			CacheDir:   ".tabkha-cache",
			DiskCache:  true,
			AzureVoice: "ar-EG-SalmaNeural",
		},
		Log: LogConfig{
			Level: "normal",
			File:  ".tabkha-logs/tabkha.log",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. Unset variables leave
// the current values alone.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Overrides holds command-line values. Nil fields were not given.
type Overrides struct {
	Mode      *string
	Identity  *string
	BaseURL   *string
	LogLevel  *string
	LogFile   *string
	NoSpeech  *bool
	DiskCache *bool
}

// Apply writes the given overrides into cfg and revalidates it.
func (o Overrides) Apply(cfg *Config) error {
	if o.Mode != nil {
		cfg.Session.Mode = domain.Mode(*o.Mode)
	}
	if o.Identity != nil {
		cfg.Session.Identity = *o.Identity
	}
	if o.BaseURL != nil {
		cfg.Backend.BaseURL = *o.BaseURL
	}
	if o.LogLevel != nil {
		cfg.Log.Level = *o.LogLevel
	}
	if o.LogFile != nil {
		cfg.Log.File = *o.LogFile
	}
	if o.NoSpeech != nil && *o.NoSpeech {
		cfg.Speech.Backend = SpeechNone
	}
	if o.DiskCache != nil {
		cfg.Speech.DiskCache = *o.DiskCache
	}
	return Validate(cfg)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Backend
	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url %q is not an absolute URL", cfg.Backend.BaseURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("backend.base_url scheme %q is invalid; valid values: http, https", u.Scheme))
	}
	if cfg.Backend.WSPath == "" || cfg.Backend.WSPath[0] != '/' {
		errs = append(errs, fmt.Errorf("backend.ws_path %q must start with /", cfg.Backend.WSPath))
	}
	if cfg.Backend.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout %s must not be negative", cfg.Backend.Timeout))
	}

	// Session
	if cfg.Session.Mode != "" {
		if _, err := domain.ParseMode(string(cfg.Session.Mode)); err != nil {
			errs = append(errs, fmt.Errorf("session.mode %q is invalid; valid values: text, voice", cfg.Session.Mode))
		}
	}
	if cfg.Session.TypingInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.typing_interval %s must be positive", cfg.Session.TypingInterval))
	}
	if cfg.Session.InactivityTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.inactivity_timeout %s must not be negative", cfg.Session.InactivityTimeout))
	}

	// Voice
	if !cfg.Voice.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("voice.backend %q is invalid; valid values: http, whisper-cli", cfg.Voice.Backend))
	}
	if cfg.Voice.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("voice.sample_rate %d must be positive", cfg.Voice.SampleRate))
	}
	if cfg.Voice.Channels != 1 && cfg.Voice.Channels != 2 {
		errs = append(errs, fmt.Errorf("voice.channels %d is out of range [1, 2]", cfg.Voice.Channels))
	}
	if cfg.Voice.Backend == VoiceWhisperCLI && cfg.Voice.WhisperModel == "" {
		errs = append(errs, errors.New("voice.whisper_model is required when voice.backend is whisper-cli"))
	}

	// Speech
	if !cfg.Speech.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("speech.backend %q is invalid; valid values: http, azure, none", cfg.Speech.Backend))
	}
	if cfg.Speech.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("speech.sample_rate %d must be positive", cfg.Speech.SampleRate))
	}
	if cfg.Speech.Channels != 1 && cfg.Speech.Channels != 2 {
		errs = append(errs, fmt.Errorf("speech.channels %d is out of range [1, 2]", cfg.Speech.Channels))
	}
	if cfg.Speech.Backend == SpeechAzure {
		if cfg.Speech.AzureKey == "" {
			errs = append(errs, errors.New("speech.azure_key is required when speech.backend is azure"))
		}
		if cfg.Speech.AzureRegion == "" {
			errs = append(errs, errors.New("speech.azure_region is required when speech.backend is azure"))
		}
	}

	// Log
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

