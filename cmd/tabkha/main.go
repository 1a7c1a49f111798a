// Tabkha is a terminal client for the Tabkha recipe assistant.
//
// Usage:
//
//	tabkha [-config tabkha.yaml] [-mode text|voice] [-identity email]
//	       [-backend url] [-log-level off|normal|verbose] [-log-file path]
//	       [-no-speech] [-disk-cache=false]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/tabkha/internal/account"
	"github.com/hammamikhairi/tabkha/internal/config"
	"github.com/hammamikhairi/tabkha/internal/conversation"
	"github.com/hammamikhairi/tabkha/internal/display"
	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
	"github.com/hammamikhairi/tabkha/internal/observe"
	"github.com/hammamikhairi/tabkha/internal/recipe"
	"github.com/hammamikhairi/tabkha/internal/speech"
	"github.com/hammamikhairi/tabkha/internal/storage"
	"github.com/hammamikhairi/tabkha/internal/transport"
	"github.com/hammamikhairi/tabkha/internal/voice"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to a YAML config file")
	var ov config.Overrides
	flagString(&ov.Mode, "mode", "conversation mode: text or voice (asked when empty)")
	flagString(&ov.Identity, "identity", "sign in as this email and remember it")
	flagString(&ov.BaseURL, "backend", "backend base URL")
	flagString(&ov.LogLevel, "log-level", "log level: off, normal or verbose")
	flagString(&ov.LogFile, "log-file", "file to write logs to (use \"stderr\" to log to console)")
	flagBool(&ov.NoSpeech, "no-speech", "never speak replies aloud")
	flagBool(&ov.DiskCache, "disk-cache", "persist synthesized audio to disk (reads from disk even when false)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = ov.Apply(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	logOut, closeLog := openLog(cfg.Log.File)
	defer closeLog()

	// Third-party libraries (whisper, malgo) write through the standard
	// log package; keep them off the terminal.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(level, logOut)
	log.Info("tabkha starting (run=%s, backend=%s)", uuid.NewString(), cfg.Backend.BaseURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	console := conversation.NewCLINotifier(log, nil)

	recorder, err := observe.NewRecorder()
	metrics := observe.DefaultMetrics()
	if err != nil {
		log.Warn("metrics disabled: %v", err)
	} else {
		metrics = recorder.Metrics()
		defer func() {
			if err := recorder.Shutdown(context.Background(), log.Named("metrics")); err != nil {
				log.Warn("metrics shutdown: %v", err)
			}
		}()
	}

	// Wire dependencies.
	// Transcription and synthesis carry audio and take longer than the
	// account calls.
	mediaClient := &http.Client{Timeout: time.Minute}

	wsURL, err := transport.URL(cfg.Backend.BaseURL, cfg.Backend.WSPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	dialer := transport.NewDialer(wsURL, log.Named("transport"),
		transport.WithDialTimeout(cfg.Backend.Timeout),
	)

	acct := account.NewClient(cfg.Backend.BaseURL, log.Named("account"),
		account.WithHTTPTimeout(cfg.Backend.Timeout),
	)

	store := storage.NewFileStore(cfg.Session.IdentityFile, log.Named("identity"))
	if cfg.Session.Identity != "" {
		if err := store.Save(ctx, cfg.Session.Identity); err != nil {
			log.Error("saving identity: %v", err)
		}
	}

	pipeline := buildVoice(ctx, cfg, mediaClient, metrics, log.Named("voice"))
	speaker := buildSpeech(ctx, cfg, mediaClient, metrics, console, log.Named("speech"))

	notices := conversation.NewQueueNotifier(16, log)
	ui := display.NewUI(notices.Notices())

	app := &cliApp{
		cfg:      cfg,
		dialer:   dialer,
		store:    store,
		account:  acct,
		voice:    pipeline,
		speaker:  speaker,
		book:     recipe.NewBook(log.Named("recipes")),
		notifier: notices,
		metrics:  metrics,
		parser:   conversation.NewCommandParser(log),
		ui:       ui,
		log:      log,
	}

	fmt.Println(display.RenderBanner(
		"Type /help for commands, /quit to exit.",
		"Press tab for a conversation starter.",
	))
	fmt.Println()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Bubble Tea owns the terminal until quit.
		defer cancel()
		if err := ui.Run(); err != nil {
			return fmt.Errorf("display: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if !waitReady(gctx, ui) {
			return nil
		}
		defer ui.Quit()
		return app.run(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("%v", err)
		console.NotifyUrgent(context.Background(), err.Error())
	}
	speaker.Stop()
	console.Notify(context.Background(), conversation.LineGoodbye)
}

// buildVoice assembles the capture pipeline for the configured backend.
// Devices are opened lazily, so building it in text mode costs nothing.
func buildVoice(ctx context.Context, cfg *config.Config, client *http.Client, metrics *observe.Metrics, log *logger.Logger) *voice.Pipeline {
	var (
		capturer    domain.Capturer
		transcriber domain.Transcriber
	)
	switch cfg.Voice.Backend {
	case config.VoiceWhisperCLI:
		if _, err := os.Stat(cfg.Voice.WhisperModel); err != nil {
			log.Warn("whisper model not found at %s: %v", cfg.Voice.WhisperModel, err)
		}
		capturer = voice.NewDictation(cfg.Voice.WhisperBin, cfg.Voice.WhisperModel, log)
	default:
		capturer = voice.NewMicrophone(cfg.Voice.SampleRate, cfg.Voice.Channels, log)
		transcriber = voice.NewHTTPTranscriber(cfg.Backend.BaseURL, log,
			voice.WithHTTPClient(client),
			voice.WithLanguage(cfg.Voice.Language),
		)
	}
	return voice.NewPipeline(capturer, transcriber, log,
		voice.WithTranscribeHook(func(d time.Duration, err error) {
			metrics.ObserveTranscription(ctx, d, err)
		}),
	)
}

// voiced is a synthesizer that names its voice for cache keys.
type voiced interface {
	domain.Synthesizer
	Voice() string
}

// buildSpeech assembles the playback coordinator. Without a working
// synthesizer or output device replies play silently.
func buildSpeech(ctx context.Context, cfg *config.Config, client *http.Client, metrics *observe.Metrics, console domain.Notifier, log *logger.Logger) *speech.Coordinator {
	silent := speech.NewSilent(log)

	var synth voiced
	switch cfg.Speech.Backend {
	case config.SpeechHTTP:
		synth = speech.NewHTTPSynthesizer(cfg.Backend.BaseURL, client, log)
	case config.SpeechAzure:
		if cfg.Speech.AzureKey == "" || cfg.Speech.AzureRegion == "" {
			console.Notify(ctx, fmt.Sprintf("Speech disabled: set %s and %s to use Azure.",
				speech.EnvAzureSpeechKey, speech.EnvAzureSpeechRegion))
			break
		}
		synth = speech.NewAzureClient(cfg.Speech.AzureKey, cfg.Speech.AzureRegion, log,
			speech.WithVoice(cfg.Speech.AzureVoice),
			speech.WithAzureHTTPClient(client),
		)
	}
	if synth == nil {
		log.Info("speech disabled (backend=%s)", cfg.Speech.Backend)
		return speech.NewCoordinator(silent, silent, log)
	}

	player, err := speech.NewPlayer(cfg.Speech.SampleRate, cfg.Speech.Channels, log)
	if err != nil {
		log.Error("audio player init failed, speech disabled: %v", err)
		console.Notify(ctx, "Speech disabled: no audio output device.")
		return speech.NewCoordinator(silent, silent, log)
	}

	cache := speech.NewAudioCache(synth.Voice(), cfg.Speech.CacheDir, cfg.Speech.DiskCache, log)
	log.Info("speech enabled (backend=%s, voice=%s)", cfg.Speech.Backend, synth.Voice())
	return speech.NewCoordinator(synth, player, log,
		speech.WithCache(cache),
		speech.WithSynthesisHook(func(d time.Duration, err error) {
			metrics.ObserveSynthesis(ctx, d, err)
		}),
	)
}

// openLog opens the log destination. Logs go to a file by default so the
// TUI stays clean.
func openLog(path string) (io.Writer, func()) {
	if path == "" || path == "stderr" {
		return os.Stderr, func() {}
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", path, err)
		return os.Stderr, func() {}
	}
	return f, func() { f.Close() }
}

// waitReady blocks until the UI loop runs. It reports false when the UI
// exited or ctx ended first.
func waitReady(ctx context.Context, ui *display.UI) bool {
	ready := make(chan struct{})
	go func() {
		ui.WaitReady()
		close(ready)
	}()
	select {
	case <-ready:
		return true
	case <-ui.QuitChan():
		return false
	case <-ctx.Done():
		return false
	}
}

// flagString registers a string flag that stays nil unless given.
func flagString(dst **string, name, usage string) {
	flag.Func(name, usage, func(v string) error {
		*dst = &v
		return nil
	})
}

// flagBool registers a boolean flag that stays nil unless given.
func flagBool(dst **bool, name, usage string) {
	flag.BoolFunc(name, usage, func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = &b
		return nil
	})
}
