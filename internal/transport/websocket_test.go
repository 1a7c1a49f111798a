package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hammamikhairi/tabkha/internal/backendtest"
	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

const testUser = "cook@example.com"

func newBackend(t *testing.T, opts ...backendtest.Option) *backendtest.Backend {
	t.Helper()
	opts = append([]backendtest.Option{
		backendtest.WithUser(testUser, domain.Profile{Name: "Mona"}),
		backendtest.WithCatalogue(
			domain.RecipeArtifact{Title: "طعمية", Content: "فول مدشوش"},
			domain.RecipeArtifact{Title: "كشري", Content: "أرز وعدس"},
		),
	}, opts...)
	return backendtest.New(t, opts...)
}

func dial(t *testing.T, b *backendtest.Backend) domain.Channel {
	t.Helper()
	d := NewDialer(b.WSURL(), logger.New(logger.LevelOff, nil), WithDialTimeout(2*time.Second))
	ch, err := d.Dial(context.Background(), testUser, domain.ModeText)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func next(t *testing.T, ch domain.Channel) domain.ChannelEvent {
	t.Helper()
	select {
	case ev, ok := <-ch.Events():
		if !ok {
			t.Fatal("events closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.ChannelEvent{}
}

// authRequest waits for the auth request the server sends once the socket
// is live.
func authRequest(t *testing.T, ch domain.Channel) {
	t.Helper()
	ev := next(t, ch)
	if ev.Kind != domain.ChannelMessage || ev.Frame.Type != domain.FrameAuthRequest {
		t.Fatalf("got %s event (%v), want auth_request", ev.Kind, ev.Err)
	}
}

// nextFrame skips the auth request the server sends before the handshake.
func nextFrame(t *testing.T, ch domain.Channel) *domain.Frame {
	t.Helper()
	for {
		ev := next(t, ch)
		if ev.Kind != domain.ChannelMessage {
			t.Fatalf("got %s event (%v), want message", ev.Kind, ev.Err)
		}
		if ev.Frame.Type == domain.FrameAuthRequest {
			continue
		}
		return ev.Frame
	}
}

func TestDialSendsHandshakeThenConnected(t *testing.T) {
	b := newBackend(t)
	ch := dial(t, b)

	if ev := next(t, ch); ev.Kind != domain.ChannelConnected {
		t.Fatalf("first event = %s, want connected", ev.Kind)
	}
	if err := ch.Send(context.Background(), "مساء الفل"); err != nil {
		t.Fatalf("send: %v", err)
	}

	f := nextFrame(t, ch)
	if f.Type != domain.FrameSuggestions {
		t.Fatalf("frame type = %s", f.Type)
	}
	if len(f.Suggestions) != 2 || f.Suggestions[1] != "كشري" {
		t.Fatalf("suggestions = %v", f.Suggestions)
	}

	hs := b.Handshakes()
	if len(hs) != 1 || hs[0].Email != testUser || hs[0].Mode != domain.ModeText {
		t.Fatalf("handshakes = %+v", hs)
	}
}

func TestChoiceProducesResponse(t *testing.T) {
	b := newBackend(t)
	ch := dial(t, b)
	next(t, ch)

	ctx := context.Background()
	ch.Send(ctx, "جعان")
	nextFrame(t, ch)
	ch.Send(ctx, "2")

	f := nextFrame(t, ch)
	a, ok := f.Artifact()
	if f.Type != domain.FrameResponse || !ok {
		t.Fatalf("frame = %+v", f)
	}
	if a.Title != "كشري" || a.Content != "أرز وعدس" {
		t.Fatalf("artifact = %+v", a)
	}
}

func TestServerCloseIsReported(t *testing.T) {
	b := newBackend(t)
	ch := dial(t, b)
	next(t, ch)
	authRequest(t, ch)

	b.DropConnections()

	for {
		ev := next(t, ch)
		if ev.Kind == domain.ChannelMessage {
			continue
		}
		if ev.Kind != domain.ChannelClosed && ev.Kind != domain.ChannelError {
			t.Fatalf("got %s", ev.Kind)
		}
		if ev.Err == nil {
			t.Fatal("unsolicited close must carry an error")
		}
		return
	}
}

func TestMalformedFrameEndsChannel(t *testing.T) {
	b := newBackend(t)
	ch := dial(t, b)
	next(t, ch)
	authRequest(t, ch)

	b.Push([]byte("{not json"))

	ev := next(t, ch)
	if ev.Kind != domain.ChannelError || !errors.Is(ev.Err, domain.ErrMalformedFrame) {
		t.Fatalf("got %s / %v, want malformed error", ev.Kind, ev.Err)
	}
	if _, ok := <-ch.Events(); ok {
		t.Fatal("events should be closed after an error")
	}
}

func TestLocalCloseStopsSends(t *testing.T) {
	b := newBackend(t)
	ch := dial(t, b)
	next(t, ch)

	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := ch.Send(context.Background(), "hi"); !errors.Is(err, domain.ErrChannelClosed) {
		t.Fatalf("send after close = %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	d := NewDialer("ws://127.0.0.1:1/ws/chat", logger.New(logger.LevelOff, nil), WithDialTimeout(500*time.Millisecond))
	if _, err := d.Dial(context.Background(), testUser, domain.ModeVoice); err == nil {
		t.Fatal("expected dial error")
	}
}
