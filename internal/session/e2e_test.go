package session

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/hammamikhairi/tabkha/internal/account"
	"github.com/hammamikhairi/tabkha/internal/backendtest"
	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
	"github.com/hammamikhairi/tabkha/internal/storage"
	"github.com/hammamikhairi/tabkha/internal/transport"
)

// TestConversationAgainstBackend drives a full text session over a real
// websocket: suggestions, a choice, a saved favourite and a reset.
func TestConversationAgainstBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a local server")
	}

	b := backendtest.New(t,
		backendtest.WithUser(testUser, domain.Profile{Name: "Mona"}),
		backendtest.WithCatalogue(
			domain.RecipeArtifact{Title: "طعمية", Content: "فول مدشوش وخضرة"},
			domain.RecipeArtifact{Title: "كشري", Content: "أرز وعدس ومكرونة"},
		),
	)
	wsURL, err := transport.URL(b.URL(), "/ws/chat")
	if err != nil {
		t.Fatal(err)
	}

	log := logger.Nop()
	store := storage.NewMemoryStore(testUser, log)
	acct := account.NewClient(b.URL(), log, account.WithHTTPClient(b.Client()))
	c := New(transport.NewDialer(wsURL, log), store, log,
		WithFavourites(acct),
		WithNotifier(&fakeNotifier{}),
		WithTypingInterval(time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	wait := func(what string, cond func(Snapshot) bool) Snapshot {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			s := c.Snapshot()
			if cond(s) {
				return s
			}
			select {
			case <-c.Updates():
			case <-time.After(10 * time.Millisecond):
			case <-deadline:
				t.Fatalf("timed out waiting for %s; snapshot: %+v", what, s)
			}
		}
	}

	if err := c.ChooseMode(ctx, domain.ModeText); err != nil {
		t.Fatal(err)
	}
	if err := c.Open(ctx); err != nil {
		t.Fatal(err)
	}
	wait("active", func(s Snapshot) bool { return s.Phase == domain.PhaseActive })

	if err := c.SubmitText(ctx, "عايز عشا"); err != nil {
		t.Fatal(err)
	}
	s := wait("suggestions", func(s Snapshot) bool { return s.Suggestions.Len() == 2 })
	if s.Suggestions.Titles[1] != "كشري" {
		t.Fatalf("titles = %q", s.Suggestions.Titles)
	}

	if err := c.Choose(ctx, 2); err != nil {
		t.Fatal(err)
	}
	s = wait("recipe", func(s Snapshot) bool { return s.Current != nil && !s.Revealing && !s.Awaiting })
	if s.Current.Content != "أرز وعدس ومكرونة" {
		t.Fatalf("current = %+v", s.Current)
	}
	if last := s.Messages[len(s.Messages)-1]; last.Text != "تفضل" {
		t.Fatalf("last message = %+v", last)
	}

	if err := c.SaveFavourite(ctx); err != nil {
		t.Fatal(err)
	}
	wait("favourite", func(s Snapshot) bool { return slices.Contains(s.Favourites, "كشري") })
	if got := b.Favourites(testUser); len(got) != 1 || got[0].Title != "كشري" {
		t.Fatalf("stored favourites = %+v", got)
	}

	if err := c.NewChat(ctx); err != nil {
		t.Fatal(err)
	}
	s = wait("reset", func(s Snapshot) bool {
		return len(s.Messages) == 1 && s.Messages[0].Text == backendtest.ResetNotice
	})
	if s.Current != nil || s.Awaiting {
		t.Fatalf("after reset: %+v", s)
	}

	if got, want := b.Received(), []string{"عايز عشا", "2", "/new"}; !slices.Equal(got, want) {
		t.Fatalf("backend received %q, want %q", got, want)
	}
	if hs := b.Handshakes(); len(hs) != 1 || hs[0].Email != testUser || hs[0].Mode != domain.ModeText {
		t.Fatalf("handshakes = %+v", hs)
	}

	b.DropConnections()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("controller survived a dropped connection")
	}
	if s := c.Snapshot(); s.Cause != CauseTransport {
		t.Fatalf("cause = %s", s.Cause)
	}
	if _, err := store.Load(context.Background()); err == nil {
		t.Fatal("identity kept after connection loss")
	}
}
