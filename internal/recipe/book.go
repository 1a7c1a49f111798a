// Package recipe holds the full recipes delivered during a session.
package recipe

import (
	"sort"
	"strings"
	"sync"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// Book caches recipe artifacts by title for the lifetime of a session. A
// title is only ever overwritten by a newer artifact with the same title.
// Safe for concurrent access.
type Book struct {
	mu      sync.RWMutex
	recipes map[string]string
	log     *logger.Logger
}

// NewBook creates an empty recipe book.
func NewBook(log *logger.Logger) *Book {
	return &Book{
		recipes: make(map[string]string),
		log:     log,
	}
}

// Put stores an artifact, replacing any earlier content for the title.
// Invalid artifacts are ignored; Put reports whether it stored anything.
func (b *Book) Put(a domain.RecipeArtifact) bool {
	if !a.Valid() {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	_, existed := b.recipes[a.Title]
	b.recipes[a.Title] = a.Content
	b.log.Debug("stored recipe %q (updated=%v, total=%d)", a.Title, existed, len(b.recipes))
	return true
}

// Seed adds artifacts without replacing titles already present. Used to
// preload saved favourites, which must not clobber fresher content.
func (b *Book) Seed(artifacts []domain.RecipeArtifact) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, a := range artifacts {
		if !a.Valid() {
			continue
		}
		if _, ok := b.recipes[a.Title]; ok {
			continue
		}
		b.recipes[a.Title] = a.Content
		n++
	}
	return n
}

// Get returns the artifact for a title.
func (b *Book) Get(title string) (domain.RecipeArtifact, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	content, ok := b.recipes[title]
	if !ok {
		return domain.RecipeArtifact{}, domain.ErrNotFound
	}
	return domain.RecipeArtifact{Title: title, Content: content}, nil
}

// Titles returns every stored title in sorted order.
func (b *Book) Titles() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.recipes))
	for t := range b.recipes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Find resolves a user-typed reference to a stored title: an exact match
// wins, otherwise the single title containing the query. Ambiguous or
// unknown queries return ErrNotFound.
func (b *Book) Find(query string) (domain.RecipeArtifact, error) {
	query = strings.TrimSpace(query)
	if a, err := b.Get(query); err == nil {
		return a, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var match string
	for t := range b.recipes {
		if !strings.Contains(strings.ToLower(t), strings.ToLower(query)) {
			continue
		}
		if match != "" {
			return domain.RecipeArtifact{}, domain.ErrNotFound
		}
		match = t
	}
	if match == "" || query == "" {
		return domain.RecipeArtifact{}, domain.ErrNotFound
	}
	return domain.RecipeArtifact{Title: match, Content: b.recipes[match]}, nil
}

// Len returns the number of stored recipes.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.recipes)
}
