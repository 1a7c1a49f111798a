// Package backendtest runs an in-process stand-in for the recipe chat
// backend: the /ws/chat conversation socket plus the transcription,
// synthesis, favourites, profile and chat-log endpoints. Tests script its
// behaviour through options and inspect what the client sent.
package backendtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/tabkha/internal/domain"
)

// Texts the backend sends, kept identical to the production server.
const (
	AuthPrompt    = "من فضلك ادخل البريد الإلكتروني لتسجيل الدخول."
	UnknownUser   = "المستخدم غير موجود. من فضلك سجل أولاً."
	InvalidChoice = "من فضلك اختر رقم من الاختيارات الموجودة."
	ResetNotice   = "✅ تم بدء محادثة جديدة تمامًا."
)

// Option configures a Backend.
type Option func(*Backend)

// WithUser registers a known user.
func WithUser(email string, profile domain.Profile) Option {
	return func(b *Backend) {
		p := profile
		b.users[email] = &p
	}
}

// WithCatalogue sets the recipes offered as suggestions, in order.
func WithCatalogue(recipes ...domain.RecipeArtifact) Option {
	return func(b *Backend) {
		b.catalogue = append([]domain.RecipeArtifact(nil), recipes...)
	}
}

// WithPrompt sets the message sent with suggestions.
func WithPrompt(prompt string) Option {
	return func(b *Backend) {
		b.prompt = prompt
	}
}

// WithReply makes free-text turns answer with a plain response instead of
// suggestions when fn returns a non-empty string.
func WithReply(fn func(text string) string) Option {
	return func(b *Backend) {
		b.reply = fn
	}
}

// WithTranscript sets what /transcribe-audio returns.
func WithTranscript(text string) Option {
	return func(b *Backend) {
		b.transcript = text
	}
}

// WithSpeech sets the audio bytes /speak-text returns.
func WithSpeech(audio []byte, contentType string) Option {
	return func(b *Backend) {
		b.speech = audio
		b.speechType = contentType
	}
}

// WithFailure makes an HTTP endpoint answer with the given status.
func WithFailure(path string, status int) Option {
	return func(b *Backend) {
		b.failures[path] = status
	}
}

// Backend is the fake server.
type Backend struct {
	srv *httptest.Server

	mu         sync.Mutex
	users      map[string]*domain.Profile
	favourites map[string][]domain.RecipeArtifact
	chats      map[string][]domain.ChatLog
	catalogue  []domain.RecipeArtifact
	prompt     string
	reply      func(string) string
	transcript string
	speech     []byte
	speechType string
	failures   map[string]int

	handshakes []domain.Handshake
	received   []string
	uploads    [][]byte
	spoken     []string
	conns      map[*websocket.Conn]struct{}
}

// New starts a backend and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts ...Option) *Backend {
	t.Helper()

	b := &Backend{
		users:      make(map[string]*domain.Profile),
		favourites: make(map[string][]domain.RecipeArtifact),
		chats:      make(map[string][]domain.ChatLog),
		failures:   make(map[string]int),
		conns:      make(map[*websocket.Conn]struct{}),
		prompt:     "اختر وصفة",
		speechType: "audio/wav",
	}
	for _, opt := range opts {
		opt(b)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat", b.handleChat)
	mux.HandleFunc("POST /transcribe-audio", b.guard(b.handleTranscribe))
	mux.HandleFunc("POST /speak-text", b.guard(b.handleSpeak))
	mux.HandleFunc("POST /add-favourite", b.guard(b.handleAddFavourite))
	mux.HandleFunc("GET /get-favourites", b.guard(b.handleGetFavourites))
	mux.HandleFunc("GET /get-profile", b.guard(b.handleGetProfile))
	mux.HandleFunc("POST /update-profile", b.guard(b.handleUpdateProfile))
	mux.HandleFunc("GET /get-chat-logs", b.guard(b.handleChatLogs))

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

// URL is the HTTP base URL.
func (b *Backend) URL() string { return b.srv.URL }

// WSURL is the conversation socket URL.
func (b *Backend) WSURL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws/chat"
}

// Client returns an HTTP client wired to the server.
func (b *Backend) Client() *http.Client { return b.srv.Client() }

// Close drops every socket and stops the server.
func (b *Backend) Close() {
	b.DropConnections()
	b.srv.Close()
}

// DropConnections closes every open socket from the server side.
func (b *Backend) DropConnections() {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Close()
	}
}

// Push sends a raw payload to every open socket.
func (b *Backend) Push(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

// Handshakes returns the handshake frames received so far.
func (b *Backend) Handshakes() []domain.Handshake {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Handshake(nil), b.handshakes...)
}

// Received returns every text turn received after handshakes.
func (b *Backend) Received() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.received...)
}

// Uploads returns the audio bodies posted for transcription.
func (b *Backend) Uploads() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.uploads...)
}

// Spoken returns the texts posted for synthesis.
func (b *Backend) Spoken() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.spoken...)
}

// Favourites returns the stored favourites for a user.
func (b *Backend) Favourites(email string) []domain.RecipeArtifact {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.RecipeArtifact(nil), b.favourites[email]...)
}

// Profile returns a copy of a user's stored profile.
func (b *Backend) Profile(email string) (domain.Profile, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.users[email]
	if !ok {
		return domain.Profile{}, false
	}
	return *p, true
}

// ChatLogs returns the archived conversations for a user.
func (b *Backend) ChatLogs(email string) []domain.ChatLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.ChatLog(nil), b.chats[email]...)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
	}()

	b.write(conn, domain.Frame{Type: domain.FrameAuthRequest, Message: AuthPrompt})

	var hello domain.Handshake
	if err := conn.ReadJSON(&hello); err != nil {
		return
	}
	b.mu.Lock()
	b.handshakes = append(b.handshakes, hello)
	_, known := b.users[hello.Email]
	b.mu.Unlock()

	if !known {
		b.write(conn, domain.Frame{Type: domain.FrameError, Message: UnknownUser})
		return
	}

	var (
		history   []domain.ChatLogLine
		offered   []domain.RecipeArtifact
		lastQuery string
	)
	defer func() {
		if len(history) == 0 {
			return
		}
		b.mu.Lock()
		b.chats[hello.Email] = append(b.chats[hello.Email], domain.ChatLog{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Chat:      history,
		})
		b.mu.Unlock()
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		text := string(data)

		b.mu.Lock()
		b.received = append(b.received, text)
		b.mu.Unlock()

		if strings.TrimSpace(text) == "/new" {
			history, offered, lastQuery = nil, nil, ""
			b.write(conn, domain.Frame{Type: domain.FrameReset, Message: ResetNotice})
			continue
		}

		if offered != nil {
			idx, err := strconv.Atoi(strings.TrimSpace(text))
			if err != nil || idx < 1 || idx > len(offered) {
				b.write(conn, domain.Frame{Type: domain.FrameError, Message: InvalidChoice})
				continue
			}
			pick := offered[idx-1]
			offered = nil
			reply := "تفضل"
			history = append(history,
				domain.ChatLogLine{Sender: "user", Text: lastQuery},
				domain.ChatLogLine{Sender: "user", Text: text},
				domain.ChatLogLine{Sender: "bot", Text: reply})
			b.write(conn, domain.Frame{
				Type:          domain.FrameResponse,
				Message:       reply,
				SelectedTitle: pick.Title,
				FullRecipe:    pick.Content,
			})
			continue
		}

		if b.reply != nil {
			if reply := b.reply(text); reply != "" {
				history = append(history,
					domain.ChatLogLine{Sender: "user", Text: text},
					domain.ChatLogLine{Sender: "bot", Text: reply})
				b.write(conn, domain.Frame{Type: domain.FrameResponse, Message: reply})
				continue
			}
		}

		b.mu.Lock()
		offered = append([]domain.RecipeArtifact(nil), b.catalogue...)
		prompt := b.prompt
		b.mu.Unlock()
		lastQuery = text

		titles := make([]string, len(offered))
		for i, r := range offered {
			titles[i] = r.Title
		}
		b.write(conn, domain.Frame{Type: domain.FrameSuggestions, Message: prompt, Suggestions: titles})
	}
}

func (b *Backend) write(conn *websocket.Conn, f domain.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = conn.WriteJSON(f)
}

// guard applies configured failures before the real handler.
func (b *Backend) guard(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		status, fail := b.failures[r.URL.Path]
		b.mu.Unlock()
		if fail {
			http.Error(w, `{"detail":"forced failure"}`, status)
			return
		}
		h(w, r)
	}
}

func (b *Backend) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, `{"detail":"file is required"}`, http.StatusUnprocessableEntity)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	b.mu.Lock()
	b.uploads = append(b.uploads, data)
	text := b.transcript
	b.mu.Unlock()

	writeJSON(w, map[string]string{"text": text})
}

func (b *Backend) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		http.Error(w, `{"detail":"Text is required."}`, http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.spoken = append(b.spoken, req.Text)
	audio, ct := b.speech, b.speechType
	b.mu.Unlock()

	w.Header().Set("Content-Type", ct)
	_, _ = w.Write(audio)
}

func (b *Backend) handleAddFavourite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email  string `json:"email"`
		Title  string `json:"title"`
		Recipe string `json:"recipe"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Title == "" || req.Recipe == "" {
		http.Error(w, `{"detail":"Missing data."}`, http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[req.Email]; !ok {
		writeJSON(w, map[string]string{"status": "error", "message": "user not found"})
		return
	}
	for _, f := range b.favourites[req.Email] {
		if f.Title == req.Title {
			writeJSON(w, map[string]string{"status": "exists"})
			return
		}
	}
	b.favourites[req.Email] = append(b.favourites[req.Email], domain.RecipeArtifact{Title: req.Title, Content: req.Recipe})
	writeJSON(w, map[string]string{"status": "success"})
}

func (b *Backend) handleGetFavourites(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	b.mu.Lock()
	_, ok := b.users[email]
	favs := append([]domain.RecipeArtifact{}, b.favourites[email]...)
	b.mu.Unlock()

	if !ok {
		http.Error(w, `{"detail":"User not found or no favorites."}`, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"favourites": favs})
}

func (b *Backend) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	p, ok := b.Profile(email)
	if !ok {
		http.Error(w, `{"detail":"User not found."}`, http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

func (b *Backend) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string   `json:"email"`
		Field       string   `json:"field"`
		UpdatedList []string `json:"updatedList"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"detail":"bad request"}`, http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.users[req.Email]
	if !ok {
		http.Error(w, `{"detail":"User not found."}`, http.StatusBadRequest)
		return
	}
	switch domain.PreferenceField(req.Field) {
	case domain.PreferenceLikes:
		p.Likes = req.UpdatedList
	case domain.PreferenceDislikes:
		p.Dislikes = req.UpdatedList
	case domain.PreferenceAllergies:
		p.Allergies = req.UpdatedList
	default:
		http.Error(w, `{"detail":"Invalid field"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"status": "success"})
}

func (b *Backend) handleChatLogs(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	writeJSON(w, map[string]any{"chats": append([]domain.ChatLog{}, b.ChatLogs(email)...)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
