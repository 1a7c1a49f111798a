// Package display provides the terminal UI using Bubble Tea.
//
// The [UI] renders a chat session from its published snapshots. Finished
// messages are printed above the rendered area via Program.Println, so
// the scrollback is append-only; the live area below holds the reply
// being typed, the pending suggestions, a status bar and the input
// prompt.
package display

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/tabkha/internal/conversation"
	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/session"
)

// ── Styles ───────────────────────────────────────────────────────

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	connOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	connWaitStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a"))

	connDownStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#52525b"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	// ── Output styles (soft palette) ──

	// BannerStyle is the muted slate used for the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	// Bot replies.
	chatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd"))

	// Headers.
	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	primaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))

	secondaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	urgentOutputStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#fca5a5")).
				Bold(true)

	userInputEchoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#a1a1aa"))

	suggestionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a"))
)

const promptText = "tabkha> "

// Source is a running chat session the UI can follow.
type Source interface {
	Snapshot() session.Snapshot
	Updates() <-chan struct{}
	Done() <-chan struct{}
}

// ── UI ───────────────────────────────────────────────────────────

// UI manages the terminal through Bubble Tea.
//
// Call [NewUI] then [UI.Run] (blocking). Other goroutines may call
// [UI.Attach], [UI.Println] and read from [UI.InputChan] once
// [UI.WaitReady] returns.
type UI struct {
	program *tea.Program
	inputCh chan string
	readyCh chan struct{}
	quitCh  chan struct{}
	notices <-chan conversation.Notice
	done    atomic.Bool
	mu      sync.Mutex
}

// NewUI creates the display. notices may be nil.
func NewUI(notices <-chan conversation.Notice) *UI {
	return &UI{
		inputCh: make(chan string, 16),
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
		notices: notices,
	}
}

// Attach switches the UI to a new session. Messages already printed stay
// in the scrollback.
func (u *UI) Attach(src Source) {
	u.send(attachMsg{src: src})
}

// Detach stops following the current session, e.g. while signing in.
func (u *UI) Detach() {
	u.send(attachMsg{})
}

// Prompt replaces the input placeholder, used before a session exists.
func (u *UI) Prompt(hint string) {
	u.send(promptMsg(hint))
}

func (u *UI) send(msg tea.Msg) {
	u.mu.Lock()
	p := u.program
	u.mu.Unlock()
	if p != nil && !u.done.Load() {
		p.Send(msg)
	}
}

// Println prints a line above the prompt. Thread-safe.
// If the program hasn't started yet, falls back to fmt.Println.
func (u *UI) Println(a ...interface{}) {
	u.mu.Lock()
	p := u.program
	u.mu.Unlock()
	if p != nil && !u.done.Load() {
		p.Println(a...)
	} else {
		fmt.Println(a...)
	}
}

// Printf prints formatted text above the prompt. Thread-safe.
func (u *UI) Printf(format string, a ...interface{}) {
	u.mu.Lock()
	p := u.program
	u.mu.Unlock()
	if p != nil && !u.done.Load() {
		p.Printf(format, a...)
	} else {
		fmt.Printf(format+"\n", a...)
	}
}

// InputChan returns completed user-input lines.
func (u *UI) InputChan() <-chan string { return u.inputCh }

// ── Styled print helpers ─────────────────────────────────────────

// PrintChat prints a bot line.
func (u *UI) PrintChat(text string) {
	u.Println(chatStyle.Render("  " + text))
}

// PrintStep prints a section header.
func (u *UI) PrintStep(text string) {
	u.Println(stepStyle.Render("  " + text))
}

// PrintInstruction prints body text.
func (u *UI) PrintInstruction(text string) {
	u.Println(primaryStyle.Render("  " + text))
}

// PrintHint prints a secondary/dimmed line.
func (u *UI) PrintHint(text string) {
	u.Println(secondaryStyle.Render("  " + text))
}

// PrintUrgent prints an urgent/error line.
func (u *UI) PrintUrgent(text string) {
	u.Println(urgentOutputStyle.Render("  " + text))
}

// WaitReady blocks until the Bubble Tea event loop is running.
func (u *UI) WaitReady() { <-u.readyCh }

// Quit tells Bubble Tea to exit.
func (u *UI) Quit() {
	u.mu.Lock()
	p := u.program
	u.mu.Unlock()
	if p != nil {
		p.Quit()
	}
}

// QuitChan is closed when Run returns.
func (u *UI) QuitChan() <-chan struct{} { return u.quitCh }

// Run starts the Bubble Tea event loop. Blocks until quit.
func (u *UI) Run() error {
	m := newModel(u.inputCh, u.readyCh, u.notices)

	p := tea.NewProgram(m)
	u.mu.Lock()
	u.program = p
	u.mu.Unlock()

	_, err := p.Run()
	u.done.Store(true)
	close(u.quitCh)
	return err
}

// ── Bubble Tea model ─────────────────────────────────────────────

type model struct {
	input   textinput.Model
	spin    spinner.Model
	inputCh chan<- string
	readyCh chan struct{}
	notices <-chan conversation.Notice

	src     Source
	gen     int
	snap    session.Snapshot
	printed int // highest ordinal already in the scrollback
	hint    string
	starter int
	width   int
}

// Messages.
type (
	attachMsg struct{ src Source }
	promptMsg string
	updateMsg struct{ gen int }
	noticeMsg conversation.Notice
	readyMsg  struct{}
)

func newModel(inputCh chan<- string, readyCh chan struct{}, notices <-chan conversation.Notice) model {
	ti := textinput.New()
	// Use a plain-text prompt so the textinput width math stays correct.
	// Lipgloss-styled prompts add invisible ANSI bytes that break the
	// internal offset/scroll calculations for long input.
	ti.Prompt = promptText
	ti.PromptStyle = promptStyle
	ti.TextStyle = userInputEchoStyle
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60 // updated on first WindowSizeMsg

	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	sp.Style = secondaryStyle

	return model{
		input:   ti,
		spin:    sp,
		inputCh: inputCh,
		readyCh: readyCh,
		notices: notices,
		hint:    conversation.HintConnecting,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spin.Tick,
		signalReady(m.readyCh),
		waitForNotice(m.notices),
		tea.SetWindowTitle("Tabkha"),
	)
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return readyMsg{}
	}
}

// waitForUpdate blocks until the source publishes or finishes. gen tags
// the message so a source that was swapped out is ignored.
func waitForUpdate(src Source, gen int) tea.Cmd {
	if src == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-src.Updates():
		case <-src.Done():
		}
		return updateMsg{gen: gen}
	}
}

func waitForNotice(ch <-chan conversation.Notice) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyCtrlT:
			return m, m.submit("/talk", false)
		case tea.KeyTab:
			if starters := m.starters(); len(starters) > 0 && m.input.Value() == "" {
				m.input.SetValue(starters[m.starter%len(starters)])
				m.input.CursorEnd()
				m.starter++
				return m, nil
			}
		case tea.KeyEnter:
			v := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(v) == "" {
				return m, nil
			}
			// Chat lines come back as messages; only commands and
			// sign-in answers are echoed.
			echo := m.src == nil || strings.HasPrefix(strings.TrimSpace(v), "/")
			return m, m.submit(v, echo)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width > len(promptText) {
			m.input.Width = msg.Width - len(promptText)
		}
		return m, nil

	case attachMsg:
		// Ordinals restart with every session.
		m.gen++
		m.src = msg.src
		m.snap = session.Snapshot{}
		m.printed = 0
		if m.src == nil {
			return m, nil
		}
		return m.refresh()

	case promptMsg:
		m.hint = string(msg)
		m.input.Placeholder = m.hint
		return m, nil

	case updateMsg:
		if msg.gen != m.gen || m.src == nil {
			return m, nil
		}
		return m.refresh()

	case noticeMsg:
		line := chatStyle.Render("  " + msg.Text)
		if msg.Urgent {
			line = urgentOutputStyle.Render("  " + msg.Text)
		}
		return m, tea.Batch(tea.Println(line), waitForNotice(m.notices))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit hands a line to the application. The send never blocks Update.
func (m model) submit(v string, echo bool) tea.Cmd {
	ch := m.inputCh
	send := func() tea.Msg {
		ch <- v
		return nil
	}
	if !echo {
		return send
	}
	line := promptStyle.Render("you") + secondaryStyle.Render("> ") + userInputEchoStyle.Render(v)
	return tea.Sequence(tea.Println(line), send)
}

// refresh pulls the latest snapshot, prints newly committed messages and
// keeps listening.
func (m model) refresh() (tea.Model, tea.Cmd) {
	prev := m.snap
	m.snap = m.src.Snapshot()
	m.hint = Hint(m.snap)
	m.input.Placeholder = m.hint

	var lines []string
	if len(m.snap.Messages) < len(prev.Messages) {
		lines = append(lines, sepStyle.Render("  ── new chat ──"))
	}
	for _, msg := range Unprinted(m.snap.Messages, m.printed) {
		lines = append(lines, RenderMessage(msg))
		m.printed = msg.Ordinal
	}
	if m.snap.Phase == domain.PhaseTerminated && prev.Phase != domain.PhaseTerminated {
		lines = append(lines, secondaryStyle.Render("  session ended ("+m.snap.Cause.String()+")"))
	}

	cmds := []tea.Cmd{waitForUpdate(m.src, m.gen)}
	if len(lines) > 0 {
		cmds = append(cmds, tea.Println(strings.Join(lines, "\n")))
	}
	if m.snap.Phase == domain.PhaseTerminated {
		// Done is closed; do not spin on it.
		cmds = cmds[1:]
	}
	return m, tea.Batch(cmds...)
}

func (m model) starters() []string {
	if m.src == nil || m.snap.Started || m.snap.Phase != domain.PhaseActive || len(m.snap.Messages) > 0 {
		return nil
	}
	return conversation.Starters()
}

func (m model) View() string {
	var b strings.Builder

	if m.snap.Revealing {
		b.WriteString(chatStyle.Render("  " + m.snap.Typing + "▍"))
		b.WriteByte('\n')
	}

	if s := m.snap.Suggestions; s != nil && m.snap.Phase == domain.PhaseActive {
		b.WriteString(RenderSuggestions(s))
		b.WriteByte('\n')
	}

	if starters := m.starters(); len(starters) > 0 {
		b.WriteString(secondaryStyle.Render("  tab: " + strings.Join(starters, " · ")))
		b.WriteByte('\n')
	}

	if m.src != nil {
		b.WriteString(m.renderBar())
		b.WriteByte('\n')
	}

	// Blank line before prompt for visual separation.
	b.WriteByte('\n')
	if busy(m.snap) {
		b.WriteString(m.spin.View() + " ")
	}
	b.WriteString(m.input.View())
	return b.String()
}

func (m model) renderBar() string {
	s := m.snap
	parts := []string{
		labelStyle.Render("mode: ") + primaryStyle.Render(string(s.Mode)),
		renderConn(s.Conn),
	}
	if s.Identity != "" {
		parts = append(parts, labelStyle.Render(s.Identity))
	}
	if s.Current != nil {
		parts = append(parts, labelStyle.Render("recipe: ")+primaryStyle.Render(s.Current.Title))
	}
	if n := len(s.Favourites); n > 0 {
		parts = append(parts, labelStyle.Render(fmt.Sprintf("♥ %d", n)))
	}

	content := " " + strings.Join(parts, sepStyle.Render("  │  ")) + " "

	w := m.width
	if w <= 0 {
		w = 80
	}
	return barBg.Width(w).Render(content)
}

// ── Pure helpers ─────────────────────────────────────────────────

// Hint is the input placeholder for the session's current state.
func Hint(s session.Snapshot) string {
	switch {
	case s.Phase != domain.PhaseActive:
		return conversation.HintConnecting
	case s.Recording:
		return conversation.HintListening
	case s.Transcribing:
		return conversation.HintThinking
	case s.Speaking:
		return conversation.HintSpeaking
	case s.Suggestions != nil:
		return conversation.HintChoose
	case s.Awaiting:
		return conversation.HintWait
	case s.Mode == domain.ModeVoice:
		return conversation.HintTalk
	}
	return conversation.HintType
}

// Unprinted returns the messages with an ordinal above printed.
func Unprinted(msgs []domain.Message, printed int) []domain.Message {
	for i, msg := range msgs {
		if msg.Ordinal > printed {
			return msgs[i:]
		}
	}
	return nil
}

// RenderMessage formats one committed message for the scrollback.
func RenderMessage(msg domain.Message) string {
	if msg.Sender == domain.SenderUser {
		return userInputEchoStyle.Render("  " + msg.Text)
	}
	return chatStyle.Render("  " + msg.Text)
}

// RenderSuggestions lists the pending titles, numbered from 1.
func RenderSuggestions(s *domain.SuggestionSet) string {
	var b strings.Builder
	b.WriteString(secondaryStyle.Render("  " + conversation.HintChoiceList))
	for i, t := range s.Titles {
		b.WriteByte('\n')
		b.WriteString(suggestionStyle.Render(fmt.Sprintf("  [%d] %s", i+1, t)))
	}
	return b.String()
}

func renderConn(c domain.ConnStatus) string {
	switch c {
	case domain.ConnConnected:
		return connOKStyle.Render("● " + c.String())
	case domain.ConnConnecting:
		return connWaitStyle.Render("◌ " + c.String())
	}
	return connDownStyle.Render("○ " + c.String())
}

func busy(s session.Snapshot) bool {
	return s.Phase == domain.PhaseConnecting || s.Awaiting || s.Transcribing
}
