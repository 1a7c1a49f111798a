package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.Notifier = (*CLINotifier)(nil)
	_ domain.Notifier = (*QueueNotifier)(nil)
)

// ANSI escape codes for terminal formatting.
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	red   = "\033[31m"
	cyan  = "\033[36m"
)

// PrintFunc is a function used to print formatted output.
type PrintFunc func(format string, a ...interface{})

// CLINotifier writes notifications to stdout with ANSI formatting. Used
// outside the TUI, before it starts and after it exits.
type CLINotifier struct {
	log     *logger.Logger
	printFn PrintFunc
}

// NewCLINotifier creates a stdout-based notifier.
// If printFn is nil, fmt.Printf is used.
func NewCLINotifier(log *logger.Logger, printFn PrintFunc) *CLINotifier {
	if printFn == nil {
		printFn = func(format string, a ...interface{}) {
			fmt.Printf(format+"\n", a...)
		}
	}
	return &CLINotifier{log: log, printFn: printFn}
}

// Notify prints a normal notification.
func (n *CLINotifier) Notify(_ context.Context, message string) error {
	n.log.Debug("notify: %s", message)
	n.printFn("%s%s%s%s", cyan, bold, message, reset)
	return nil
}

// NotifyUrgent prints an urgent notification in bold red.
func (n *CLINotifier) NotifyUrgent(_ context.Context, message string) error {
	n.log.Debug("notify-urgent: %s", message)
	n.printFn("%s%s%s%s", red, bold, message, reset)
	return nil
}

// Notice is one notification waiting to be shown.
type Notice struct {
	Text   string
	Urgent bool
	At     time.Time
}

// QueueNotifier hands notifications to the TUI through a buffered channel.
// It never blocks the caller: when the queue is full the oldest plain
// notice is dropped, and an urgent notice always gets in.
type QueueNotifier struct {
	log *logger.Logger
	ch  chan Notice
}

// NewQueueNotifier creates a notifier holding up to size pending notices.
func NewQueueNotifier(size int, log *logger.Logger) *QueueNotifier {
	if size < 1 {
		size = 1
	}
	return &QueueNotifier{log: log, ch: make(chan Notice, size)}
}

// Notices is the stream the presentation layer drains.
func (n *QueueNotifier) Notices() <-chan Notice { return n.ch }

// Notify queues a normal notification.
func (n *QueueNotifier) Notify(_ context.Context, message string) error {
	n.log.Debug("notify: %s", message)
	n.enqueue(Notice{Text: message, At: time.Now()})
	return nil
}

// NotifyUrgent queues an urgent notification.
func (n *QueueNotifier) NotifyUrgent(_ context.Context, message string) error {
	n.log.Debug("notify-urgent: %s", message)
	n.enqueue(Notice{Text: message, Urgent: true, At: time.Now()})
	return nil
}

func (n *QueueNotifier) enqueue(nt Notice) {
	for {
		select {
		case n.ch <- nt:
			return
		default:
		}
		// Full: make room by dropping the oldest entry.
		select {
		case old := <-n.ch:
			n.log.Warn("notice queue full, dropping %q", old.Text)
		default:
		}
	}
}
