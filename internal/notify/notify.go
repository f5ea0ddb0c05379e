// Package notify delivers the short success and failure messages pharmactl
// shows after a save.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

type Notifier interface {
	Success(msg string)
	Error(msg string)
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

// Terminal prints toasts as single styled lines.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) Success(msg string) {
	t.write(successStyle.Render("✔ ") + msg)
}

func (t *Terminal) Error(msg string) {
	t.write(errorStyle.Render("✖ ") + msg)
}

func (t *Terminal) write(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintln(t.out, line)
}

// Log records toasts at info and warn level.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Success(msg string) {
	l.logger.Info("notify", zap.String("kind", "success"), zap.String("message", msg))
}

func (l *Log) Error(msg string) {
	l.logger.Warn("notify", zap.String("kind", "error"), zap.String("message", msg))
}

// Fanout sends every message to each notifier in order.
type Fanout []Notifier

func (f Fanout) Success(msg string) {
	for _, n := range f {
		n.Success(msg)
	}
}

func (f Fanout) Error(msg string) {
	for _, n := range f {
		n.Error(msg)
	}
}
