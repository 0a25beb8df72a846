package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/rs/zerolog"
)

// Sink delivers notifications. A sink may drop messages silently, for
// example when the user has not granted permission to show them.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

// TerminalSink prints notifications to a writer, wrapping bodies to Width.
type TerminalSink struct {
	W     io.Writer
	Width int

	mu sync.Mutex
}

// NewTerminalSink creates a TerminalSink. Width defaults to 72 columns.
func NewTerminalSink(w io.Writer, width int) *TerminalSink {
	if width <= 0 {
		width = 72
	}
	return &TerminalSink{W: w, Width: width}
}

// Notify writes n.
func (s *TerminalSink) Notify(_ context.Context, n Notification) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("[%s] %s", n.Kind, n.Title)))
	b.WriteString("\n")
	for _, line := range strings.Split(wordwrap.String(n.Body, s.Width-2), "\n") {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.W, b.String())
	return err
}

// LogSink records notifications as structured log events.
type LogSink struct {
	Log zerolog.Logger
}

// Notify logs n.
func (s LogSink) Notify(_ context.Context, n Notification) error {
	s.Log.Info().
		Str("kind", string(n.Kind)).
		Str("id", n.EntityID).
		Str("title", n.Title).
		Msg(n.Body)
	return nil
}

// Multi fans a notification out to several sinks. Every sink is tried; the
// joined error of the failing ones is returned.
type Multi []Sink

// Notify calls every sink.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every notification.
var Discard Sink = SinkFunc(func(context.Context, Notification) error { return nil })
