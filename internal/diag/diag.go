// Package diag reports progress and problems to the user.
package diag

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Sink receives user-facing messages. Implementations must be safe for
// concurrent use.
type Sink interface {
	// Info prints msg as is.
	Info(msg string)
	// Warn prints msg prefixed with the program name.
	Warn(msg string)
}

// Console is a Sink writing lines to a terminal or stream.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	prog string
	name *color.Color
}

// NewConsole returns a Console writing to w. The program name is
// highlighted when useColor is set.
func NewConsole(w io.Writer, prog string, useColor bool) *Console {
	name := color.New(color.FgYellow, color.Bold)
	if useColor {
		name.EnableColor()
	} else {
		name.DisableColor()
	}
	return &Console{w: w, prog: prog, name: name}
}

func (c *Console) Info(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, msg)
}

func (c *Console) Warn(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s: %s\n", c.name.Sprint(c.prog), msg)
}

// Print writes s without a trailing newline.
func (c *Console) Print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.w, s)
}

// ColorEnabled decides whether output to w is coloured. An explicit
// disable and NO_COLOR (set to any value) both turn colour off; otherwise w
// must be a terminal.
func ColorEnabled(w io.Writer, disable bool) bool {
	if disable {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Discard is a Sink that drops every message.
var Discard Sink = discard{}

type discard struct{}

func (discard) Info(string) {}
func (discard) Warn(string) {}

// Message is one recorded diagnostic.
type Message struct {
	Warn bool
	Text string
}

// Recorder is a Sink that keeps messages in memory until they are replayed.
// It lets concurrent work report in a fixed order.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *Recorder) Info(msg string) { r.add(Message{Text: msg}) }
func (r *Recorder) Warn(msg string) { r.add(Message{Warn: true, Text: msg}) }

func (r *Recorder) add(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Replay sends the recorded messages to dst in order and forgets them.
func (r *Recorder) Replay(dst Sink) {
	r.mu.Lock()
	msgs := r.msgs
	r.msgs = nil
	r.mu.Unlock()
	for _, m := range msgs {
		if m.Warn {
			dst.Warn(m.Text)
		} else {
			dst.Info(m.Text)
		}
	}
}
