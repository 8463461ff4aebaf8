package net

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// FlushReason tells why the framer released a message.
type FlushReason int

const (
	FlushPrompt   FlushReason = iota // buffer ended with a prompt marker
	FlushTimeout                     // no data for the idle timeout
	FlushOverflow                    // buffer exceeded the safety valve
)

func (r FlushReason) String() string {
	switch r {
	case FlushPrompt:
		return "prompt"
	case FlushTimeout:
		return "timeout"
	case FlushOverflow:
		return "overflow"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// FramingConfig holds the message boundary rules.
type FramingConfig struct {
	LoggedInTimeout time.Duration // idle gap that ends a message after login
	PreLoginTimeout time.Duration // idle gap before login (prompts arrive without newline)
	MaxBuffer       int           // characters; larger buffers are flushed unconditionally
}

// DefaultFraming returns the timings the game server is known to need.
func DefaultFraming() FramingConfig {
	return FramingConfig{
		LoggedInTimeout: 1000 * time.Millisecond,
		PreLoginTimeout: 50 * time.Millisecond,
		MaxBuffer:       100000,
	}
}

// framer accumulates decoded text and cuts it into messages.
// It is not safe for concurrent use; Session guards it with its mutex.
type framer struct {
	cfg      FramingConfig
	buf      strings.Builder
	lastData time.Time
	loggedIn bool
}

func newFramer(cfg FramingConfig) *framer {
	return &framer{cfg: cfg}
}

func (f *framer) Append(text string, now time.Time) {
	if text == "" {
		return
	}
	f.buf.WriteString(text)
	f.lastData = now
}

// Buffer returns the unflushed text.
func (f *framer) Buffer() string {
	return f.buf.String()
}

func (f *framer) SetLoggedIn(v bool) {
	f.loggedIn = v
}

func (f *framer) LoggedIn() bool {
	return f.loggedIn
}

// TakeComplete returns the buffered message if it ends with a prompt marker
// or has grown past MaxBuffer.
func (f *framer) TakeComplete() (string, FlushReason, bool) {
	s := f.buf.String()
	if s == "" {
		return "", 0, false
	}
	if f.loggedIn {
		if strings.HasSuffix(s, "> ") {
			return f.take(), FlushPrompt, true
		}
	} else if strings.HasSuffix(s, ": ") || strings.HasSuffix(s, ":\n") {
		return f.take(), FlushPrompt, true
	}
	if len(s) > f.cfg.MaxBuffer && utf8.RuneCountInString(s) > f.cfg.MaxBuffer {
		return f.take(), FlushOverflow, true
	}
	return "", 0, false
}

// TakeExpired returns the buffered message if no data arrived for the idle
// timeout of the current phase.
func (f *framer) TakeExpired(now time.Time) (string, bool) {
	if f.buf.Len() == 0 {
		return "", false
	}
	timeout := f.cfg.PreLoginTimeout
	if f.loggedIn {
		timeout = f.cfg.LoggedInTimeout
	}
	if now.Sub(f.lastData) < timeout {
		return "", false
	}
	return f.take(), true
}

func (f *framer) take() string {
	s := f.buf.String()
	f.buf.Reset()
	return s
}
