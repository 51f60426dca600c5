// Package console reads single key presses from the controlling terminal.
package console

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when stdin is not a terminal, e.g. when the
// monitor runs detached.
var ErrNotTerminal = errors.New("stdin is not a terminal")

// KeyCtrlC arrives as a byte while the terminal is raw.
const KeyCtrlC = 3

// KeyReader puts the terminal in raw mode and delivers key presses.
type KeyReader struct {
	in    io.Reader
	fd    int
	state *term.State
	raw   atomic.Bool
	keys  chan rune
	once  sync.Once
}

// NewKeyReader creates a reader for f, usually os.Stdin.
func NewKeyReader(f *os.File) *KeyReader {
	return &KeyReader{
		in:   f,
		fd:   int(f.Fd()),
		keys: make(chan rune, 16),
	}
}

// Start switches the terminal to raw mode and begins reading. The channel
// is closed when input ends.
func (k *KeyReader) Start() (<-chan rune, error) {
	if !term.IsTerminal(k.fd) {
		return nil, ErrNotTerminal
	}
	state, err := term.MakeRaw(k.fd)
	if err != nil {
		return nil, err
	}
	k.state = state
	k.raw.Store(true)

	go k.pump()
	return k.keys, nil
}

// Restore returns the terminal to its previous mode. Safe to call twice.
func (k *KeyReader) Restore() error {
	var err error
	k.once.Do(func() {
		if k.state != nil {
			k.raw.Store(false)
			err = term.Restore(k.fd, k.state)
		}
	})
	return err
}

// Writer wraps w so lines end in CRLF while the terminal is raw. Log sinks
// sharing the terminal go through it.
func (k *KeyReader) Writer(w io.Writer) io.Writer {
	return &crlfWriter{w: w, raw: &k.raw}
}

func (k *KeyReader) pump() {
	defer close(k.keys)
	buf := make([]byte, 1)
	for {
		n, err := k.in.Read(buf)
		if n == 1 {
			select {
			case k.keys <- rune(buf[0]):
			default:
				// Reader is behind; drop the key.
			}
		}
		if err != nil {
			return
		}
	}
}

type crlfWriter struct {
	w   io.Writer
	raw *atomic.Bool
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	if !c.raw.Load() || !bytes.Contains(p, []byte{'\n'}) {
		return c.w.Write(p)
	}
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\r', '\n'})); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Sync flushes the wrapped writer when it supports it.
func (c *crlfWriter) Sync() error {
	if s, ok := c.w.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}
