// Package console is the byte-at-a-time terminal behind the standard
// descriptors.
package console

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"
)

// Console transfers single bytes to and from the terminal.
type Console interface {
	// PutByte writes one byte to the terminal.
	PutByte(b byte)
	// GetByte reads one byte. It returns false when input is closed or
	// exhausted.
	GetByte() (byte, bool)
}

// Device is a Console over an io.Reader and an io.Writer.
type Device struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// New creates a console reading from r and writing to w. Either may be nil:
// a nil reader is always exhausted, a nil writer discards output.
func New(r io.Reader, w io.Writer) *Device {
	if r == nil {
		r = strings.NewReader("")
	}
	if w == nil {
		w = io.Discard
	}
	return &Device{in: bufio.NewReader(r), out: w}
}

// PutByte implements Console.
func (d *Device) PutByte(b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Output errors have nowhere to go; the terminal drops the byte.
	_, _ = d.out.Write([]byte{b})
}

// GetByte implements Console.
func (d *Device) GetByte() (byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.in.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}

// Buffer is an in-memory console with fixed input and captured output.
type Buffer struct {
	*Device
	mu  sync.Mutex
	out bytes.Buffer
}

// NewBuffer creates a console whose input is the given string.
func NewBuffer(input string) *Buffer {
	b := &Buffer{}
	b.Device = New(strings.NewReader(input), lockedWriter{b})
	return b
}

// String returns everything written so far.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.String()
}

type lockedWriter struct{ b *Buffer }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	return w.b.out.Write(p)
}
