// Package port provides Raw serial-port implementations: an in-memory
// loopback pair for tests and examples, and a termios-backed Unix port for
// talking to real modems from a hosted Linux build.
package port

import (
	"sync"

	"github.com/behrlich/go-atmodem/serial"
)

// Loopback is one end of an in-memory serial connection. Bytes written to
// one end become readable on the other, which makes it the portable stand-in
// for real hardware: wire a modem driver to one end and an emulated peer to
// the other.
type Loopback struct {
	name string
	open bool

	mu   sync.Mutex
	peer *Loopback
	rx   []byte
}

// NewLoopbackPair returns two connected loopback ports.
func NewLoopbackPair() (*Loopback, *Loopback) {
	a := &Loopback{name: "loop0"}
	b := &Loopback{name: "loop1"}
	a.peer = b
	b.peer = a
	return a, b
}

// Open implements serial.Raw.
func (l *Loopback) Open() error {
	l.open = true
	return nil
}

// Close implements serial.Raw.
func (l *Loopback) Close() { l.open = false }

// IsOpen implements serial.Raw.
func (l *Loopback) IsOpen() bool { return l.open }

// SetConfig accepts any configuration; a memory pipe has no line settings.
func (l *Loopback) SetConfig(baudRate uint32, dataBits uint8) error { return nil }

// PortName implements serial.Raw.
func (l *Loopback) PortName() string { return l.name }

// RawRead implements serial.Raw.
func (l *Loopback) RawRead() (byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rx) == 0 {
		return 0, false
	}
	c := l.rx[0]
	l.rx = l.rx[1:]
	return c, true
}

// RawWrite implements serial.Raw.
func (l *Loopback) RawWrite(b byte) bool {
	l.peer.mu.Lock()
	l.peer.rx = append(l.peer.rx, b)
	l.peer.mu.Unlock()
	return true
}

// StartTransmit implements serial.Raw. The pipe has no TX interrupt to arm.
func (l *Loopback) StartTransmit() {}

// Inject makes data readable on this end without a peer write. Tests use it
// to fake unsolicited modem output.
func (l *Loopback) Inject(data []byte) {
	l.mu.Lock()
	l.rx = append(l.rx, data...)
	l.mu.Unlock()
}

var _ serial.Raw = (*Loopback)(nil)
