package serial

import (
	"sync"

	"github.com/behrlich/go-atmodem/ring"
	"github.com/behrlich/go-atmodem/sched"
)

// Buffered wraps a Raw port with a read/write ring-buffer pair.
//
// Two agents touch the rings: the task-side caller (through the Device
// methods) and the pump (through Transfer, standing in for the UART
// interrupt). A single mutex plays the role interrupt masking plays on bare
// metal: it is held only for the short index updates, never across I/O.
type Buffered struct {
	raw Raw

	mu       sync.Mutex
	readBuf  *ring.LineBuffer
	writeBuf *ring.LineBuffer
}

// NewBuffered creates a buffered port over raw. The two storage slices back
// the read and write rings and must stay valid for the port's lifetime.
func NewBuffered(raw Raw, readStorage, writeStorage []byte) *Buffered {
	return &Buffered{
		raw:      raw,
		readBuf:  ring.NewLine(readStorage),
		writeBuf: ring.NewLine(writeStorage),
	}
}

// Open opens the underlying raw port.
func (b *Buffered) Open() error { return b.raw.Open() }

// IsOpen reports whether the underlying raw port is open.
func (b *Buffered) IsOpen() bool { return b.raw.IsOpen() }

// Close closes the underlying raw port.
func (b *Buffered) Close() { b.raw.Close() }

// SetConfig forwards to the raw port.
func (b *Buffered) SetConfig(baudRate uint32, dataBits uint8) error {
	return b.raw.SetConfig(baudRate, dataBits)
}

// PortName forwards to the raw port.
func (b *Buffered) PortName() string { return b.raw.PortName() }

// BytesAvailable returns the occupancy of the read buffer.
func (b *Buffered) BytesAvailable() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readBuf.BytesAvailable()
}

// SpaceAvailable returns the free space of the write buffer.
func (b *Buffered) SpaceAvailable() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeBuf.SpaceAvailable()
}

// ReadByte pulls one byte from the read buffer.
func (b *Buffered) ReadByte() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, _ := b.readBuf.PullOne()
	return c
}

// Read drains up to len(p) bytes from the read buffer.
func (b *Buffered) Read(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readBuf.Pull(p)
}

// Write copies up to SpaceAvailable bytes into the write buffer and starts
// transmission.
func (b *Buffered) Write(p []byte) int {
	b.mu.Lock()
	n := b.writeBuf.Push(p)
	b.mu.Unlock()
	b.raw.StartTransmit()
	return n
}

// WriteByte queues a single byte and starts transmission.
func (b *Buffered) WriteByte(c byte) {
	b.mu.Lock()
	b.writeBuf.PushOne(c)
	b.mu.Unlock()
	b.raw.StartTransmit()
}

// WriteString copies up to SpaceAvailable bytes of s into the write buffer
// and starts transmission.
func (b *Buffered) WriteString(s string) int {
	b.mu.Lock()
	n := 0
	for n < len(s) {
		if !b.writeBuf.PushOne(s[n]) {
			break
		}
		n++
	}
	b.mu.Unlock()
	b.raw.StartTransmit()
	return n
}

// CanReadLine reports whether a complete line sits in the read buffer.
func (b *Buffered) CanReadLine() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readBuf.HasLine()
}

// ReadLine pulls the next line, including its newline, into p. Longer lines
// are truncated but fully consumed. No terminator byte is appended; the
// returned count delimits the line.
func (b *Buffered) ReadLine(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readBuf.ReadLine(p)
}

// FlushReceiveBuffers discards everything in the read buffer.
func (b *Buffered) FlushReceiveBuffers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readBuf.Flush()
}

// ReadBufferSize returns the capacity of the read buffer.
func (b *Buffered) ReadBufferSize() int {
	return b.readBuf.Size()
}

// WriteBufferProcessed reports whether the write buffer is drained.
func (b *Buffered) WriteBufferProcessed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeBuf.IsEmpty()
}

// Transfer moves at most one byte in each direction between the rings and
// the raw port. It is the interrupt-side pump: platforms call it from the
// UART ISR, hosted ports call it from a PumpTask. Incoming bytes use the
// overwrite push — an overrun at this level mirrors a hardware overrun and
// favors fresh data.
func (b *Buffered) Transfer() {
	b.mu.Lock()
	c, pending := b.writeBuf.Peek()
	b.mu.Unlock()
	if pending && b.raw.RawWrite(c) {
		b.mu.Lock()
		b.writeBuf.PullOne()
		b.mu.Unlock()
	}

	if c, ok := b.raw.RawRead(); ok {
		b.mu.Lock()
		b.readBuf.PushOverwrite(c)
		b.mu.Unlock()
	}
}

// PumpTask adapts a Buffered port to the scheduler so hosted platforms
// without a real interrupt can run the pump as a cooperative task.
type PumpTask struct {
	sched.TaskBase
	Port *Buffered
}

// NewPumpTask returns a task that calls port.Transfer once per sweep.
func NewPumpTask(port *Buffered) *PumpTask {
	return &PumpTask{Port: port}
}

// Step implements sched.Task.
func (t *PumpTask) Step() {
	t.Port.Transfer()
}

var _ Device = (*Buffered)(nil)
