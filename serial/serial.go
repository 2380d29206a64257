// Package serial defines the platform serial-port contract and a buffered
// port that bridges it to cooperative tasks through a pair of line-counting
// ring buffers.
//
// The split mirrors the hardware: a Raw implementation touches UART
// registers (or a file descriptor, or a test double) one byte at a time,
// while Buffered owns the ring buffers and the Transfer pump that an
// interrupt handler — or a pump task standing in for one — calls to move
// bytes between the two.
package serial

// Raw is the platform-specific port the buffered layer drives. Implementations
// exist per target; the loopback port in the port package is the portable
// reference.
type Raw interface {
	// Open opens the device. Configuration applies only while closed.
	Open() error

	// Close closes the device.
	Close()

	// IsOpen reports whether the device is open.
	IsOpen() bool

	// SetConfig sets baud rate and word length. Valid only while closed or
	// before first I/O.
	SetConfig(baudRate uint32, dataBits uint8) error

	// PortName identifies the port for diagnostics.
	PortName() string

	// RawRead reads one byte from the hardware, reporting false when none
	// is ready.
	RawRead() (byte, bool)

	// RawWrite writes one byte to the hardware, reporting false when the
	// hardware cannot accept it.
	RawWrite(b byte) bool

	// StartTransmit signals the platform that the write buffer has data.
	// Interrupt-driven ports enable the TX-empty interrupt here; polled
	// ports do nothing.
	StartTransmit()
}

// Device is the buffered-port surface the modem drivers consume. Buffered
// implements it for real ports; the ScriptedPort in the root package
// implements it for tests.
type Device interface {
	Open() error
	IsOpen() bool
	Close()

	// BytesAvailable returns the occupancy of the read buffer.
	BytesAvailable() int

	// SpaceAvailable returns the free space of the write buffer.
	SpaceAvailable() int

	// ReadByte pulls one byte from the read buffer. Calling it with no
	// bytes available returns stale data; check BytesAvailable first.
	ReadByte() byte

	// Read drains up to len(p) bytes from the read buffer.
	Read(p []byte) int

	// Write copies up to SpaceAvailable bytes of p into the write buffer
	// and starts transmission, returning the number accepted.
	Write(p []byte) int

	// WriteByte queues a single byte; the payload phases use it.
	WriteByte(c byte)

	// WriteString is Write for string arguments, avoiding a copy at the
	// call sites that assemble AT commands from literals.
	WriteString(s string) int

	// CanReadLine reports whether a complete line sits in the read buffer.
	CanReadLine() bool

	// ReadLine pulls the next line, including its newline, into p. A line
	// longer than p is truncated but fully consumed. Returns bytes copied.
	ReadLine(p []byte) int

	// FlushReceiveBuffers discards everything in the read buffer.
	FlushReceiveBuffers()

	// ReadBufferSize returns the capacity of the read buffer.
	ReadBufferSize() int

	// WriteBufferProcessed reports whether all buffered outgoing bytes have
	// reached the hardware.
	WriteBufferProcessed() bool
}
