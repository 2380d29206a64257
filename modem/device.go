// Package modem implements the AT-dialog state machines that turn a serial
// port with an attached modem into an IP byte-stream channel.
//
// One driver exists per modem family (SIM800, SIM7x00, ESP8266, CC1352P7,
// RAK RUI3). Every driver is a sched.Task: the scheduler polls Step, and
// each sweep moves the AT dialog forward by at most one command while
// shuffling payload between the device buffers and the serial port. The
// drivers share the channel contract of the root package and the sweep
// skeleton in this file and at.go; the per-family files contribute the
// family's command sequences and reply parsers.
package modem

import (
	"github.com/behrlich/go-atmodem"
	"github.com/behrlich/go-atmodem/ring"
)

// State flag bits. One byte holds the concurrent booleans of a driver.
const (
	// FlagConnectPending: an API-level connect was requested and not yet
	// acted on.
	FlagConnectPending uint8 = 1 << iota

	// FlagResetPending: the driver must re-initialise on its next sweep.
	FlagResetPending

	// FlagDataPending: the modem announced incoming data.
	FlagDataPending

	// FlagDisconnectPending: an API-level disconnect was requested.
	FlagDisconnectPending

	// FlagIPConnected: the modem reports the IP connection as up.
	FlagIPConnected

	// FlagLineRead: inbound bytes are AT reply lines to assemble, as
	// opposed to counted binary payload.
	FlagLineRead

	// FlagSerialLocked: a custom-AT escape holds exclusive use of the
	// serial port.
	FlagSerialLocked
)

// ipDevice carries the state every IP channel shares: the payload buffers,
// the target endpoint, the flag byte and the coarse connection state. The
// payload storage is caller-supplied and borrowed.
type ipDevice struct {
	readBuf  *ring.Buffer[byte]
	writeBuf *ring.Buffer[byte]

	host      string
	port      uint16
	transport atmodem.Transport

	flags uint8
	state atmodem.ConnectState
}

func (d *ipDevice) initIP(readStorage, writeStorage []byte) {
	d.readBuf = ring.New(readStorage)
	d.writeBuf = ring.New(writeStorage)
	d.flags = FlagLineRead
	d.state = atmodem.StateNotConnected
}

// SetHostPort records the connection target. The host string is borrowed
// and not validated here.
func (d *ipDevice) SetHostPort(transport atmodem.Transport, host string, port uint16) {
	d.transport = transport
	d.host = host
	d.port = port
}

// connectRequest raises the connect-pending flag if the endpoint is
// configured. Family drivers layer their credential checks on top.
func (d *ipDevice) connectRequest() bool {
	if d.host == "" || d.port == 0 {
		return false
	}
	d.flags |= FlagConnectPending
	return true
}

// Connect requests a connection; the driver acts on it during its sweeps.
func (d *ipDevice) Connect() bool {
	return d.connectRequest()
}

// Disconnect requests an orderly teardown.
func (d *ipDevice) Disconnect() {
	d.flags |= FlagDisconnectPending
}

// IsConnected reports whether payload I/O is possible.
func (d *ipDevice) IsConnected() bool {
	return d.state == atmodem.StateConnected || d.state == atmodem.StateTransmitting
}

// IsIdle reports whether the device is fully disconnected.
func (d *ipDevice) IsIdle() bool {
	return d.state == atmodem.StateNotConnected
}

// ConnectState returns the coarse connection state.
func (d *ipDevice) ConnectState() atmodem.ConnectState {
	return d.state
}

// Flags returns the current state flag byte, for diagnostics and tests.
func (d *ipDevice) Flags() uint8 {
	return d.flags
}

// BytesAvailable returns the occupancy of the read buffer.
func (d *ipDevice) BytesAvailable() int {
	return d.readBuf.BytesAvailable()
}

// SpaceAvailable returns the free space of the write buffer, or zero while
// the channel is not connected — the back-pressure signal.
func (d *ipDevice) SpaceAvailable() int {
	if d.state != atmodem.StateConnected {
		return 0
	}
	return d.writeBuf.SpaceAvailable()
}

// Read drains up to len(p) received bytes.
func (d *ipDevice) Read(p []byte) int {
	return d.readBuf.Pull(p)
}

// Write queues up to SpaceAvailable bytes for transmission. Zero while not
// connected.
func (d *ipDevice) Write(p []byte) int {
	if d.state != atmodem.StateConnected {
		return 0
	}
	return d.writeBuf.Push(p)
}

// WriteBufferProcessed reports whether all accepted payload left the
// device-level write buffer.
func (d *ipDevice) WriteBufferProcessed() bool {
	return d.writeBuf.IsEmpty()
}
