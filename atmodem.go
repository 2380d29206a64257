// Package atmodem gives applications on hosts without an IP stack a
// byte-stream connection through an external AT-command modem attached over
// a serial port.
//
// The library is built from cooperative pieces: ring buffers (package ring)
// bridge the serial interrupt path and the task path, a round-robin
// scheduler (package sched) polls the driver state machines, the serial
// package owns the buffered port, and the modem package implements one
// driver per modem family behind the channel contract defined here. Nothing
// blocks; the BlockingDevice adapter manufactures blocking behavior on top
// for callers that want it.
//
// All buffers are supplied by the caller and borrowed for the lifetime of
// the object they back; the library neither allocates nor copies them.
package atmodem

// Transport selects the IP transport of a channel.
type Transport int

const (
	TCP Transport = iota
	UDP
)

// String returns the transport name as it appears in AT dialogs.
func (t Transport) String() string {
	if t == UDP {
		return "UDP"
	}
	return "TCP"
}

// ConnectState is the coarse state of an IP channel.
type ConnectState int

const (
	// StateNotConnected: idle, no connection and none in progress.
	StateNotConnected ConnectState = iota

	// StateIntermediate: a connect or disconnect dialog is in flight.
	StateIntermediate

	// StateConnected: the channel is up and ready for payload I/O.
	StateConnected

	// StateTransmitting: payload is moving towards the modem.
	StateTransmitting

	// StateReceiving: payload is being fetched from the modem.
	StateReceiving

	// StateGeneralError: the modem reported an error; the driver resets and
	// retries on its own.
	StateGeneralError

	// StateDNSError: the modem could not resolve the configured host.
	StateDNSError
)

// String returns a short state name for logs.
func (s ConnectState) String() string {
	switch s {
	case StateNotConnected:
		return "not-connected"
	case StateIntermediate:
		return "intermediate"
	case StateConnected:
		return "connected"
	case StateTransmitting:
		return "transmitting"
	case StateReceiving:
		return "receiving"
	case StateGeneralError:
		return "general-error"
	case StateDNSError:
		return "dns-error"
	}
	return "unknown"
}

// CommDevice is the byte-stream surface of a communication channel. All
// operations are non-blocking.
type CommDevice interface {
	// BytesAvailable returns the number of received bytes ready to Read.
	BytesAvailable() int

	// SpaceAvailable returns how many bytes Write currently accepts. It is
	// zero whenever the channel is not fully connected, which is the
	// back-pressure signal.
	SpaceAvailable() int

	// Read drains up to len(p) received bytes into p, returning the count.
	Read(p []byte) int

	// Write queues up to SpaceAvailable() bytes of p for transmission,
	// returning the count accepted. Always zero when not connected.
	Write(p []byte) int
}

// StatefulDevice is a CommDevice with a connection lifecycle.
type StatefulDevice interface {
	CommDevice

	// Connect requests a connection. It performs no I/O and returns false
	// only when required configuration is missing. Poll IsConnected for
	// completion.
	Connect() bool

	// Disconnect requests an orderly teardown. Poll IsIdle for completion.
	Disconnect()

	// IsConnected reports whether payload I/O is possible.
	IsConnected() bool

	// IsIdle reports whether the device is fully disconnected.
	IsIdle() bool
}
