// Package interfaces provides the small interface definitions shared
// between the public packages and internal helpers, kept separate so the
// driver packages and the root package avoid import cycles.
package interfaces

// Logger is the logging surface the drivers use. The internal/logging
// package and any structured logger with printf-style methods satisfy it.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer receives driver events for metrics collection. Implementations
// must tolerate calls from the scheduler goroutine at sweep rate.
type Observer interface {
	// ObserveCommand is called for every AT command written to the modem.
	ObserveCommand(cmd string)

	// ObserveReply is called for every complete reply line parsed.
	ObserveReply(line string)

	// ObserveSend is called when payload bytes are handed to the modem.
	ObserveSend(bytes int)

	// ObserveReceive is called when payload bytes arrive from the modem.
	ObserveReceive(bytes int)

	// ObserveSendRetry is called when a failed transmission is rewound for
	// retransmission.
	ObserveSendRetry(bytes int)

	// ObserveConnect and ObserveDisconnect track channel lifecycle edges.
	ObserveConnect()
	ObserveDisconnect()

	// ObserveReset is called when the driver schedules a re-initialisation.
	ObserveReset()

	// ObserveError is called with an error kind of "serial", "dns" or
	// "general".
	ObserveError(kind string)
}
