package atmodem

import (
	"sync/atomic"
	"time"

	"github.com/behrlich/go-atmodem/internal/interfaces"
)

// Metrics tracks operational statistics for a modem device. All counters
// are atomic; a Metrics may be shared between the scheduler goroutine and a
// reporting goroutine. It implements the observer hooks the drivers call,
// so wiring is one line:
//
//	driver.SetObserver(metrics)
type Metrics struct {
	// Dialog counters
	CommandsSent  atomic.Uint64 // AT commands written
	RepliesParsed atomic.Uint64 // complete reply lines handled

	// Payload byte counters
	BytesSent     atomic.Uint64
	BytesReceived atomic.Uint64
	SendRetries   atomic.Uint64 // transmissions rewound and retried
	RetriedBytes  atomic.Uint64

	// Lifecycle counters
	Connects    atomic.Uint64
	Disconnects atomic.Uint64
	Resets      atomic.Uint64

	// Error counters by kind
	SerialErrors  atomic.Uint64
	DNSErrors     atomic.Uint64
	GeneralErrors atomic.Uint64

	// StartTime is the creation timestamp (UnixNano).
	StartTime atomic.Int64
}

// NewMetrics creates a metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// Observer hooks, called by the drivers.

func (m *Metrics) ObserveCommand(cmd string) { m.CommandsSent.Add(1) }

func (m *Metrics) ObserveReply(line string) { m.RepliesParsed.Add(1) }

func (m *Metrics) ObserveSend(bytes int) {
	m.BytesSent.Add(uint64(bytes))
}

func (m *Metrics) ObserveReceive(bytes int) {
	m.BytesReceived.Add(uint64(bytes))
}

func (m *Metrics) ObserveSendRetry(bytes int) {
	m.SendRetries.Add(1)
	m.RetriedBytes.Add(uint64(bytes))
}

func (m *Metrics) ObserveConnect() { m.Connects.Add(1) }

func (m *Metrics) ObserveDisconnect() { m.Disconnects.Add(1) }

func (m *Metrics) ObserveReset() { m.Resets.Add(1) }

func (m *Metrics) ObserveError(kind string) {
	switch kind {
	case "serial":
		m.SerialErrors.Add(1)
	case "dns":
		m.DNSErrors.Add(1)
	default:
		m.GeneralErrors.Add(1)
	}
}

// MetricsSnapshot is a point-in-time copy of the counters with derived
// statistics.
type MetricsSnapshot struct {
	CommandsSent  uint64
	RepliesParsed uint64

	BytesSent     uint64
	BytesReceived uint64
	SendRetries   uint64
	RetriedBytes  uint64

	Connects    uint64
	Disconnects uint64
	Resets      uint64

	SerialErrors  uint64
	DNSErrors     uint64
	GeneralErrors uint64

	UptimeNs uint64

	// Derived rates over the uptime window
	SendBandwidth    float64 // payload bytes per second towards the modem
	ReceiveBandwidth float64 // payload bytes per second from the modem
}

// Snapshot creates a point-in-time snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		CommandsSent:  m.CommandsSent.Load(),
		RepliesParsed: m.RepliesParsed.Load(),
		BytesSent:     m.BytesSent.Load(),
		BytesReceived: m.BytesReceived.Load(),
		SendRetries:   m.SendRetries.Load(),
		RetriedBytes:  m.RetriedBytes.Load(),
		Connects:      m.Connects.Load(),
		Disconnects:   m.Disconnects.Load(),
		Resets:        m.Resets.Load(),
		SerialErrors:  m.SerialErrors.Load(),
		DNSErrors:     m.DNSErrors.Load(),
		GeneralErrors: m.GeneralErrors.Load(),
	}

	snap.UptimeNs = uint64(time.Now().UnixNano() - m.StartTime.Load())
	if snap.UptimeNs > 0 {
		seconds := float64(snap.UptimeNs) / 1e9
		snap.SendBandwidth = float64(snap.BytesSent) / seconds
		snap.ReceiveBandwidth = float64(snap.BytesReceived) / seconds
	}
	return snap
}

// TotalErrors returns the sum of all error counters in the snapshot.
func (s MetricsSnapshot) TotalErrors() uint64 {
	return s.SerialErrors + s.DNSErrors + s.GeneralErrors
}

var _ interfaces.Observer = (*Metrics)(nil)

