package atmodem

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.ObserveCommand("AT+CIPSEND=0,5")
	m.ObserveCommand("AT+CIPRXGET=4,0")
	m.ObserveReply("OK")
	m.ObserveSend(5)
	m.ObserveReceive(11)
	m.ObserveSendRetry(5)
	m.ObserveConnect()
	m.ObserveDisconnect()
	m.ObserveReset()
	m.ObserveError("serial")
	m.ObserveError("dns")
	m.ObserveError("general")

	snap := m.Snapshot()
	if snap.CommandsSent != 2 {
		t.Errorf("CommandsSent = %d, want 2", snap.CommandsSent)
	}
	if snap.RepliesParsed != 1 {
		t.Errorf("RepliesParsed = %d, want 1", snap.RepliesParsed)
	}
	if snap.BytesSent != 5 || snap.BytesReceived != 11 {
		t.Errorf("bytes = %d/%d, want 5/11", snap.BytesSent, snap.BytesReceived)
	}
	if snap.SendRetries != 1 || snap.RetriedBytes != 5 {
		t.Errorf("retries = %d/%d, want 1/5", snap.SendRetries, snap.RetriedBytes)
	}
	if snap.Connects != 1 || snap.Disconnects != 1 || snap.Resets != 1 {
		t.Errorf("lifecycle = %d/%d/%d, want 1/1/1", snap.Connects, snap.Disconnects, snap.Resets)
	}
	if snap.SerialErrors != 1 || snap.DNSErrors != 1 || snap.GeneralErrors != 1 {
		t.Errorf("errors = %d/%d/%d, want 1/1/1",
			snap.SerialErrors, snap.DNSErrors, snap.GeneralErrors)
	}
	if snap.TotalErrors() != 3 {
		t.Errorf("TotalErrors = %d, want 3", snap.TotalErrors())
	}
}

func TestMetricsBandwidth(t *testing.T) {
	m := NewMetrics()
	m.ObserveSend(1000)
	snap := m.Snapshot()
	if snap.UptimeNs == 0 {
		t.Error("UptimeNs = 0")
	}
	if snap.SendBandwidth <= 0 {
		t.Errorf("SendBandwidth = %f, want > 0", snap.SendBandwidth)
	}
}

func TestMetricsCollector(t *testing.T) {
	m := NewMetrics()
	m.ObserveCommand("ATE0")
	m.ObserveSend(42)
	c := NewMetricsCollector(m, "sim800", "test-dev")

	descs := make(chan *prometheus.Desc, 16)
	c.Describe(descs)
	close(descs)
	nDescs := 0
	for range descs {
		nDescs++
	}
	if nDescs != 9 {
		t.Errorf("Describe emitted %d descriptors, want 9", nDescs)
	}

	metrics := make(chan prometheus.Metric, 16)
	c.Collect(metrics)
	close(metrics)
	nMetrics := 0
	for range metrics {
		nMetrics++
	}
	if nMetrics != nDescs {
		t.Errorf("Collect emitted %d metrics, want %d", nMetrics, nDescs)
	}
}

func TestMetricsCollectorRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewMetricsCollector(NewMetrics(), "esp8266", "dev0")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("Gather returned no metric families")
	}
}
