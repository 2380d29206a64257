package atmodem

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector exposes a Metrics instance as a prometheus.Collector.
// Hosted deployments register one collector per device:
//
//	prometheus.MustRegister(atmodem.NewMetricsCollector(metrics, "sim7x00", deviceID))
type MetricsCollector struct {
	metrics *Metrics

	commandsSent  *prometheus.Desc
	repliesParsed *prometheus.Desc
	bytesSent     *prometheus.Desc
	bytesReceived *prometheus.Desc
	sendRetries   *prometheus.Desc
	connects      *prometheus.Desc
	disconnects   *prometheus.Desc
	resets        *prometheus.Desc
	errorsTotal   *prometheus.Desc
}

// NewMetricsCollector creates a collector labelled with the modem family
// and device instance ID.
func NewMetricsCollector(m *Metrics, family, deviceID string) *MetricsCollector {
	labels := prometheus.Labels{"family": family, "device": deviceID}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("atmodem_"+name, help, nil, labels)
	}
	return &MetricsCollector{
		metrics:       m,
		commandsSent:  desc("commands_sent_total", "AT commands written to the modem."),
		repliesParsed: desc("replies_parsed_total", "Complete reply lines handled."),
		bytesSent:     desc("payload_sent_bytes_total", "Payload bytes handed to the modem."),
		bytesReceived: desc("payload_received_bytes_total", "Payload bytes received from the modem."),
		sendRetries:   desc("send_retries_total", "Transmissions rewound and retried."),
		connects:      desc("connects_total", "Successful connection establishments."),
		disconnects:   desc("disconnects_total", "Orderly disconnects."),
		resets:        desc("resets_total", "Driver re-initialisations."),
		errorsTotal:   desc("errors_total", "Modem errors of all kinds."),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.commandsSent
	ch <- c.repliesParsed
	ch <- c.bytesSent
	ch <- c.bytesReceived
	ch <- c.sendRetries
	ch <- c.connects
	ch <- c.disconnects
	ch <- c.resets
	ch <- c.errorsTotal
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()
	counter := func(desc *prometheus.Desc, v uint64) prometheus.Metric {
		return prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
	ch <- counter(c.commandsSent, snap.CommandsSent)
	ch <- counter(c.repliesParsed, snap.RepliesParsed)
	ch <- counter(c.bytesSent, snap.BytesSent)
	ch <- counter(c.bytesReceived, snap.BytesReceived)
	ch <- counter(c.sendRetries, snap.SendRetries)
	ch <- counter(c.connects, snap.Connects)
	ch <- counter(c.disconnects, snap.Disconnects)
	ch <- counter(c.resets, snap.Resets)
	ch <- counter(c.errorsTotal, snap.TotalErrors())
}

var _ prometheus.Collector = (*MetricsCollector)(nil)
