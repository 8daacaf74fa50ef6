// Package metrics exports agilis driver metrics to Prometheus.
//
// The collector reads the atomic counters of agilis.DriverMetrics on every
// scrape; the driver itself does not depend on Prometheus.
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector("lab", drv.GetMetrics(), prometheus.Labels{"port": "/dev/ttyUSB0"}))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/go-agilis/agilis"
)

const subsystem = "agilis"

// Collector is a prometheus.Collector over one driver's metrics.
type Collector struct {
	collectors []prometheus.Collector
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for m. namespace may be empty; constLabels
// distinguish several drivers registered on the same registry.
func NewCollector(namespace string, m *agilis.DriverMetrics, constLabels prometheus.Labels) *Collector {
	counter := func(name, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, fn)
	}
	gauge := func(name, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, fn)
	}

	return &Collector{collectors: []prometheus.Collector{
		counter("frames_sent_total", "Frames written to the controller.",
			func() float64 { return float64(m.FrameSendCount.Load()) }),
		counter("replies_received_total", "Replies received from the controller.",
			func() float64 { return float64(m.ReplyRecvCount.Load()) }),
		counter("reply_timeouts_total", "Replies that did not arrive within the timeout.",
			func() float64 { return float64(m.ReplyTimeoutCount.Load()) }),
		counter("transport_errors_total", "Failed writes and reads, timeouts included.",
			func() float64 { return float64(m.TransportErrCount.Load()) }),
		counter("parse_errors_total", "Replies that could not be decoded.",
			func() float64 { return float64(m.ParseErrCount.Load()) }),
		counter("validation_errors_total", "Calls rejected before any I/O.",
			func() float64 { return float64(m.ValidationErrCount.Load()) }),
		counter("connects_total", "Successful connects.",
			func() float64 { return float64(m.ConnectCount.Load()) }),
		gauge("measurements_inflight", "Position measurements in progress.",
			func() float64 { return float64(m.MeasurementInflightCount.Load()) }),
		gauge("connected", "1 while the driver holds an open connection.",
			func() float64 { return float64(m.Connected.Load()) }),
	}}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors {
		col.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors {
		col.Collect(ch)
	}
}
