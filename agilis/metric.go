package agilis

import (
	"sync/atomic"
)

// DriverMetrics contains atomic metrics for a Driver.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type DriverMetrics struct {
	// FrameSendCount indicates the number of frames written to the controller.
	FrameSendCount atomic.Uint64
	// ReplyRecvCount indicates the number of replies received.
	ReplyRecvCount atomic.Uint64
	// ReplyTimeoutCount indicates the number of replies that did not arrive in time.
	ReplyTimeoutCount atomic.Uint64
	// TransportErrCount indicates the number of failed writes and reads, timeouts included.
	TransportErrCount atomic.Uint64
	// ParseErrCount indicates the number of replies that could not be decoded.
	ParseErrCount atomic.Uint64
	// ValidationErrCount indicates the number of calls rejected before any I/O.
	ValidationErrCount atomic.Uint64

	// MeasurementInflightCount indicates the number of position measurements in progress.
	MeasurementInflightCount atomic.Int64

	// ConnectCount indicates the number of successful connects.
	ConnectCount atomic.Uint64
	// Connected is 1 while the driver holds an open connection.
	Connected atomic.Uint32
}

func (m *DriverMetrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *DriverMetrics) incReplyRecvCount() {
	m.ReplyRecvCount.Add(1)
}

func (m *DriverMetrics) incReplyTimeoutCount() {
	m.ReplyTimeoutCount.Add(1)
}

func (m *DriverMetrics) incTransportErrCount() {
	m.TransportErrCount.Add(1)
}

func (m *DriverMetrics) incParseErrCount() {
	m.ParseErrCount.Add(1)
}

func (m *DriverMetrics) incValidationErrCount() {
	m.ValidationErrCount.Add(1)
}

func (m *DriverMetrics) incMeasurementInflightCount() {
	m.MeasurementInflightCount.Add(1)
}

func (m *DriverMetrics) decMeasurementInflightCount() {
	m.MeasurementInflightCount.Add(-1)
}

func (m *DriverMetrics) setConnected() {
	m.ConnectCount.Add(1)
	m.Connected.Store(1)
}

func (m *DriverMetrics) setDisconnected() {
	m.Connected.Store(0)
}
