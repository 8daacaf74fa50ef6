package agilis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasurement_ReturnsBeforeResult(t *testing.T) {
	fp := newControllerPort(map[string]string{
		"1MA": "1MA480\r\n",
		"2TP": "2TP7\r\n",
	})
	d := newTestDriver(t, fp)
	fp.SetReplyDelay(80 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	m, err := d.MeasureCurrentPosition(ctx, 1)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, 1, m.Axis())

	_, err = m.Result()
	require.ErrorIs(t, err, ErrMeasurementPending)
	assert.Equal(t, int64(1), d.GetMetrics().MeasurementInflightCount.Load())

	position, err := m.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 480, position)

	position, err = m.Result()
	require.NoError(t, err)
	assert.Equal(t, 480, position)

	select {
	case <-m.Done():
	default:
		t.Fatal("Done should be closed")
	}

	steps, err := d.GetNumberOfSteps(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, steps)
	assert.Zero(t, d.GetMetrics().MeasurementInflightCount.Load())
}

func TestMeasurement_HoldsSessionUntilResolved(t *testing.T) {
	fp := newControllerPort(map[string]string{
		"2MA": "2MA12\r\n",
		"1TS": "1TS0\r\n",
	})
	d := newTestDriver(t, fp)
	fp.SetReplyDelay(100 * time.Millisecond)
	ctx := context.Background()

	m, err := d.MeasureCurrentPosition(ctx, 2)
	require.NoError(t, err)

	// the next exchange waits for the measurement
	_, err = d.GetAxisStatus(ctx, 1)
	require.NoError(t, err)

	position, err := m.Result()
	require.NoError(t, err)
	assert.Equal(t, 12, position)

	assert.Equal(t, []string{"2MA\r\n", "1TS\r\n"}, fp.Writes())
	events := fp.Events()
	require.Len(t, events, 4)
	assert.Equal(t, "R:2MA12\r\n", events[1])
	assert.Equal(t, "W:1TS\r\n", events[2])
}

func TestMeasurement_CallerContextWhileBusy(t *testing.T) {
	fp := newControllerPort(nil)
	d := newTestDriver(t, fp, WithMeasureTimeout(time.Second))

	_, err := d.MeasureCurrentPosition(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = d.GetAxisStatus(ctx, 1)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"1MA\r\n"}, fp.Writes())
}

func TestMeasurement_Timeout(t *testing.T) {
	fp := newControllerPort(nil)
	d := newTestDriver(t, fp, WithMeasureTimeout(100*time.Millisecond))

	m, err := d.MeasureCurrentPosition(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = m.Wait(ctx)
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, uint64(1), d.GetMetrics().ReplyTimeoutCount.Load())

	// session released after the timeout
	require.NoError(t, d.StopMotion(context.Background(), 1))
}

func TestMeasurement_ParseError(t *testing.T) {
	fp := newControllerPort(map[string]string{"1MA": "1MA?\r\n"})
	d := newTestDriver(t, fp)

	m, err := d.MeasureCurrentPosition(context.Background(), 1)
	require.NoError(t, err)

	_, err = m.Wait(context.Background())
	require.ErrorIs(t, err, ErrParse)
}

func TestMeasurement_WaitContext(t *testing.T) {
	fp := newControllerPort(map[string]string{"1MA": "1MA3\r\n"})
	d := newTestDriver(t, fp)
	fp.SetReplyDelay(150 * time.Millisecond)

	m, err := d.MeasureCurrentPosition(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// abandoning the wait does not cancel the measurement
	position, err := m.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, position)
}

func TestMeasurement_CloseFailsPending(t *testing.T) {
	fp := newControllerPort(nil)
	d := newTestDriver(t, fp, WithMeasureTimeout(time.Minute))

	m, err := d.MeasureCurrentPosition(context.Background(), 2)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a pending measurement")
	}

	select {
	case <-m.Done():
	default:
		t.Fatal("measurement should be resolved after Close")
	}

	_, err = m.Result()
	require.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, d.GetMetrics().MeasurementInflightCount.Load())
	assert.Zero(t, d.pending.Size())
}

func TestMeasurement_DisconnectUnblocks(t *testing.T) {
	fp := newControllerPort(nil)
	d := newTestDriver(t, fp, WithMeasureTimeout(time.Minute))

	m, err := d.MeasureCurrentPosition(context.Background(), 1)
	require.NoError(t, err)

	d.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = m.Wait(ctx)
	require.ErrorIs(t, err, ErrTransport)
	assert.Empty(t, d.PortName())
}
