package serial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arloliu/go-agilis/internal/testutil/fakeport"
	"github.com/arloliu/go-agilis/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bugst "go.bug.st/serial"
)

func testOpener(fp *fakeport.Port) Opener {
	return func(address string, mode *bugst.Mode) (Port, error) {
		fp.RecordOpen(address, mode)
		return fp, nil
	}
}

func newTestTransport(fp *fakeport.Port) *Transport {
	return New(
		WithOpener(testOpener(fp)),
		WithLogger(logger.NewSink(nil, logger.NoneLevel)),
		WithPollTimeout(5*time.Millisecond),
	)
}

func plainConfig(address string) Config {
	cfg := USBConfig(address)
	cfg.SettleDelay = 0

	return cfg
}

func TestConfig_Profiles(t *testing.T) {
	usb := USBConfig("/dev/ttyUSB0")
	assert.Equal(t, USBBaudRate, usb.BaudRate)
	assert.Equal(t, 8, usb.DataBits)
	assert.Equal(t, OneStopBit, usb.StopBits)
	assert.Equal(t, NoParity, usb.Parity)
	assert.Equal(t, "/dev/ttyUSB0 921600 8N1", usb.String())

	rs := RS232Config("COM3")
	assert.Equal(t, RS232BaudRate, rs.BaudRate)
	assert.Equal(t, "COM3 115200 8N1", rs.String())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"empty address", func(c *Config) { c.Address = "" }, false},
		{"zero baud", func(c *Config) { c.BaudRate = 0 }, false},
		{"data bits too small", func(c *Config) { c.DataBits = 4 }, false},
		{"data bits too large", func(c *Config) { c.DataBits = 9 }, false},
		{"bad stop bits", func(c *Config) { c.StopBits = 7 }, false},
		{"bad parity", func(c *Config) { c.Parity = -1 }, false},
		{"handshake without timeout", func(c *Config) {
			c.HandshakeExpect = "\r\n"
			c.HandshakeTimeout = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := USBConfig("/dev/ttyUSB0")
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestConfig_Mode(t *testing.T) {
	cfg := RS232Config("COM1")
	cfg.Parity = EvenParity
	cfg.StopBits = TwoStopBits
	cfg.DataBits = 7

	mode := cfg.mode()
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 7, mode.DataBits)
	assert.Equal(t, bugst.EvenParity, mode.Parity)
	assert.Equal(t, bugst.TwoStopBits, mode.StopBits)
}

func TestTransport_ConnectDisconnect(t *testing.T) {
	fp := fakeport.New()
	tr := newTestTransport(fp)

	require.False(t, tr.IsConnected())
	require.NoError(t, tr.Connect(context.Background(), plainConfig("/dev/ttyUSB0")))

	assert.True(t, tr.IsConnected())
	assert.Equal(t, "/dev/ttyUSB0", tr.Address())
	assert.Equal(t, "/dev/ttyUSB0", fp.Address())
	assert.Equal(t, USBBaudRate, fp.Mode().BaudRate)
	assert.Equal(t, 5*time.Millisecond, fp.ReadTimeout())

	tr.Disconnect()
	assert.False(t, tr.IsConnected())
	assert.True(t, fp.IsClosed())
	assert.Empty(t, tr.Address())

	// idempotent
	tr.Disconnect()
	assert.False(t, tr.IsConnected())
}

func TestTransport_ConnectInvalidConfig(t *testing.T) {
	tr := newTestTransport(fakeport.New())

	err := tr.Connect(context.Background(), Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.False(t, tr.IsConnected())
}

func TestTransport_ConnectOpenError(t *testing.T) {
	openErr := errors.New("no such device")
	tr := New(
		WithLogger(logger.NewSink(nil, logger.NoneLevel)),
		WithOpener(func(string, *bugst.Mode) (Port, error) { return nil, openErr }),
	)

	err := tr.Connect(context.Background(), plainConfig("/dev/missing"))
	require.ErrorIs(t, err, ErrOpen)
	require.ErrorIs(t, err, openErr)
	assert.False(t, tr.IsConnected())
}

func TestTransport_Handshake(t *testing.T) {
	fp := fakeport.New()
	fp.SetResponder(fakeport.Echo(map[string]string{"VE": "AG-UC2 v2.2.1\r\n"}))
	tr := newTestTransport(fp)

	cfg := plainConfig("/dev/ttyUSB0")
	cfg.HandshakeSend = "VE\r\n"
	cfg.HandshakeExpect = "\r\n"
	cfg.HandshakeTimeout = 200 * time.Millisecond

	require.NoError(t, tr.Connect(context.Background(), cfg))
	assert.True(t, tr.IsConnected())
	assert.Equal(t, []string{"VE\r\n"}, fp.Writes())

	tr.Disconnect()
}

func TestTransport_HandshakeFailure(t *testing.T) {
	fp := fakeport.New()
	tr := newTestTransport(fp)

	cfg := plainConfig("/dev/ttyUSB0")
	cfg.HandshakeSend = "VE\r\n"
	cfg.HandshakeExpect = "\r\n"
	cfg.HandshakeTimeout = 30 * time.Millisecond

	err := tr.Connect(context.Background(), cfg)
	require.ErrorIs(t, err, ErrHandshake)
	require.ErrorIs(t, err, ErrTimeout)

	assert.False(t, tr.IsConnected())
	assert.True(t, fp.IsClosed())

	tr.Disconnect()
	assert.False(t, tr.IsConnected())
}

func TestTransport_ReconnectClosesPrevious(t *testing.T) {
	first := fakeport.New()
	second := fakeport.New()
	ports := []*fakeport.Port{first, second}

	tr := New(
		WithLogger(logger.NewSink(nil, logger.NoneLevel)),
		WithPollTimeout(5*time.Millisecond),
		WithOpener(func(address string, mode *bugst.Mode) (Port, error) {
			p := ports[0]
			ports = ports[1:]

			return p, nil
		}),
	)

	require.NoError(t, tr.Connect(context.Background(), plainConfig("A")))
	require.NoError(t, tr.Connect(context.Background(), plainConfig("B")))

	assert.True(t, first.IsClosed())
	assert.False(t, second.IsClosed())
	assert.Equal(t, "B", tr.Address())

	tr.Disconnect()
}

func TestTransport_SendNotConnected(t *testing.T) {
	tr := newTestTransport(fakeport.New())

	n, err := tr.Send([]byte("1TP\r\n"))
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, n)

	_, err = tr.ListenUntil(context.Background(), "\r\n", 10*time.Millisecond)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestTransport_SendErrors(t *testing.T) {
	fp := fakeport.New()
	tr := newTestTransport(fp)
	require.NoError(t, tr.Connect(context.Background(), plainConfig("X")))
	defer tr.Disconnect()

	n, err := tr.Send([]byte("1TP\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	fp.SetShortWrite(true)
	n, err = tr.Send([]byte("1TP\r\n"))
	require.ErrorIs(t, err, ErrShortWrite)
	assert.Equal(t, 4, n)

	fp.SetShortWrite(false)
	fp.SetWriteError(errors.New("io"))
	n, err = tr.Send([]byte("1TP\r\n"))
	require.ErrorIs(t, err, ErrLinkDown)
	assert.Zero(t, n)
}

func TestTransport_ListenUntilKeepsRemainder(t *testing.T) {
	fp := fakeport.New()
	tr := newTestTransport(fp)
	require.NoError(t, tr.Connect(context.Background(), plainConfig("X")))
	defer tr.Disconnect()

	fp.Inject("1TP12")
	fp.Inject("\r\n1TS")
	fp.Inject("Q\r\n")

	line, err := tr.ListenUntil(context.Background(), "\r\n", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1TP12\r\n", line)

	line, err = tr.ListenUntil(context.Background(), "\r\n", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1TSQ\r\n", line)
}

func TestTransport_ListenUntilTimeoutDropsPartial(t *testing.T) {
	fp := fakeport.New()
	tr := newTestTransport(fp)
	require.NoError(t, tr.Connect(context.Background(), plainConfig("X")))
	defer tr.Disconnect()

	fp.Inject("1TP")

	start := time.Now()
	line, err := tr.ListenUntil(context.Background(), "\r\n", 40*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, line)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	fp.Inject("5\r\n")
	line, err = tr.ListenUntil(context.Background(), "\r\n", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "5\r\n", line)
}

func TestTransport_ListenUntilContextCancel(t *testing.T) {
	fp := fakeport.New()
	tr := newTestTransport(fp)
	require.NoError(t, tr.Connect(context.Background(), plainConfig("X")))
	defer tr.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.ListenUntil(ctx, "\r\n", time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransport_DisconnectUnblocksListen(t *testing.T) {
	fp := fakeport.New()
	tr := newTestTransport(fp)
	require.NoError(t, tr.Connect(context.Background(), plainConfig("X")))

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.ListenUntil(context.Background(), "\r\n", time.Minute)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	tr.Disconnect()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotConnected) || errors.Is(err, ErrLinkDown))
	case <-time.After(time.Second):
		t.Fatal("ListenUntil was not unblocked by Disconnect")
	}
}

func TestTransport_Flush(t *testing.T) {
	fp := fakeport.New()
	tr := newTestTransport(fp)
	require.NoError(t, tr.Connect(context.Background(), plainConfig("X")))
	defer tr.Disconnect()

	fp.Inject("stale\r\n")
	require.Eventually(t, func() bool {
		tr.FlushInput()
		_, err := tr.ListenUntil(context.Background(), "\r\n", 5*time.Millisecond)
		return errors.Is(err, ErrTimeout)
	}, time.Second, 10*time.Millisecond)

	tr.FlushOutput()
	assert.Positive(t, fp.InputResets())
	assert.Equal(t, 1, fp.OutputResets())
}

func TestTransport_FlushWhenDisconnected(t *testing.T) {
	fp := fakeport.New()
	tr := newTestTransport(fp)

	tr.FlushInput()
	tr.FlushOutput()
	assert.Zero(t, fp.InputResets())
	assert.Zero(t, fp.OutputResets())
}
