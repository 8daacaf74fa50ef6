// Package serial implements the byte-level link to the controller: opening a
// port with one of the two connection profiles, writing frames and reading
// delimiter-terminated replies with a timeout.
//
// The package knows nothing about the command set; it is shared by the agilis
// driver and by anything else that needs a paced, cancellable serial link.
//
// Example:
//
//	t := serial.New(serial.WithLogger(logger.GetLogger()))
//
//	cfg := serial.USBConfig("/dev/ttyUSB0")
//	cfg.HandshakeSend = "VE\r\n"
//	cfg.HandshakeExpect = "\r\n"
//
//	if err := t.Connect(ctx, cfg); err != nil {
//	    return err
//	}
//	defer t.Disconnect()
//
//	if _, err := t.Send([]byte("1TP\r\n")); err != nil {
//	    return err
//	}
//	reply, err := t.ListenUntil(ctx, "\r\n", time.Second)
package serial
