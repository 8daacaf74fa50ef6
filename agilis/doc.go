// Package agilis implements the command protocol of the Agilis piezo motion
// controllers (AG-UC2 / AG-UC8 class) on top of a serial transport.
//
// A Driver is a session with one controller. It serializes every command and
// reply exchange with a single session lock, keeps the minimum interval between
// two frames, validates parameters before anything is written and parses the
// terse textual replies into typed values.
//
// Every operation returns an error; output values are only meaningful when the
// error is nil. Errors are classified with errors.Is:
//
//   - ErrInvalidAxis, ErrInvalidParameter: rejected locally, nothing was sent.
//   - ErrTransport: the link failed (not connected, write failure, read timeout).
//   - ErrParse: a reply arrived but did not carry the expected value.
//
// Errors reported by the controller itself are never returned as Go errors.
// They are only available through GetErrorOfPreviousCommand, as an ErrorCode.
//
// Position measurement (MA) is a two-phase operation. MeasureCurrentPosition
// returns as soon as the frame is written and yields a Measurement that resolves
// when the controller answers, which can take up to two minutes. The controller
// does not accept commands during that time, so other operations block until
// the measurement has finished.
//
// Example:
//
//	drv, err := agilis.NewDriver(ctx, nil)
//	if err != nil {
//	    return err
//	}
//	defer drv.Close()
//
//	if err := drv.ConnectUSB(ctx, "/dev/ttyUSB0"); err != nil {
//	    return err
//	}
//	if err := drv.SetToRemoteMode(ctx); err != nil {
//	    return err
//	}
//	if err := drv.RelativeMove(ctx, 1, agilis.Negative, 100); err != nil {
//	    return err
//	}
//	status, err := drv.GetAxisStatus(ctx, 1)
package agilis
