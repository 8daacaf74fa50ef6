package agilis

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// SetStepDelay sets the delay between closed-loop steps of axis (DL).
// delay is in units of 10 µs, in [0, 200000].
func (d *Driver) SetStepDelay(ctx context.Context, axis int, delay int) error {
	if err := d.checkAxis("SetStepDelay", axis); err != nil {
		return err
	}
	if err := d.checkRange("SetStepDelay", "delay", delay, 0, MaxStepDelay); err != nil {
		return err
	}

	d.logger.Info("agilis: setting step delay", "axis", axis, "delay", delay)

	return d.execute(ctx, NewAxisFrame(axis, VerbStepDelay).WithParam(delay))
}

// GetStepDelay returns the step delay of axis (DL?).
func (d *Driver) GetStepDelay(ctx context.Context, axis int) (int, error) {
	if err := d.checkAxis("GetStepDelay", axis); err != nil {
		return 0, err
	}

	d.logger.Info("agilis: getting step delay", "axis", axis)

	delay, err := d.queryInt(ctx, NewAxisFrame(axis, VerbStepDelay).Query())
	if err != nil {
		return 0, err
	}

	d.logger.Info("agilis: step delay", "axis", axis, "delay", delay)

	return delay, nil
}

// StartJogMotion starts a jog of axis in the direction of sign (JA).
// JogSpeedStop stops the axis.
func (d *Driver) StartJogMotion(ctx context.Context, axis int, sign Sign, speed JogSpeed) error {
	if err := d.checkAxis("StartJogMotion", axis); err != nil {
		return err
	}
	if !speed.valid() {
		return d.invalid("StartJogMotion", "jog speed %d out of range [0, 4]", speed)
	}

	d.logger.Info("agilis: starting jog motion", "axis", axis, "sign", sign.String(), "speed", int(speed))

	return d.execute(ctx, NewAxisFrame(axis, VerbJog).WithSigned(sign, int(speed)))
}

// GetJogMode returns the direction and speed of the current jog of axis (JA?).
func (d *Driver) GetJogMode(ctx context.Context, axis int) (Sign, JogSpeed, error) {
	if err := d.checkAxis("GetJogMode", axis); err != nil {
		return Positive, JogSpeedStop, err
	}

	d.logger.Info("agilis: getting jog mode", "axis", axis)

	v, err := d.queryInt(ctx, NewAxisFrame(axis, VerbJog).Query())
	if err != nil {
		return Positive, JogSpeedStop, err
	}

	sign, speed := DecodeSigned(v)
	d.logger.Info("agilis: jog mode", "axis", axis, "sign", sign.String(), "speed", speed)

	return sign, JogSpeed(speed), nil
}

// MeasureCurrentPosition starts a position measurement of axis (MA).
//
// The call returns once the frame is written. The controller then scans the
// full travel range, which takes up to two minutes, and does not answer
// anything else in the meantime; the session stays locked until the
// Measurement resolves, so other calls wait for it.
func (d *Driver) MeasureCurrentPosition(ctx context.Context, axis int) (*Measurement, error) {
	if err := d.checkAxis("MeasureCurrentPosition", axis); err != nil {
		return nil, err
	}

	if err := d.acquire(ctx); err != nil {
		return nil, err
	}

	d.logger.Info("agilis: measuring current position", "axis", axis)

	frame := NewAxisFrame(axis, VerbMeasure)
	if err := d.send(ctx, frame); err != nil {
		d.release()
		return nil, err
	}

	id := d.measureID.Add(1)
	m := newMeasurement(id, axis)
	d.pending.Store(id, m)
	d.metrics.incMeasurementInflightCount()

	// the session lock is handed to the task and released when the reply is in
	err := d.taskMgr.Go("measure-position", func(tctx context.Context) {
		defer d.release()
		defer d.pending.Delete(id)

		d.logger.Info("agilis: waiting for position measurement", "axis", axis, "timeout", d.cfg.measureTimeout)

		position, err := d.awaitPosition(tctx, frame)
		if err != nil && d.closed.Load() {
			err = fmt.Errorf("%w: %w", ErrClosed, err)
		}
		if m.resolve(position, err) {
			d.metrics.decMeasurementInflightCount()
		}
	})
	if err != nil {
		d.pending.Delete(id)
		m.resolve(0, ErrClosed)
		d.metrics.decMeasurementInflightCount()
		d.release()

		return nil, ErrClosed
	}

	return m, nil
}

func (d *Driver) awaitPosition(ctx context.Context, frame Frame) (int, error) {
	reply, err := d.receive(ctx, frame, d.cfg.measureTimeout)
	if err != nil {
		return 0, err
	}

	position, err := d.decodeInt(frame, reply)
	if err != nil {
		return 0, err
	}

	d.logger.Info("agilis: position measurement", "axis", frame.Axis(), "position", position)

	return position, nil
}

// SetToLocalMode switches the controller to local mode (ML).
func (d *Driver) SetToLocalMode(ctx context.Context) error {
	d.logger.Info("agilis: setting to local mode")
	return d.execute(ctx, NewFrame(VerbLocalMode))
}

// SetToRemoteMode switches the controller to remote mode (MR).
// Motion commands are refused in local mode.
func (d *Driver) SetToRemoteMode(ctx context.Context) error {
	d.logger.Info("agilis: setting to remote mode")
	return d.execute(ctx, NewFrame(VerbRemoteMode))
}

// MoveToLimit moves axis until it reaches the limit switch in the direction of
// sign (MV). JogSpeed1700 is the usual speed.
func (d *Driver) MoveToLimit(ctx context.Context, axis int, sign Sign, speed JogSpeed) error {
	if err := d.checkAxis("MoveToLimit", axis); err != nil {
		return err
	}
	if !speed.valid() {
		return d.invalid("MoveToLimit", "jog speed %d out of range [0, 4]", speed)
	}

	d.logger.Info("agilis: moving to limit", "axis", axis, "sign", sign.String(), "speed", int(speed))

	return d.execute(ctx, NewAxisFrame(axis, VerbMoveToLimit).WithSigned(sign, int(speed)))
}

// AbsoluteMove moves axis to position (PA), a value in [0, 1000] relative to
// the travel range.
func (d *Driver) AbsoluteMove(ctx context.Context, axis int, position int) error {
	if err := d.checkAxis("AbsoluteMove", axis); err != nil {
		return err
	}
	if err := d.checkRange("AbsoluteMove", "position", position, 0, MaxAbsolutePosition); err != nil {
		return err
	}

	d.logger.Info("agilis: moving to absolute position", "axis", axis, "position", position)

	return d.execute(ctx, NewAxisFrame(axis, VerbAbsoluteMove).WithParam(position))
}

// GetLimitStatus reports which axes are at a limit switch (PH).
func (d *Driver) GetLimitStatus(ctx context.Context) (axis1, axis2 bool, err error) {
	d.logger.Info("agilis: getting limit status")

	frame := NewFrame(VerbLimitStatus)

	v, err := d.queryInt(ctx, frame)
	if err != nil {
		return false, false, err
	}

	axis1, axis2, err = DecodeLimitStatus(v)
	if err != nil {
		d.metrics.incParseErrCount()
		d.logger.Error("agilis: failed to decode limit status", "value", v, "error", err)

		return false, false, err
	}

	d.logger.Info("agilis: limit status", "axis1", axis1, "axis2", axis2)

	return axis1, axis2, nil
}

// RelativeMove moves axis by steps in the direction of sign (PR).
//
// A negative steps with Positive is the same move as its magnitude with Negative.
func (d *Driver) RelativeMove(ctx context.Context, axis int, sign Sign, steps int) error {
	if err := d.checkAxis("RelativeMove", axis); err != nil {
		return err
	}

	v := SignedValue(sign, steps)
	if err := d.checkRange("RelativeMove", "steps", v, math.MinInt32, math.MaxInt32); err != nil {
		return err
	}

	d.logger.Info("agilis: relative move", "axis", axis, "steps", v)

	return d.execute(ctx, NewAxisFrame(axis, VerbRelativeMove).WithParam(v))
}

// ResetController resets the controller (RS). Every axis stops, the step
// counters are cleared and the controller returns to local mode.
func (d *Driver) ResetController(ctx context.Context) error {
	d.logger.Info("agilis: resetting controller")
	return d.execute(ctx, NewFrame(VerbReset))
}

// StopMotion stops axis (ST).
func (d *Driver) StopMotion(ctx context.Context, axis int) error {
	if err := d.checkAxis("StopMotion", axis); err != nil {
		return err
	}

	d.logger.Info("agilis: stopping motion", "axis", axis)

	return d.execute(ctx, NewAxisFrame(axis, VerbStop))
}

// SetStepAmplitude sets the step amplitude of axis for the direction of sign (SU).
// The magnitude must be in [1, 50].
func (d *Driver) SetStepAmplitude(ctx context.Context, axis int, sign Sign, amplitude int) error {
	if err := d.checkAxis("SetStepAmplitude", axis); err != nil {
		return err
	}
	if amplitude == 0 || amplitude < -MaxStepAmplitude || amplitude > MaxStepAmplitude {
		return d.invalid("SetStepAmplitude", "amplitude %d out of range (magnitude must be in [%d, %d])",
			amplitude, MinStepAmplitude, MaxStepAmplitude)
	}

	v := SignedValue(sign, amplitude)
	d.logger.Info("agilis: setting step amplitude", "axis", axis, "amplitude", v)

	return d.execute(ctx, NewAxisFrame(axis, VerbStepAmplitude).WithParam(v))
}

// GetStepAmplitude returns the step amplitude magnitude of axis for the
// direction of sign (SU? or SU-?).
func (d *Driver) GetStepAmplitude(ctx context.Context, axis int, sign Sign) (int, error) {
	if err := d.checkAxis("GetStepAmplitude", axis); err != nil {
		return 0, err
	}

	d.logger.Info("agilis: getting step amplitude", "axis", axis, "sign", sign.String())

	frame := NewAxisFrame(axis, VerbStepAmplitude).Query()
	if sign == Negative {
		frame = frame.NegativeQuery()
	}

	v, err := d.queryInt(ctx, frame)
	if err != nil {
		return 0, err
	}

	_, amplitude := DecodeSigned(v)
	d.logger.Info("agilis: step amplitude", "axis", axis, "sign", sign.String(), "amplitude", amplitude)

	return amplitude, nil
}

// GetErrorOfPreviousCommand returns the error code of the previous command (TE).
// This is the only way to learn that the controller rejected a command.
func (d *Driver) GetErrorOfPreviousCommand(ctx context.Context) (ErrorCode, error) {
	d.logger.Info("agilis: getting error of previous command")

	v, err := d.queryInt(ctx, NewFrame(VerbError))
	if err != nil {
		return CodeNoError, err
	}

	code := ErrorCode(v)
	d.logger.Info("agilis: error of previous command", "code", v, "text", code.String())

	return code, nil
}

// GetNumberOfSteps returns the step counter of axis (TP): the number of
// accumulated forward steps minus backward steps since the last reset.
func (d *Driver) GetNumberOfSteps(ctx context.Context, axis int) (int, error) {
	if err := d.checkAxis("GetNumberOfSteps", axis); err != nil {
		return 0, err
	}

	d.logger.Info("agilis: getting number of steps", "axis", axis)

	steps, err := d.queryInt(ctx, NewAxisFrame(axis, VerbSteps))
	if err != nil {
		return 0, err
	}

	d.logger.Info("agilis: number of steps", "axis", axis, "steps", steps)

	return steps, nil
}

// GetAxisStatus returns the status of axis (TS).
func (d *Driver) GetAxisStatus(ctx context.Context, axis int) (AxisStatus, error) {
	if err := d.checkAxis("GetAxisStatus", axis); err != nil {
		return StatusReady, err
	}

	d.logger.Info("agilis: getting axis status", "axis", axis)

	v, err := d.queryInt(ctx, NewAxisFrame(axis, VerbAxisStatus))
	if err != nil {
		return StatusReady, err
	}

	status := AxisStatus(v)
	d.logger.Info("agilis: axis status", "axis", axis, "status", v, "text", status.String())

	return status, nil
}

// GetFirmwareVersion returns the controller model and firmware version (VE),
// e.g. "AG-UC2 v2.2.1".
func (d *Driver) GetFirmwareVersion(ctx context.Context) (string, error) {
	d.logger.Info("agilis: getting controller firmware version")

	frame := NewFrame(VerbVersion)

	reply, err := d.exchange(ctx, frame)
	if err != nil {
		return "", err
	}

	version, err := trimReply(reply)
	if err != nil {
		d.metrics.incParseErrCount()
		d.logger.Error("agilis: failed to parse response", "frame", frame.String(), "reply", reply, "error", err)

		return "", err
	}
	version = strings.TrimSpace(version)

	d.logger.Info("agilis: controller firmware version", "version", version)

	return version, nil
}

// ZeroPosition resets the step counter of axis to zero (ZP).
func (d *Driver) ZeroPosition(ctx context.Context, axis int) error {
	if err := d.checkAxis("ZeroPosition", axis); err != nil {
		return err
	}

	d.logger.Info("agilis: zeroing position", "axis", axis)

	return d.execute(ctx, NewAxisFrame(axis, VerbZeroPosition))
}

// ChangeChannel selects the channel of an AG-UC8 (CC), in [0, 4].
func (d *Driver) ChangeChannel(ctx context.Context, channel int) error {
	if err := d.checkRange("ChangeChannel", "channel", channel, 0, MaxChannel); err != nil {
		return err
	}

	d.logger.Info("agilis: changing channel", "channel", channel)

	return d.execute(ctx, NewFrame(VerbChannel).WithParam(channel))
}

// GetChannel returns the selected channel (CC?).
func (d *Driver) GetChannel(ctx context.Context) (int, error) {
	d.logger.Info("agilis: getting current channel")

	channel, err := d.queryInt(ctx, NewFrame(VerbChannel).Query())
	if err != nil {
		return 0, err
	}

	d.logger.Info("agilis: current channel", "channel", channel)

	return channel, nil
}
