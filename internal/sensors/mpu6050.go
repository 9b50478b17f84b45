// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors talks to the tilt hardware: the MPU-6050 over I²C and the
// calibration LED over GPIO.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/tilt_computer/internal/imu"
	"github.com/relabs-tech/tilt_computer/internal/units"
)

// ErrWrongDevice is returned when WHO_AM_I does not identify an MPU-6050.
var ErrWrongDevice = errors.New("mpu6050: unexpected WHO_AM_I")

// Opts configures the driver.
type Opts struct {
	Addr uint16
	// Timeout bounds each bus transfer. Zero waits forever.
	Timeout time.Duration
	// Retries is the number of extra attempts after a failed transfer.
	Retries int
	Logger  *zap.SugaredLogger
}

// DefaultOpts matches the breakout board with AD0 low.
var DefaultOpts = Opts{
	Addr:    0x68,
	Timeout: 20 * time.Millisecond,
	Retries: 3,
}

// Dev is an MPU-6050 on an I²C bus. It implements imu.Source.
type Dev struct {
	dev     i2c.Dev
	sensor  units.SensorConfig
	timeout time.Duration
	retries int
	logger  *zap.SugaredLogger

	mu sync.Mutex
	// pending is the completion of a transfer that outlived its timeout. The
	// next transfer waits on it so the bus never sees two concurrent Tx.
	pending chan error
}

// New wakes the device, checks its identity and programs the full-scale
// ranges in sensor.
func New(ctx context.Context, bus i2c.Bus, sensor units.SensorConfig, opts *Opts) (*Dev, error) {
	if opts == nil {
		o := DefaultOpts
		opts = &o
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Dev{
		dev:     i2c.Dev{Bus: bus, Addr: opts.Addr},
		sensor:  sensor,
		timeout: opts.Timeout,
		retries: opts.Retries,
		logger:  logger,
	}

	if err := d.WriteReg(ctx, RegPwrMgmt1, 0); err != nil {
		return nil, fmt.Errorf("mpu6050: wake: %w", err)
	}

	id, err := d.ReadReg(ctx, RegWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("mpu6050: read WHO_AM_I: %w", err)
	}
	if id != WhoAmI {
		return nil, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrWrongDevice, id, WhoAmI)
	}
	logger.Infof("mpu6050: found device at 0x%02X on %s", opts.Addr, bus)

	if err := d.WriteReg(ctx, RegGyroConfig, sensor.GyroConfig); err != nil {
		return nil, fmt.Errorf("mpu6050: set gyro range: %w", err)
	}
	logger.Infof("mpu6050: gyroscope range set to ±%d°/s (GYRO_CONFIG=0x%02X)", sensor.GyroFullScale, sensor.GyroConfig)

	if err := d.WriteReg(ctx, RegAccelConfig, sensor.AccelConfig); err != nil {
		return nil, fmt.Errorf("mpu6050: set accel range: %w", err)
	}
	logger.Infof("mpu6050: accelerometer range set to ±%dg (ACCEL_CONFIG=0x%02X)", sensor.AccelFullScale, sensor.AccelConfig)

	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("MPU6050{%s}", &d.dev)
}

// Sensor returns the programmed full-scale configuration.
func (d *Dev) Sensor() units.SensorConfig {
	return d.sensor
}

// NextRaw reads the 14-byte burst starting at ACCEL_XOUT_H.
func (d *Dev) NextRaw(ctx context.Context) (imu.RawSample, error) {
	buf := make([]byte, imu.BlockSize)
	if err := d.tx(ctx, []byte{RegAccelXoutH}, buf); err != nil {
		return imu.RawSample{}, fmt.Errorf("mpu6050: read sample: %w", err)
	}
	return imu.Decode(buf)
}

// ReadReg reads a single register.
func (d *Dev) ReadReg(ctx context.Context, reg byte) (byte, error) {
	var b [1]byte
	if err := d.tx(ctx, []byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteReg writes a single register.
func (d *Dev) WriteReg(ctx context.Context, reg, value byte) error {
	return d.tx(ctx, []byte{reg, value}, nil)
}

// RegisterValue is one line of a register dump.
type RegisterValue struct {
	RegisterInfo
	Value byte `json:"value"`
}

// Dump reads every readable register in the map.
func (d *Dev) Dump(ctx context.Context) ([]RegisterValue, error) {
	var out []RegisterValue
	for _, r := range Registers() {
		if !r.Readable() {
			continue
		}
		v, err := d.ReadReg(ctx, r.Address)
		if err != nil {
			return out, fmt.Errorf("mpu6050: dump %s (%s): %w", r.Name, r.Hex(), err)
		}
		out = append(out, RegisterValue{RegisterInfo: r, Value: v})
	}
	return out, nil
}

// Halt puts the device to sleep.
func (d *Dev) Halt() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return d.WriteReg(ctx, RegPwrMgmt1, pwrSleep)
}

// tx performs one bus transaction with bounded waits and retries. A timed
// out attempt returns an error wrapping imu.ErrTransportTimeout once retries
// are exhausted.
func (d *Dev) tx(ctx context.Context, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if err = d.txOnce(ctx, w, r); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < d.retries {
			d.logger.Debugf("mpu6050: transfer attempt %d/%d failed: %v", attempt+1, d.retries+1, err)
		}
	}
	return fmt.Errorf("after %d attempts: %w", d.retries+1, err)
}

func (d *Dev) txOnce(ctx context.Context, w, r []byte) error {
	if d.timeout <= 0 {
		if err := d.dev.Tx(w, r); err != nil {
			return fmt.Errorf("i2c tx: %w", err)
		}
		return nil
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	if d.pending != nil {
		select {
		case <-d.pending:
			d.pending = nil
		case <-timer.C:
			return fmt.Errorf("%w: previous transfer still in flight", imu.ErrTransportTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// The goroutine owns buf until it reports, so a late completion cannot
	// scribble over r.
	buf := make([]byte, len(r))
	done := make(chan error, 1)
	go func() {
		done <- d.dev.Tx(w, buf)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("i2c tx: %w", err)
		}
		copy(r, buf)
		return nil
	case <-timer.C:
		d.pending = done
		return fmt.Errorf("%w: no response within %s", imu.ErrTransportTimeout, d.timeout)
	case <-ctx.Done():
		d.pending = done
		return ctx.Err()
	}
}
