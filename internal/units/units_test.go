// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package units

import (
	"errors"
	"testing"

	"go.viam.com/test"
)

func TestResolve(t *testing.T) {
	for _, tc := range []struct {
		gyro       GyroFullScale
		accel      AccelFullScale
		gyroScale  float64
		accelScale float64
		gyroReg    byte
		accelReg   byte
	}{
		{250, 2, 131, 16.384, 0x00, 0x00},
		{500, 4, 65.5, 8.192, 0x08, 0x08},
		{1000, 8, 32.8, 4.096, 0x10, 0x10},
		{2000, 16, 16.4, 2.048, 0x18, 0x18},
	} {
		cfg, err := Resolve(tc.gyro, tc.accel)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.GyroScale, test.ShouldEqual, tc.gyroScale)
		test.That(t, cfg.AccelScale, test.ShouldEqual, tc.accelScale)
		test.That(t, cfg.GyroConfig, test.ShouldEqual, tc.gyroReg)
		test.That(t, cfg.AccelConfig, test.ShouldEqual, tc.accelReg)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	a, err := Resolve(500, 8)
	test.That(t, err, test.ShouldBeNil)
	b, err := Resolve(500, 8)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a, test.ShouldResemble, b)
}

func TestResolveRejectsUnknownRange(t *testing.T) {
	_, err := Resolve(300, 2)
	test.That(t, errors.Is(err, ErrUnknownFullScale), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "gyro")

	_, err = Resolve(250, 3)
	test.That(t, errors.Is(err, ErrUnknownFullScale), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "accel")
}

func TestConversions(t *testing.T) {
	cfg, err := Resolve(250, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.DegPerSec(131), test.ShouldAlmostEqual, 1.0)
	test.That(t, cfg.DegPerSec(-262), test.ShouldAlmostEqual, -2.0)
	test.That(t, cfg.G(16384), test.ShouldAlmostEqual, 1.0)
	test.That(t, cfg.MilliG(8192), test.ShouldAlmostEqual, 500.0)
}
