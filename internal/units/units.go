// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package units resolves the configured full-scale ranges of the IMU into
// scale factors and converts raw counts into physical units.
package units

import (
	"errors"
	"fmt"
)

// ErrUnknownFullScale is returned by Resolve for a range the device does not
// support. It is a startup configuration error.
var ErrUnknownFullScale = errors.New("units: unknown full-scale selection")

// GyroFullScale is the gyroscope range in °/s.
type GyroFullScale int

// AccelFullScale is the accelerometer range in g.
type AccelFullScale int

type rangeEntry struct {
	scale float64
	sel   byte // FS_SEL / AFS_SEL, bits 4:3 of the config register
}

// Gyro: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s (counts per °/s)
var gyroRanges = map[GyroFullScale]rangeEntry{
	250:  {131, 0},
	500:  {65.5, 1},
	1000: {32.8, 2},
	2000: {16.4, 3},
}

// Accel: 0=±2g, 1=±4g, 2=±8g, 3=±16g (counts per milli-g)
var accelRanges = map[AccelFullScale]rangeEntry{
	2:  {16.384, 0},
	4:  {8.192, 1},
	8:  {4.096, 2},
	16: {2.048, 3},
}

// SensorConfig is the resolved, immutable range configuration.
type SensorConfig struct {
	GyroFullScale  GyroFullScale
	AccelFullScale AccelFullScale

	GyroScale  float64 // counts per °/s
	AccelScale float64 // counts per milli-g

	GyroConfig  byte // GYRO_CONFIG register value
	AccelConfig byte // ACCEL_CONFIG register value
}

// Resolve maps the two range selections to their scale factors. It has no
// side effects, so calling it twice with the same input gives the same value.
func Resolve(gyro GyroFullScale, accel AccelFullScale) (SensorConfig, error) {
	g, ok := gyroRanges[gyro]
	if !ok {
		return SensorConfig{}, fmt.Errorf("gyro full scale %d°/s (want 250, 500, 1000 or 2000): %w", gyro, ErrUnknownFullScale)
	}
	a, ok := accelRanges[accel]
	if !ok {
		return SensorConfig{}, fmt.Errorf("accel full scale %dg (want 2, 4, 8 or 16): %w", accel, ErrUnknownFullScale)
	}
	return SensorConfig{
		GyroFullScale:  gyro,
		AccelFullScale: accel,
		GyroScale:      g.scale,
		AccelScale:     a.scale,
		GyroConfig:     g.sel << 3,
		AccelConfig:    a.sel << 3,
	}, nil
}

// DegPerSec converts gyro counts to °/s.
func (c SensorConfig) DegPerSec(counts float64) float64 {
	return counts / c.GyroScale
}

// MilliG converts accelerometer counts to milli-g.
// Tilt estimation never calls this: the scale cancels in the direction ratio.
func (c SensorConfig) MilliG(counts float64) float64 {
	return counts / c.AccelScale
}

// G converts accelerometer counts to g.
func (c SensorConfig) G(counts float64) float64 {
	return c.MilliG(counts) / 1000
}

func (c SensorConfig) String() string {
	return fmt.Sprintf("gyro ±%d°/s (%.1f LSB/°/s), accel ±%dg (%.0f LSB/g)",
		c.GyroFullScale, c.GyroScale, c.AccelFullScale, c.AccelScale*1000)
}
