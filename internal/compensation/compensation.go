// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package compensation applies the linear temperature correction to raw
// accelerometer and gyroscope counts.
package compensation

import "fmt"

const (
	// ReferenceTemp is the temperature at which no correction is applied.
	ReferenceTemp = 25
	// Coefficient is the fractional correction per unit of deviation (2 %).
	Coefficient = 0.02
)

// Channels holds the six motion channels in counts.
type Channels struct {
	Ax, Ay, Az float64
	Gx, Gy, Gz float64
}

// Adjust corrects a single raw value for temperature temp.
// At exactly ReferenceTemp the value is returned unchanged.
func Adjust(temp int, raw float64) float64 {
	switch {
	case temp > ReferenceTemp:
		return raw + raw*float64(temp-ReferenceTemp)*Coefficient
	case temp == ReferenceTemp:
		return raw
	default:
		return raw - raw*float64(ReferenceTemp-temp)*Coefficient
	}
}

// Apply corrects all six channels independently.
func Apply(temp int, c Channels) Channels {
	return Channels{
		Ax: Adjust(temp, c.Ax),
		Ay: Adjust(temp, c.Ay),
		Az: Adjust(temp, c.Az),
		Gx: Adjust(temp, c.Gx),
		Gy: Adjust(temp, c.Gy),
		Gz: Adjust(temp, c.Gz),
	}
}

// Mode selects which temperature value feeds Adjust.
type Mode int

const (
	// Celsius converts TEMP_OUT to whole degrees Celsius.
	Celsius Mode = iota
	// Raw feeds the TEMP_OUT count as is.
	Raw
	// Off always feeds ReferenceTemp, so compensation is the identity.
	Off
)

// ParseMode reads the TEMP_COMPENSATION config value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "celsius", "":
		return Celsius, nil
	case "raw":
		return Raw, nil
	case "off":
		return Off, nil
	}
	return Celsius, fmt.Errorf("compensation: unknown mode %q", s)
}

func (m Mode) String() string {
	switch m {
	case Raw:
		return "raw"
	case Off:
		return "off"
	default:
		return "celsius"
	}
}

// Temperature returns the integer temperature for a TEMP_OUT reading.
func (m Mode) Temperature(raw int16) int {
	switch m {
	case Raw:
		return int(raw)
	case Off:
		return ReferenceTemp
	default:
		return int(DieCelsius(raw))
	}
}

// DieCelsius converts TEMP_OUT counts to °C (MPU-6000/6050 datasheet).
func DieCelsius(raw int16) float64 {
	return float64(raw)/340 + 36.53
}
