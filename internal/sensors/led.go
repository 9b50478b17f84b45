// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// LED drives the calibration indicator.
type LED struct {
	pin gpio.PinOut
}

// NewLED wraps an output pin.
func NewLED(pin gpio.PinOut) *LED {
	return &LED{pin: pin}
}

// OpenLED looks up a GPIO by name ("GPIO13", "13") and drives it low.
func OpenLED(name string) (*LED, error) {
	if err := InitHost(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("led: pin %q not found", name)
	}
	l := NewLED(pin)
	if err := l.Set(false); err != nil {
		return nil, err
	}
	return l, nil
}

// Set turns the LED on or off. It implements calibration.Indicator.
func (l *LED) Set(on bool) error {
	if err := l.pin.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("led %s: %w", l.pin, err)
	}
	return nil
}
