// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// FastMode is the I²C clock used for the sensor bus. A 14-byte burst at
// 400 kHz takes well under half a millisecond.
const FastMode = 400 * physic.KiloHertz

var (
	hostOnce    sync.Once
	hostInitErr error
)

// InitHost loads the periph host drivers once per process.
func InitHost() error {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostInitErr = fmt.Errorf("periph host init: %w", err)
		}
	})
	return hostInitErr
}

// OpenBus opens the named I²C bus ("1" for /dev/i2c-1, "" for the first
// available). A zero speed leaves the bus clock untouched.
func OpenBus(name string, speed physic.Frequency) (i2c.BusCloser, error) {
	if err := InitHost(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("i2c open %q: %w", name, err)
	}
	if speed > 0 {
		if err := bus.SetSpeed(speed); err != nil {
			bus.Close()
			return nil, fmt.Errorf("i2c %s: set speed %s: %w", bus, speed, err)
		}
	}
	return bus, nil
}
