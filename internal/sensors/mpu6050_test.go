// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/tilt_computer/internal/imu"
	"github.com/relabs-tech/tilt_computer/internal/units"
)

func bringUpOps(addr uint16, whoami, gyroCfg, accelCfg byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: addr, W: []byte{RegPwrMgmt1, 0x00}},
		{Addr: addr, W: []byte{RegWhoAmI}, R: []byte{whoami}},
		{Addr: addr, W: []byte{RegGyroConfig, gyroCfg}},
		{Addr: addr, W: []byte{RegAccelConfig, accelCfg}},
	}
}

func TestNew(t *testing.T) {
	sensor, err := units.Resolve(500, 8)
	test.That(t, err, test.ShouldBeNil)

	t.Run("wakes, identifies and programs ranges", func(t *testing.T) {
		sample := imu.RawSample{Ax: -2, Ay: 300, Az: 16384, Temp: -1600, Gx: 12, Gy: -7, Gz: 1}
		ops := bringUpOps(0x68, WhoAmI, 0x08, 0x10)
		ops = append(ops, i2ctest.IO{Addr: 0x68, W: []byte{RegAccelXoutH}, R: sample.Encode()})
		bus := &i2ctest.Playback{Ops: ops, DontPanic: true}

		opts := DefaultOpts
		opts.Logger = zaptest.NewLogger(t).Sugar()
		dev, err := New(context.Background(), bus, sensor, &opts)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dev.Sensor(), test.ShouldResemble, sensor)

		got, err := dev.NextRaw(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldResemble, sample)
		test.That(t, bus.Close(), test.ShouldBeNil)
	})

	t.Run("alternate address", func(t *testing.T) {
		bus := &i2ctest.Playback{Ops: bringUpOps(0x69, WhoAmI, 0x08, 0x10), DontPanic: true}
		opts := Opts{Addr: 0x69}
		_, err := New(context.Background(), bus, sensor, &opts)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, bus.Close(), test.ShouldBeNil)
	})

	t.Run("rejects another chip", func(t *testing.T) {
		bus := &i2ctest.Playback{Ops: bringUpOps(0x68, 0x71, 0, 0)[:2], DontPanic: true}
		_, err := New(context.Background(), bus, sensor, nil)
		test.That(t, errors.Is(err, ErrWrongDevice), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "0x71")
	})
}

// stallBus blocks every transfer until release is closed.
type stallBus struct {
	release chan struct{}

	mu          sync.Mutex
	calls       int
	inflight    int
	maxInflight int
}

func (b *stallBus) String() string                  { return "stall" }
func (b *stallBus) SetSpeed(physic.Frequency) error { return nil }

func (b *stallBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	b.calls++
	b.inflight++
	if b.inflight > b.maxInflight {
		b.maxInflight = b.inflight
	}
	b.mu.Unlock()

	<-b.release
	for i := range r {
		r[i] = byte(i)
	}

	b.mu.Lock()
	b.inflight--
	b.mu.Unlock()
	return nil
}

// flakyBus fails the first n transfers.
type flakyBus struct {
	fails int
	calls int
}

func (b *flakyBus) String() string                  { return "flaky" }
func (b *flakyBus) SetSpeed(physic.Frequency) error { return nil }

func (b *flakyBus) Tx(addr uint16, w, r []byte) error {
	b.calls++
	if b.calls <= b.fails {
		return errors.New("nack")
	}
	return nil
}

func rawDev(t *testing.T, bus i2c.Bus, timeout time.Duration, retries int) *Dev {
	t.Helper()
	return &Dev{
		dev:     i2c.Dev{Bus: bus, Addr: 0x68},
		timeout: timeout,
		retries: retries,
		logger:  zaptest.NewLogger(t).Sugar(),
	}
}

func TestTransportTimeout(t *testing.T) {
	bus := &stallBus{release: make(chan struct{})}
	dev := rawDev(t, bus, 5*time.Millisecond, 1)

	start := time.Now()
	_, err := dev.NextRaw(context.Background())
	test.That(t, errors.Is(err, imu.ErrTransportTimeout), test.ShouldBeTrue)
	test.That(t, time.Since(start) < time.Second, test.ShouldBeTrue)

	// The stuck transfer is never duplicated on the bus.
	bus.mu.Lock()
	test.That(t, bus.calls, test.ShouldEqual, 1)
	bus.mu.Unlock()

	close(bus.release)
	got, err := dev.NextRaw(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Ax, test.ShouldEqual, int16(0x0001))
	test.That(t, got.Gz, test.ShouldEqual, int16(0x0C0D))

	bus.mu.Lock()
	defer bus.mu.Unlock()
	test.That(t, bus.maxInflight, test.ShouldEqual, 1)
}

func TestTransportCancelled(t *testing.T) {
	bus := &stallBus{release: make(chan struct{})}
	defer close(bus.release)
	dev := rawDev(t, bus, time.Second, 3)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := dev.NextRaw(ctx)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestRetries(t *testing.T) {
	t.Run("recovers within the retry budget", func(t *testing.T) {
		bus := &flakyBus{fails: 2}
		dev := rawDev(t, bus, 0, 2)
		test.That(t, dev.WriteReg(context.Background(), RegPwrMgmt1, 0), test.ShouldBeNil)
		test.That(t, bus.calls, test.ShouldEqual, 3)
	})

	t.Run("gives up after the budget", func(t *testing.T) {
		bus := &flakyBus{fails: 5}
		dev := rawDev(t, bus, 10*time.Millisecond, 1)
		err := dev.WriteReg(context.Background(), RegPwrMgmt1, 0)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "nack")
		test.That(t, err.Error(), test.ShouldContainSubstring, "after 2 attempts")
		test.That(t, bus.calls, test.ShouldEqual, 2)
	})
}

// registerBus serves single-register reads from a map.
type registerBus struct {
	regs map[byte]byte
}

func (b *registerBus) String() string                  { return "regs" }
func (b *registerBus) SetSpeed(physic.Frequency) error { return nil }

func (b *registerBus) Tx(addr uint16, w, r []byte) error {
	if len(w) == 2 {
		b.regs[w[0]] = w[1]
		return nil
	}
	for i := range r {
		r[i] = b.regs[w[0]+byte(i)]
	}
	return nil
}

func TestDumpAndHalt(t *testing.T) {
	bus := &registerBus{regs: map[byte]byte{RegWhoAmI: WhoAmI, RegGyroConfig: 0x18}}
	dev := rawDev(t, bus, 0, 0)

	values, err := dev.Dump(context.Background())
	test.That(t, err, test.ShouldBeNil)
	byName := map[string]byte{}
	for _, v := range values {
		test.That(t, v.Readable(), test.ShouldBeTrue)
		byName[v.Name] = v.Value
	}
	test.That(t, byName["WHO_AM_I"], test.ShouldEqual, byte(WhoAmI))
	test.That(t, byName["GYRO_CONFIG"], test.ShouldEqual, byte(0x18))
	_, hasWriteOnly := byName["SIGNAL_PATH_RESET"]
	test.That(t, hasWriteOnly, test.ShouldBeFalse)

	test.That(t, dev.Halt(), test.ShouldBeNil)
	test.That(t, bus.regs[RegPwrMgmt1], test.ShouldEqual, byte(pwrSleep))
}

func TestLookupRegister(t *testing.T) {
	r, ok := LookupRegister("PWR_MGMT_1")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, r.Address, test.ShouldEqual, byte(0x6B))

	r, ok = LookupRegister("0x75")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, r.Name, test.ShouldEqual, "WHO_AM_I")

	_, ok = LookupRegister("MAG_XOUT")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestLED(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO13", Num: 13}
	led := NewLED(pin)

	test.That(t, led.Set(true), test.ShouldBeNil)
	test.That(t, pin.Read(), test.ShouldEqual, gpio.High)
	test.That(t, led.Set(false), test.ShouldBeNil)
	test.That(t, pin.Read(), test.ShouldEqual, gpio.Low)
}
