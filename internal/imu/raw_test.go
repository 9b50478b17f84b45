// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.viam.com/test"
)

func TestDecode(t *testing.T) {
	t.Run("register order and sign", func(t *testing.T) {
		block := []byte{
			0x00, 0x10, // ax = 16
			0xFF, 0xFE, // ay = -2
			0x40, 0x00, // az = 16384
			0xF8, 0x30, // temp = -2000
			0x00, 0x83, // gx = 131
			0x80, 0x00, // gy = -32768
			0x7F, 0xFF, // gz = 32767
		}
		s, err := Decode(block)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s, test.ShouldResemble, RawSample{
			Ax: 16, Ay: -2, Az: 16384, Temp: -2000, Gx: 131, Gy: math.MinInt16, Gz: math.MaxInt16,
		})
		test.That(t, s.Encode(), test.ShouldResemble, block)
	})

	t.Run("short block", func(t *testing.T) {
		_, err := Decode(make([]byte, BlockSize-1))
		test.That(t, errors.Is(err, ErrShortBlock), test.ShouldBeTrue)
	})
}

func TestSaturation(t *testing.T) {
	s := RawSample{Ax: 100, Az: OneG}
	test.That(t, s.CheckSaturation(), test.ShouldBeNil)

	s.Gx = math.MaxInt16
	s.Ay = math.MinInt16
	s.Temp = math.MaxInt16 // temperature is not a motion channel
	test.That(t, s.SaturatedChannels(), test.ShouldResemble, []string{"ay", "gx"})
	err := s.CheckSaturation()
	test.That(t, errors.Is(err, ErrSaturated), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "ay,gx")
}

func TestSimSource(t *testing.T) {
	ctx := context.Background()

	t.Run("still and level reports bias and one g", func(t *testing.T) {
		src := NewStillSource(0, 0, [3]int16{12, -7, 3})
		for i := 0; i < 3; i++ {
			s, err := src.NextRaw(ctx)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, s, test.ShouldResemble, RawSample{Az: OneG, Temp: ReferenceTempCount, Gx: 12, Gy: -7, Gz: 3})
		}
	})

	t.Run("reports the reference temperature", func(t *testing.T) {
		s, err := NewWobbleSource([3]int16{}).NextRaw(ctx)
		test.That(t, err, test.ShouldBeNil)
		// TEMP_OUT/340 + 36.53 °C
		test.That(t, float64(s.Temp)/340+36.53, test.ShouldAlmostEqual, 25.0, 0.01)
	})

	t.Run("tilted pitch shows on ay", func(t *testing.T) {
		src := NewStillSource(30, 0, [3]int16{})
		s, err := src.NextRaw(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s.Ay, test.ShouldEqual, int16(OneG/2))
		test.That(t, s.Ax, test.ShouldEqual, int16(0))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewWobbleSource([3]int16{}).NextRaw(cctx)
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	})
}
