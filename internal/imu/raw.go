// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// BlockSize is the length of one burst read starting at ACCEL_XOUT_H:
// accel X/Y/Z, TEMP, gyro X/Y/Z as big-endian int16.
const BlockSize = 14

var (
	// ErrTransportTimeout is returned by a Source when the bus never delivered
	// the requested bytes within its bounded wait.
	ErrTransportTimeout = errors.New("imu: transport timeout")

	// ErrSaturated marks a sample with one or more channels pinned at the
	// int16 limits. It is a warning; the sample is still usable.
	ErrSaturated = errors.New("imu: reading at full-scale limit")

	// ErrShortBlock is returned by Decode when fewer than BlockSize bytes arrive.
	ErrShortBlock = errors.New("imu: short data block")
)

// RawSample is a single raw accel+temp+gyro read, in register order.
type RawSample struct {
	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Temp int16 `json:"temp"` // TEMP_OUT counts

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// Source is anything that can provide raw samples over time.
// Implementations must bound how long NextRaw blocks.
type Source interface {
	NextRaw(ctx context.Context) (RawSample, error)
}

// Decode interprets a BlockSize burst read.
func Decode(b []byte) (RawSample, error) {
	if len(b) < BlockSize {
		return RawSample{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShortBlock, len(b), BlockSize)
	}
	word := func(i int) int16 { return int16(binary.BigEndian.Uint16(b[2*i:])) }
	return RawSample{
		Ax:   word(0),
		Ay:   word(1),
		Az:   word(2),
		Temp: word(3),
		Gx:   word(4),
		Gy:   word(5),
		Gz:   word(6),
	}, nil
}

// Encode is the inverse of Decode.
func (s RawSample) Encode() []byte {
	b := make([]byte, BlockSize)
	for i, v := range []int16{s.Ax, s.Ay, s.Az, s.Temp, s.Gx, s.Gy, s.Gz} {
		binary.BigEndian.PutUint16(b[2*i:], uint16(v))
	}
	return b
}

// SaturatedChannels lists the accel/gyro channels sitting at an int16 limit.
func (s RawSample) SaturatedChannels() []string {
	var out []string
	for _, ch := range []struct {
		name string
		v    int16
	}{
		{"ax", s.Ax}, {"ay", s.Ay}, {"az", s.Az},
		{"gx", s.Gx}, {"gy", s.Gy}, {"gz", s.Gz},
	} {
		if ch.v == math.MaxInt16 || ch.v == math.MinInt16 {
			out = append(out, ch.name)
		}
	}
	return out
}

// CheckSaturation returns an error wrapping ErrSaturated when any channel is
// pinned, nil otherwise.
func (s RawSample) CheckSaturation() error {
	if ch := s.SaturatedChannels(); len(ch) > 0 {
		return fmt.Errorf("%w: %s", ErrSaturated, strings.Join(ch, ","))
	}
	return nil
}
