// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"fmt"
	"io"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/tilt_computer/internal/pipeline"
)

// OpenSerialPort opens a raw 8N1 serial line.
func OpenSerialPort(name string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        name,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", name, err)
	}
	return port, nil
}

// SerialSink writes one $PTILT sentence every Nth tick. At 57600 baud a
// sentence takes about 6 ms on the wire, so every should be at least 2.
type SerialSink struct {
	w     io.Writer
	every uint64
}

// NewSerialSink wraps w.
func NewSerialSink(w io.Writer, every int) *SerialSink {
	if every < 1 {
		every = 1
	}
	return &SerialSink{w: w, every: uint64(every)}
}

// Emit implements pipeline.Sink.
func (s *SerialSink) Emit(_ context.Context, out pipeline.Output) error {
	if out.Tick%s.every != 0 {
		return nil
	}
	if _, err := io.WriteString(s.w, EncodeTilt(out)+"\r\n"); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}
