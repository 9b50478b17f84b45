// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"fmt"
	"math"

	"github.com/relabs-tech/tilt_computer/internal/calibration"
	"github.com/relabs-tech/tilt_computer/internal/compensation"
	"github.com/relabs-tech/tilt_computer/internal/imu"
	"github.com/relabs-tech/tilt_computer/internal/units"
)

// Coupling selects how the yaw rate transfers angle between the two axes.
type Coupling int

const (
	// CouplingSequential updates angle_x first and feeds the updated value
	// into the angle_y update. This is the default.
	CouplingSequential Coupling = iota
	// CouplingSimultaneous computes both updates from the pre-coupling angles.
	CouplingSimultaneous
)

// ParseCoupling reads the YAW_COUPLING config value.
func ParseCoupling(s string) (Coupling, error) {
	switch s {
	case "sequential", "":
		return CouplingSequential, nil
	case "simultaneous":
		return CouplingSimultaneous, nil
	}
	return CouplingSequential, fmt.Errorf("orientation: unknown yaw coupling %q", s)
}

func (c Coupling) String() string {
	if c == CouplingSimultaneous {
		return "simultaneous"
	}
	return "sequential"
}

// State is the estimator's mutable record. The zero value is the
// uninitialized state.
type State struct {
	AngleX float64 `json:"angle_x"` // integrated pitch
	AngleY float64 `json:"angle_y"` // integrated roll

	OutputX float64 `json:"angle_x_output"` // smoothed pitch
	OutputY float64 `json:"angle_y_output"` // smoothed roll

	// Initialized flips once the first accelerometer tilt seeds the angles.
	Initialized bool `json:"initialized"`
}

// Pose returns the smoothed output angles.
func (s State) Pose() Pose {
	return Pose{Pitch: s.OutputX, Roll: s.OutputY}
}

// Params are fixed for the life of an estimator.
type Params struct {
	Sensor  units.SensorConfig
	Offsets calibration.Offsets

	// SampleRate defaults to SampleRate when zero.
	SampleRate float64

	// Spirit-level corrections subtracted from the accelerometer tilt.
	PitchOffset float64
	RollOffset  float64

	Coupling Coupling
	TempMode compensation.Mode
}

// Advance runs one tick of integration, yaw coupling, accelerometer tilt,
// fusion and smoothing on bias-corrected, temperature-compensated counts.
// When the accelerometer vector is degenerate the tick is dropped: st is
// returned unchanged together with ErrDegenerateVector.
func Advance(st State, in compensation.Channels, p Params) (State, error) {
	rate := p.SampleRate
	if rate == 0 {
		rate = SampleRate
	}

	pitch, roll, err := Tilt(in.Ax, in.Ay, in.Az)
	if err != nil {
		return st, err
	}
	pitch -= p.PitchOffset
	roll -= p.RollOffset

	next := st

	// Gyro integration
	next.AngleX += p.Sensor.DegPerSec(in.Gx) / rate
	next.AngleY += p.Sensor.DegPerSec(in.Gy) / rate

	// If the body yawed, transfer angle between the axes.
	yaw := math.Sin(p.Sensor.DegPerSec(in.Gz) / rate * DegToRad)
	switch p.Coupling {
	case CouplingSimultaneous:
		x, y := next.AngleX, next.AngleY
		next.AngleX = x + y*yaw
		next.AngleY = y - x*yaw
	default:
		next.AngleX += next.AngleY * yaw
		next.AngleY -= next.AngleX * yaw
	}

	// Drift correction
	if next.Initialized {
		gw, aw := FusionWeights(rate)
		next.AngleX = next.AngleX*gw + pitch*aw
		next.AngleY = next.AngleY*gw + roll*aw
	} else {
		next.AngleX = pitch
		next.AngleY = roll
		next.Initialized = true
	}

	next.OutputX = next.OutputX*OutputRetain + next.AngleX*OutputGain
	next.OutputY = next.OutputY*OutputRetain + next.AngleY*OutputGain
	return next, nil
}

// Estimator owns the orientation state and applies bias removal and
// temperature compensation before Advance.
type Estimator struct {
	params Params
	state  State
}

// NewEstimator returns an estimator in the uninitialized state.
func NewEstimator(p Params) *Estimator {
	if p.SampleRate == 0 {
		p.SampleRate = SampleRate
	}
	return &Estimator{params: p}
}

// Update consumes one raw sample and returns the smoothed pose. On error the
// state is left untouched and the previous pose is returned.
func (e *Estimator) Update(raw imu.RawSample) (Pose, error) {
	temp := e.params.TempMode.Temperature(raw.Temp)
	ch := compensation.Apply(temp, compensation.Channels{
		Ax: float64(raw.Ax),
		Ay: float64(raw.Ay),
		Az: float64(raw.Az),
		Gx: float64(int32(raw.Gx) - e.params.Offsets.X),
		Gy: float64(int32(raw.Gy) - e.params.Offsets.Y),
		Gz: float64(int32(raw.Gz) - e.params.Offsets.Z),
	})

	next, err := Advance(e.state, ch, e.params)
	if err != nil {
		return e.state.Pose(), err
	}
	e.state = next
	return next.Pose(), nil
}

// State returns a copy of the current state.
func (e *Estimator) State() State {
	return e.state
}

// Params returns the estimator's fixed parameters.
func (e *Estimator) Params() Params {
	return e.params
}
