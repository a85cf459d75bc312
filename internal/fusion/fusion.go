// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fusion estimates roll, pitch and yaw from accelerometer and
// gyroscope samples. Three interchangeable estimators share one contract:
// feed samples in order, get back the same samples annotated with the
// orientation computed from everything seen so far.
package fusion

import (
	"fmt"
	"math"
	"strings"

	"github.com/relabs-tech/rocket_attitude/internal/imu"
	"github.com/relabs-tech/rocket_attitude/internal/linalg"
	"github.com/relabs-tech/rocket_attitude/internal/orientation"
)

// Kind selects a fusion strategy.
type Kind string

const (
	Complementary Kind = "complementary"
	Kalman        Kind = "kalman"
	Madgwick      Kind = "madgwick"
)

// Kinds lists every strategy.
var Kinds = []Kind{Complementary, Kalman, Madgwick}

// ParseKind accepts a strategy name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Complementary, Kalman, Madgwick:
		return k, nil
	}
	return "", fmt.Errorf("unknown filter %q (want complementary, kalman or madgwick)", s)
}

const (
	// DefaultDT is used for the first sample of a run wherever an
	// integration step cannot be avoided.
	DefaultDT = 0.1
	// minDT is the smallest step a finite difference divides by.
	minDT = 1e-6
)

// Params tunes the estimators.
type Params struct {
	Alpha          float64     // complementary gyro weight
	Compensate     bool        // complementary: correct accel for sensor offset
	Beta           float64     // Madgwick gradient gain
	SensorOffset   linalg.Vec3 // IMU position relative to centre of mass, m
	MaxDT          float64     // integration step clamp, s
	GeneralInverse bool        // Kalman: full inverse of S instead of diagonal-only
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		Alpha:        0.98,
		Compensate:   true,
		Beta:         0.1,
		SensorOffset: linalg.Vec3{X: 0, Y: 0, Z: 0.03},
		MaxDT:        0.5,
	}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	if p.Alpha < 0 || p.Alpha > 1 || math.IsNaN(p.Alpha) {
		return fmt.Errorf("alpha must be within [0,1], got %v", p.Alpha)
	}
	if p.Beta < 0 || math.IsNaN(p.Beta) {
		return fmt.Errorf("beta must be >= 0, got %v", p.Beta)
	}
	if !(p.MaxDT > 0) {
		return fmt.Errorf("max dt must be > 0, got %v", p.MaxDT)
	}
	return nil
}

// FusedSample is a sample annotated by exactly one estimator run.
type FusedSample struct {
	imu.Sample
	orientation.Pose
	CompAccel *linalg.Vec3 `json:"comp_accel,omitempty"` // g, complementary only
	Filter    Kind         `json:"filter"`
}

// Estimator is one running orientation filter. Update must be called with
// samples in time order; the result for a sample depends only on the
// samples before it.
type Estimator interface {
	Kind() Kind
	Update(s imu.Sample) FusedSample
	Reset()
}

// New builds a fresh estimator of the given kind.
func New(kind Kind, p Params) (Estimator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case Complementary:
		return NewComplementary(p), nil
	case Kalman:
		return NewKalman(p), nil
	case Madgwick:
		return NewMadgwick(p), nil
	}
	return nil, fmt.Errorf("unknown filter %q", kind)
}

// Run fuses samples from scratch with a new estimator. The input slice is
// not modified.
func Run(kind Kind, p Params, samples []imu.Sample) ([]FusedSample, error) {
	est, err := New(kind, p)
	if err != nil {
		return nil, err
	}
	out := make([]FusedSample, len(samples))
	for i, s := range samples {
		out[i] = est.Update(s)
	}
	return out, nil
}

// elapsed is the raw time between two samples. Relative time is preferred;
// a NaN relative time on either side falls back to device millis.
func elapsed(prev, cur imu.Sample) float64 {
	dt := cur.RelativeTime - prev.RelativeTime
	if math.IsNaN(dt) {
		dt = float64(cur.Timestamp-prev.Timestamp) / 1000.0
	}
	return dt
}

// clampDT bounds an integration step to [0, max] so a gap in the stream
// cannot turn into a large one-step angle jump.
func clampDT(dt, max float64) float64 {
	if math.IsNaN(dt) || dt < 0 {
		return 0
	}
	if dt > max {
		return max
	}
	return dt
}

// step tracks the previous sample of a run and yields per-sample time steps.
type step struct {
	prev    imu.Sample
	started bool
}

// next returns the raw and clamped dt for s, and whether s is the first
// sample of the run.
func (st *step) next(s imu.Sample, maxDT float64) (raw, dt float64, first bool) {
	if !st.started {
		st.started = true
		st.prev = s
		return 0, 0, true
	}
	raw = elapsed(st.prev, s)
	st.prev = s
	return raw, clampDT(raw, maxDT), false
}

func (st *step) reset() { *st = step{} }

func gyroRad(s imu.Sample) linalg.Vec3 {
	return linalg.Vec3{
		X: orientation.Rad(s.GyroX),
		Y: orientation.Rad(s.GyroY),
		Z: orientation.Rad(s.GyroZ),
	}
}

func accelVec(s imu.Sample) linalg.Vec3 {
	return linalg.Vec3{X: s.AccelX, Y: s.AccelY, Z: s.AccelZ}
}
