// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"math"

	"github.com/relabs-tech/rocket_attitude/internal/imu"
	"github.com/relabs-tech/rocket_attitude/internal/orientation"
)

// normTolerance is the smallest vector norm treated as non-zero.
const normTolerance = 1e-12

// Quaternion is (w, x, y, z).
type Quaternion [4]float64

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{1, 0, 0, 0}

// Norm returns |q|.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
}

// Euler converts q to roll, pitch, yaw in degrees. Pitch saturates at ±90
// at the gimbal-lock boundary.
func (q Quaternion) Euler() orientation.Pose {
	w, x, y, z := q[0], q[1], q[2], q[3]

	roll := math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	var pitch float64
	sinp := 2 * (w*y - z*x)
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	yaw := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	return orientation.Pose{
		Roll:  orientation.Deg(roll),
		Pitch: orientation.Deg(pitch),
		Yaw:   orientation.Deg(yaw),
	}
}

// MadgwickFilter is the gradient-descent quaternion estimator (IMU form,
// no magnetometer). The reference direction is aligned with gravity, taken
// as the negated accelerometer reading.
type MadgwickFilter struct {
	p  Params
	st step
	q  Quaternion
}

// NewMadgwick returns a Madgwick filter at the identity orientation.
func NewMadgwick(p Params) *MadgwickFilter {
	return &MadgwickFilter{p: p, q: IdentityQuaternion}
}

func (f *MadgwickFilter) Kind() Kind { return Madgwick }

func (f *MadgwickFilter) Reset() {
	f.st.reset()
	f.q = IdentityQuaternion
}

// Quaternion returns the current attitude estimate.
func (f *MadgwickFilter) Quaternion() Quaternion { return f.q }

func (f *MadgwickFilter) Update(s imu.Sample) FusedSample {
	_, dt, first := f.st.next(s, f.p.MaxDT)
	if first {
		dt = math.Min(DefaultDT, f.p.MaxDT)
	}

	g := gyroRad(s)
	f.q = madgwickStep(f.q, g.X, g.Y, g.Z, -s.AccelX, -s.AccelY, -s.AccelZ, f.p.Beta, dt)

	pose := f.q.Euler()
	pose.Yaw = orientation.WrapDegrees(pose.Yaw)
	return FusedSample{
		Sample: s,
		Pose:   pose,
		Filter: Madgwick,
	}
}

// madgwickStep advances q by one sample. Gyro in rad/s. A zero accelerometer
// vector or a zero gradient skips the correction term; a collapsed
// quaternion resets to identity.
func madgwickStep(q Quaternion, gx, gy, gz, ax, ay, az, beta, dt float64) Quaternion {
	q0, q1, q2, q3 := q[0], q[1], q[2], q[3]

	// rate of change from the gyro
	qDot0 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot1 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot2 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot3 := 0.5 * (q0*gz + q1*gy - q2*gx)

	if an := math.Sqrt(ax*ax + ay*ay + az*az); an > normTolerance {
		ax /= an
		ay /= an
		az /= an

		_2q0 := 2 * q0
		_2q1 := 2 * q1
		_2q2 := 2 * q2
		_2q3 := 2 * q3
		_4q0 := 4 * q0
		_4q1 := 4 * q1
		_4q2 := 4 * q2
		_8q1 := 8 * q1
		_8q2 := 8 * q2
		q0q0 := q0 * q0
		q1q1 := q1 * q1
		q2q2 := q2 * q2
		q3q3 := q3 * q3

		s0 := _4q0*q2q2 + _2q2*ax + _4q0*q1q1 - _2q1*ay
		s1 := _4q1*q3q3 - _2q3*ax + 4*q0q0*q1 - _2q0*ay - _4q1 + _8q1*q1q1 + _8q1*q2q2 + _4q1*az
		s2 := 4*q0q0*q2 + _2q0*ax + _4q2*q3q3 - _2q3*ay - _4q2 + _8q2*q1q1 + _8q2*q2q2 + _4q2*az
		s3 := 4*q1q1*q3 - _2q1*ax + 4*q2q2*q3 - _2q2*ay

		if sn := math.Sqrt(s0*s0 + s1*s1 + s2*s2 + s3*s3); sn > normTolerance {
			qDot0 -= beta * s0 / sn
			qDot1 -= beta * s1 / sn
			qDot2 -= beta * s2 / sn
			qDot3 -= beta * s3 / sn
		}
	}

	next := Quaternion{
		q0 + qDot0*dt,
		q1 + qDot1*dt,
		q2 + qDot2*dt,
		q3 + qDot3*dt,
	}

	n := next.Norm()
	if !(n > normTolerance) || math.IsInf(n, 0) {
		return IdentityQuaternion
	}
	for i := range next {
		next[i] /= n
	}
	return next
}
