// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"github.com/relabs-tech/rocket_attitude/internal/imu"
	"github.com/relabs-tech/rocket_attitude/internal/linalg"
	"github.com/relabs-tech/rocket_attitude/internal/orientation"
)

// ComplementaryFilter blends integrated gyro rate with the accelerometer
// tilt: angle = α·(angle + rate·dt) + (1−α)·accelAngle. Yaw is pure gyro
// integration. With Compensate set, the accelerometer is first corrected
// for the IMU's offset from the centre of mass.
type ComplementaryFilter struct {
	p  Params
	st step

	roll, pitch, yaw float64
	prevOmega        linalg.Vec3
}

// NewComplementary returns a complementary filter.
func NewComplementary(p Params) *ComplementaryFilter {
	return &ComplementaryFilter{p: p}
}

func (f *ComplementaryFilter) Kind() Kind { return Complementary }

func (f *ComplementaryFilter) Reset() {
	f.st.reset()
	f.roll, f.pitch, f.yaw = 0, 0, 0
	f.prevOmega = linalg.Vec3{}
}

func (f *ComplementaryFilter) Update(s imu.Sample) FusedSample {
	raw, dt, first := f.st.next(s, f.p.MaxDT)

	accel := accelVec(s)
	omega := gyroRad(s)
	var comp *linalg.Vec3
	if f.p.Compensate {
		var alpha linalg.Vec3
		if !first {
			alpha = AngularAcceleration(f.prevOmega, omega, raw)
		}
		c := Compensate(accel, omega, alpha, f.p.SensorOffset)
		accel = c
		comp = &c
	}
	f.prevOmega = omega

	tilt := orientation.TiltFromSpecificForce(accel.X, accel.Y, accel.Z)

	if first {
		f.roll, f.pitch, f.yaw = tilt.Roll, tilt.Pitch, 0
	} else {
		a := f.p.Alpha
		f.roll = a*(f.roll+s.GyroX*dt) + (1-a)*tilt.Roll
		f.pitch = a*(f.pitch+s.GyroY*dt) + (1-a)*tilt.Pitch
		f.yaw = orientation.WrapDegrees(f.yaw + s.GyroZ*dt)
	}

	return FusedSample{
		Sample:    s,
		Pose:      orientation.Pose{Roll: f.roll, Pitch: f.pitch, Yaw: f.yaw}.Wrap(),
		CompAccel: comp,
		Filter:    Complementary,
	}
}
