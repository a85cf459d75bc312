// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import "github.com/relabs-tech/rocket_attitude/internal/linalg"

// StandardGravity converts m/s² to g.
const StandardGravity = 9.80665

// Compensate moves an accelerometer reading from the IMU mount point to the
// vehicle's centre of mass:
//
//	a_cm = a_imu − (ω × (ω × r) + α × r)
//
// accel is in g, omega in rad/s, alpha in rad/s², offset r in metres. The
// rigid-body terms are converted to g before subtracting.
func Compensate(accel, omega, alpha, offset linalg.Vec3) linalg.Vec3 {
	centripetal := omega.Cross(omega.Cross(offset))
	tangential := alpha.Cross(offset)
	return accel.Sub(centripetal.Add(tangential).Scale(1 / StandardGravity))
}

// AngularAcceleration is the finite difference (cur − prev) / dt. Steps
// shorter than a microsecond yield zero instead of a blow-up.
func AngularAcceleration(prev, cur linalg.Vec3, dt float64) linalg.Vec3 {
	if !(dt >= minDT) {
		return linalg.Vec3{}
	}
	return cur.Sub(prev).Scale(1 / dt)
}
