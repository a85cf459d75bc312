// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
)

const (
	radToDeg = 180.0 / math.Pi
	degToRad = math.Pi / 180.0
)

// Pose is the canonical representation of orientation for the app, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// ComputePoseFromAccel computes roll and pitch from a gravity vector.
// Yaw is 0 since it is unobservable from gravity alone.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * radToDeg,
		Pitch: pitchRad * radToDeg,
		Yaw:   0,
	}
}

// TiltFromSpecificForce returns the accelerometer-only pose for a raw
// accelerometer reading. The accelerometer reports specific force, which
// reads about -1 g on Z for a vehicle at rest after Z auto-correction, so
// gravity is the negated reading.
//
// The negation flips pitch relative to applying atan2(-ax, √(ay²+az²)) to
// the raw reading: [0.5, 0, -0.866] gives pitch +30° here and -30° from the
// raw formula.
func TiltFromSpecificForce(ax, ay, az float64) Pose {
	return ComputePoseFromAccel(-ax, -ay, -az)
}

// WrapDegrees folds an angle into [-180, 180]. Values already in range are
// returned unchanged; NaN and ±Inf pass through.
func WrapDegrees(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	r := math.Mod(a, 360)
	if r > 180 {
		r -= 360
	} else if r < -180 {
		r += 360
	}
	return r
}

// Wrap returns p with every angle folded into [-180, 180].
func (p Pose) Wrap() Pose {
	return Pose{
		Roll:  WrapDegrees(p.Roll),
		Pitch: WrapDegrees(p.Pitch),
		Yaw:   WrapDegrees(p.Yaw),
	}
}

// Deg converts radians to degrees.
func Deg(rad float64) float64 { return rad * radToDeg }

// Rad converts degrees to radians.
func Rad(deg float64) float64 { return deg * degToRad }
