// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"log"

	"github.com/relabs-tech/rocket_attitude/internal/imu"
	"github.com/relabs-tech/rocket_attitude/internal/linalg"
	"github.com/relabs-tech/rocket_attitude/internal/orientation"
)

// Kalman tuning. State order is roll, pitch, yaw, roll rate, pitch rate,
// yaw rate (deg, deg/s).
var (
	kalmanQ  = linalg.Diag6(linalg.Vec6{0.01, 0.01, 0.01, 0.01, 0.01, 0.01})
	kalmanR  = linalg.Diag6(linalg.Vec6{0.1, 0.1, 0.1, 0.01, 0.01, 0.01})
	kalmanP0 = linalg.Diag6(linalg.Vec6{1000, 1000, 1000, 100, 100, 100})
	kalmanH  = linalg.Identity6()
)

// KalmanFilter is a 6-state linear Kalman filter with a constant-rate model
// per angle. All six states are observed directly: roll and pitch from the
// accelerometer tilt, yaw propagated from the gyro, rates from the gyro.
//
// By default S is inverted diagonal-only, which ignores the correlations F
// introduces over time. Params.GeneralInverse switches to a full inverse.
//
// The covariance update always uses the Joseph form
// P = (I-KH)P(I-KH)ᵀ + KRKᵀ rather than the short form P = (I-KH)P. With
// the diagonal-only gain the short form is not optimal, loses symmetry and
// positive definiteness, and drives P to NaN within a few thousand noisy
// samples. There is no switch back to the short form.
type KalmanFilter struct {
	p  Params
	st step

	x linalg.Vec6
	P linalg.Mat6
}

// NewKalman returns a Kalman filter.
func NewKalman(p Params) *KalmanFilter {
	return &KalmanFilter{p: p}
}

func (f *KalmanFilter) Kind() Kind { return Kalman }

func (f *KalmanFilter) Reset() {
	f.st.reset()
	f.x = linalg.Vec6{}
	f.P = linalg.Mat6{}
}

// State returns the current state vector and covariance.
func (f *KalmanFilter) State() (linalg.Vec6, linalg.Mat6) {
	return f.x, f.P
}

func (f *KalmanFilter) Update(s imu.Sample) FusedSample {
	_, dt, first := f.st.next(s, f.p.MaxDT)
	tilt := orientation.TiltFromSpecificForce(s.AccelX, s.AccelY, s.AccelZ)

	if first {
		f.x = linalg.Vec6{tilt.Roll, tilt.Pitch, 0, s.GyroX, s.GyroY, s.GyroZ}
		f.P = kalmanP0
		f.wrap()
		return f.fused(s)
	}

	F := linalg.Identity6()
	F[0][3] = dt
	F[1][4] = dt
	F[2][5] = dt

	// predict
	x := F.MulVec(f.x)
	P := F.Mul(f.P).Mul(F.T()).Add(kalmanQ)

	// update
	z := linalg.Vec6{tilt.Roll, tilt.Pitch, x[2] + s.GyroZ*dt, s.GyroX, s.GyroY, s.GyroZ}
	y := z.Sub(kalmanH.MulVec(x))
	S := kalmanH.Mul(P).Mul(kalmanH.T()).Add(kalmanR)
	K := P.Mul(kalmanH.T()).Mul(f.invert(S))

	x = x.Add(K.MulVec(y))
	// Joseph form: stays symmetric positive semi-definite for any gain,
	// including the one built from the diagonal-only inverse.
	A := linalg.Identity6().Sub(K.Mul(kalmanH))
	P = A.Mul(P).Mul(A.T()).Add(K.Mul(kalmanR).Mul(K.T()))

	if !x.IsFinite() {
		log.Printf("fusion: kalman update produced non-finite state at t=%.3f, skipping", s.RelativeTime)
		return f.fused(s)
	}

	f.x = x
	f.P = P
	f.wrap()
	return f.fused(s)
}

func (f *KalmanFilter) invert(S linalg.Mat6) linalg.Mat6 {
	if f.p.GeneralInverse {
		inv, err := linalg.Inverse(S)
		if err == nil {
			return inv
		}
		log.Printf("fusion: kalman general inverse failed, using diagonal: %v", err)
	}
	return linalg.InverseDiagonal(S)
}

func (f *KalmanFilter) wrap() {
	for i := 0; i < 3; i++ {
		f.x[i] = orientation.WrapDegrees(f.x[i])
	}
}

func (f *KalmanFilter) fused(s imu.Sample) FusedSample {
	return FusedSample{
		Sample: s,
		Pose:   orientation.Pose{Roll: f.x[0], Pitch: f.x[1], Yaw: f.x[2]},
		Filter: Kalman,
	}
}
