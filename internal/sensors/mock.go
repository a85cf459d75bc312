// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"math"
	"time"

	"github.com/relabs-tech/rocket_attitude/internal/imu"
	"github.com/relabs-tech/rocket_attitude/internal/orientation"
)

// PadSeconds is how long the mock rocket sits on the pad before launch.
const PadSeconds = 3.0

// MockRecord generates the live record of a synthetic flight at t seconds:
// motionless on the pad, then a spinning ascent that rocks in roll and
// pitch. The accelerometer carries gravity only, so the tilt it implies
// matches the true attitude.
func MockRecord(t float64) imu.LiveRecord {
	var rec imu.LiveRecord
	rec.System.Millis = int64(t * 1000)

	var roll, pitch, rollRate, pitchRate, yawRate, alt float64
	if ft := t - PadSeconds; ft > 0 {
		roll = 20 * math.Sin(ft)
		pitch = 15 * math.Cos(ft*0.7)
		rollRate = 20 * math.Cos(ft)
		pitchRate = -15 * 0.7 * math.Sin(ft*0.7)
		yawRate = 30
		alt = 15 * ft * ft
		pitch -= 15 // level at launch
	}

	// specific force is the negated gravity vector in the body frame
	r, p := orientation.Rad(roll), orientation.Rad(pitch)
	rec.Sensors.Accel = imu.Axes{
		X: math.Sin(p),
		Y: -math.Sin(r) * math.Cos(p),
		Z: -math.Cos(r) * math.Cos(p),
	}
	rec.Sensors.Gyro = imu.Axes{X: rollRate, Y: pitchRate, Z: yawRate}
	rec.Sensors.Altitude = &alt
	return rec
}

// MockSource emits MockRecord samples in real time.
type MockSource struct {
	Interval time.Duration
	Clock    *imu.LiveClock
}

func (m *MockSource) Run(ctx context.Context, out chan<- imu.Sample) error {
	if m.Clock == nil {
		m.Clock = imu.NewLiveClock()
	}
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			rec := MockRecord(now.Sub(start).Seconds())
			if err := send(ctx, out, m.Clock.Ingest(rec)); err != nil {
				return err
			}
		}
	}
}
