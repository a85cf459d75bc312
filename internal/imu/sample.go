// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// Sample represents a single raw IMU reading as delivered by a log file or
// a live source. Samples are values; fusion never mutates them.
type Sample struct {
	Timestamp    int64   `json:"timestamp"`     // device millis since boot
	RelativeTime float64 `json:"relative_time"` // seconds since first sample of the session

	AccelX float64 `json:"accel_x"` // g
	AccelY float64 `json:"accel_y"`
	AccelZ float64 `json:"accel_z"`

	GyroX float64 `json:"gyro_x"` // deg/s
	GyroY float64 `json:"gyro_y"`
	GyroZ float64 `json:"gyro_z"`

	Altitude float64 `json:"altitude"` // m, passed through
}

// Accel returns the accelerometer reading as an array.
func (s Sample) Accel() [3]float64 {
	return [3]float64{s.AccelX, s.AccelY, s.AccelZ}
}

// Gyro returns the gyroscope reading (deg/s) as an array.
func (s Sample) Gyro() [3]float64 {
	return [3]float64{s.GyroX, s.GyroY, s.GyroZ}
}
