// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// minLiveStep keeps live relative time strictly increasing when two records
// arrive within the clock resolution.
const minLiveStep = 1e-6

// LiveRecord is the JSON document a live sensor source delivers per update:
//
//	{"sensors":{"accel":{"x":0,"y":0,"z":-1},"gyro":{"x":0,"y":0,"z":0},"altitude":12.5},
//	 "system":{"millis":123456}}
type LiveRecord struct {
	Sensors struct {
		Accel    Axes     `json:"accel"`
		Gyro     Axes     `json:"gyro"`
		Altitude *float64 `json:"altitude,omitempty"`
	} `json:"sensors"`
	System struct {
		Millis int64 `json:"millis"`
	} `json:"system"`
}

// Axes is a tri-axis reading inside a LiveRecord.
type Axes struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DecodeLiveRecord unmarshals one live record.
func DecodeLiveRecord(payload []byte) (LiveRecord, error) {
	var rec LiveRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return LiveRecord{}, fmt.Errorf("decode live record: %w", err)
	}
	return rec, nil
}

// LiveClock turns live records into samples. Relative time is measured from
// the wall-clock arrival of the first record of the session; the device's
// millis only populate Timestamp.
type LiveClock struct {
	mu       sync.Mutex
	now      func() time.Time
	start    time.Time
	started  bool
	last     float64
	altitude float64
}

// NewLiveClock returns a clock driven by time.Now.
func NewLiveClock() *LiveClock {
	return &LiveClock{now: time.Now}
}

// NewLiveClockAt returns a clock driven by the given time function.
func NewLiveClockAt(now func() time.Time) *LiveClock {
	return &LiveClock{now: now}
}

// Ingest stamps a record with its arrival time and returns the sample.
// A record without altitude inherits the last known altitude.
func (c *LiveClock) Ingest(rec LiveRecord) Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	arrival := c.now()
	var rel float64
	if !c.started {
		c.start = arrival
		c.started = true
	} else {
		rel = arrival.Sub(c.start).Seconds()
		if rel <= c.last {
			rel = c.last + minLiveStep
		}
	}
	c.last = rel

	if rec.Sensors.Altitude != nil {
		c.altitude = *rec.Sensors.Altitude
	}

	return Sample{
		Timestamp:    rec.System.Millis,
		RelativeTime: rel,
		AccelX:       rec.Sensors.Accel.X,
		AccelY:       rec.Sensors.Accel.Y,
		AccelZ:       rec.Sensors.Accel.Z,
		GyroX:        rec.Sensors.Gyro.X,
		GyroY:        rec.Sensors.Gyro.Y,
		GyroZ:        rec.Sensors.Gyro.Z,
		Altitude:     c.altitude,
	}
}

// SetAltitude records an altitude obtained out of band (e.g. a GPS fix),
// used for records that carry none.
func (c *LiveClock) SetAltitude(alt float64) {
	c.mu.Lock()
	c.altitude = alt
	c.mu.Unlock()
}

// Reset starts a new session; the next record gets relative time 0.
func (c *LiveClock) Reset() {
	c.mu.Lock()
	c.started = false
	c.last = 0
	c.mu.Unlock()
}

// Record converts a sample back into the live record a producer publishes.
// Relative time is not carried; the receiving clock restamps it.
func (s Sample) Record() LiveRecord {
	var rec LiveRecord
	rec.Sensors.Accel = Axes{X: s.AccelX, Y: s.AccelY, Z: s.AccelZ}
	rec.Sensors.Gyro = Axes{X: s.GyroX, Y: s.GyroY, Z: s.GyroZ}
	alt := s.Altitude
	rec.Sensors.Altitude = &alt
	rec.System.Millis = s.Timestamp
	return rec
}
