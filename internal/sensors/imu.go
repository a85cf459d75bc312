// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/rocket_attitude/internal/env"
	"github.com/relabs-tech/rocket_attitude/internal/imu"
)

// IMUConfig wires the on-board MPU9250 and the optional BMP barometer.
type IMUConfig struct {
	SPIDevice string
	CSPin     string
	BMPDevice string // empty disables the barometer

	AccelLSBPerG  float64 // raw counts per g for the configured range
	GyroLSBPerDPS float64 // raw counts per deg/s
	SeaLevelPa    float64

	Interval time.Duration
}

// rawReading is one MPU9250 register read.
type rawReading struct {
	Ax, Ay, Az int16
	Gx, Gy, Gz int16
}

// IMUSource samples the MPU9250 over SPI at a fixed interval.
type IMUSource struct {
	cfg   IMUConfig
	imu   *mpu9250.MPU9250
	bmp   *bmxx80.Dev
	clock *imu.LiveClock
	start time.Time
}

// NewIMUSource initializes the periph host, the MPU9250 and, when
// configured, the BMP sensor. Self-test and calibration failures are
// logged but not fatal.
func NewIMUSource(cfg IMUConfig) (*IMUSource, error) {
	if cfg.AccelLSBPerG <= 0 || cfg.GyroLSBPerDPS <= 0 {
		return nil, fmt.Errorf("IMU: scale factors must be > 0")
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", cfg.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", cfg.SPIDevice, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if res, err := dev.SelfTest(); err != nil {
		log.Printf("Warning: IMU self-test failed: %v", err)
	} else {
		log.Printf("IMU self-test passed: %+v", res)
	}

	if err := dev.Calibrate(); err != nil {
		log.Printf("Warning: IMU calibration failed: %v", err)
	} else {
		log.Printf("IMU calibration complete")
	}

	s := &IMUSource{cfg: cfg, imu: dev, clock: imu.NewLiveClock()}

	if cfg.BMPDevice != "" {
		bus, err := spireg.Open(cfg.BMPDevice)
		if err != nil {
			return nil, fmt.Errorf("BMP SPI open: %w", err)
		}
		s.bmp, err = bmxx80.NewSPI(bus, &bmxx80.DefaultOpts)
		if err != nil {
			return nil, fmt.Errorf("BMP init: %w", err)
		}
		log.Printf("BMP sensor initialized on %s", cfg.BMPDevice)
	}
	return s, nil
}

func (s *IMUSource) Run(ctx context.Context, out chan<- imu.Sample) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.start = time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			raw, err := s.readRaw()
			if err != nil {
				log.Printf("IMU read error: %v", err)
				continue
			}
			rec := s.cfg.record(raw, now.Sub(s.start).Milliseconds())

			if s.bmp != nil {
				e, err := s.readEnv()
				if err != nil {
					log.Printf("BMP read error: %v", err)
				} else if alt := e.Altitude(s.cfg.SeaLevelPa); !math.IsNaN(alt) {
					rec.Sensors.Altitude = &alt
				}
			}

			if err := send(ctx, out, s.clock.Ingest(rec)); err != nil {
				return err
			}
		}
	}
}

// record scales raw counts into a live record (g and deg/s).
func (c IMUConfig) record(raw rawReading, millis int64) imu.LiveRecord {
	var rec imu.LiveRecord
	rec.Sensors.Accel = imu.Axes{
		X: float64(raw.Ax) / c.AccelLSBPerG,
		Y: float64(raw.Ay) / c.AccelLSBPerG,
		Z: float64(raw.Az) / c.AccelLSBPerG,
	}
	rec.Sensors.Gyro = imu.Axes{
		X: float64(raw.Gx) / c.GyroLSBPerDPS,
		Y: float64(raw.Gy) / c.GyroLSBPerDPS,
		Z: float64(raw.Gz) / c.GyroLSBPerDPS,
	}
	rec.System.Millis = millis
	return rec
}

func (s *IMUSource) readRaw() (rawReading, error) {
	var (
		r   rawReading
		err error
	)
	if r.Ax, err = s.imu.GetAccelerationX(); err != nil {
		return r, fmt.Errorf("accel X: %w", err)
	}
	if r.Ay, err = s.imu.GetAccelerationY(); err != nil {
		return r, fmt.Errorf("accel Y: %w", err)
	}
	if r.Az, err = s.imu.GetAccelerationZ(); err != nil {
		return r, fmt.Errorf("accel Z: %w", err)
	}
	if r.Gx, err = s.imu.GetRotationX(); err != nil {
		return r, fmt.Errorf("gyro X: %w", err)
	}
	if r.Gy, err = s.imu.GetRotationY(); err != nil {
		return r, fmt.Errorf("gyro Y: %w", err)
	}
	if r.Gz, err = s.imu.GetRotationZ(); err != nil {
		return r, fmt.Errorf("gyro Z: %w", err)
	}
	return r, nil
}

// readEnv reads the BMP sensor (temp + pressure).
func (s *IMUSource) readEnv() (env.Sample, error) {
	var e physic.Env
	if err := s.bmp.Sense(&e); err != nil {
		return env.Sample{}, fmt.Errorf("BMP sense: %w", err)
	}
	return env.Sample{
		Temperature: e.Temperature.Celsius(),
		Pressure:    float64(e.Pressure) / float64(physic.Pascal),
	}, nil
}
