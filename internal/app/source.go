// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rocket_attitude/internal/config"
	"github.com/relabs-tech/rocket_attitude/internal/sensors"
)

// newProducer builds the sample producer selected by SOURCE. client is only
// used by the mqtt source and may be nil otherwise.
func newProducer(cfg *config.Config, client mqtt.Client) (sensors.Producer, error) {
	interval := time.Duration(cfg.SampleInterval) * time.Millisecond

	switch cfg.Source {
	case config.SourceMQTT:
		if client == nil {
			return nil, fmt.Errorf("source mqtt: no client")
		}
		return &sensors.MQTTSource{
			Client:   client,
			Topic:    cfg.TopicSensorsLive,
			GPSTopic: cfg.TopicGPS,
		}, nil

	case config.SourceSerial:
		return &sensors.SerialSource{
			PortName: cfg.SerialPort,
			BaudRate: cfg.SerialBaudRate,
		}, nil

	case config.SourcePoll:
		return &sensors.PollSource{URL: cfg.PollURL, Interval: interval}, nil

	case config.SourceIMU:
		src, err := sensors.NewIMUSource(imuConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("source imu: %w", err)
		}
		return src, nil

	case config.SourceMock:
		return &sensors.MockSource{Interval: interval}, nil
	}
	return nil, fmt.Errorf("unknown SOURCE %q", cfg.Source)
}

func imuConfig(cfg *config.Config) sensors.IMUConfig {
	return sensors.IMUConfig{
		SPIDevice:     cfg.IMUSPIDevice,
		CSPin:         cfg.IMUCSPin,
		BMPDevice:     cfg.BMPSPIDevice,
		AccelLSBPerG:  cfg.IMUAccelLSBPerG,
		GyroLSBPerDPS: cfg.IMUGyroLSBPerDPS,
		SeaLevelPa:    cfg.SeaLevelPressure,
		Interval:      time.Duration(cfg.SampleInterval) * time.Millisecond,
	}
}
