// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	humanize "github.com/dustin/go-humanize"

	"github.com/relabs-tech/rocket_attitude/internal/config"
	"github.com/relabs-tech/rocket_attitude/internal/sensors"
)

// producerLogEvery throttles the per-record log line.
const producerLogEvery = 50

// RunMockProducer publishes the synthetic flight as live records to
// TOPIC_SENSORS_LIVE at SAMPLE_INTERVAL.
func RunMockProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}
	src := &sensors.MockSource{Interval: time.Duration(cfg.SampleInterval) * time.Millisecond}
	return runLiveProducer(cfg, "mock producer", src)
}

// RunIMUProducer reads the on-board MPU9250 (and BMP barometer, when
// configured) and publishes live records to TOPIC_SENSORS_LIVE.
func RunIMUProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	// --- Initialize IMU ---
	src, err := sensors.NewIMUSource(imuConfig(cfg))
	if err != nil {
		return err
	}
	return runLiveProducer(cfg, "imu producer", src)
}

func runLiveProducer(cfg *config.Config, name string, src sensors.Producer) error {
	// --- connect to MQTT ---
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("%s: publishing to %s every %d ms", name, cfg.TopicSensorsLive, cfg.SampleInterval)
	n, err := publishLive(ctx, name, src, cfg.SourceBuffer,
		topicPublisher(client, cfg.TopicSensorsLive, false))
	log.Printf("%s: shutting down after %s records", name, humanize.Comma(int64(n)))
	return err
}

// publishLive pumps src and publishes every sample as a live record JSON.
// Publish failures are logged and skipped.
func publishLive(ctx context.Context, name string, src sensors.Producer, buffer int, publish publishFunc) (uint64, error) {
	samples, errc := sensors.Pump(ctx, src, buffer)

	var n uint64
	for s := range samples {
		payload, err := json.Marshal(s.Record())
		if err != nil {
			log.Printf("%s: json marshal error: %v", name, err)
			continue
		}
		if err := publish(payload); err != nil {
			log.Printf("%s: %v", name, err)
			continue
		}
		n++
		if n%producerLogEvery == 1 {
			log.Printf("%s: published record %d (ms=%d az=%.3f alt=%.1f)",
				name, n, s.Timestamp, s.AccelZ, s.Altitude)
		}
	}
	return n, <-errc
}
