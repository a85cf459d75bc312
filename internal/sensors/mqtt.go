// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rocket_attitude/internal/gps"
	"github.com/relabs-tech/rocket_attitude/internal/imu"
)

// dropLogEvery throttles the "buffer full" log line.
const dropLogEvery = 100

// MQTTSource subscribes to live sensor records. Delivery is push-based, so
// a full buffer drops the record instead of stalling the MQTT client.
type MQTTSource struct {
	Client   mqtt.Client
	Topic    string
	GPSTopic string // optional; GGA altitude for records that carry none
	Clock    *imu.LiveClock

	dropped atomic.Uint64

	mu      sync.Mutex
	out     chan<- imu.Sample
	stopped bool
}

// Dropped returns how many records were discarded on a full buffer.
func (s *MQTTSource) Dropped() uint64 { return s.dropped.Load() }

func (s *MQTTSource) Run(ctx context.Context, out chan<- imu.Sample) error {
	if s.Clock == nil {
		s.Clock = imu.NewLiveClock()
	}
	s.mu.Lock()
	s.out = out
	s.stopped = false
	s.mu.Unlock()

	token := s.Client.Subscribe(s.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleRecord(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt source: subscribe %s: %w", s.Topic, token.Error())
	}
	log.Printf("mqtt source: subscribed to %s", s.Topic)

	topics := []string{s.Topic}
	if s.GPSTopic != "" {
		token := s.Client.Subscribe(s.GPSTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			s.handleFix(msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			log.Printf("mqtt source: subscribe %s failed, continuing without GPS altitude: %v", s.GPSTopic, token.Error())
		} else {
			topics = append(topics, s.GPSTopic)
			log.Printf("mqtt source: subscribed to %s", s.GPSTopic)
		}
	}

	<-ctx.Done()

	// no handler may touch out once Run returns
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	if t := s.Client.Unsubscribe(topics...); t.Wait() && t.Error() != nil {
		log.Printf("mqtt source: unsubscribe error: %v", t.Error())
	}
	log.Printf("mqtt source: stopped (%d records dropped)", s.Dropped())
	return ctx.Err()
}

func (s *MQTTSource) handleRecord(payload []byte) {
	rec, err := imu.DecodeLiveRecord(payload)
	if err != nil {
		log.Printf("mqtt source: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.out == nil {
		return
	}
	if !offer(s.out, s.Clock.Ingest(rec)) {
		if n := s.dropped.Add(1); n%dropLogEvery == 1 {
			log.Printf("mqtt source: buffer full, %d records dropped so far", n)
		}
	}
}

func (s *MQTTSource) handleFix(payload []byte) {
	var f gps.Fix
	if err := json.Unmarshal(payload, &f); err != nil {
		log.Printf("mqtt source: gps unmarshal error: %v", err)
		return
	}
	if f.HasAltitude() {
		s.Clock.SetAltitude(f.Altitude)
	}
}
