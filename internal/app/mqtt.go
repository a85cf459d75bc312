// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// connectMQTT connects to broker and blocks until the session is up.
func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.Printf("connected to MQTT broker at %s as %s", broker, clientID)
	return client, nil
}

// publishFunc sends one payload. It is what producers and the fused
// publisher need from an MQTT client.
type publishFunc func(payload []byte) error

// topicPublisher returns a publishFunc that waits for each publish to
// complete.
func topicPublisher(client mqtt.Client, topic string, retained bool) publishFunc {
	return func(payload []byte) error {
		token := client.Publish(topic, 0, retained, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil
	}
}

// asyncPublisher publishes JSON documents from a bounded queue on its own
// goroutine, so session observers never wait on the broker. A full queue
// drops the document.
type asyncPublisher struct {
	publish publishFunc
	name    string

	queue   chan any
	done    chan struct{}
	sent    atomic.Uint64
	dropped atomic.Uint64

	closeOnce sync.Once
}

func newAsyncPublisher(name string, publish publishFunc, queue int) *asyncPublisher {
	p := &asyncPublisher{
		publish: publish,
		name:    name,
		queue:   make(chan any, queue),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

// Offer queues v for publishing.
func (p *asyncPublisher) Offer(v any) {
	select {
	case p.queue <- v:
	default:
		if n := p.dropped.Add(1); n%100 == 1 {
			log.Printf("%s: publish queue full, %d dropped so far", p.name, n)
		}
	}
}

// Close drains the queue and stops the publisher.
func (p *asyncPublisher) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
		<-p.done
	})
}

func (p *asyncPublisher) loop() {
	defer close(p.done)
	for v := range p.queue {
		payload, err := json.Marshal(v)
		if err != nil {
			log.Printf("%s: json marshal error: %v", p.name, err)
			continue
		}
		if err := p.publish(payload); err != nil {
			log.Printf("%s: %v", p.name, err)
			continue
		}
		p.sent.Add(1)
	}
}
