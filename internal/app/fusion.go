// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	humanize "github.com/dustin/go-humanize"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rocket_attitude/internal/config"
	"github.com/relabs-tech/rocket_attitude/internal/fusion"
	"github.com/relabs-tech/rocket_attitude/internal/sensors"
	"github.com/relabs-tech/rocket_attitude/internal/store"
	"github.com/relabs-tech/rocket_attitude/internal/stream"
)

const shutdownTimeout = 5 * time.Second

// RunFusion runs the live fusion service until SIGINT/SIGTERM: samples from
// the configured source feed a rolling-window session whose fused output is
// served over HTTP/websocket, optionally published to MQTT and optionally
// recorded to SQLite.
func RunFusion() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runFusion(ctx, cfg)
}

func runFusion(ctx context.Context, cfg *config.Config) error {
	session, err := stream.NewSession(stream.Config{
		Kind:            cfg.Filter,
		Params:          cfg.FusionParams(),
		Capacity:        cfg.WindowCapacity,
		HistoryCapacity: cfg.HistoryCapacity,
		Incremental:     cfg.IncrementalFusion,
	})
	if err != nil {
		return err
	}
	log.Printf("fusion: session %s, filter %s, window %d, source %s",
		session.ID(), cfg.Filter, cfg.WindowCapacity, cfg.Source)

	// ---- MQTT (source and/or fused output) ----
	var client mqtt.Client
	if cfg.Source == config.SourceMQTT || cfg.MQTTPublish {
		client, err = connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDFusion)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
	}

	producer, err := newProducer(cfg, client)
	if err != nil {
		return err
	}

	if cfg.MQTTPublish {
		pub := newAsyncPublisher("fusion", topicPublisher(client, cfg.TopicPoseFused, false), cfg.SourceBuffer)
		defer func() {
			pub.Close()
			log.Printf("fusion: published %s fused samples to %s",
				humanize.Comma(int64(pub.sent.Load())), cfg.TopicPoseFused)
		}()
		unsubscribe := session.Subscribe(func(f fusion.FusedSample) { pub.Offer(f) })
		defer unsubscribe()
		log.Printf("fusion: publishing fused samples to %s", cfg.TopicPoseFused)
	}

	// ---- Recorder ----
	if cfg.RecordDBPath != "" {
		rec, closeRec, err := openRecorder(ctx, cfg, session)
		if err != nil {
			return err
		}
		defer closeRec()
		unsubscribe := session.Subscribe(rec.Record)
		defer unsubscribe()
	}

	// ---- Web ----
	hub := NewHub()
	defer hub.Close()
	unsubscribe := session.Subscribe(func(f fusion.FusedSample) { hub.Broadcast(f) })
	defer unsubscribe()

	if addr := cfg.WebAddr(); addr != "" {
		srv := &http.Server{Addr: addr, Handler: NewServer(session, hub).Handler()}
		go func() {
			log.Printf("web server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("web server error: %v", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Printf("web server shutdown: %v", err)
			}
		}()
	}

	// ---- Ingest ----
	start := time.Now()
	samples, errc := sensors.Pump(ctx, producer, cfg.SourceBuffer)
	var n int64
	for s := range samples {
		if session.Push(s) {
			n++
		}
	}
	err = <-errc

	log.Printf("fusion: shutting down after %s samples in %s",
		humanize.Comma(n), time.Since(start).Round(time.Millisecond))
	if src, ok := producer.(*sensors.MQTTSource); ok && src.Dropped() > 0 {
		log.Printf("fusion: %s live records dropped on a full buffer", humanize.Comma(int64(src.Dropped())))
	}
	if r := session.Rejected(); r > 0 {
		log.Printf("fusion: %s samples dropped behind a loaded window", humanize.Comma(int64(r)))
	}
	return err
}

// openRecorder creates the session row and starts the background writer.
func openRecorder(ctx context.Context, cfg *config.Config, session *stream.Session) (*store.Recorder, func(), error) {
	st := store.NewSqliteStore(cfg.RecordDBPath)
	id, err := st.CreateSession(ctx, session.ID(), session.Strategy(), cfg.Source, cfg)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("recorder: %w", err)
	}
	rec := store.NewRecorder(st, id, cfg.SourceBuffer*4)
	log.Printf("fusion: recording session %d to %s", id, cfg.RecordDBPath)

	return rec, func() {
		rec.Close()
		log.Printf("fusion: recorded %s samples (%s dropped)",
			humanize.Comma(int64(rec.Written())), humanize.Comma(int64(rec.Dropped())))
		if err := st.Close(); err != nil {
			log.Printf("recorder: close: %v", err)
		}
	}, nil
}
