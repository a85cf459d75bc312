// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/rocket_attitude/internal/config"
	"github.com/relabs-tech/rocket_attitude/internal/fusion"
	"github.com/relabs-tech/rocket_attitude/internal/sensors"
	"github.com/relabs-tech/rocket_attitude/internal/stream"
)

// RunMockConsole fuses the synthetic flight in-process and prints every
// fused sample. filter overrides FILTER when not empty. It needs no broker
// and no config file.
func RunMockConsole(filter string) error {
	cfg := config.Get()
	if cfg == nil {
		cfg = config.Default()
	}
	kind := cfg.Filter
	if filter != "" {
		var err error
		if kind, err = fusion.ParseKind(filter); err != nil {
			return err
		}
	}

	session, err := stream.NewSession(stream.Config{
		Kind:            kind,
		Params:          cfg.FusionParams(),
		Capacity:        cfg.WindowCapacity,
		HistoryCapacity: cfg.HistoryCapacity,
		Incremental:     true,
	})
	if err != nil {
		return err
	}
	session.Subscribe(func(f fusion.FusedSample) {
		fmt.Println(formatFused(f))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src := &sensors.MockSource{Interval: time.Duration(cfg.SampleInterval) * time.Millisecond}
	samples, errc := sensors.Pump(ctx, src, cfg.SourceBuffer)
	for s := range samples {
		session.Push(s)
	}
	return <-errc
}
