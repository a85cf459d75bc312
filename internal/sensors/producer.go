// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors delivers live samples from the rocket's sensor sources.
// Every source runs as one producer goroutine writing into a bounded
// channel, so delivery order is preserved end to end.
package sensors

import (
	"context"
	"errors"

	"github.com/relabs-tech/rocket_attitude/internal/imu"
)

// Producer emits samples in arrival order until ctx is cancelled or the
// source fails. Run must not close out.
type Producer interface {
	Run(ctx context.Context, out chan<- imu.Sample) error
}

// Pump runs p on its own goroutine. The sample channel is closed when the
// producer returns; its result (nil on cancellation) is then delivered on
// the error channel.
func Pump(ctx context.Context, p Producer, buffer int) (<-chan imu.Sample, <-chan error) {
	if buffer < 1 {
		buffer = 1
	}
	out := make(chan imu.Sample, buffer)
	errc := make(chan error, 1)

	go func() {
		err := p.Run(ctx, out)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		close(out)
		errc <- err
		close(errc)
	}()
	return out, errc
}

// send blocks until s is queued or ctx is done.
func send(ctx context.Context, out chan<- imu.Sample, s imu.Sample) error {
	select {
	case out <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// offer queues s without blocking and reports whether it was accepted.
func offer(out chan<- imu.Sample, s imu.Sample) bool {
	select {
	case out <- s:
		return true
	default:
		return false
	}
}
