// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/relabs-tech/rocket_attitude/internal/imu"
)

// PollSource fetches the latest live record from an HTTP endpoint at a
// fixed interval. A record whose device millis did not advance is the
// same reading again and is skipped.
type PollSource struct {
	URL      string
	Interval time.Duration
	Client   *http.Client
	Clock    *imu.LiveClock
}

func (p *PollSource) Run(ctx context.Context, out chan<- imu.Sample) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	if p.Clock == nil {
		p.Clock = imu.NewLiveClock()
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	var (
		lastMillis int64
		have       bool
		failures   int
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		rec, err := p.fetch(ctx, client)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures == 1 || failures%50 == 0 {
				log.Printf("poll source: %v (%d consecutive failures)", err, failures)
			}
			continue
		}
		failures = 0

		if have && rec.System.Millis == lastMillis {
			continue
		}
		lastMillis, have = rec.System.Millis, true

		if err := send(ctx, out, p.Clock.Ingest(rec)); err != nil {
			return err
		}
	}
}

func (p *PollSource) fetch(ctx context.Context, client *http.Client) (imu.LiveRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return imu.LiveRecord{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return imu.LiveRecord{}, fmt.Errorf("get %s: %w", p.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return imu.LiveRecord{}, fmt.Errorf("get %s: status %s", p.URL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return imu.LiveRecord{}, fmt.Errorf("read %s: %w", p.URL, err)
	}
	return imu.DecodeLiveRecord(body)
}
