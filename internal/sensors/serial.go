// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/rocket_attitude/internal/gps"
	"github.com/relabs-tech/rocket_attitude/internal/imu"
)

// SerialSource reads a telemetry link (radio modem or USB) carrying one
// JSON live record per line. NMEA sentences interleaved on the same link
// update the altitude from GGA fixes.
type SerialSource struct {
	PortName string
	BaudRate int
	Clock    *imu.LiveClock
}

func (s *SerialSource) Run(ctx context.Context, out chan<- imu.Sample) error {
	opts := serial.OpenOptions{
		PortName:              s.PortName,
		BaudRate:              uint(s.BaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return fmt.Errorf("serial source: open %s: %w", s.PortName, err)
	}
	log.Printf("serial source: %s opened at %d baud", opts.PortName, opts.BaudRate)

	// closing the port unblocks the pending read
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()

	if s.Clock == nil {
		s.Clock = imu.NewLiveClock()
	}
	err = readLines(ctx, port, s.Clock, out)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// readLines turns a line stream into samples. Malformed lines are logged
// and skipped; the stream ending is an error since the link went away.
func readLines(ctx context.Context, r io.Reader, clock *imu.LiveClock, out chan<- imu.Sample) error {
	reader := bufio.NewReader(r)
	var tracker gps.Tracker

	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if serr := handleLine(ctx, line, clock, &tracker, out); serr != nil {
				return serr
			}
		}
		if err == io.EOF {
			return fmt.Errorf("serial source: link closed")
		}
		if err != nil {
			return fmt.Errorf("serial source: read: %w", err)
		}
	}
}

func handleLine(ctx context.Context, line string, clock *imu.LiveClock, tracker *gps.Tracker, out chan<- imu.Sample) error {
	switch line[0] {
	case '$':
		fix, updated, err := tracker.Feed(line)
		if err != nil {
			// partial sentences are common right after the port opens
			log.Printf("serial source: %v", err)
			return nil
		}
		if updated && fix.HasAltitude() {
			clock.SetAltitude(fix.Altitude)
		}
		return nil
	case '{':
		rec, err := imu.DecodeLiveRecord([]byte(line))
		if err != nil {
			log.Printf("serial source: %v", err)
			return nil
		}
		return send(ctx, out, clock.Ingest(rec))
	}
	return nil
}
