// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/relabs-tech/rocket_attitude/internal/fusion"
	"github.com/relabs-tech/rocket_attitude/internal/imu"
	"github.com/relabs-tech/rocket_attitude/internal/store"
)

// ReplayOptions configures an offline run over a recorded flight log.
type ReplayOptions struct {
	Input  string // TSV log path, "-" for stdin
	Filter string // strategy name or "all"
	Params fusion.Params
	DBPath string    // optional SQLite recording
	Out    io.Writer // fused TSV; nil discards
}

// replayHeader is the fused TSV header. comp_* columns are empty for
// strategies that do not compensate.
const replayHeader = "timestamp\trelative_time\taccel_x\taccel_y\taccel_z\tgyro_x\tgyro_y\tgyro_z\taltitude\troll\tpitch\tyaw\tcomp_x\tcomp_y\tcomp_z\tfilter\n"

// RunReplay parses a flight log, fuses it with one or all strategies and
// writes the fused samples as TSV.
func RunReplay(ctx context.Context, opts ReplayOptions) error {
	kinds, err := replayKinds(opts.Filter)
	if err != nil {
		return err
	}

	samples, size, err := readLog(opts.Input)
	if err != nil {
		return err
	}
	log.Printf("replay: parsed %s samples (%s) from %s, %.1fs of flight",
		humanize.Comma(int64(len(samples))), humanize.Bytes(uint64(size)), opts.Input,
		samples[len(samples)-1].RelativeTime)

	var st *store.SqliteStore
	if opts.DBPath != "" {
		st = store.NewSqliteStore(opts.DBPath)
		defer st.Close()
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	w := bufio.NewWriter(out)
	if _, err := w.WriteString(replayHeader); err != nil {
		return err
	}

	for _, kind := range kinds {
		start := time.Now()
		fused, err := fusion.Run(kind, opts.Params, samples)
		if err != nil {
			return err
		}
		log.Printf("replay: %s fused %s samples in %s",
			kind, humanize.Comma(int64(len(fused))), time.Since(start).Round(time.Microsecond))

		if err := writeFused(w, fused); err != nil {
			return err
		}

		if st != nil {
			id, err := st.CreateSession(ctx, uuid.New(), kind, "replay:"+opts.Input, opts.Params)
			if err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			if err := st.InsertFused(ctx, id, fused); err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			log.Printf("replay: recorded %s as session %d in %s", kind, id, opts.DBPath)
		}
	}
	return w.Flush()
}

func replayKinds(filter string) ([]fusion.Kind, error) {
	if filter == "" || filter == "all" {
		return fusion.Kinds, nil
	}
	kind, err := fusion.ParseKind(filter)
	if err != nil {
		return nil, err
	}
	return []fusion.Kind{kind}, nil
}

// readLog parses the log at path and reports its size in bytes.
func readLog(path string) ([]imu.Sample, int64, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		defer f.Close()
		r = f
	}
	cr := &countingReader{r: r}
	samples, err := imu.Parse(cr)
	if err != nil {
		return nil, cr.n, fmt.Errorf("replay: %s: %w", path, err)
	}
	return samples, cr.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func writeFused(w *bufio.Writer, fused []fusion.FusedSample) error {
	var buf []byte
	for _, f := range fused {
		buf = strconv.AppendInt(buf[:0], f.Timestamp, 10)
		for _, v := range []float64{
			f.RelativeTime,
			f.AccelX, f.AccelY, f.AccelZ,
			f.GyroX, f.GyroY, f.GyroZ,
			f.Altitude,
			f.Roll, f.Pitch, f.Yaw,
		} {
			buf = append(buf, '\t')
			buf = strconv.AppendFloat(buf, v, 'f', -1, 64)
		}
		if c := f.CompAccel; c != nil {
			for _, v := range []float64{c.X, c.Y, c.Z} {
				buf = append(buf, '\t')
				buf = strconv.AppendFloat(buf, v, 'f', -1, 64)
			}
		} else {
			buf = append(buf, "\t\t\t"...)
		}
		buf = append(buf, '\t')
		buf = append(buf, string(f.Filter)...)
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
