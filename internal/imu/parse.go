// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ZCheckSamples is how many leading samples are averaged to decide whether
// the accelerometer Z axis is sign-inverted.
const ZCheckSamples = 20

var (
	ErrEmpty         = errors.New("no data rows")
	ErrMalformedRow  = errors.New("malformed row")
	ErrMissingColumn = errors.New("missing required column")
)

// RequiredColumns lists the header names every log must carry, besides the
// leading timestamp column.
var RequiredColumns = []string{"accelX", "accelY", "accelZ", "gyroX", "gyroY", "gyroZ", "altitude"}

// ParseError describes why a log was rejected. Line is 1-based and refers to
// the raw input, 0 when the error is not tied to a line.
type ParseError struct {
	Line   int
	Column string
	Err    error
	Detail string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	b.WriteString(e.Err.Error())
	if e.Column != "" {
		fmt.Fprintf(&b, " (column %q)", e.Column)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseString is Parse over an in-memory log.
func ParseString(raw string) ([]Sample, error) {
	return Parse(strings.NewReader(raw))
}

// Parse reads a tab-separated sensor log: one header line followed by data
// rows whose first field is an integer millisecond timestamp. Decimal commas
// are accepted. Rows are ordered by timestamp (stable), relative time is
// computed from the first row, and the Z axis is flipped when the leading
// samples read positive at rest. Any bad row rejects the whole log.
func Parse(r io.Reader) ([]Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	var header []string
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		header = splitFields(line)
		break
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if header == nil {
		return nil, &ParseError{Err: ErrEmpty, Detail: "no header"}
	}

	cols, err := resolveColumns(header, lineNum)
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := splitFields(line)
		if len(fields) != len(header) {
			return nil, &ParseError{
				Line:   lineNum,
				Err:    ErrMalformedRow,
				Detail: fmt.Sprintf("%d fields, header has %d", len(fields), len(header)),
			}
		}

		s, err := parseRow(fields, header, cols, lineNum)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	if len(samples) == 0 {
		return nil, &ParseError{Err: ErrEmpty}
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp < samples[j].Timestamp
	})

	t0 := samples[0].Timestamp
	for i := range samples {
		samples[i].RelativeTime = float64(samples[i].Timestamp-t0) / 1000.0
	}

	CorrectZAxis(samples)
	return samples, nil
}

// CorrectZAxis negates AccelZ on every sample when the mean AccelZ of the
// first ZCheckSamples samples is positive. It reports whether it flipped.
// Only meant for whole batches; live samples are never corrected.
func CorrectZAxis(samples []Sample) bool {
	n := min(ZCheckSamples, len(samples))
	if n == 0 {
		return false
	}

	var sum float64
	for _, s := range samples[:n] {
		sum += s.AccelZ
	}
	if sum/float64(n) <= 0 {
		return false
	}

	for i := range samples {
		samples[i].AccelZ = -samples[i].AccelZ
	}
	return true
}

// ParseDecimal parses a finite number that may use a comma as decimal
// separator.
func ParseDecimal(field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(field), ",", "."), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", field)
	}
	return v, nil
}

type columnIndex struct {
	ax, ay, az int
	gx, gy, gz int
	alt        int
}

func resolveColumns(header []string, lineNum int) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			continue // timestamp, any name
		}
		pos[strings.TrimSpace(name)] = i
	}

	idx := make([]int, len(RequiredColumns))
	for i, name := range RequiredColumns {
		p, ok := pos[name]
		if !ok {
			return columnIndex{}, &ParseError{Line: lineNum, Column: name, Err: ErrMissingColumn}
		}
		idx[i] = p
	}

	return columnIndex{
		ax: idx[0], ay: idx[1], az: idx[2],
		gx: idx[3], gy: idx[4], gz: idx[5],
		alt: idx[6],
	}, nil
}

func parseRow(fields, header []string, cols columnIndex, lineNum int) (Sample, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Sample{}, &ParseError{Line: lineNum, Column: header[0], Err: ErrMalformedRow, Detail: err.Error()}
	}

	values := make([]float64, len(fields))
	for i := 1; i < len(fields); i++ {
		v, err := ParseDecimal(fields[i])
		if err != nil {
			return Sample{}, &ParseError{Line: lineNum, Column: header[i], Err: ErrMalformedRow, Detail: err.Error()}
		}
		values[i] = v
	}

	return Sample{
		Timestamp: ts,
		AccelX:    values[cols.ax],
		AccelY:    values[cols.ay],
		AccelZ:    values[cols.az],
		GyroX:     values[cols.gx],
		GyroY:     values[cols.gy],
		GyroZ:     values[cols.gz],
		Altitude:  values[cols.alt],
	}, nil
}

func splitFields(line string) []string {
	return strings.Split(line, "\t")
}
