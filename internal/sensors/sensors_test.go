// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rocket_attitude/internal/imu"
	"github.com/relabs-tech/rocket_attitude/internal/orientation"
)

// sliceProducer emits fixed samples then returns err.
type sliceProducer struct {
	samples []imu.Sample
	err     error
}

func (p sliceProducer) Run(ctx context.Context, out chan<- imu.Sample) error {
	for _, s := range p.samples {
		if err := send(ctx, out, s); err != nil {
			return err
		}
	}
	return p.err
}

func collect(t *testing.T, ch <-chan imu.Sample, n int) []imu.Sample {
	t.Helper()
	var got []imu.Sample
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case s, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, s)
		case <-timeout:
			t.Fatalf("timed out after %d of %d samples", len(got), n)
		}
	}
	return got
}

func liveJSON(millis int64, az float64) string {
	return fmt.Sprintf(`{"sensors":{"accel":{"x":0,"y":0,"z":%g},"gyro":{"x":1,"y":2,"z":3}},"system":{"millis":%d}}`, az, millis)
}

func TestPumpPreservesOrder(t *testing.T) {
	t.Parallel()

	samples := make([]imu.Sample, 50)
	for i := range samples {
		samples[i].Timestamp = int64(i)
	}
	out, errc := Pump(context.Background(), sliceProducer{samples: samples}, 4)

	var got []imu.Sample
	for s := range out {
		got = append(got, s)
	}
	assert.Equal(t, samples, got)
	assert.NoError(t, <-errc)
}

func TestPumpReportsProducerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	out, errc := Pump(context.Background(), sliceProducer{err: boom}, 0)
	for range out {
	}
	assert.ErrorIs(t, <-errc, boom)
}

func TestPumpCancellationIsClean(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	out, errc := Pump(ctx, &MockSource{Interval: time.Millisecond}, 2)
	collect(t, out, 3)
	cancel()

	for range out {
	}
	assert.NoError(t, <-errc)
}

func TestMQTTHandleRecordDropsWhenFull(t *testing.T) {
	t.Parallel()

	out := make(chan imu.Sample, 1)
	src := &MQTTSource{Clock: imu.NewLiveClock(), out: out}

	src.handleRecord([]byte(liveJSON(10, -1)))
	src.handleRecord([]byte(liveJSON(20, -1)))
	src.handleRecord([]byte("not json"))

	assert.Equal(t, uint64(1), src.Dropped())
	s := <-out
	assert.Equal(t, int64(10), s.Timestamp)
	assert.Equal(t, 0.0, s.RelativeTime)
	assert.Equal(t, -1.0, s.AccelZ)

	src.stopped = true
	src.handleRecord([]byte(liveJSON(30, -1)))
	assert.Len(t, out, 0)
}

func TestMQTTHandleFixSetsAltitude(t *testing.T) {
	t.Parallel()

	out := make(chan imu.Sample, 4)
	src := &MQTTSource{Clock: imu.NewLiveClock(), out: out}

	src.handleFix([]byte(`{"alt_m":512.5,"quality":"1"}`))
	src.handleFix([]byte(`{"alt_m":999,"quality":"0"}`))
	src.handleFix([]byte(`garbage`))
	src.handleRecord([]byte(liveJSON(10, -1)))

	s := <-out
	assert.Equal(t, 512.5, s.Altitude)
}

func TestReadLinesMixedStream(t *testing.T) {
	t.Parallel()

	stream := strings.Join([]string{
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		liveJSON(100, -1),
		"",
		"{broken",
		"$GPGGA,12351", // partial sentence
		"noise",
		liveJSON(200, -0.98),
	}, "\r\n") + "\r\n"

	out := make(chan imu.Sample, 8)
	err := readLines(context.Background(), strings.NewReader(stream), imu.NewLiveClock(), out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "link closed")

	close(out)
	var got []imu.Sample
	for s := range out {
		got = append(got, s)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(100), got[0].Timestamp)
	assert.Equal(t, 545.4, got[0].Altitude)
	assert.Equal(t, -0.98, got[1].AccelZ)
	assert.Greater(t, got[1].RelativeTime, got[0].RelativeTime)
}

func TestReadLinesStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan imu.Sample) // nobody reads
	err := readLines(ctx, strings.NewReader(liveJSON(1, -1)+"\n"), imu.NewLiveClock(), out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollSource(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		switch {
		case n == 2:
			http.Error(w, "warming up", http.StatusServiceUnavailable)
		case n%2 == 0:
			// repeated reading, same device millis as the previous one
			fmt.Fprint(w, liveJSON((n-1)*10, -1))
		default:
			fmt.Fprint(w, liveJSON(n*10, -1))
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, errc := Pump(ctx, &PollSource{URL: srv.URL, Interval: time.Millisecond}, 4)
	got := collect(t, out, 4)
	cancel()
	for range out {
	}
	require.NoError(t, <-errc)

	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Timestamp, got[i-1].Timestamp)
		assert.Greater(t, got[i].RelativeTime, got[i-1].RelativeTime)
	}
}

func TestMockRecordTiltMatchesAttitude(t *testing.T) {
	t.Parallel()

	pad := MockRecord(1)
	assert.Equal(t, imu.Axes{X: 0, Y: 0, Z: -1}, pad.Sensors.Accel)
	assert.Equal(t, imu.Axes{}, pad.Sensors.Gyro)
	assert.Equal(t, int64(1000), pad.System.Millis)

	for _, tt := range []float64{3.5, 5, 8.25, 12} {
		rec := MockRecord(tt)
		ft := tt - PadSeconds
		a := rec.Sensors.Accel
		tilt := orientation.TiltFromSpecificForce(a.X, a.Y, a.Z)
		assert.InDelta(t, 20*math.Sin(ft), tilt.Roll, 1e-9, "t=%v", tt)
		assert.InDelta(t, 15*math.Cos(ft*0.7)-15, tilt.Pitch, 1e-9, "t=%v", tt)
		assert.Equal(t, 30.0, rec.Sensors.Gyro.Z)
		require.NotNil(t, rec.Sensors.Altitude)
		assert.InDelta(t, 15*ft*ft, *rec.Sensors.Altitude, 1e-9)
	}
}
