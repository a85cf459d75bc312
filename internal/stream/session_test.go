// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stream

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rocket_attitude/internal/fusion"
	"github.com/relabs-tech/rocket_attitude/internal/imu"
)

func flight(n int) []imu.Sample {
	out := make([]imu.Sample, n)
	for i := range out {
		tt := float64(i) * 0.05
		out[i] = imu.Sample{
			Timestamp:    int64(100 + 50*i),
			RelativeTime: tt,
			AccelX:       0.1 * math.Sin(tt),
			AccelY:       0.1 * math.Cos(tt),
			AccelZ:       -1,
			GyroX:        10 * math.Sin(tt),
			GyroY:        5,
			GyroZ:        90,
		}
	}
	return out
}

func newSession(t *testing.T, kind fusion.Kind, capacity int) *Session {
	t.Helper()
	s, err := NewSession(Config{Kind: kind, Params: fusion.DefaultParams(), Capacity: capacity})
	require.NoError(t, err)
	return s
}

func fuse(t *testing.T, kind fusion.Kind, samples []imu.Sample) []fusion.FusedSample {
	t.Helper()
	out, err := fusion.Run(kind, fusion.DefaultParams(), samples)
	require.NoError(t, err)
	return out
}

func TestNewSessionValidates(t *testing.T) {
	t.Parallel()

	p := fusion.DefaultParams()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero capacity", Config{Kind: fusion.Kalman, Params: p}},
		{"negative history", Config{Kind: fusion.Kalman, Params: p, Capacity: 10, HistoryCapacity: -1}},
		{"history below window", Config{Kind: fusion.Kalman, Params: p, Capacity: 10, HistoryCapacity: 5}},
		{"unknown filter", Config{Kind: "ekf", Params: p, Capacity: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewSession(tt.cfg)
			assert.Error(t, err)
		})
	}

	s, err := NewSession(Config{Kind: fusion.Madgwick, Params: p, Capacity: DefaultCapacity})
	require.NoError(t, err)
	assert.NotEqual(t, s.ID().String(), "")
	assert.Equal(t, fusion.Madgwick, s.Strategy())
}

func TestLatestEmpty(t *testing.T) {
	t.Parallel()

	s := newSession(t, fusion.Complementary, 10)
	f, ok := s.Latest()
	assert.False(t, ok)
	assert.Equal(t, fusion.FusedSample{}, f)
	assert.Empty(t, s.Window())
	assert.Empty(t, s.Fused())
}

func TestPushEvictsOldest(t *testing.T) {
	t.Parallel()

	const capacity, extra = 10, 3
	samples := flight(capacity + extra)

	for _, kind := range fusion.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()
			s := newSession(t, kind, capacity)
			for _, smp := range samples {
				s.Push(smp)
			}

			win := s.Window()
			require.Len(t, win, capacity)
			assert.Equal(t, samples[extra:], win)

			latest, ok := s.Latest()
			require.True(t, ok)
			assert.Equal(t, samples[len(samples)-1], latest.Sample)
			assert.Equal(t, kind, latest.Filter)

			// each push re-fuses the window from scratch
			want := fuse(t, kind, win)
			if diff := cmp.Diff(want, s.Fused()); diff != "" {
				t.Fatalf("fused window mismatch (-want +got):\n%s", diff)
			}
			assert.Len(t, s.History(), len(samples))
		})
	}
}

func TestSetStrategyUsesFullHistory(t *testing.T) {
	t.Parallel()

	samples := flight(25)
	s := newSession(t, fusion.Complementary, 10)
	for _, smp := range samples {
		s.Push(smp)
	}
	win := s.Window()

	require.NoError(t, s.SetStrategy(fusion.Madgwick))
	assert.Equal(t, fusion.Madgwick, s.Strategy())
	assert.Equal(t, win, s.Window())
	assert.Equal(t, samples, s.History())

	if diff := cmp.Diff(fuse(t, fusion.Madgwick, samples), s.Fused()); diff != "" {
		t.Fatalf("fused history mismatch (-want +got):\n%s", diff)
	}

	err := s.SetStrategy("particle")
	assert.Error(t, err)
	assert.Equal(t, fusion.Madgwick, s.Strategy())
}

func TestLoadBatchReplacesBuffers(t *testing.T) {
	t.Parallel()

	s := newSession(t, fusion.Kalman, 20)
	for _, smp := range flight(5) {
		s.Push(smp)
	}

	batch := flight(50)
	for i := range batch {
		batch[i].Altitude = 100
	}
	s.LoadBatch(batch)

	assert.Equal(t, batch, s.History())
	assert.Equal(t, batch[30:], s.Window())
	if diff := cmp.Diff(fuse(t, fusion.Kalman, batch), s.Fused()); diff != "" {
		t.Fatalf("fused batch mismatch (-want +got):\n%s", diff)
	}

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, batch[49], latest.Sample)

	s.LoadBatch(nil)
	_, ok = s.Latest()
	assert.False(t, ok)
}

func TestIncrementalMatchesFullRefusion(t *testing.T) {
	t.Parallel()

	samples := flight(60)
	for _, kind := range fusion.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()
			full := newSession(t, kind, 20)
			inc, err := NewSession(Config{
				Kind:        kind,
				Params:      fusion.DefaultParams(),
				Capacity:    20,
				Incremental: true,
			})
			require.NoError(t, err)

			for i, smp := range samples {
				full.Push(smp)
				inc.Push(smp)
				switch i {
				case 7, 35:
					require.NoError(t, full.SetStrategy(fusion.Kalman))
					require.NoError(t, inc.SetStrategy(fusion.Kalman))
				case 45:
					require.NoError(t, full.SetStrategy(kind))
					require.NoError(t, inc.SetStrategy(kind))
				}
				if diff := cmp.Diff(full.Fused(), inc.Fused()); diff != "" {
					t.Fatalf("push %d: incremental diverged (-full +inc):\n%s", i, diff)
				}
			}
		})
	}
}

func TestHistoryCapacity(t *testing.T) {
	t.Parallel()

	s, err := NewSession(Config{
		Kind:            fusion.Complementary,
		Params:          fusion.DefaultParams(),
		Capacity:        5,
		HistoryCapacity: 8,
	})
	require.NoError(t, err)

	samples := flight(40)
	for _, smp := range samples {
		s.Push(smp)
	}
	assert.Equal(t, samples[32:], s.History())
	assert.Equal(t, samples[35:], s.Window())

	require.NoError(t, s.SetStrategy(fusion.Kalman))
	assert.Len(t, s.Fused(), 8)
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	s := newSession(t, fusion.Complementary, 10)

	var got []fusion.FusedSample
	cancel := s.Subscribe(func(f fusion.FusedSample) { got = append(got, f) })

	samples := flight(3)
	for _, smp := range samples {
		s.Push(smp)
	}
	require.Len(t, got, 3)
	assert.Equal(t, samples[2], got[2].Sample)

	require.NoError(t, s.SetStrategy(fusion.Kalman))
	require.Len(t, got, 4)
	assert.Equal(t, fusion.Kalman, got[3].Filter)

	cancel()
	s.Push(flight(4)[3])
	assert.Len(t, got, 4)
}

func TestConcurrentPushAndRead(t *testing.T) {
	t.Parallel()

	s := newSession(t, fusion.Madgwick, 50)
	samples := flight(400)

	var pushed atomic.Int64
	s.Subscribe(func(fusion.FusedSample) { pushed.Add(1) })

	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if f, ok := s.Latest(); ok {
					// a reader never sees a fused sample from a stale filter run
					if f.Filter != fusion.Madgwick {
						t.Errorf("unexpected filter %q", f.Filter)
						return
					}
				}
				if n := len(s.Window()); n > 50 {
					t.Errorf("window grew to %d", n)
					return
				}
			}
		}()
	}

	for _, smp := range samples {
		s.Push(smp)
	}
	close(done)
	wg.Wait()

	assert.Equal(t, int64(len(samples)), pushed.Load())
	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, samples[len(samples)-1], latest.Sample)
}

func TestPushRejectsOlderThanWindow(t *testing.T) {
	t.Parallel()

	s := newSession(t, fusion.Complementary, 200)
	batch := make([]imu.Sample, 100)
	for i := range batch {
		batch[i] = imu.Sample{Timestamp: int64(1000 * i), RelativeTime: float64(i), AccelZ: -1}
	}
	s.LoadBatch(batch)
	before, ok := s.Latest()
	require.True(t, ok)

	var calls int
	s.Subscribe(func(fusion.FusedSample) { calls++ })

	// a live sample arriving after the log replaced the window
	stale := imu.Sample{Timestamp: 3000, RelativeTime: 3, AccelZ: -1}
	assert.False(t, s.Push(stale))
	assert.Equal(t, uint64(1), s.Rejected())
	assert.Zero(t, calls)

	window := s.Window()
	require.Len(t, window, 100)
	assert.Equal(t, 99.0, window[len(window)-1].RelativeTime)
	assert.Len(t, s.History(), 100)
	after, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, before, after)

	// equal times are kept
	assert.True(t, s.Push(imu.Sample{Timestamp: 99000, RelativeTime: 99, AccelZ: -1}))
	assert.True(t, s.Push(imu.Sample{Timestamp: 100000, RelativeTime: 100, AccelZ: -1}))
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(1), s.Rejected())

	window = s.Window()
	require.Len(t, window, 102)
	for i := 1; i < len(window); i++ {
		assert.GreaterOrEqual(t, window[i].RelativeTime, window[i-1].RelativeTime)
	}
}

func TestObserversSeeUpdatesInOrder(t *testing.T) {
	t.Parallel()

	s := newSession(t, fusion.Complementary, 30)
	samples := flight(500)

	var seen []float64
	s.Subscribe(func(f fusion.FusedSample) { seen = append(seen, f.RelativeTime) })

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		kinds := []fusion.Kind{fusion.Kalman, fusion.Madgwick, fusion.Complementary}
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			if err := s.SetStrategy(kinds[i%len(kinds)]); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for _, smp := range samples {
		require.True(t, s.Push(smp))
	}
	close(done)
	wg.Wait()

	require.GreaterOrEqual(t, len(seen), len(samples))
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("update %d delivered t=%.2f after t=%.2f", i, seen[i], seen[i-1])
		}
	}
	assert.Equal(t, samples[len(samples)-1].RelativeTime, seen[len(seen)-1])
}
