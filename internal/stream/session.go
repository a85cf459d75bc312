// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stream owns the rolling sample window and keeps its fused view
// current as samples arrive.
package stream

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/relabs-tech/rocket_attitude/internal/fusion"
	"github.com/relabs-tech/rocket_attitude/internal/imu"
)

// DefaultCapacity is the rolling window size.
const DefaultCapacity = 300

// rejectLogEvery throttles the out-of-order sample log line.
const rejectLogEvery = 100

// Config configures a Session.
type Config struct {
	Kind     fusion.Kind
	Params   fusion.Params
	Capacity int // rolling window size

	// HistoryCapacity bounds the raw history kept for strategy switches.
	// Zero keeps everything.
	HistoryCapacity int

	// Incremental carries estimator state across pushes and only
	// recomputes from scratch when the window evicts.
	Incremental bool
}

// Observer is called with the newest fused sample after each update.
type Observer func(fusion.FusedSample)

// Session is one fusion run over a live or replayed stream. The window
// update and the re-fusion that follows it happen under one lock, so
// readers never see a half-updated state.
type Session struct {
	id  uuid.UUID
	cfg Config

	mu      sync.RWMutex
	history []imu.Sample
	window  []imu.Sample
	fused   []fusion.FusedSample

	// est has consumed exactly the window when estValid is set.
	est      fusion.Estimator
	estValid bool

	// notifyMu is taken before mu is released, so observers see updates
	// in the order they were applied.
	notifyMu sync.Mutex

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	rejected atomic.Uint64
}

// NewSession validates cfg and returns an empty session.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("stream: window capacity must be > 0, got %d", cfg.Capacity)
	}
	if cfg.HistoryCapacity < 0 {
		return nil, fmt.Errorf("stream: history capacity must be >= 0, got %d", cfg.HistoryCapacity)
	}
	if cfg.HistoryCapacity > 0 && cfg.HistoryCapacity < cfg.Capacity {
		return nil, fmt.Errorf("stream: history capacity %d smaller than window %d", cfg.HistoryCapacity, cfg.Capacity)
	}
	est, err := fusion.New(cfg.Kind, cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	return &Session{
		id:        uuid.New(),
		cfg:       cfg,
		est:       est,
		estValid:  true,
		observers: make(map[int]Observer),
	}, nil
}

// ID identifies the session, e.g. in the recorder.
func (s *Session) ID() uuid.UUID { return s.id }

// Strategy returns the active fusion strategy.
func (s *Session) Strategy() fusion.Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Kind
}

// Push appends a sample, evicts the oldest one past capacity and re-fuses
// the window. A sample older than the window tail, e.g. a live sample
// arriving after LoadBatch replaced the window with a log, is dropped and
// counted; Push then reports false.
func (s *Session) Push(sample imu.Sample) bool {
	s.mu.Lock()

	if n := len(s.window); n > 0 && sample.RelativeTime < s.window[n-1].RelativeTime {
		tailTime := s.window[n-1].RelativeTime
		s.mu.Unlock()
		if r := s.rejected.Add(1); r%rejectLogEvery == 1 {
			log.Printf("stream: session %s dropped sample at t=%.3fs behind window tail t=%.3fs (%d dropped so far)",
				s.id, sample.RelativeTime, tailTime, r)
		}
		return false
	}

	s.history = appendBounded(s.history, sample, s.cfg.HistoryCapacity)
	s.window = append(s.window, sample)
	evicted := len(s.window) > s.cfg.Capacity
	if evicted {
		s.window = append(s.window[:0:0], s.window[len(s.window)-s.cfg.Capacity:]...)
	}

	if s.cfg.Incremental && !evicted && s.estValid {
		s.fused = append(s.fused, s.est.Update(sample))
	} else {
		s.refuse(s.window, true)
	}
	latest := s.fused[len(s.fused)-1]

	s.notifyMu.Lock()
	s.mu.Unlock()
	s.notify(latest)
	s.notifyMu.Unlock()
	return true
}

// Rejected is the number of samples Push dropped for arriving behind the
// window tail.
func (s *Session) Rejected() uint64 { return s.rejected.Load() }

// SetStrategy switches the estimator and re-fuses the full raw history.
// The raw buffers are left alone.
func (s *Session) SetStrategy(kind fusion.Kind) error {
	est, err := fusion.New(kind, s.cfg.Params)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	s.mu.Lock()
	prev := s.cfg.Kind
	s.cfg.Kind = kind
	s.est = est
	h := s.hist()
	s.refuse(h, len(h) == len(s.window))
	latest, ok := s.last()
	s.notifyMu.Lock()
	s.mu.Unlock()

	if ok {
		s.notify(latest)
	}
	s.notifyMu.Unlock()

	log.Printf("stream: session %s switched %s -> %s over %d samples", s.id, prev, kind, len(h))
	return nil
}

// LoadBatch replaces every buffer with samples and fuses the whole batch.
// The window keeps the newest samples up to capacity.
func (s *Session) LoadBatch(samples []imu.Sample) {
	s.mu.Lock()
	s.history = tail(samples, s.cfg.HistoryCapacity)
	s.window = tail(samples, s.cfg.Capacity)
	// the fused view covers the whole batch even past the history bound
	s.refuse(samples, len(samples) == len(s.window))
	latest, ok := s.last()
	s.notifyMu.Lock()
	s.mu.Unlock()

	if ok {
		s.notify(latest)
	}
	s.notifyMu.Unlock()
}

// Latest returns the newest fused sample. Before any fusion output exists
// it returns the newest raw sample with ok false; an empty session returns
// the zero sample.
func (s *Session) Latest() (fused fusion.FusedSample, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.last(); ok {
		return f, true
	}
	if n := len(s.window); n > 0 {
		return fusion.FusedSample{Sample: s.window[n-1]}, false
	}
	return fusion.FusedSample{}, false
}

// Window returns a copy of the raw rolling window.
func (s *Session) Window() []imu.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]imu.Sample(nil), s.window...)
}

// History returns a copy of the raw history.
func (s *Session) History() []imu.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]imu.Sample(nil), s.hist()...)
}

// Fused returns a copy of the current fused output.
func (s *Session) Fused() []fusion.FusedSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]fusion.FusedSample(nil), s.fused...)
}

// Subscribe registers fn for every update and returns a function that
// removes it. Observers run on the updating goroutine, outside the state
// lock, one update at a time and in update order. An observer must not
// call back into the session.
func (s *Session) Subscribe(fn Observer) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// refuse recomputes the fused view over samples from a fresh estimator
// state. window reports whether samples is exactly the current window.
// Caller holds mu.
func (s *Session) refuse(samples []imu.Sample, window bool) {
	s.est.Reset()
	out := make([]fusion.FusedSample, len(samples))
	for i, smp := range samples {
		out[i] = s.est.Update(smp)
	}
	s.fused = out
	s.estValid = window
}

func (s *Session) last() (fusion.FusedSample, bool) {
	if n := len(s.fused); n > 0 {
		return s.fused[n-1], true
	}
	return fusion.FusedSample{}, false
}

func (s *Session) notify(f fusion.FusedSample) {
	s.obsMu.Lock()
	obs := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		obs = append(obs, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range obs {
		fn(f)
	}
}

// tail copies the newest limit samples; limit 0 copies all.
func tail(samples []imu.Sample, limit int) []imu.Sample {
	if limit > 0 && len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return append([]imu.Sample(nil), samples...)
}

// appendBounded appends s and keeps at most limit samples. Trimming is
// amortised: the slice is compacted once it overshoots by a quarter.
func appendBounded(buf []imu.Sample, s imu.Sample, limit int) []imu.Sample {
	buf = append(buf, s)
	if limit > 0 && len(buf) > limit+limit/4 {
		buf = append(buf[:0:0], buf[len(buf)-limit:]...)
	}
	return buf
}

// hist is the bounded view of the raw history. Caller holds mu.
func (s *Session) hist() []imu.Sample {
	if n := s.cfg.HistoryCapacity; n > 0 && len(s.history) > n {
		return s.history[len(s.history)-n:]
	}
	return s.history
}
