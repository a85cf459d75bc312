package store

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/rocket_attitude/internal/fusion"
)

const (
	recorderBatch = 64
	recorderFlush = time.Second
)

// Recorder writes fused samples to a session in the background, batching
// inserts. Record never blocks; a full queue drops the sample.
type Recorder struct {
	store     *SqliteStore
	sessionID int64

	in      chan fusion.FusedSample
	done    chan struct{}
	dropped atomic.Uint64
	written atomic.Uint64

	closeOnce sync.Once
}

// NewRecorder starts the background writer for sessionID.
func NewRecorder(st *SqliteStore, sessionID int64, queue int) *Recorder {
	if queue < recorderBatch {
		queue = recorderBatch
	}
	r := &Recorder{
		store:     st,
		sessionID: sessionID,
		in:        make(chan fusion.FusedSample, queue),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues f for writing.
func (r *Recorder) Record(f fusion.FusedSample) {
	select {
	case r.in <- f:
	default:
		if n := r.dropped.Add(1); n%100 == 1 {
			log.Printf("recorder: queue full, %d samples dropped so far", n)
		}
	}
}

// Written is the number of samples committed so far.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Dropped is the number of samples discarded on a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close flushes everything queued and stops the writer. Record must not be
// called after Close.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.in)
		<-r.done
	})
}

func (r *Recorder) loop() {
	defer close(r.done)

	ticker := time.NewTicker(recorderFlush)
	defer ticker.Stop()

	batch := make([]fusion.FusedSample, 0, recorderBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.InsertFused(context.Background(), r.sessionID, batch); err != nil {
			log.Printf("recorder: %v", err)
		} else {
			r.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case f, ok := <-r.in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, f)
			if len(batch) >= recorderBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
