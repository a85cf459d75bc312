package imu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestDecodeLiveRecord(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"sensors":{"accel":{"x":0.1,"y":-0.2,"z":-0.98},"gyro":{"x":1,"y":2,"z":3},"altitude":42.5},"system":{"millis":987654}}`)
	rec, err := DecodeLiveRecord(payload)
	require.NoError(t, err)

	assert.Equal(t, 0.1, rec.Sensors.Accel.X)
	assert.Equal(t, -0.98, rec.Sensors.Accel.Z)
	assert.Equal(t, 3.0, rec.Sensors.Gyro.Z)
	require.NotNil(t, rec.Sensors.Altitude)
	assert.Equal(t, 42.5, *rec.Sensors.Altitude)
	assert.Equal(t, int64(987654), rec.System.Millis)

	_, err = DecodeLiveRecord([]byte(`{"sensors":`))
	assert.Error(t, err)
}

func TestLiveClock(t *testing.T) {
	t.Parallel()

	rec := func(millis int64, alt *float64) LiveRecord {
		var r LiveRecord
		r.Sensors.Accel = Axes{Z: -1}
		r.Sensors.Altitude = alt
		r.System.Millis = millis
		return r
	}
	alt := 10.0

	t.Run("relative time follows arrival, not device millis", func(t *testing.T) {
		t.Parallel()
		fc := &fakeClock{t: time.Unix(1700000000, 0)}
		c := NewLiveClockAt(fc.now)

		s0 := c.Ingest(rec(500000, &alt))
		fc.advance(100 * time.Millisecond)
		s1 := c.Ingest(rec(400, nil)) // device rebooted, millis went backwards
		fc.advance(250 * time.Millisecond)
		s2 := c.Ingest(rec(999999, nil))

		assert.Equal(t, 0.0, s0.RelativeTime)
		assert.InDelta(t, 0.1, s1.RelativeTime, 1e-9)
		assert.InDelta(t, 0.35, s2.RelativeTime, 1e-9)
		assert.Equal(t, int64(400), s1.Timestamp)
		assert.Equal(t, -1.0, s1.AccelZ)
	})

	t.Run("simultaneous arrivals stay strictly increasing", func(t *testing.T) {
		t.Parallel()
		fc := &fakeClock{t: time.Unix(1700000000, 0)}
		c := NewLiveClockAt(fc.now)

		prev := c.Ingest(rec(1, nil))
		for i := 0; i < 5; i++ {
			s := c.Ingest(rec(int64(i+2), nil))
			assert.Greater(t, s.RelativeTime, prev.RelativeTime)
			prev = s
		}
	})

	t.Run("altitude carries forward", func(t *testing.T) {
		t.Parallel()
		fc := &fakeClock{t: time.Unix(1700000000, 0)}
		c := NewLiveClockAt(fc.now)

		assert.Equal(t, 10.0, c.Ingest(rec(1, &alt)).Altitude)
		fc.advance(time.Millisecond)
		assert.Equal(t, 10.0, c.Ingest(rec(2, nil)).Altitude)

		c.SetAltitude(55)
		fc.advance(time.Millisecond)
		assert.Equal(t, 55.0, c.Ingest(rec(3, nil)).Altitude)
	})

	t.Run("reset starts a new session", func(t *testing.T) {
		t.Parallel()
		fc := &fakeClock{t: time.Unix(1700000000, 0)}
		c := NewLiveClockAt(fc.now)

		c.Ingest(rec(1, nil))
		fc.advance(2 * time.Second)
		c.Reset()
		assert.Equal(t, 0.0, c.Ingest(rec(2, nil)).RelativeTime)
	})
}

func TestSampleRecordRoundTrip(t *testing.T) {
	t.Parallel()

	s := Sample{
		Timestamp: 4200, RelativeTime: 3.5,
		AccelX: 0.1, AccelY: -0.2, AccelZ: -0.97,
		GyroX: 4, GyroY: 5, GyroZ: 6,
		Altitude: 120.5,
	}
	fc := &fakeClock{t: time.Unix(1700000000, 0)}
	got := NewLiveClockAt(fc.now).Ingest(s.Record())

	want := s
	want.RelativeTime = 0 // restamped by the receiving clock
	assert.Equal(t, want, got)
}
