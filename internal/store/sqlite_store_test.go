package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rocket_attitude/internal/fusion"
	"github.com/relabs-tech/rocket_attitude/internal/imu"
)

func newStore(t *testing.T) *SqliteStore {
	t.Helper()
	st := NewSqliteStore(filepath.Join(t.TempDir(), "rocket.db"))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func fused(t *testing.T, kind fusion.Kind, n int) []fusion.FusedSample {
	t.Helper()
	samples := make([]imu.Sample, n)
	for i := range samples {
		samples[i] = imu.Sample{
			Timestamp:    int64(1000 + 10*i),
			RelativeTime: float64(i) * 0.01,
			AccelX:       0.01 * float64(i),
			AccelZ:       -1,
			GyroZ:        45,
			Altitude:     float64(i),
		}
	}
	out, err := fusion.Run(kind, fusion.DefaultParams(), samples)
	require.NoError(t, err)
	return out
}

func TestSessionsRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newStore(t)

	first := uuid.New()
	id1, err := st.CreateSession(ctx, first, fusion.Kalman, "replay", map[string]any{"window": 300})
	require.NoError(t, err)
	id2, err := st.CreateSession(ctx, uuid.New(), fusion.Madgwick, "mqtt", nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	sessions, err := st.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, first, sessions[0].UUID)
	assert.Equal(t, fusion.Kalman, sessions[0].Filter)
	assert.Equal(t, "replay", sessions[0].Source)
	require.NotNil(t, sessions[0].Config)
	assert.JSONEq(t, `{"window":300}`, *sessions[0].Config)
	assert.False(t, sessions[0].StartTime.IsZero())
	assert.Nil(t, sessions[1].Config)

	_, err = st.CreateSession(ctx, first, fusion.Kalman, "replay", nil)
	assert.Error(t, err, "uuid must be unique")
}

func TestFusedSamplesRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newStore(t)

	for _, kind := range fusion.Kinds {
		id, err := st.CreateSession(ctx, uuid.New(), kind, "test", "{}")
		require.NoError(t, err)

		want := fused(t, kind, 25)
		require.NoError(t, st.InsertFused(ctx, id, want[:10]))
		require.NoError(t, st.InsertFused(ctx, id, want[10:]))
		require.NoError(t, st.InsertFused(ctx, id, nil))

		got, err := st.Samples(ctx, id)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s: samples mismatch (-want +got):\n%s", kind, diff)
		}
	}
}

func TestInsertFusedUnknownSession(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	err := st.InsertFused(context.Background(), 42, fused(t, fusion.Complementary, 3))
	require.Error(t, err)

	// the failed batch was rolled back as a whole
	got, err := st.Samples(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecorderFlushesOnClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newStore(t)
	id, err := st.CreateSession(ctx, uuid.New(), fusion.Complementary, "test", nil)
	require.NoError(t, err)

	want := fused(t, fusion.Complementary, 150)
	rec := NewRecorder(st, id, len(want))
	for _, f := range want {
		rec.Record(f)
	}
	rec.Close()
	rec.Close()

	assert.Equal(t, uint64(len(want)), rec.Written())
	assert.Zero(t, rec.Dropped())

	got, err := st.Samples(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got, len(want))
	assert.Equal(t, want[149].Pose, got[149].Pose)
}
