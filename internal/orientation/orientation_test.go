package orientation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePoseFromAccel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		ax, ay, az  float64
		roll, pitch float64
	}{
		{name: "level", az: 1},
		{name: "rolled right", ay: 1, roll: 90},
		{name: "rolled 45", ay: 1, az: 1, roll: 45},
		{name: "nose up", ax: -1, pitch: 90},
		{name: "nose down 30", ax: 0.5, az: math.Sqrt(3) / 2, pitch: -30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := ComputePoseFromAccel(tt.ax, tt.ay, tt.az)
			assert.InDelta(t, tt.roll, p.Roll, 1e-9)
			assert.InDelta(t, tt.pitch, p.Pitch, 1e-9)
			assert.Equal(t, 0.0, p.Yaw)
		})
	}
}

func TestTiltFromSpecificForce(t *testing.T) {
	t.Parallel()

	p := TiltFromSpecificForce(0, 0, -1)
	assert.Equal(t, 0.0, p.Roll)
	assert.Equal(t, 0.0, p.Pitch)

	p = TiltFromSpecificForce(0, -1, 0)
	assert.InDelta(t, 90, p.Roll, 1e-9)

	// nose up 30°: pitch sign is opposite to the raw-reading formula
	p = TiltFromSpecificForce(0.5, 0, -0.866)
	assert.InDelta(t, 30, p.Pitch, 1e-2)
	assert.InDelta(t, 0, p.Roll, 1e-9)
	raw := ComputePoseFromAccel(0.5, 0, -0.866)
	assert.InDelta(t, -30, raw.Pitch, 1e-2)
}

func TestWrapDegrees(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, WrapDegrees(0))
	assert.Equal(t, 180.0, WrapDegrees(180))
	assert.Equal(t, -180.0, WrapDegrees(-180))
	assert.InDelta(t, -170, WrapDegrees(190), 1e-9)
	assert.InDelta(t, 170, WrapDegrees(-190), 1e-9)
	assert.InDelta(t, 10, WrapDegrees(730), 1e-9)
	assert.InDelta(t, -10, WrapDegrees(-1090), 1e-9)
	assert.InDelta(t, -180, WrapDegrees(-540), 1e-9)
	assert.True(t, math.IsNaN(WrapDegrees(math.NaN())))
	assert.True(t, math.IsInf(WrapDegrees(math.Inf(1)), 1))

	big := WrapDegrees(3.7e15)
	assert.True(t, big >= -180 && big <= 180)

	w := Pose{Roll: 370, Pitch: -200, Yaw: 540}.Wrap()
	assert.InDelta(t, 10, w.Roll, 1e-9)
	assert.InDelta(t, 160, w.Pitch, 1e-9)
	assert.InDelta(t, 180, w.Yaw, 1e-9)
}
