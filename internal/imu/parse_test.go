package imu

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "millis\taccelX\taccelY\taccelZ\tgyroX\tgyroY\tgyroZ\taltitude\n"

func row(fields ...string) string {
	return strings.Join(fields, "\t") + "\n"
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("comma decimals and relative time", func(t *testing.T) {
		t.Parallel()
		raw := header +
			row("5000", "0,01", "0", "-1,23", "1,5", "0", "0", "12,5") +
			row("5100", "0", "0", "-1", "0", "0", "0", "13") +
			row("5350", "0", "0", "-1", "0", "0", "0", "14")

		samples, err := ParseString(raw)
		require.NoError(t, err)
		require.Len(t, samples, 3)

		assert.InDelta(t, 0.01, samples[0].AccelX, 1e-12)
		assert.InDelta(t, -1.23, samples[0].AccelZ, 1e-12)
		assert.InDelta(t, 1.5, samples[0].GyroX, 1e-12)
		assert.InDelta(t, 12.5, samples[0].Altitude, 1e-12)

		assert.Equal(t, 0.0, samples[0].RelativeTime)
		assert.InDelta(t, 0.1, samples[1].RelativeTime, 1e-12)
		assert.InDelta(t, 0.35, samples[2].RelativeTime, 1e-12)
	})

	t.Run("columns are matched by name", func(t *testing.T) {
		t.Parallel()
		raw := "t\taltitude\tgyroZ\tgyroY\tgyroX\taccelZ\taccelY\taccelX\n" +
			"10\t100\t6\t5\t4\t-3\t2\t1\n"

		samples, err := ParseString(raw)
		require.NoError(t, err)
		require.Len(t, samples, 1)

		s := samples[0]
		assert.Equal(t, int64(10), s.Timestamp)
		assert.Equal(t, [3]float64{1, 2, -3}, s.Accel())
		assert.Equal(t, [3]float64{4, 5, 6}, s.Gyro())
		assert.Equal(t, 100.0, s.Altitude)
	})

	t.Run("blank lines are skipped", func(t *testing.T) {
		t.Parallel()
		raw := "\n" + header + "\n" + row("1", "0", "0", "-1", "0", "0", "0", "0") + "\r\n\n"

		samples, err := ParseString(raw)
		require.NoError(t, err)
		assert.Len(t, samples, 1)
	})

	t.Run("rows are ordered by timestamp, ties stable", func(t *testing.T) {
		t.Parallel()
		raw := header +
			row("300", "3", "0", "-1", "0", "0", "0", "0") +
			row("100", "1", "0", "-1", "0", "0", "0", "0") +
			row("300", "4", "0", "-1", "0", "0", "0", "0") +
			row("200", "2", "0", "-1", "0", "0", "0", "0")

		samples, err := ParseString(raw)
		require.NoError(t, err)

		var ax []float64
		for i, s := range samples {
			ax = append(ax, s.AccelX)
			assert.GreaterOrEqual(t, s.RelativeTime, 0.0)
			if i > 0 {
				assert.GreaterOrEqual(t, s.RelativeTime, samples[i-1].RelativeTime)
			}
		}
		assert.Equal(t, []float64{1, 2, 3, 4}, ax)
	})
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		target error
		line   int
	}{
		{name: "no input", raw: "", target: ErrEmpty},
		{name: "header only", raw: header, target: ErrEmpty},
		{name: "header and blanks", raw: header + "\n  \n", target: ErrEmpty},
		{
			name:   "short row",
			raw:    header + row("1", "0", "0", "-1", "0", "0", "0", "0") + row("2", "0", "0", "-1", "0", "0"),
			target: ErrMalformedRow,
			line:   3,
		},
		{
			name:   "long row",
			raw:    header + row("1", "0", "0", "-1", "0", "0", "0", "0", "9"),
			target: ErrMalformedRow,
			line:   2,
		},
		{
			name:   "non numeric field",
			raw:    header + row("1", "0", "abc", "-1", "0", "0", "0", "0"),
			target: ErrMalformedRow,
			line:   2,
		},
		{
			name:   "non integer timestamp",
			raw:    header + row("1.5", "0", "0", "-1", "0", "0", "0", "0"),
			target: ErrMalformedRow,
			line:   2,
		},
		{
			name:   "missing column",
			raw:    "millis\taccelX\taccelY\taccelZ\tgyroX\tgyroY\tgyroZ\n" + "1\t0\t0\t-1\t0\t0\t0\n",
			target: ErrMissingColumn,
			line:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			samples, err := ParseString(tt.raw)
			require.Error(t, err)
			assert.Nil(t, samples)
			assert.ErrorIs(t, err, tt.target)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.line, perr.Line)
		})
	}
}

func TestCorrectZAxis(t *testing.T) {
	t.Parallel()

	build := func(n int, az float64) string {
		var b strings.Builder
		b.WriteString(header)
		for i := 0; i < n; i++ {
			b.WriteString(row(
				strconv.Itoa(1000+i*10),
				"0", "0", strconv.FormatFloat(az, 'f', -1, 64), "0", "0", "0", "0"))
		}
		return b.String()
	}

	t.Run("positive mean flips every sample", func(t *testing.T) {
		t.Parallel()
		samples, err := ParseString(build(30, 1))
		require.NoError(t, err)
		for _, s := range samples {
			assert.Equal(t, -1.0, s.AccelZ)
		}
	})

	t.Run("negative mean is left alone", func(t *testing.T) {
		t.Parallel()
		samples, err := ParseString(build(30, -1))
		require.NoError(t, err)
		for _, s := range samples {
			assert.Equal(t, -1.0, s.AccelZ)
		}
	})

	t.Run("only the leading samples decide", func(t *testing.T) {
		t.Parallel()
		samples := make([]Sample, 25)
		for i := range samples {
			samples[i].AccelZ = 1
		}
		for i := ZCheckSamples; i < len(samples); i++ {
			samples[i].AccelZ = -50
		}
		assert.True(t, CorrectZAxis(samples))
		assert.Equal(t, -1.0, samples[0].AccelZ)
		assert.Equal(t, 50.0, samples[24].AccelZ)
	})

	t.Run("fewer than twenty samples", func(t *testing.T) {
		t.Parallel()
		samples := []Sample{{AccelZ: 0.9}, {AccelZ: 1.1}}
		assert.True(t, CorrectZAxis(samples))
		assert.InDelta(t, -0.9, samples[0].AccelZ, 1e-12)
		assert.False(t, CorrectZAxis(nil))
	})
}

func TestParseDecimal(t *testing.T) {
	t.Parallel()

	v, err := ParseDecimal("1,23")
	require.NoError(t, err)
	assert.Equal(t, 1.23, v)

	v, err = ParseDecimal(" -0.5 ")
	require.NoError(t, err)
	assert.Equal(t, -0.5, v)

	_, err = ParseDecimal("1,2,3")
	assert.Error(t, err)

	_, err = ParseDecimal("NaN")
	assert.Error(t, err)
	_, err = ParseDecimal("-Inf")
	assert.Error(t, err)
}
