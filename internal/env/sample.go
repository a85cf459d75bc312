package env

import "math"

// Sample represents a single environmental measurement (BMP).
type Sample struct {
	Temperature float64 `json:"temp_c"`      // °C
	Pressure    float64 `json:"pressure_pa"` // Pa
}

// Altitude converts the pressure reading to metres above the reference
// pressure level with the international barometric formula.
func (s Sample) Altitude(seaLevelPa float64) float64 {
	if s.Pressure <= 0 || seaLevelPa <= 0 {
		return math.NaN()
	}
	return 44330 * (1 - math.Pow(s.Pressure/seaLevelPa, 1/5.255))
}
