package servo

import "fmt"

// Range is an inclusive range of raw register values.
type Range struct {
	Min int
	Max int
}

// Parameter ranges accepted by the STS3215. The session controller does not
// enforce these; callers check them before issuing commands.
var (
	PositionRange     = Range{Min: 0, Max: 4095}
	SpeedRange        = Range{Min: 0, Max: 3400}
	AccelerationRange = Range{Min: 0, Max: 254}
	AddressRange      = Range{Min: 0, Max: 253}
)

// Contains reports whether v lies within the range.
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp limits v to the range.
func (r Range) Clamp(v int) int {
	return min(max(v, r.Min), r.Max)
}

// Check returns an error naming param if v lies outside the range.
func (r Range) Check(param string, v int) error {
	if !r.Contains(v) {
		return fmt.Errorf("%s %d out of range %d-%d", param, v, r.Min, r.Max)
	}
	return nil
}

// Percent converts a raw value to a percentage of the range in [0, 100].
func (r Range) Percent(v int) float64 {
	size := float64(r.Max - r.Min)
	if size == 0 {
		return 0
	}
	return float64(v-r.Min) / size * 100
}

// FromPercent converts a percentage in [0, 100] back to a raw value.
func (r Range) FromPercent(p float64) int {
	size := float64(r.Max - r.Min)
	return int(p/100*size+0.5) + r.Min
}
