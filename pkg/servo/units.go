package servo

// STS3215 telemetry scale factors.
const (
	voltsPerUnit        = 0.1
	milliampsPerUnit    = 6.5
	loadUnitsPerPercent = 10
)

// VoltsFromRaw converts a present-voltage register value to volts.
func VoltsFromRaw(raw int) float64 {
	return float64(raw) * voltsPerUnit
}

// MilliampsFromRaw converts a present-current register value to milliamps.
func MilliampsFromRaw(raw int) float64 {
	return float64(raw) * milliampsPerUnit
}

// LoadPercentFromRaw converts a signed present-load register value, reported
// in 0.1% steps, to whole percent.
func LoadPercentFromRaw(raw int) int {
	return raw / loadUnitsPerPercent
}
