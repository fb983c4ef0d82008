package session

import "fmt"

// Status is a telemetry snapshot of one motor. The values are read one
// register at a time, so they are approximately simultaneous, not atomic
// with respect to the motor.
type Status struct {
	Position    int     // raw steps, 0-4095
	Speed       int     // steps/s, negative when reversing
	Temperature int     // °C
	Voltage     float64 // V
	Current     float64 // mA
	Load        int     // % of rated torque, signed
	Moving      bool
}

func (s Status) String() string {
	return fmt.Sprintf("position=%d speed=%d temperature=%d°C voltage=%.1fV current=%.0fmA load=%d%% moving=%t",
		s.Position, s.Speed, s.Temperature, s.Voltage, s.Current, s.Load, s.Moving)
}

// Presence is the outcome of probing one motor ID.
type Presence bool

const (
	Absent  Presence = false
	Present Presence = true
)

func (p Presence) String() string {
	if p {
		return "present"
	}
	return "absent"
}
