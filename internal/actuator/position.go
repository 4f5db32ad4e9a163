// Package actuator implements the control state machine for two-wire,
// power-pulsed motorized valve actuators (CR703 with open/shut feedback
// switches, CR303 without).
package actuator

// Position is the valve position as reported by the two feedback switches.
type Position uint8

// The values double as the (open, shut) bit pair: bit 0 is the open switch,
// bit 1 the shut switch.
const (
	Transient Position = iota // neither switch: moving, or unknown
	Open                      // open switch only
	Shut                      // shut switch only
	Invalid                   // both switches: contradictory feedback
)

// PositionOf composes a Position from the two feedback flags.
func PositionOf(open, shut bool) Position {
	var p Position
	if open {
		p |= Open
	}
	if shut {
		p |= Shut
	}
	return p
}

// IsOpen reports whether the open flag is set.
func (p Position) IsOpen() bool { return p&Open != 0 }

// IsShut reports whether the shut flag is set.
func (p Position) IsShut() bool { return p&Shut != 0 }

// Good reports whether p is a settled position.
func (p Position) Good() bool {
	return p == Open || p == Shut
}

// with returns p with the flag for bit (Open or Shut) set or cleared.
func (p Position) with(bit Position, set bool) Position {
	if set {
		return p | bit
	}
	return p &^ bit
}

func (p Position) String() string {
	switch p {
	case Transient:
		return "TRANSIENT"
	case Open:
		return "OPEN"
	case Shut:
		return "SHUT"
	case Invalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}
