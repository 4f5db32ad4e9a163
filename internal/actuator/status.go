package actuator

import "encoding/json"

// Publisher republishes an actuator's status to the transport.
type Publisher interface {
	PublishStatus(name string, st Status) error
}

// Status is the published view of an actuator position. A settled position
// renders as {"state":"ON"|"OFF"}; anything else renders the raw switch
// flags with a null state, so consumers can tell travel from a fault.
type Status struct {
	Position Position
}

// State returns "ON" for open, "OFF" for shut, and "" otherwise.
func (s Status) State() string {
	switch s.Position {
	case Open:
		return "ON"
	case Shut:
		return "OFF"
	default:
		return ""
	}
}

type settledJSON struct {
	State string `json:"state"`
}

type unsettledJSON struct {
	Open  bool    `json:"open"`
	Shut  bool    `json:"shut"`
	State *string `json:"state"`
}

// MarshalJSON renders the status object.
func (s Status) MarshalJSON() ([]byte, error) {
	if s.Position.Good() {
		return json.Marshal(settledJSON{State: s.State()})
	}
	return json.Marshal(unsettledJSON{
		Open: s.Position.IsOpen(),
		Shut: s.Position.IsShut(),
	})
}
