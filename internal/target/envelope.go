package target

import "strconv"

// Envelope is one line of the v2 targets API. Exactly one field is set.
type Envelope struct {
	Target        *Target `json:"target,omitempty"`
	PositionToken string  `json:"position_token,omitempty"`
	Status        *Status `json:"status,omitempty"`
}

// Status is a server notice sent on the stream, including keep-alives.
type Status struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Kind returns which payload the envelope carries.
func (e *Envelope) Kind() string {
	switch {
	case e.Target != nil:
		return "target"
	case e.PositionToken != "":
		return "position_token"
	case e.Status != nil:
		return "status"
	}
	return ""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
