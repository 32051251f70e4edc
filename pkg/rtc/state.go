package rtc

// State is the connection state of a Handle. It only moves forward:
// Negotiating, Connected, Closing, Closed.
type State int32

const (
	Negotiating State = iota
	Connected
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Negotiating:
		return "negotiating"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}

	return "unknown"
}
