package membership

// Status is the position of a node in the failure detector's state machine.
// Transitions are driven by heartbeat freshness only: any fresh heartbeat
// moves a node back to StatusAlive, prolonged silence degrades it to
// StatusSuspected and then StatusDead.
type Status int8

const (
	StatusAlive Status = iota + 1
	StatusSuspected
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusAlive:
		return "alive"
	case StatusSuspected:
		return "suspected"
	case StatusDead:
		return "dead"
	default:
		return ""
	}
}

// WorseThan reports whether s is a stronger failure claim than other.
func (s Status) WorseThan(other Status) bool {
	return s > other
}
