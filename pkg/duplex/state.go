package duplex

// State is the half-close state of a Conn.
type State int32

const (
	StateOpen State = iota
	StateReadHalfClosed
	StateWriteHalfClosed
	StateBothHalfClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateReadHalfClosed:
		return "READ_HALF_CLOSED"
	case StateWriteHalfClosed:
		return "WRITE_HALF_CLOSED"
	case StateBothHalfClosed:
		return "BOTH_HALF_CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
