package circuitbreaker

// State is the breaker's admission mode.
type State int

const (
	// StateClosed admits every call.
	StateClosed State = iota
	// StateOpen refuses every call until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits probe calls to test whether the dependency
	// has recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
