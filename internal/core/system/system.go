package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput  Phase = iota // 0: accept connections, drain inbound queues, run commands
	PhaseOutput              // 1: flush buffered frames to writer goroutines
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseOutput:
		return "output"
	}
	return "unknown"
}

// System is one step of the game loop.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
