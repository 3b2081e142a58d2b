package pipeline

import "fmt"

// State is a controller state.
type State int

const (
	StateIdle State = iota
	StateCounting
	StateGeneratingBatch
	StateRunningStage
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCounting:
		return "counting"
	case StateGeneratingBatch:
		return "generating_batch"
	case StateRunningStage:
		return "running_stage"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition is one step of the controller walk. Stage is set only for
// StateRunningStage.
type Transition struct {
	From  State
	To    State
	Stage int
	Batch int
}

func (t Transition) String() string {
	to := t.To.String()
	if t.To == StateRunningStage {
		to = fmt.Sprintf("%s(%d)", to, t.Stage)
	}
	return fmt.Sprintf("%s -> %s", t.From, to)
}
