package flasher

// Outcome is the terminal state of a flash run.
type Outcome int

const (
	// OutcomeSuccess means every step completed.
	OutcomeSuccess Outcome = iota

	// OutcomeFailed means the run aborted on an error.
	OutcomeFailed

	// OutcomeStopped means the run was cancelled cooperatively.
	OutcomeStopped
)

// String returns the outcome's display name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is one message from the executor to its consumer. The concrete
// types are LogEvent, RangeEvent, ProgressEvent, and FinishEvent. Events
// are emitted in order on a single channel; FinishEvent is always last,
// after which the channel is closed.
type Event interface {
	isEvent()
}

// LogEvent carries one human-readable log line.
type LogEvent struct {
	// Source names the emitting subsystem ("Flash")
	Source string

	// Message is the log line
	Message string
}

// RangeEvent announces the total progress units for the run, sized from
// the pre-computed step-unit estimate. Emitted once, before step
// execution begins.
type RangeEvent struct {
	Total int
}

// ProgressEvent reports the current progress unit count. Incremented once
// per transmitted frame, and force-set to the announced total when the
// run finishes successfully.
type ProgressEvent struct {
	Current int
}

// FinishEvent is the terminal event of a run.
type FinishEvent struct {
	Outcome Outcome
}

func (LogEvent) isEvent()      {}
func (RangeEvent) isEvent()    {}
func (ProgressEvent) isEvent() {}
func (FinishEvent) isEvent()   {}
