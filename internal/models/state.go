package models

// TaskState is the lifecycle state of a delivery task. AwaitingRetry is
// entered when an attempt fails and the retry budget is not exhausted; the
// dispatch runtime, not the task, moves it back to Running by re-invoking it.
type TaskState string

const (
	StateCreated          TaskState = "created"
	StateRunning          TaskState = "running"
	StateSucceeded        TaskState = "succeeded"
	StateAwaitingRetry    TaskState = "awaiting_retry"
	StateTerminallyFailed TaskState = "terminally_failed"
)

// Terminal reports whether the state is an end state.
func (s TaskState) Terminal() bool {
	return s == StateSucceeded || s == StateTerminallyFailed
}
