package model

import "time"

// Task outcome constants.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusNotRun    = "not_run"
)

// NoWorker is the worker id recorded on results of tasks that never executed.
const NoWorker = -1

// Result is the recorded outcome of one task.
type Result struct {
	TaskID     int           `json:"task_id" yaml:"task_id"`
	Kind       string        `json:"kind" yaml:"kind"`
	Status     string        `json:"status" yaml:"status"`
	Reason     string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Output     string        `json:"output,omitempty" yaml:"output,omitempty"`
	WorkerID   int           `json:"worker_id" yaml:"worker_id"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	StartedAt  *time.Time    `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// NotRun builds the result for a task that was never executed.
func NotRun(t Task, reason string) Result {
	return Result{
		TaskID:   t.ID,
		Kind:     t.Kind,
		Status:   StatusNotRun,
		Reason:   reason,
		WorkerID: NoWorker,
	}
}

// Worker state constants.
const (
	WorkerIdle    = "idle"
	WorkerRunning = "running"
	WorkerStopped = "stopped"
)

// WorkerStatus is a point-in-time view of one worker in a pool.
type WorkerStatus struct {
	ID        int    `json:"id" yaml:"id"`
	State     string `json:"state" yaml:"state"`
	TaskID    *int   `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	Completed int    `json:"completed" yaml:"completed"`
	Faulted   bool   `json:"faulted" yaml:"faulted"`
}

// validTransitions maps each worker state to the states it may move to.
var validTransitions = map[string]map[string]bool{
	WorkerIdle: {
		WorkerRunning: true,
		WorkerStopped: true,
	},
	WorkerRunning: {
		WorkerIdle:    true,
		WorkerStopped: true,
	},
}

// ValidTransition reports whether a worker may move from one state to another.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}
