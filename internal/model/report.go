package model

import "time"

// WorkerFault records a worker that was retired during a run.
type WorkerFault struct {
	WorkerID int    `json:"worker_id" yaml:"worker_id"`
	TaskID   int    `json:"task_id" yaml:"task_id"`
	Reason   string `json:"reason" yaml:"reason"`
}

// Report is the aggregated summary of a completed or aborted run.
// Results is indexed by task id: Results[i].TaskID == i.
type Report struct {
	RunID         string        `json:"run_id" yaml:"run_id"`
	Workers       int           `json:"workers" yaml:"workers"`
	ActiveWorkers int           `json:"active_workers" yaml:"active_workers"`
	Total         int           `json:"total" yaml:"total"`
	Succeeded     int           `json:"succeeded" yaml:"succeeded"`
	Failed        int           `json:"failed" yaml:"failed"`
	NotRun        int           `json:"not_run" yaml:"not_run"`
	Aborted       bool          `json:"aborted" yaml:"aborted"`
	Degraded      bool          `json:"degraded" yaml:"degraded"`
	PerWorker     map[int]int   `json:"per_worker" yaml:"per_worker"`
	Faults        []WorkerFault `json:"faults,omitempty" yaml:"faults,omitempty"`
	Results       []Result      `json:"results" yaml:"results"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
	StartedAt     time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time     `json:"finished_at" yaml:"finished_at"`
}

// Failures returns the failed and not-run results in task id order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status != StatusSucceeded {
			out = append(out, res)
		}
	}
	return out
}

// Tally recomputes the counters from Results.
func (r *Report) Tally() {
	r.Total = len(r.Results)
	r.Succeeded, r.Failed, r.NotRun = 0, 0, 0
	r.PerWorker = make(map[int]int, r.Workers)
	for i := 0; i < r.Workers; i++ {
		r.PerWorker[i] = 0
	}
	for _, res := range r.Results {
		switch res.Status {
		case StatusSucceeded:
			r.Succeeded++
		case StatusFailed:
			r.Failed++
		default:
			r.NotRun++
		}
		if res.WorkerID != NoWorker {
			r.PerWorker[res.WorkerID]++
		}
	}
}

// RunSummary is the stored header of a past run.
type RunSummary struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Workers    int       `json:"workers" yaml:"workers"`
	Total      int       `json:"total" yaml:"total"`
	Succeeded  int       `json:"succeeded" yaml:"succeeded"`
	Failed     int       `json:"failed" yaml:"failed"`
	NotRun     int       `json:"not_run" yaml:"not_run"`
	Aborted    bool      `json:"aborted" yaml:"aborted"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
}
