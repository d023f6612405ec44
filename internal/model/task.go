package model

import "github.com/seantiz/compute/internal/payload"

// Task is one unit of work loaded from a program source.
// It is never modified after the loader returns it.
type Task struct {
	// ID is the 0-based position of the task in load order.
	ID int `json:"id" yaml:"id"`

	Kind string   `json:"kind" yaml:"kind"`
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Line is the 1-based source line the record was read from.
	Line int `json:"line" yaml:"line"`

	Payload payload.Payload `json:"-" yaml:"-"`
}
