package engine

import (
	"errors"
	"fmt"

	"github.com/seantiz/compute/internal/program"
)

// ErrInvalidConfiguration is returned for pool settings a run cannot start with.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// FaultPolicy decides how the pool reacts to a worker fault.
type FaultPolicy string

// Fault policies.
const (
	// FaultContinue retires the faulted worker and keeps running on the
	// remaining ones.
	FaultContinue FaultPolicy = "continue"
	// FaultAbort aborts the whole run on the first fault.
	FaultAbort FaultPolicy = "abort"
)

// Config holds the pool configuration of a controller. It does not change
// for the lifetime of a run.
type Config struct {
	Workers int

	// QueueSize bounds the task queue; 0 means unbounded.
	QueueSize int

	FaultPolicy FaultPolicy

	// DispatchRate caps how many tasks per second are fed to the queue;
	// 0 means unlimited. DispatchBurst is the limiter's bucket size.
	DispatchRate  float64
	DispatchBurst int

	ProgramFormat program.Format
}

// Configure returns a default configuration for workers workers, or
// ErrInvalidConfiguration when workers is less than 1.
func Configure(workers int) (Config, error) {
	cfg := Config{Workers: workers, FaultPolicy: FaultContinue}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration. Every error wraps ErrInvalidConfiguration.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: worker count must be at least 1, got %d", ErrInvalidConfiguration, c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: queue size must not be negative, got %d", ErrInvalidConfiguration, c.QueueSize)
	}
	if c.DispatchRate < 0 {
		return fmt.Errorf("%w: dispatch rate must not be negative, got %v", ErrInvalidConfiguration, c.DispatchRate)
	}
	if c.DispatchBurst < 0 {
		return fmt.Errorf("%w: dispatch burst must not be negative, got %d", ErrInvalidConfiguration, c.DispatchBurst)
	}
	switch c.FaultPolicy {
	case "", FaultContinue, FaultAbort:
	default:
		return fmt.Errorf("%w: unknown fault policy %q", ErrInvalidConfiguration, c.FaultPolicy)
	}
	switch c.ProgramFormat {
	case "", program.FormatLine, program.FormatYAML:
	default:
		return fmt.Errorf("%w: unknown program format %q", ErrInvalidConfiguration, c.ProgramFormat)
	}
	return nil
}
