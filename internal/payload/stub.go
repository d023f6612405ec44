package payload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stub payload kinds.
const (
	KindIncrement = "increment"
	KindDecrement = "decrement"
	KindSleep     = "sleep"
	KindSpin      = "spin"
	KindFail      = "fail"
	KindFault     = "fault"
	KindPanic     = "panic"
)

// Counter limits: a counter task finishes once its state leaves [LowerLimit, UpperLimit].
const (
	LowerLimit = -100
	UpperLimit = 100
)

// maxSpinRounds bounds the spin payload so a typo cannot pin a core for hours.
const maxSpinRounds = 1 << 30

// StubOptions tunes the stub payloads registered by NewDefaultRegistry.
type StubOptions struct {
	// StepDelay is slept between two counter steps.
	StepDelay time.Duration
}

// NewDefaultRegistry returns a registry with every stub payload registered.
func NewDefaultRegistry(opts StubOptions) *Registry {
	r := NewRegistry()
	r.Register(KindIncrement, counterFactory(KindIncrement, 1, opts.StepDelay))
	r.Register(KindDecrement, counterFactory(KindDecrement, -1, opts.StepDelay))
	r.Register(KindSleep, sleepFactory)
	r.Register(KindSpin, spinFactory)
	r.Register(KindFail, reasonFactory(KindFail, "task failed"))
	r.Register(KindFault, reasonFactory(KindFault, "execution environment failure"))
	r.Register(KindPanic, reasonFactory(KindPanic, "worker panic"))
	return r
}

// Counter steps an integer state by Step until it leaves the counter limits.
type Counter struct {
	kind  string
	Start int
	Step  int
	Delay time.Duration
}

// Finished reports whether state is outside the counter limits.
func Finished(state int) bool {
	return state < LowerLimit || state > UpperLimit
}

func (c *Counter) Kind() string { return c.kind }

func (c *Counter) Execute(ctx context.Context) (string, error) {
	state, steps := c.Start, 0
	for !Finished(state) {
		if c.Delay > 0 {
			select {
			case <-time.After(c.Delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		state += c.Step
		steps++
	}
	return fmt.Sprintf("state=%d steps=%d", state, steps), nil
}

func counterFactory(kind string, step int, delay time.Duration) Factory {
	return func(args []string) (Payload, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("want 1 argument (start value), got %d", len(args))
		}
		start, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid start value %q", args[0])
		}
		return &Counter{kind: kind, Start: start, Step: step, Delay: delay}, nil
	}
}

// Sleep blocks for a fixed duration.
type Sleep struct {
	D time.Duration
}

func (s *Sleep) Kind() string { return KindSleep }

func (s *Sleep) Execute(ctx context.Context) (string, error) {
	select {
	case <-time.After(s.D):
		return "slept " + s.D.String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func sleepFactory(args []string) (Payload, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("want 1 argument (duration), got %d", len(args))
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q", args[0])
	}
	if d < 0 {
		return nil, fmt.Errorf("negative duration %q", args[0])
	}
	return &Sleep{D: d}, nil
}

// Spin chains SHA-256 over its own output for a number of rounds.
type Spin struct {
	Rounds int
}

func (s *Spin) Kind() string { return KindSpin }

func (s *Spin) Execute(_ context.Context) (string, error) {
	sum := sha256.Sum256(nil)
	for i := 0; i < s.Rounds; i++ {
		sum = sha256.Sum256(sum[:])
	}
	return hex.EncodeToString(sum[:8]), nil
}

func spinFactory(args []string) (Payload, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("want 1 argument (rounds), got %d", len(args))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid rounds %q", args[0])
	}
	if n > maxSpinRounds {
		return nil, fmt.Errorf("rounds %d exceeds limit %d", n, maxSpinRounds)
	}
	return &Spin{Rounds: n}, nil
}

// Reason is a payload that always fails: with a task failure (fail), with a
// worker fault (fault) or by panicking (panic).
type Reason struct {
	kind string
	Text string
}

func (r *Reason) Kind() string { return r.kind }

func (r *Reason) Execute(_ context.Context) (string, error) {
	switch r.kind {
	case KindFault:
		return "", fmt.Errorf("%w: %s", ErrWorkerFault, r.Text)
	case KindPanic:
		panic(r.Text)
	default:
		return "", errors.New(r.Text)
	}
}

func reasonFactory(kind, fallback string) Factory {
	return func(args []string) (Payload, error) {
		text := strings.Join(args, " ")
		if text == "" {
			text = fallback
		}
		return &Reason{kind: kind, Text: text}, nil
	}
}
