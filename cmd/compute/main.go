// Command compute runs a program of stub tasks on a pool of worker
// goroutines and prints the run report.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seantiz/compute/internal/config"
)

var version = "dev"

// Exit codes.
const (
	exitOK            = 0
	exitFailure       = 1
	exitInvalidConfig = 2
	exitLoadFailure   = 3
)

// exitError carries the process exit code for err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

type app struct {
	v          *viper.Viper
	configFile string
}

func newRootCmd() (*cobra.Command, error) {
	a := &app{}
	root := &cobra.Command{
		Use:   "compute [flags] [program-file]",
		Short: "Run a program of tasks on a worker pool",
		Long: `compute loads a program of tasks from a file or stdin, executes them on a
fixed pool of workers and prints a report of every task outcome.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.run,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "YAML config file")
	v, err := config.BindFlags(flags)
	if err != nil {
		return nil, err
	}
	a.v = v

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(exitInvalidConfig, err)
	})
	root.AddCommand(a.historyCmd(), a.showCmd())
	return root, nil
}

// load resolves and validates the configuration.
func (a *app) load() (config.Config, error) {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return config.Config{}, withExitCode(exitInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, withExitCode(exitInvalidConfig, err)
	}
	return cfg, nil
}

func main() {
	root, err := newRootCmd()
	if err == nil {
		err = root.Execute()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "compute:", err)
	}
	os.Exit(exitCode(err))
}
