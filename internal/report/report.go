// Package report renders run reports and run history.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/compute/internal/model"
)

// Format selects how reports are rendered.
type Format string

// Supported formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a case-insensitive name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// document is the serialized form of a report.
type document struct {
	model.Report `yaml:",inline"`
	DurationMS   int64          `json:"duration_ms" yaml:"duration_ms"`
	Failures     []model.Result `json:"failures" yaml:"failures"`
}

// Write renders r to w in the given format.
func Write(w io.Writer, r *model.Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newDocument(r))
	case FormatYAML:
		return encodeYAML(w, newDocument(r))
	case FormatText, "":
		return writeText(w, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func newDocument(r *model.Report) document {
	failures := r.Failures()
	if failures == nil {
		failures = []model.Result{}
	}
	return document{
		Report:     *r,
		DurationMS: r.Duration.Milliseconds(),
		Failures:   failures,
	}
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeText(w io.Writer, r *model.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	state := "completed"
	switch {
	case r.Aborted:
		state = "aborted"
	case r.Degraded:
		state = "degraded"
	}

	fmt.Fprintf(tw, "run\t%s (%s)\n", r.RunID, state)
	fmt.Fprintf(tw, "duration\t%s\n", r.Duration.Round(time.Microsecond))
	fmt.Fprintf(tw, "workers\t%d (%d active)\n", r.Workers, r.ActiveWorkers)
	fmt.Fprintf(tw, "tasks\t%d total, %d succeeded, %d failed, %d not run\n",
		r.Total, r.Succeeded, r.Failed, r.NotRun)

	if len(r.PerWorker) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "WORKER\tTASKS")
		ids := make([]int, 0, len(r.PerWorker))
		for id := range r.PerWorker {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			fmt.Fprintf(tw, "%d\t%d\n", id, r.PerWorker[id])
		}
	}

	if failures := r.Failures(); len(failures) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "TASK\tKIND\tSTATUS\tREASON")
		for _, res := range failures {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", res.TaskID, res.Kind, res.Status, res.Reason)
		}
	}

	if len(r.Faults) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "FAULTED WORKER\tTASK\tREASON")
		for _, f := range r.Faults {
			fmt.Fprintf(tw, "%d\t%d\t%s\n", f.WorkerID, f.TaskID, f.Reason)
		}
	}

	return tw.Flush()
}

// WriteRuns renders a run history listing.
func WriteRuns(w io.Writer, runs []model.RunSummary, format Format) error {
	if runs == nil {
		runs = []model.RunSummary{}
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case FormatYAML:
		return encodeYAML(w, runs)
	case FormatText, "":
	default:
		return fmt.Errorf("unknown report format %q", format)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tWORKERS\tTOTAL\tOK\tFAILED\tNOT RUN\tDURATION\tABORTED")
	for _, rs := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%dms\t%t\n",
			rs.RunID, rs.StartedAt.UTC().Format(time.RFC3339), rs.Workers, rs.Total,
			rs.Succeeded, rs.Failed, rs.NotRun, rs.DurationMS, rs.Aborted)
	}
	return tw.Flush()
}
