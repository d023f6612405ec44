package program

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/seantiz/compute/internal/model"
	"github.com/seantiz/compute/internal/payload"
)

// Format identifies a program encoding.
type Format string

// Supported program formats.
const (
	FormatLine Format = "line"
	FormatYAML Format = "yaml"
)

// CurrentVersion is the only program format version accepted.
const CurrentVersion = 1

// MaxLineBytes bounds a single record in the line format.
const MaxLineBytes = 64 * 1024

const versionDirective = "version"

// ParseFormat converts a format name into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "line", "text":
		return FormatLine, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown program format %q", s)
	}
}

// FormatForPath guesses the format from a file extension, falling back to
// the line format.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatLine
	}
}

// Load parses every record of r into tasks, resolving payloads through reg.
// An empty program yields no tasks and no error.
func Load(r io.Reader, reg *payload.Registry, format Format) ([]model.Task, error) {
	switch format {
	case FormatLine, "":
		return loadLines(r, reg)
	case FormatYAML:
		return loadYAML(r, reg)
	default:
		return nil, fmt.Errorf("unknown program format %q", format)
	}
}

func loadLines(r io.Reader, reg *payload.Registry) ([]model.Task, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxLineBytes)

	var (
		tasks []model.Task
		line  int
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)

		if fields[0] == versionDirective && len(tasks) == 0 {
			if err := checkVersion(fields[1:], line); err != nil {
				return nil, err
			}
			continue
		}

		t, err := newTask(reg, len(tasks), line, fields[0], fields[1:])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, malformed(len(tasks), line+1, "record exceeds %d bytes", MaxLineBytes)
		}
		return nil, fmt.Errorf("read program: %w", err)
	}
	return tasks, nil
}

func checkVersion(args []string, line int) error {
	if len(args) != 1 {
		return malformed(0, line, "version directive wants 1 argument, got %d", len(args))
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return malformed(0, line, "invalid version %q", args[0])
	}
	if v != CurrentVersion {
		return malformed(0, line, "unsupported version %d (want %d)", v, CurrentVersion)
	}
	return nil
}

func newTask(reg *payload.Registry, index, line int, kind string, args []string) (model.Task, error) {
	if kind == "" {
		return model.Task{}, malformed(index, line, "missing kind")
	}
	p, err := reg.Build(kind, args)
	if err != nil {
		return model.Task{}, malformed(index, line, "%v", err)
	}
	var argsCopy []string
	if len(args) > 0 {
		argsCopy = append([]string(nil), args...)
	}
	return model.Task{
		ID:      index,
		Kind:    kind,
		Args:    argsCopy,
		Line:    line,
		Payload: p,
	}, nil
}
