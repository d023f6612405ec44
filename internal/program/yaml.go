package program

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/compute/internal/model"
	"github.com/seantiz/compute/internal/payload"
)

type yamlProgram struct {
	Version *int        `yaml:"version"`
	Tasks   []yaml.Node `yaml:"tasks"`
}

type yamlRecord struct {
	Kind string      `yaml:"kind"`
	Args []yaml.Node `yaml:"args"`
}

func loadYAML(r io.Reader, reg *payload.Registry) ([]model.Task, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc yamlProgram
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, malformed(-1, 0, "%v", err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, malformed(-1, 0, "%v", err)
		}
		return nil, malformed(-1, extra.Line, "program holds more than one document")
	}
	if doc.Version != nil && *doc.Version != CurrentVersion {
		return nil, malformed(0, 0, "unsupported version %d (want %d)", *doc.Version, CurrentVersion)
	}

	var tasks []model.Task
	for i := range doc.Tasks {
		node := &doc.Tasks[i]
		if err := checkRecordKeys(node); err != nil {
			return nil, malformed(i, node.Line, "%v", err)
		}
		var rec yamlRecord
		if err := node.Decode(&rec); err != nil {
			return nil, malformed(i, node.Line, "%v", err)
		}
		args := make([]string, 0, len(rec.Args))
		for _, a := range rec.Args {
			if a.Kind != yaml.ScalarNode {
				return nil, malformed(i, a.Line, "arguments must be scalars")
			}
			args = append(args, a.Value)
		}
		t, err := newTask(reg, i, node.Line, rec.Kind, args)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// checkRecordKeys rejects keys other than kind and args. Node.Decode does not
// honour the decoder's KnownFields setting.
func checkRecordKeys(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.New("record must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		switch key := node.Content[i].Value; key {
		case "kind", "args":
		default:
			return fmt.Errorf("unknown field %q", key)
		}
	}
	return nil
}
