package program_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/compute/internal/program"
)

func TestLoadYAML(t *testing.T) {
	src := `version: 1
tasks:
  - kind: increment
    args: [0]
  - kind: sleep
    args: ["2ms"]
  - kind: fail
`
	tasks, err := program.Load(strings.NewReader(src), registry(), program.FormatYAML)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	assert.Equal(t, "increment", tasks[0].Kind)
	assert.Equal(t, []string{"0"}, tasks[0].Args)
	assert.Equal(t, 3, tasks[0].Line)
	assert.Equal(t, 1, tasks[1].ID)
	assert.Nil(t, tasks[2].Args)
}

func TestLoadYAML_Empty(t *testing.T) {
	for _, src := range []string{"", "version: 1\n", "tasks: []\n"} {
		tasks, err := program.Load(strings.NewReader(src), registry(), program.FormatYAML)
		assert.NoError(t, err, "source %q", src)
		assert.Empty(t, tasks, "source %q", src)
	}
}

func TestLoadYAML_MalformedRecordIndex(t *testing.T) {
	src := `tasks:
  - kind: increment
    args: ["1"]
  - kind: sleep
    args: ["1ms"]
  - args: ["3"]
  - kind: increment
    args: ["4"]
`
	_, err := program.Load(strings.NewReader(src), registry(), program.FormatYAML)

	mp := requireMalformed(t, err)
	assert.Equal(t, 2, mp.Index)
	assert.Contains(t, mp.Reason, "missing kind")
}

func TestLoadYAML_NonScalarArgument(t *testing.T) {
	src := `tasks:
  - kind: fail
    args: [[nested]]
`
	_, err := program.Load(strings.NewReader(src), registry(), program.FormatYAML)

	mp := requireMalformed(t, err)
	assert.Equal(t, 0, mp.Index)
}

func TestLoadYAML_BadVersion(t *testing.T) {
	_, err := program.Load(strings.NewReader("version: 3\ntasks: []\n"), registry(), program.FormatYAML)
	requireMalformed(t, err)
}

func TestLoadYAML_SyntaxError(t *testing.T) {
	_, err := program.Load(strings.NewReader("tasks: [\n"), registry(), program.FormatYAML)

	mp := requireMalformed(t, err)
	assert.Equal(t, -1, mp.Index)
}

func TestLoadYAML_UnknownRecordField(t *testing.T) {
	src := `tasks:
  - kind: increment
    args: ["1"]
  - kinds: increment
    args: ["2"]
`
	_, err := program.Load(strings.NewReader(src), registry(), program.FormatYAML)

	mp := requireMalformed(t, err)
	assert.Equal(t, 1, mp.Index)
	assert.Contains(t, mp.Reason, `unknown field "kinds"`)
}

func TestLoadYAML_UnknownTopLevelField(t *testing.T) {
	_, err := program.Load(strings.NewReader("version: 1\ntask:\n  - kind: fail\n"), registry(), program.FormatYAML)

	mp := requireMalformed(t, err)
	assert.Equal(t, -1, mp.Index)
}

func TestLoadYAML_ScalarRecord(t *testing.T) {
	_, err := program.Load(strings.NewReader("tasks:\n  - increment\n"), registry(), program.FormatYAML)

	mp := requireMalformed(t, err)
	assert.Equal(t, 0, mp.Index)
}

func TestLoadYAML_SecondDocument(t *testing.T) {
	src := `tasks:
  - kind: increment
    args: ["1"]
---
tasks:
  - kind: fail
`
	_, err := program.Load(strings.NewReader(src), registry(), program.FormatYAML)

	mp := requireMalformed(t, err)
	assert.Contains(t, mp.Reason, "more than one document")
}
