package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/mdcollate/internal/types"
)

// resetFlags restores defaults between Execute calls on the shared command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func corpus(t *testing.T) string {
	return writeFiles(t, map[string]string{
		"docs/a.md": "---\nc1: build\ntags: [go]\n---\n",
		"docs/b.md": "---\nc1: test\ntags: [go, cli]\n---\n",
		"docs/c.md": "# no frontmatter\n",
		"schema.yaml": `properties:
  commands:
    type: array
    x-frontmatter-part: true
  configs:
    type: array
    x-derived-from: "commands[].c1"
    x-derived-unique: true
`,
	})
}

func TestAggregate_Schema(t *testing.T) {
	dir := corpus(t)

	stdout, stderr, err := execute(t, "aggregate",
		"--schema", filepath.Join(dir, "schema.yaml"), filepath.Join(dir, "docs"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "warning:")
	assert.Contains(t, stderr, "c.md")

	var res struct {
		Mode    types.ProcessingMode `json:"mode"`
		Outputs []struct {
			Data map[string]any `json:"data"`
		} `json:"outputs"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, types.ModeArrayBased, res.Mode)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, []any{"build", "test"}, res.Outputs[0].Data["configs"])
}

func TestAggregate_Rules(t *testing.T) {
	dir := corpus(t)

	stdout, _, err := execute(t, "aggregate",
		"--rule", "allTags=tags", "--rule", "stats.docs=count(*)", "--unique", "--flatten",
		filepath.Join(dir, "docs"))
	require.NoError(t, err)

	var res struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, []any{"go", "cli"}, res.Data["allTags"])
	assert.Equal(t, float64(2), res.Data["stats.docs"])
}

func TestAggregate_StructuralErrorFails(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.md": "---\nx: 1\n---\n",
		"schema.json": `{"properties": {
			"a": {"type": "array", "x-frontmatter-part": true},
			"b": {"type": "array", "x-frontmatter-part": true}}}`,
	})

	_, _, err := execute(t, "aggregate", "--schema", filepath.Join(dir, "schema.json"), filepath.Join(dir, "a.md"))
	require.Error(t, err)
	assert.True(t, types.IsStructural(err))
}

func TestAggregate_RequiresMode(t *testing.T) {
	dir := corpus(t)
	_, _, err := execute(t, "aggregate", filepath.Join(dir, "docs"))
	assert.ErrorContains(t, err, "--schema or --rule")
}

func TestOrder(t *testing.T) {
	stdout, _, err := execute(t, "order", "x-derived-from", "x-frontmatter-part")
	require.NoError(t, err)

	var order struct {
		OrderedDirectives []string `json:"orderedDirectives"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &order))
	assert.Equal(t, []string{"x-frontmatter-part", "x-derived-from"}, order.OrderedDirectives)
}

func TestPersistAndListRuns(t *testing.T) {
	dir := corpus(t)
	dbURL := "sqlite://" + filepath.Join(dir, "runs.db")

	stdout, _, err := execute(t, "aggregate", "--db-url", dbURL, "--persist",
		"--schema", filepath.Join(dir, "schema.yaml"), filepath.Join(dir, "docs"))
	require.NoError(t, err)

	var res struct {
		RunID string `json:"runId"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	require.NotEmpty(t, res.RunID)

	stdout, _, err = execute(t, "runs", "list", "--db-url", dbURL)
	require.NoError(t, err)
	assert.Contains(t, stdout, res.RunID)

	stdout, _, err = execute(t, "runs", "show", "--db-url", dbURL, res.RunID)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"configs"`)

	stdout, _, err = execute(t, "migrate", "--status", "--db-url", dbURL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "001_aggregation_runs.sql")
}
