package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-link/internal/domain"
)

const peopleCSV = `unique_id,first_name,surname,dob
1,amy,smith,1990-01-01
2,amy,smith,1990-01-01
3,bob,jones,1985-05-05
4,rob,jones,1985-05-05
5,cid,brown,1970-07-07
6,cid,brown,1970-07-07
7,dan,green,2000-02-02
`

const modelYAML = `
link_type: dedupe_only
comparisons:
  - comparison_levels:
      - {type: "null", column: first_name}
      - {type: exact_match, column: first_name}
      - {type: else}
  - comparison_levels:
      - {type: "null", column: surname}
      - {type: exact_match, column: surname}
      - {type: else}
`

// runCLI executes the root command in an isolated environment and returns
// stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	for _, k := range []string{"LINK_BACKEND", "LINK_DSN", "LINK_MAX_PAIRS", "LINK_SEED", "LINK_SALTING_PARTITIONS", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	rootCmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env"), "--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFixtures(t *testing.T) (csvPath, modelPath string) {
	t.Helper()
	dir := t.TempDir()
	csvPath = filepath.Join(dir, "people.csv")
	modelPath = filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(csvPath, []byte(peopleCSV), 0o644))
	require.NoError(t, os.WriteFile(modelPath, []byte(modelYAML), 0o644))
	return csvPath, modelPath
}

func TestDialectsJSON(t *testing.T) {
	out, _, err := runCLI(t, "-o", "json", "dialects")
	require.NoError(t, err)

	var infos []dialectInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	assert.Equal(t, []string{"athena", "duckdb", "postgres", "spark", "sqlite"}, names)
	assert.Equal(t, "presto", infos[0].ParserName)
	assert.Contains(t, infos[1].Capabilities, "random_sample")
	assert.NotContains(t, infos[0].Capabilities, "random_sample")
}

func TestDialectsTable(t *testing.T) {
	out, _, err := runCLI(t, "dialects")
	require.NoError(t, err)
	assert.Contains(t, out, "| dialect")
	assert.Contains(t, out, "duckdb")
}

func TestCompileColumn(t *testing.T) {
	out, _, err := runCLI(t, "-o", "json", "compile-column", "first_name", "--lower", "--dialect", "duckdb")
	require.NoError(t, err)

	var got compiledColumn
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "duckdb", got.Dialect)
	assert.Equal(t, "first_name", got.OutputColumnName)
	assert.Equal(t, []string{"first_name"}, got.InputColumns)
	assert.Contains(t, strings.ToLower(got.NameL), "lower(")
	assert.Contains(t, got.NameL, "first_name_l")
	assert.Contains(t, got.NameR, "first_name_r")
}

func TestCompileColumnUnsupportedCapability(t *testing.T) {
	_, _, err := runCLI(t, "compile-column", "dob", "--try-parse-date", "--dialect", "athena")
	require.Error(t, err)
	assert.Equal(t, "capability_unsupported", errorKind(err))
}

func TestEstimateU(t *testing.T) {
	csvPath, modelPath := writeFixtures(t)
	out, _, err := runCLI(t, "-o", "json", "estimate-u", "-s", modelPath, "--csv", csvPath, "--max-pairs", "1e6", "--seed", "1")
	require.NoError(t, err)

	var got trainingOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.RunID)
	assert.Nil(t, got.Warning)
	var exact *parameterRow
	for i, p := range got.Parameters {
		if p.Comparison == "first_name" && p.ComparisonVectorValue == 1 {
			exact = &got.Parameters[i]
		}
	}
	require.NotNil(t, exact)
	require.NotNil(t, exact.UProbability)
	// 21 pairs, two of which share a first name.
	assert.InDelta(t, 2.0/21, *exact.UProbability, 1e-9)
	assert.Nil(t, exact.MProbability)
}

func TestEstimateEMTable(t *testing.T) {
	csvPath, modelPath := writeFixtures(t)
	out, _, err := runCLI(t, "estimate-em", "-s", modelPath, "--csv", csvPath, "--blocking-rule", "l.dob = r.dob")
	require.NoError(t, err)
	assert.Contains(t, out, "blocking_rule: l.dob = r.dob")
	assert.Contains(t, out, "not_trained: -")
	assert.Contains(t, out, "| comparison")
	assert.Contains(t, out, "Exact match on surname")
}

func TestEstimateEMNeedsBlockingRule(t *testing.T) {
	csvPath, modelPath := writeFixtures(t)
	_, _, err := runCLI(t, "estimate-em", "-s", modelPath, "--csv", csvPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocking-rule")
}

func TestCountComparisons(t *testing.T) {
	csvPath, _ := writeFixtures(t)
	out, _, err := runCLI(t, "-o", "json", "count-comparisons", "--csv", csvPath,
		"--rule", "l.surname = r.surname and l.first_name = r.first_name", "--post-filter")
	require.NoError(t, err)

	var got []ruleCount
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	// Block sizes 2, 1, 1, 2, 1 before the id ordering is applied.
	assert.Equal(t, int64(11), got[0].PreFilter)
	require.NotNil(t, got[0].PostFilter)
	assert.Equal(t, int64(2), *got[0].PostFilter)
}

func TestCountComparisonsCumulative(t *testing.T) {
	csvPath, _ := writeFixtures(t)
	out, _, err := runCLI(t, "-o", "json", "count-comparisons", "--csv", csvPath,
		"--rule", "l.surname = r.surname", "--rule", "l.first_name = r.first_name", "--cumulative")
	require.NoError(t, err)

	var rows []struct {
		RowCount       int64
		CumulativeRows int64
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].RowCount)
	assert.Equal(t, int64(0), rows[1].RowCount, "every first name match already shares a surname")
	assert.Equal(t, int64(3), rows[1].CumulativeRows)
}

func TestCSVNeedsDuckDB(t *testing.T) {
	csvPath, _ := writeFixtures(t)
	_, _, err := runCLI(t, "--backend", "sqlite", "count-comparisons", "--csv", csvPath, "--rule", "l.a = r.a")
	require.Error(t, err)
	assert.Equal(t, "validation", errorKind(err))
}

func TestUnsupportedOutputFormat(t *testing.T) {
	_, _, err := runCLI(t, "-o", "xml", "dialects")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestUnknownBackend(t *testing.T) {
	_, _, err := runCLI(t, "--backend", "oracle", "dialects")
	require.Error(t, err)
	assert.Equal(t, "unknown_dialect", errorKind(err))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "degenerate_input", errorKind(domain.ErrDegenerateInput([]int64{0}, 1, "empty")))
	assert.Equal(t, "", errorKind(os.ErrNotExist))
}

func TestCSVTableName(t *testing.T) {
	assert.Equal(t, "people_2024", csvTableName("/data/people-2024.csv"))
}

func TestRenderTableLeftAlignsHeaders(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderTable(&buf, []string{"comparison", "level"}, [][]string{{"first_name", "Exact match on first_name"}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "| comparison "), lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "| first_name "), lines[2])
}
