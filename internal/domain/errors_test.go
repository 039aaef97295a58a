package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "capability",
			err:  ErrCapabilityUnsupported("postgres", "jaro"),
			want: `backend "postgres" does not support capability "jaro"`,
		},
		{
			name: "unknown dialect",
			err:  ErrUnknownDialect("oracle", []string{"duckdb", "spark"}),
			want: `unknown dialect "oracle" (valid dialects: duckdb, spark)`,
		},
		{
			name: "ambiguous dialect",
			err:  &UnknownDialectError{Name: "duckdb", Ambiguous: true},
			want: `dialect name "duckdb" is registered more than once`,
		},
		{
			name: "unsupported option",
			err:  ErrUnsupportedOption("seed", "sqlite", "remove the seed"),
			want: `option "seed" is not supported by backend "sqlite": remove the seed`,
		},
		{
			name: "degenerate input",
			err:  ErrDegenerateInput([]int64{0}, 10, "no rows"),
			want: "no rows (row counts [0], max pairs 10)",
		},
		{
			name: "sparse warning",
			err:  &SparseTrainingDataWarning{Levels: []string{"first_name: exact", "dob: else"}},
			want: "2 comparison level(s) were not observed in the training sample: first_name: exact; dob: else",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("compile level: %w", ErrCapabilityUnsupported("sqlite", "regex_extract"))

	var capErr *CapabilityUnsupportedError
	require.True(t, errors.As(wrapped, &capErr))
	assert.Equal(t, "sqlite", capErr.Backend)
	assert.Equal(t, "regex_extract", capErr.Capability)

	var optErr *UnsupportedOptionError
	assert.False(t, errors.As(wrapped, &optErr))
}
