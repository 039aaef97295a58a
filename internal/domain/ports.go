package domain

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Record is one result row keyed by column name.
type Record map[string]any

// SQLStep is one queued statement whose result is addressable by later steps
// under OutputTableName.
type SQLStep struct {
	SQL             string
	OutputTableName string
}

// ResultTable is a materialised result held by the backend.
// Release must be called exactly once to free backend-side storage.
type ResultTable interface {
	TemplatedName() string
	PhysicalName() string
	Records(ctx context.Context) ([]Record, error)
	Release(ctx context.Context) error
}

// PipelineExecutor runs an ordered list of steps against a backend and
// materialises the last step's output. Inputs are addressable by their
// templated names inside the steps.
// Implemented by backend.Backend.
type PipelineExecutor interface {
	Execute(ctx context.Context, steps []SQLStep, inputs ...ResultTable) (ResultTable, error)
}

// Int64 reads key as an integer. Drivers disagree on the Go type of counts and
// sums, so every numeric representation is accepted.
func (r Record) Int64(key string) (int64, error) {
	v, ok := r[key]
	if !ok {
		return 0, ErrNotFound("column %q not in result", key)
	}
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(math.Round(n)), nil
	case float32:
		return int64(math.Round(float64(n))), nil
	case *big.Int:
		return n.Int64(), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, ErrValidation("column %q has non-numeric value of type %T", key, v)
}

// Float64 reads key as a float.
func (r Record) Float64(key string) (float64, error) {
	v, ok := r[key]
	if !ok {
		return 0, ErrNotFound("column %q not in result", key)
	}
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	case string:
		return strconv.ParseFloat(n, 64)
	}
	i, err := r.Int64(key)
	return float64(i), err
}

// String reads key as text.
func (r Record) String(key string) string {
	switch s := r[key].(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}
