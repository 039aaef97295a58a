// Package dialect holds the fixed set of backend SQL profiles. Each profile turns
// backend-agnostic requests (string distance, date parsing, sampling, array
// handling) into SQL fragments for one engine, or reports the capability as
// unsupported.
package dialect

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"duck-link/internal/domain"
)

// Metric names a string comparison function.
type Metric string

// Supported string metrics.
const (
	Levenshtein        Metric = "levenshtein"
	DamerauLevenshtein Metric = "damerau_levenshtein"
	Jaro               Metric = "jaro"
	JaroWinkler        Metric = "jaro_winkler"
	Jaccard            Metric = "jaccard"
)

// Capability identifies one dialect feature for Supports and for error reporting.
type Capability string

// Capabilities that a profile may or may not implement.
const (
	CapLevenshtein        Capability = Capability(Levenshtein)
	CapDamerauLevenshtein Capability = Capability(DamerauLevenshtein)
	CapJaro               Capability = Capability(Jaro)
	CapJaroWinkler        Capability = Capability(JaroWinkler)
	CapJaccard            Capability = Capability(Jaccard)
	CapTryParseDate       Capability = "try_parse_date"
	CapRegexExtract       Capability = "regex_extract"
	CapRandomSample       Capability = "random_sample"
	CapExplodeArrays      Capability = "explode_arrays"
	CapArrayIntersect     Capability = "array_intersect"
	CapInfinity           Capability = "infinity"
)

// Dialect is a backend SQL profile. Implementations are stateless and shared
// process-wide; compare them by identity.
type Dialect interface {
	Name() string
	// ParserName is the dialect name used when parsing expressions for this backend.
	ParserName() string
	QuoteIdentifier(name string) string

	StringDistanceFunction(metric Metric) (string, error)
	DefaultDateFormat() string
	// TryParseDate returns an expression yielding NULL on unparseable input.
	// An empty format selects DefaultDateFormat.
	TryParseDate(column, format string) (string, error)
	Lower(sql string) string
	Substring(sql string, start, length int) string
	// RandomSampleSQL returns a clause appended after a FROM. It is empty when
	// proportion is 1.
	RandomSampleSQL(proportion, sampleSize float64, seed *int64) (string, error)
	ExplodeArraysSQL(table string, explode, retain []string) (string, error)
	ArrayIntersectSQL(left, right string, threshold int) (string, error)
	InfinityExpression() (string, error)

	regexExtractRaw(column, pattern string, group int) (string, error)
}

// RegexExtract returns the dialect's regex extraction of capture group from
// column, with an empty match normalised to NULL.
func RegexExtract(d Dialect, column, pattern string, group int) (string, error) {
	raw, err := d.regexExtractRaw(column, pattern, group)
	if err != nil {
		return "", err
	}
	return "NULLIF(" + raw + ", '')", nil
}

// Supports reports whether d implements capability c.
func Supports(d Dialect, c Capability) bool {
	var err error
	switch c {
	case CapLevenshtein, CapDamerauLevenshtein, CapJaro, CapJaroWinkler, CapJaccard:
		_, err = d.StringDistanceFunction(Metric(c))
	case CapTryParseDate:
		_, err = d.TryParseDate("x", "")
	case CapRegexExtract:
		_, err = d.regexExtractRaw("x", ".", 1)
	case CapRandomSample:
		_, err = d.RandomSampleSQL(0.5, 1, nil)
	case CapExplodeArrays:
		_, err = d.ExplodeArraysSQL("t", []string{"x"}, nil)
	case CapArrayIntersect:
		_, err = d.ArrayIntersectSQL("l", "r", 1)
	case CapInfinity:
		_, err = d.InfinityExpression()
	default:
		return false
	}
	var capErr *domain.CapabilityUnsupportedError
	return !errors.As(err, &capErr)
}

// base implements the shared defaults. Every capability without a concrete
// override reports CapabilityUnsupportedError.
type base struct {
	name string
}

func (b base) Name() string       { return b.name }
func (b base) ParserName() string { return b.name }

func (b base) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (b base) unsupported(c Capability) error {
	return domain.ErrCapabilityUnsupported(b.name, string(c))
}

func (b base) StringDistanceFunction(m Metric) (string, error) {
	return "", b.unsupported(Capability(m))
}

func (b base) DefaultDateFormat() string { return "%Y-%m-%d" }

func (b base) TryParseDate(string, string) (string, error) {
	return "", b.unsupported(CapTryParseDate)
}

func (b base) Lower(sql string) string { return "LOWER(" + sql + ")" }

func (b base) Substring(sql string, start, length int) string {
	return fmt.Sprintf("SUBSTRING(%s, %d, %d)", sql, start, length)
}

func (b base) RandomSampleSQL(float64, float64, *int64) (string, error) {
	return "", b.unsupported(CapRandomSample)
}

func (b base) ExplodeArraysSQL(string, []string, []string) (string, error) {
	return "", b.unsupported(CapExplodeArrays)
}

func (b base) ArrayIntersectSQL(string, string, int) (string, error) {
	return "", b.unsupported(CapArrayIntersect)
}

func (b base) InfinityExpression() (string, error) {
	return "", b.unsupported(CapInfinity)
}

func (b base) regexExtractRaw(string, string, int) (string, error) {
	return "", b.unsupported(CapRegexExtract)
}

// isFullSample reports whether proportion means "take every row".
func isFullSample(proportion float64) bool {
	return proportion >= 1 || math.Abs(proportion-1) < 1e-9
}

func formatPercent(proportion float64) string {
	return strconv.FormatFloat(proportion*100, 'f', -1, 64)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// explodeArrays builds nested selects, unnesting the last remaining column at
// each level and carrying it into the retained set of the inner query.
func explodeArrays(table string, explode, retain []string, unnest string) string {
	if len(explode) == 0 {
		return "select " + strings.Join(retain, ",") + " from " + table
	}
	last := explode[len(explode)-1]
	remaining := append([]string(nil), explode[:len(explode)-1]...)

	cols := make([]string, 0, 1+len(retain)+len(remaining))
	cols = append(cols, fmt.Sprintf("%s(%s) as %s", unnest, last, last))
	cols = append(cols, retain...)
	cols = append(cols, remaining...)

	innerRetain := append(append([]string(nil), retain...), last)
	return "select " + strings.Join(cols, ",") + "\nfrom (" + explodeArrays(table, remaining, innerRetain, unnest) + ")"
}

// Registry order matters: the first entry is the backend that prefers a salted
// cartesian join for large training samples.
var (
	DuckDB   Dialect = duckdb{base{"duckdb"}}
	Spark    Dialect = spark{base{"spark"}}
	SQLite   Dialect = sqlite{base{"sqlite"}}
	Postgres Dialect = postgres{base{"postgres"}}
	Athena   Dialect = athena{base{"athena"}}

	registry = mustBuildRegistry(DuckDB, Spark, SQLite, Postgres, Athena)
)

type entry struct {
	name    string
	dialect Dialect
}

func mustBuildRegistry(ds ...Dialect) []entry {
	out := make([]entry, 0, len(ds))
	seen := make(map[string]bool, len(ds))
	for _, d := range ds {
		if seen[d.Name()] {
			panic(&domain.UnknownDialectError{Name: d.Name(), Ambiguous: true})
		}
		seen[d.Name()] = true
		out = append(out, entry{name: d.Name(), dialect: d})
	}
	return out
}

// Resolve returns the profile registered under name.
func Resolve(name string) (Dialect, error) {
	for _, e := range registry {
		if e.name == name {
			return e.dialect, nil
		}
	}
	return nil, domain.ErrUnknownDialect(name, Names())
}

// Names returns the registered dialect names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, e := range registry {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// PrefersSaltedCartesian reports whether d is the first registered backend,
// which handles large in-memory joins well enough to train on a salted
// always-true blocking rule.
func PrefersSaltedCartesian(d Dialect) bool {
	return len(registry) > 0 && registry[0].dialect == d
}
