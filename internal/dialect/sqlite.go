package dialect

import (
	"fmt"

	"duck-link/internal/domain"
)

// sqlite has no native string distance functions; the sqlite backend registers
// them as UDFs on every connection.
type sqlite struct{ base }

func (s sqlite) StringDistanceFunction(m Metric) (string, error) {
	switch m {
	case Levenshtein:
		return "levenshtein", nil
	case DamerauLevenshtein:
		return "damerau_levenshtein", nil
	case Jaro:
		return "jaro_sim", nil
	case JaroWinkler:
		return "jaro_winkler", nil
	}
	return s.base.StringDistanceFunction(m)
}

func (s sqlite) Substring(sql string, start, length int) string {
	return fmt.Sprintf("SUBSTR(%s, %d, %d)", sql, start, length)
}

func (s sqlite) RandomSampleSQL(proportion, sampleSize float64, seed *int64) (string, error) {
	return orderByRandomSample(s.name, proportion, sampleSize, seed)
}

// InfinityExpression relies on sqlite reading an overflowing literal as Inf;
// casting the string 'infinity' yields 0.
func (s sqlite) InfinityExpression() (string, error) {
	return "9e999", nil
}

// orderByRandomSample is shared by backends whose RANDOM() cannot be seeded
// from the query text.
func orderByRandomSample(backend string, proportion, sampleSize float64, seed *int64) (string, error) {
	if isFullSample(proportion) {
		return "", nil
	}
	if seed != nil {
		return "", domain.ErrUnsupportedOption("seed", backend,
			"%s does not support seeds in random samples, remove the seed", backend)
	}
	return fmt.Sprintf("ORDER BY RANDOM() LIMIT %d", int64(sampleSize)), nil
}
