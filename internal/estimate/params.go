// Package estimate trains the m and u probabilities of a linkage model.
package estimate

import (
	"fmt"
	"strings"

	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

// Table names of the training stages.
const (
	PredictTable  = "__splink__df_predict"
	MUCountsTable = "__splink__m_u_counts"
)

// priorRecord is the synthetic output column carrying the average match
// probability of the scored pairs.
const priorRecord = "_probability_two_random_records_match"

// newParametersSQL sums match and non-match weight per gamma value of every
// comparison, plus the average match probability as a prior record.
func newParametersSQL(comparisons []*settings.Comparison, quote func(string) string) domain.SQLStep {
	parts := make([]string, 0, len(comparisons)+1)
	for _, c := range comparisons {
		gamma := quote(c.GammaColumn())
		parts = append(parts, fmt.Sprintf(
			"select %s as comparison_vector_value, sum(match_probability) as m_count, "+
				"sum(1 - match_probability) as u_count, '%s' as output_column_name "+
				"from %s group by %s",
			gamma, strings.ReplaceAll(c.OutputColumnName, "'", "''"), PredictTable, gamma))
	}
	parts = append(parts, fmt.Sprintf(
		"select 0 as comparison_vector_value, avg(match_probability) as m_count, "+
			"avg(1 - match_probability) as u_count, '%s' as output_column_name from %s",
		priorRecord, PredictTable))
	return domain.SQLStep{SQL: strings.Join(parts, "\nUNION ALL\n"), OutputTableName: MUCountsTable}
}

// parameter is one estimated level: its share of the comparison's m and u weight.
type parameter struct {
	comparison string
	cvv        int
	m, u       float64
}

// parameterEstimates holds the proportions of one training pass.
type parameterEstimates struct {
	levels map[string]map[int]parameter
	// prior is the average match probability, when the pass produced one.
	prior    float64
	hasPrior bool
}

func (p parameterEstimates) lookup(comparison string, cvv int) (parameter, bool) {
	got, ok := p.levels[comparison][cvv]
	return got, ok
}

// computeProportions turns the counts table into per-level proportions. Null
// level rows are dropped before normalising.
func computeProportions(records []domain.Record) (parameterEstimates, error) {
	type sums struct{ m, u float64 }
	totals := make(map[string]*sums)
	var rows []parameter
	out := parameterEstimates{levels: make(map[string]map[int]parameter)}

	for _, r := range records {
		name := r.String("output_column_name")
		m, err := r.Float64("m_count")
		if err != nil {
			return out, err
		}
		u, err := r.Float64("u_count")
		if err != nil {
			return out, err
		}
		if name == priorRecord {
			out.prior, out.hasPrior = m, true
			continue
		}
		cvv, err := r.Int64("comparison_vector_value")
		if err != nil {
			return out, err
		}
		if cvv == -1 {
			continue
		}
		rows = append(rows, parameter{comparison: name, cvv: int(cvv), m: m, u: u})
		if totals[name] == nil {
			totals[name] = &sums{}
		}
		totals[name].m += m
		totals[name].u += u
	}

	for _, p := range rows {
		t := totals[p.comparison]
		if t.m > 0 {
			p.m /= t.m
		}
		if t.u > 0 {
			p.u /= t.u
		}
		if out.levels[p.comparison] == nil {
			out.levels[p.comparison] = make(map[int]parameter)
		}
		out.levels[p.comparison][p.cvv] = p
	}
	return out, nil
}
