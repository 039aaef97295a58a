package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

// renderTable writes rows as a left-aligned markdown table.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(tw.MakeAlign(len(headers), tw.AlignLeft)),
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func formatProbability(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'g', 6, 64)
}

// parameterRow is the JSON form of one parameter record.
type parameterRow struct {
	Comparison            string   `json:"comparison"`
	Label                 string   `json:"label"`
	ComparisonVectorValue int      `json:"comparison_vector_value"`
	MProbability          *float64 `json:"m_probability,omitempty"`
	UProbability          *float64 `json:"u_probability,omitempty"`
	MDescription          string   `json:"m_description,omitempty"`
	UDescription          string   `json:"u_description,omitempty"`
	BayesFactor           *float64 `json:"bayes_factor,omitempty"`
	MatchWeight           *float64 `json:"match_weight,omitempty"`
}

func parameterRows(s *settings.Settings) []parameterRow {
	records := s.ParameterRecords()
	out := make([]parameterRow, 0, len(records))
	for _, r := range records {
		if r.IsNullLevel {
			continue
		}
		out = append(out, parameterRow{
			Comparison:            r.ComparisonName,
			Label:                 r.Label,
			ComparisonVectorValue: r.ComparisonVectorValue,
			MProbability:          r.MProbability,
			UProbability:          r.UProbability,
			MDescription:          r.MDescription,
			UDescription:          r.UDescription,
			BayesFactor:           r.BayesFactor,
			MatchWeight:           r.Log2BayesFactor,
		})
	}
	return out
}

// renderParameters prints the model's parameter estimates.
func renderParameters(w io.Writer, s *settings.Settings) error {
	rows := parameterRows(s)
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{
			r.Comparison, r.Label, strconv.Itoa(r.ComparisonVectorValue),
			formatProbability(r.MProbability), formatProbability(r.UProbability),
			formatProbability(r.MatchWeight),
		}
	}
	if err := renderTable(w, []string{"comparison", "level", "gamma", "m", "u", "match weight"}, cells); err != nil {
		return err
	}
	if !s.IsFullyTrained() {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, color.YellowString(s.TrainingStatus()))
	}
	return nil
}

// renderWarning prints a sparse-training warning in colour.
func renderWarning(w io.Writer, warning *domain.SparseTrainingDataWarning) {
	if warning == nil {
		return
	}
	_, _ = fmt.Fprintln(w, color.YellowString("warning: %d level(s) were not observed and keep their previous values:", len(warning.Levels)))
	for _, l := range warning.Levels {
		_, _ = fmt.Fprintln(w, color.YellowString("  - %s", l))
	}
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
