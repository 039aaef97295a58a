// Package linker ties a linkage model to an executor and its input tables,
// and prepares the stacked, term-frequency enriched input that training reads.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"duck-link/internal/blocking"
	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

// ConcatWithTFTable is the stacked input with term frequency columns attached.
const ConcatWithTFTable = "__splink__df_concat_with_tf"

// Options tune a Linker. Zero values select defaults.
type Options struct {
	// SaltingPartitions is the number of partitions a salted training join is
	// split into. Defaults to the number of CPUs.
	SaltingPartitions int
	Logger            *slog.Logger
}

// Linker is the context a training run works in.
type Linker struct {
	settings *settings.Settings
	exec     domain.PipelineExecutor
	inputs   []domain.ResultTable
	opts     Options
	logger   *slog.Logger
}

// New validates s against the inputs and returns a Linker.
func New(s *settings.Settings, exec domain.PipelineExecutor, inputs []domain.ResultTable, opts Options) (*Linker, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, domain.ErrValidation("linker needs an executor")
	}
	if len(inputs) == 0 {
		return nil, domain.ErrValidation("linker needs at least one input table")
	}
	if s.LinkType == settings.DedupeOnly && len(inputs) > 1 {
		return nil, domain.ErrValidation("dedupe_only takes a single input table, got %d", len(inputs))
	}
	if opts.SaltingPartitions <= 0 {
		opts.SaltingPartitions = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Linker{
		settings: s,
		exec:     exec,
		inputs:   append([]domain.ResultTable(nil), inputs...),
		opts:     opts,
		logger:   opts.Logger,
	}, nil
}

// Settings returns the live model. Training writes trained parameters here.
func (l *Linker) Settings() *settings.Settings { return l.settings }

// Dialect returns the model's SQL profile.
func (l *Linker) Dialect() dialect.Dialect { return l.settings.Dialect }

// Executor returns the pipeline executor.
func (l *Linker) Executor() domain.PipelineExecutor { return l.exec }

// Inputs returns the registered input tables.
func (l *Linker) Inputs() []domain.ResultTable {
	return append([]domain.ResultTable(nil), l.inputs...)
}

// Logger returns the linker's logger.
func (l *Linker) Logger() *slog.Logger { return l.logger }

// SaltingPartitions is the partition count for salted training joins.
func (l *Linker) SaltingPartitions() int { return l.opts.SaltingPartitions }

// SaltingRequired reports whether stacked input needs the salt column: always on
// the backend that salts its training join, otherwise only when a prediction
// rule is salted.
func (l *Linker) SaltingRequired() bool {
	if dialect.PrefersSaltedCartesian(l.Dialect()) {
		return true
	}
	for _, r := range l.settings.BlockingRulesToGeneratePredictions {
		if r.SaltingPartitions > 1 {
			return true
		}
	}
	return false
}

func (l *Linker) inputNames() []string {
	names := make([]string, len(l.inputs))
	for i, in := range l.inputs {
		names[i] = in.TemplatedName()
	}
	return names
}

// ConcatWithTFSteps stacks the inputs, builds one frequency table per term
// frequency column, and joins the frequencies back onto each row.
func (l *Linker) ConcatWithTFSteps() ([]domain.SQLStep, error) {
	src := ""
	if l.settings.SourceDatasetColumnRequired() {
		src = l.settings.SourceDatasetColumnName
	}
	concat, err := blocking.ConcatSQL(l.Dialect(), l.inputNames(), src, l.SaltingRequired())
	if err != nil {
		return nil, err
	}
	steps := []domain.SQLStep{concat}

	tfCols := l.settings.TermFrequencyColumns()
	if len(tfCols) == 0 {
		return append(steps, domain.SQLStep{
			SQL:             "select * from " + blocking.ConcatTable,
			OutputTableName: ConcatWithTFTable,
		}), nil
	}

	q := l.Dialect().QuoteIdentifier
	selects := []string{blocking.ConcatTable + ".*"}
	var joins []string
	for _, col := range tfCols {
		table := TermFrequencyTable(col)
		steps = append(steps, TermFrequencySQL(l.Dialect(), col, blocking.ConcatTable))
		selects = append(selects, fmt.Sprintf("%s.%s", table, q("tf_"+col)))
		joins = append(joins, fmt.Sprintf("left join %s on %s.%s = %s.%s",
			table, blocking.ConcatTable, q(col), table, q(col)))
	}
	return append(steps, domain.SQLStep{
		SQL: fmt.Sprintf("select %s from %s %s",
			strings.Join(selects, ", "), blocking.ConcatTable, strings.Join(joins, " ")),
		OutputTableName: ConcatWithTFTable,
	}), nil
}

// TermFrequencyTable names the frequency table of col.
func TermFrequencyTable(col string) string { return "__splink__df_tf_" + col }

// TermFrequencySQL computes the share of non-null rows of input holding each
// value of col.
func TermFrequencySQL(d dialect.Dialect, col, input string) domain.SQLStep {
	q := d.QuoteIdentifier
	return domain.SQLStep{
		SQL: fmt.Sprintf(
			"select %s, cast(count(*) as float8) / (select count(%s) as total from %s) as %s from %s where %s is not null group by %s",
			q(col), q(col), input, q("tf_"+col), input, q(col), q(col)),
		OutputTableName: TermFrequencyTable(col),
	}
}

// InitialiseConcatWithTF materialises ConcatWithTFTable. The caller releases it.
func (l *Linker) InitialiseConcatWithTF(ctx context.Context) (domain.ResultTable, error) {
	steps, err := l.ConcatWithTFSteps()
	if err != nil {
		return nil, err
	}
	res, err := l.exec.Execute(ctx, steps, l.inputs...)
	if err != nil {
		return nil, fmt.Errorf("stack input tables: %w", err)
	}
	return res, nil
}

// Analyzer returns a blocking analyzer over the linker's inputs.
func (l *Linker) Analyzer(maxRowsLimit float64) *blocking.Analyzer {
	return &blocking.Analyzer{
		Executor:                l.exec,
		Dialect:                 l.Dialect(),
		LinkType:                l.settings.LinkType,
		Inputs:                  l.Inputs(),
		UniqueIDColumnName:      l.settings.UniqueIDColumnName,
		SourceDatasetColumnName: l.settings.SourceDatasetColumnName,
		MaxRowsLimit:            maxRowsLimit,
		Logger:                  l.logger,
	}
}
