// Package pipeline queues named SQL steps and compiles them into a single
// WITH statement, so later steps can reference earlier outputs by name.
package pipeline

import (
	"fmt"
	"strings"

	"duck-link/internal/domain"
)

// Pipeline is an ordered queue of steps. The zero value is ready to use.
type Pipeline struct {
	steps []domain.SQLStep
}

// New returns a pipeline holding steps.
func New(steps ...domain.SQLStep) *Pipeline {
	return &Pipeline{steps: append([]domain.SQLStep(nil), steps...)}
}

// Enqueue appends a step producing outputTableName.
func (p *Pipeline) Enqueue(sql, outputTableName string) *Pipeline {
	p.steps = append(p.steps, domain.SQLStep{SQL: sql, OutputTableName: outputTableName})
	return p
}

// EnqueueSteps appends steps in order.
func (p *Pipeline) EnqueueSteps(steps ...domain.SQLStep) *Pipeline {
	p.steps = append(p.steps, steps...)
	return p
}

// Steps returns a copy of the queued steps.
func (p *Pipeline) Steps() []domain.SQLStep {
	return append([]domain.SQLStep(nil), p.steps...)
}

// Len returns the number of queued steps.
func (p *Pipeline) Len() int { return len(p.steps) }

// Input maps a templated table name used inside the steps to the physical
// table holding its rows.
type Input struct {
	TemplatedName string
	PhysicalName  string
}

// Compile renders steps as one statement. Inputs whose physical table differs
// from the templated name are aliased by a leading CTE. The last step is the
// statement's result and its name is returned.
func Compile(steps []domain.SQLStep, inputs ...Input) (string, string, error) {
	if len(steps) == 0 {
		return "", "", domain.ErrValidation("pipeline has no steps")
	}

	seen := make(map[string]bool, len(steps)+len(inputs))
	var ctes []string
	for _, in := range inputs {
		if in.TemplatedName == "" || in.TemplatedName == in.PhysicalName || seen[in.TemplatedName] {
			continue
		}
		seen[in.TemplatedName] = true
		ctes = append(ctes, fmt.Sprintf("%s as (\nselect * from %s\n)", in.TemplatedName, in.PhysicalName))
	}
	for i, s := range steps {
		if strings.TrimSpace(s.SQL) == "" {
			return "", "", domain.ErrValidation("pipeline step %d (%s) has no SQL", i, s.OutputTableName)
		}
		if s.OutputTableName == "" {
			return "", "", domain.ErrValidation("pipeline step %d has no output table name", i)
		}
		if seen[s.OutputTableName] {
			return "", "", domain.ErrValidation("pipeline output table %q is defined twice", s.OutputTableName)
		}
		seen[s.OutputTableName] = true
		ctes = append(ctes, fmt.Sprintf("%s as (\n%s\n)", s.OutputTableName, strings.TrimSpace(s.SQL)))
	}

	last := steps[len(steps)-1].OutputTableName
	return "WITH\n" + strings.Join(ctes, ",\n") + "\nselect * from " + last, last, nil
}
