package blocking

import (
	"math"

	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

// SaltedCartesianThreshold is the pair ceiling above which the training join
// on the preferred backend is salted rather than a plain cross join.
const SaltedCartesianThreshold = 1e4

// SamplingPlan is the Bernoulli proportion and expected row count of the
// training sample.
type SamplingPlan struct {
	Proportion float64
	SampleSize float64
	TotalNodes int64
}

// RowsNeededForPairs solves p = r(r-1)/2 for r.
func RowsNeededForPairs(pairs float64) float64 {
	return 0.5 * (math.Sqrt(8*pairs+1) + 1)
}

// PlanDedupe sizes the sample for a single population of totalNodes rows.
func PlanDedupe(totalNodes int64, maxPairs float64) (SamplingPlan, error) {
	if err := checkMaxPairs(maxPairs); err != nil {
		return SamplingPlan{}, err
	}
	if totalNodes <= 0 {
		return SamplingPlan{}, domain.ErrDegenerateInput([]int64{totalNodes}, maxPairs,
			"cannot sample pairs from an empty input")
	}
	size := RowsNeededForPairs(maxPairs)
	return clamp(SamplingPlan{
		Proportion: size / float64(totalNodes),
		SampleSize: size,
		TotalNodes: totalNodes,
	}), nil
}

// PlanLinkOnly sizes the sample for datasets of the given sizes, where only
// pairs across datasets count. Sampling every dataset at proportion p scales
// the cross pairs by p squared.
func PlanLinkOnly(counts []int64, maxPairs float64) (SamplingPlan, error) {
	if err := checkMaxPairs(maxPairs); err != nil {
		return SamplingPlan{}, err
	}
	totalLinks := TotalLinks(counts)
	var totalNodes int64
	for _, n := range counts {
		totalNodes += n
	}
	if totalNodes <= 0 || totalLinks <= 0 {
		return SamplingPlan{}, domain.ErrDegenerateInput(counts, maxPairs,
			"cannot sample cross-dataset pairs: %d rows form %g links", totalNodes, totalLinks)
	}
	p := math.Sqrt(maxPairs / totalLinks)
	return clamp(SamplingPlan{
		Proportion: p,
		SampleSize: p * float64(totalNodes),
		TotalNodes: totalNodes,
	}), nil
}

// Plan picks the sizing rule for the link type. counts holds one entry per
// source dataset; dedupe-style link types pool them.
func Plan(lt settings.LinkType, counts []int64, maxPairs float64) (SamplingPlan, error) {
	if lt == settings.LinkOnly {
		return PlanLinkOnly(counts, maxPairs)
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return PlanDedupe(total, maxPairs)
}

// TotalLinks is the number of pairs drawn from two different datasets.
func TotalLinks(counts []int64) float64 {
	var sum, sumSq float64
	for _, n := range counts {
		sum += float64(n)
		sumSq += float64(n) * float64(n)
	}
	return (sum*sum - sumSq) / 2
}

// Cartesian is the number of pairs a full comparison would score.
func Cartesian(lt settings.LinkType, counts []int64) (int64, error) {
	switch lt {
	case settings.LinkOnly:
		if len(counts) < 2 {
			return 0, domain.ErrValidation("link_only needs at least two datasets, got %d", len(counts))
		}
		return int64(TotalLinks(counts)), nil
	case settings.DedupeOnly:
		if len(counts) != 1 {
			return 0, domain.ErrValidation("dedupe_only expects one dataset, got %d", len(counts))
		}
	}
	var n int64
	for _, c := range counts {
		n += c
	}
	return n * (n - 1) / 2, nil
}

func checkMaxPairs(maxPairs float64) error {
	if math.IsNaN(maxPairs) || maxPairs < 0 || math.IsInf(maxPairs, 0) {
		return domain.ErrValidation("max pairs must be a finite non-negative number, got %g", maxPairs)
	}
	return nil
}

func clamp(p SamplingPlan) SamplingPlan {
	if p.Proportion >= 1 {
		p.Proportion = 1
	}
	if p.SampleSize > float64(p.TotalNodes) {
		p.SampleSize = float64(p.TotalNodes)
	}
	return p
}

// TrainingRules chooses the join used to form pairs from the training sample.
// The preferred backend salts an always-true rule across partitions once the
// pair ceiling is large; everywhere else the sample is small enough to cross
// join directly, which is expressed as no rules.
func TrainingRules(d dialect.Dialect, maxPairs float64, partitions int) []*Rule {
	if dialect.PrefersSaltedCartesian(d) && maxPairs > SaltedCartesianThreshold {
		return []*Rule{{SQL: "1=1", SaltingPartitions: partitions}}
	}
	return nil
}

// AnySalted reports whether any rule needs the salt column on its input.
func AnySalted(rules []*Rule) bool {
	for _, r := range rules {
		if r.IsSalted() {
			return true
		}
	}
	return false
}
