package settings

import (
	"math"
	"strconv"
)

// ProbToBayesFactor converts a probability to odds.
func ProbToBayesFactor(p float64) float64 {
	return p / (1 - p)
}

// BayesFactorToProb converts odds to a probability.
func BayesFactorToProb(bf float64) float64 {
	return bf / (1 + bf)
}

// BayesFactorToMatchWeight is log2 of the bayes factor.
func BayesFactorToMatchWeight(bf float64) float64 {
	return math.Log2(bf)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
