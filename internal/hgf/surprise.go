package hgf

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// gaussianSurprise is the negative log-likelihood of an observation under a
// node's Gaussian predictive distribution N(μ̂, 1/π̂).
func gaussianSurprise(observation, expectedMean, expectedPrecision float64) float64 {
	dist := distuv.Normal{
		Mu:    expectedMean,
		Sigma: math.Sqrt(1.0 / expectedPrecision),
	}
	return -dist.LogProb(observation)
}

// bernoulliSurprise is the negative log-likelihood of a binary observation
// under the node's Bernoulli predictive distribution with parameter p̂.
func bernoulliSurprise(observation, expectedProbability float64) float64 {
	dist := distuv.Bernoulli{P: expectedProbability}
	return -dist.LogProb(observation)
}
