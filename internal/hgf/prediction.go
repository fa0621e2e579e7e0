package hgf

import (
	"fmt"
	"math"
)

const (
	// volatilityClamp bounds total log-volatility before exponentiation.
	volatilityClamp = 80.0
	// minPredictedVolatility keeps the variance-growth term from
	// underflowing to zero.
	minPredictedVolatility = 1e-128
)

// predictNode computes a node's prior belief for the coming observation and
// stores it in ExpectedMean / ExpectedPrecision. Parents appear earlier in
// the prediction order, so their own expectations are already set.
func predictNode(n *Network, st []NodeState, id int, dt float64, opts Options) error {
	switch n.params[id].kind {
	case KindBinary:
		predictBinary(n, st, id, dt)
		return nil
	default:
		return predictContinuous(n, st, id, dt, opts)
	}
}

// predictContinuous implements the continuous-state prediction:
//
//	μ̂ = λ·μ + Δt·(ρ + Σ ψⱼ·μ̂ⱼ)          over value parents
//	Ω  = Δt·exp(ω + Σ κⱼ·μⱼ)             over volatility parents
//	π̂ = 1 / (1/π + Ω)
//
// Volatility parents combine additively in log-space; the effective
// precision γ = Ω·π̂ is kept for their posterior update. Exogenous inputs
// without volatility parents keep their own precision as the expected
// precision (it plays the role of observation noise).
func predictContinuous(n *Network, st []NodeState, id int, dt float64, opts Options) error {
	p := &n.params[id]
	adj := &n.edges[id]
	s := &st[id]

	if s.Precision < opts.PrecisionFloor {
		return fmt.Errorf("%w: node %d precision %v below floor %v",
			ErrNumericalInstability, id, s.Precision, opts.PrecisionFloor)
	}

	drift := p.tonicDrift
	for i, parent := range adj.valueParents {
		drift += adj.valueParentWeights[i] * st[parent].ExpectedMean
	}
	expectedMean := p.autoconnection*s.Mean + dt*drift

	logVol := p.tonicVolatility
	for i, parent := range adj.volatilityParents {
		logVol += adj.volatilityParentWeights[i] * st[parent].Mean
	}
	logVol = math.Max(-volatilityClamp, math.Min(volatilityClamp, logVol))
	predictedVolatility := math.Max(dt*math.Exp(logVol), minPredictedVolatility)

	expectedPrecision := 1.0 / (1.0/s.Precision + predictedVolatility)
	if !(expectedPrecision > 0) || math.IsInf(expectedPrecision, 0) || math.IsNaN(expectedPrecision) {
		return fmt.Errorf("%w: node %d expected precision %v",
			ErrNumericalInstability, id, expectedPrecision)
	}

	s.ExpectedMean = expectedMean
	s.effectivePrecision = predictedVolatility * expectedPrecision
	s.TimeStep = dt
	if p.kind == KindInput && len(adj.volatilityParents) == 0 {
		// Observation noise is static: the prediction keeps the node's
		// current precision.
		s.ExpectedPrecision = s.Precision
	} else {
		s.ExpectedPrecision = expectedPrecision
	}
	return nil
}

// predictBinary shifts the latent log-odds by its value parents and leaves
// the latent precision untouched; the belief-scale expectation is the
// sigmoid of the latent expected mean, so it stays inside (0,1).
func predictBinary(n *Network, st []NodeState, id int, dt float64) {
	p := &n.params[id]
	adj := &n.edges[id]
	s := &st[id]

	drift := p.tonicDrift
	for i, parent := range adj.valueParents {
		drift += adj.valueParentWeights[i] * st[parent].ExpectedMean
	}
	s.ExpectedMean = p.autoconnection*s.Mean + dt*drift
	s.ExpectedPrecision = s.Precision
	s.TimeStep = dt
}

// expectedProbability is the sigmoid-linked prior belief of a binary node.
func expectedProbability(s *NodeState) float64 {
	return sigmoid(s.ExpectedMean)
}
