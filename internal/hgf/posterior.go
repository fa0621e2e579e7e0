package hgf

import (
	"fmt"
	"math"
)

// updatePosterior folds the prediction errors emitted by a node's children
// into its posterior belief. The scheduler guarantees every child has run
// its prediction-error step first. Only informed children contribute;
// when all children are silent the posterior equals the prediction and the
// node stays silent toward its own parents.
func updatePosterior(n *Network, st []NodeState, id int, opts Options) error {
	if n.params[id].kind == KindBinary {
		return updateBinaryPosterior(n, st, id, opts)
	}
	return updateContinuousPosterior(n, st, id, opts)
}

// updateContinuousPosterior implements the precision-weighted Bayesian
// update of a continuous state node:
//
//	π = π̂ + Σ ψᵢ²·π̂ᵢ                               over value children
//	μ = μ̂ + Σ (ψᵢ·π̂ᵢ/π)·δᵢ
//
// plus, for volatility children with effective precision γ and volatility
// prediction error Δ:
//
//	π += ½(κγ)² + (κγ)²Δ − ½κ²γΔ
//	μ += κ·γ·Δ / (2π)
//
// Binary value children contribute through the Bernoulli observation
// information p̂(1−p̂) instead of a Gaussian expected precision.
func updateContinuousPosterior(n *Network, st []NodeState, id int, opts Options) error {
	adj := &n.edges[id]
	s := &st[id]

	informed := false
	precision := s.ExpectedPrecision
	for i, childID := range adj.valueChildren {
		child := &st[childID]
		if !child.informed {
			continue
		}
		informed = true
		psi := adj.valueChildWeights[i]
		switch n.params[childID].kind {
		case KindBinary:
			phat := expectedProbability(child)
			precision += psi * psi * phat * (1 - phat)
		default:
			precision += psi * psi * child.ExpectedPrecision
		}
	}
	for i, childID := range adj.volatilityChildren {
		child := &st[childID]
		if !child.informed {
			continue
		}
		informed = true
		kappa := adj.volatilityChildWeights[i]
		gamma := child.effectivePrecision
		delta := child.volatilityPE
		kg := kappa * gamma
		precision += 0.5*kg*kg + kg*kg*delta - 0.5*kappa*kappa*gamma*delta
	}

	if !(precision > opts.PrecisionFloor) || math.IsInf(precision, 0) || math.IsNaN(precision) {
		return fmt.Errorf("%w: node %d posterior precision %v",
			ErrNumericalInstability, id, precision)
	}

	mean := s.ExpectedMean
	for i, childID := range adj.valueChildren {
		child := &st[childID]
		if !child.informed {
			continue
		}
		psi := adj.valueChildWeights[i]
		switch n.params[childID].kind {
		case KindBinary:
			mean += psi * child.valuePE / precision
		default:
			mean += (psi * child.ExpectedPrecision / precision) * child.valuePE
		}
	}
	for i, childID := range adj.volatilityChildren {
		child := &st[childID]
		if !child.informed {
			continue
		}
		kappa := adj.volatilityChildWeights[i]
		mean += kappa * child.effectivePrecision * child.volatilityPE / (2 * precision)
	}
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return fmt.Errorf("%w: node %d posterior mean %v", ErrNumericalInstability, id, mean)
	}

	s.Precision = precision
	s.Mean = mean
	s.informed = informed
	return nil
}

// updateBinaryPosterior applies the sigmoid-link Bayesian update on the
// latent log-odds. The Bernoulli likelihood contributes its Fisher
// information p̂(1−p̂) to the latent precision and the raw residual u − p̂ to
// the latent mean; the belief sigmoid(μ) therefore never leaves (0,1).
// Without an observation the posterior equals the prediction.
func updateBinaryPosterior(n *Network, st []NodeState, id int, opts Options) error {
	s := &st[id]
	if !s.Observed {
		s.Precision = s.ExpectedPrecision
		s.Mean = s.ExpectedMean
		return nil
	}

	phat := expectedProbability(s)
	precision := s.ExpectedPrecision + phat*(1-phat)
	if !(precision > opts.PrecisionFloor) || math.IsNaN(precision) {
		return fmt.Errorf("%w: node %d latent precision %v",
			ErrNumericalInstability, id, precision)
	}
	s.Precision = precision
	s.Mean = s.ExpectedMean + (s.obs-phat)/precision
	return nil
}
