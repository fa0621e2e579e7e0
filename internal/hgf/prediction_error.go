package hgf

import (
	"fmt"
	"math"
)

// emitPredictionErrors computes the precision-weighted errors a node sends
// upward once its own posterior is settled:
//
//	δ = (μ − μ̂) / n_value_parents
//	Δ = (π̂/π + π̂·δ² − 1) / n_volatility_parents
//
// The division spreads the error evenly when several parents share it.
// Observable leaves that received no observation this step stay silent:
// their errors are zero, so the branch above them propagates predictions
// without update.
func emitPredictionErrors(n *Network, st []NodeState, id int, opts Options) error {
	p := &n.params[id]
	s := &st[id]

	if !s.informed {
		s.valuePE = 0
		s.volatilityPE = 0
		return nil
	}

	if p.kind == KindBinary {
		// The residual on the belief scale; the parent folds in the
		// Bernoulli information itself.
		s.valuePE = s.obs - expectedProbability(s)
		s.volatilityPE = 0
		return nil
	}

	if s.Precision < opts.PrecisionFloor {
		return fmt.Errorf("%w: node %d precision %v below floor %v",
			ErrNumericalInstability, id, s.Precision, opts.PrecisionFloor)
	}

	adj := &n.edges[id]
	valuePE := s.Mean - s.ExpectedMean
	if nv := len(adj.valueParents); nv > 0 {
		valuePE /= float64(nv)
	}

	volatilityPE := s.ExpectedPrecision/s.Precision + s.ExpectedPrecision*valuePE*valuePE - 1
	if nv := len(adj.volatilityParents); nv > 0 {
		volatilityPE /= float64(nv)
	}

	if math.IsNaN(valuePE) || math.IsNaN(volatilityPE) {
		return fmt.Errorf("%w: node %d prediction error is NaN", ErrNumericalInstability, id)
	}

	s.valuePE = valuePE
	s.volatilityPE = volatilityPE
	return nil
}
