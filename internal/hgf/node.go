package hgf

import "math"

// Kind identifies the filtering behavior of a node. The set is closed:
// update equations dispatch on it exhaustively.
type Kind string

const (
	// KindContinuous is a continuous state node tracking a Gaussian belief
	// whose variance grows with elapsed time and volatility.
	KindContinuous Kind = "continuous-state"
	// KindBinary is a binary state node tracking a Bernoulli belief through
	// a sigmoid link over a latent Gaussian log-odds state.
	KindBinary Kind = "binary-state"
	// KindInput is an exogenous input node: a continuous leaf whose mean is
	// set directly by observations and whose precision is the
	// observation-noise precision.
	KindInput Kind = "exogenous-input"
)

func ValidKind(k string) bool {
	switch Kind(k) {
	case KindContinuous, KindBinary, KindInput:
		return true
	}
	return false
}

// CouplingKind identifies the two edge types of the network.
type CouplingKind string

const (
	// CouplingValue: the parent's mean shifts the child's predicted mean.
	CouplingValue CouplingKind = "value"
	// CouplingVolatility: the parent's mean, read as log-volatility,
	// modulates the child's predicted variance growth.
	CouplingVolatility CouplingKind = "volatility"
)

func ValidCouplingKind(k string) bool {
	switch CouplingKind(k) {
	case CouplingValue, CouplingVolatility:
		return true
	}
	return false
}

// NodeConfig carries the construction-time parameters of a node.
//
// For binary nodes Mean is the initial belief probability in (0,1); it is
// stored internally as log-odds. For all other kinds Mean is the initial
// posterior mean. Precision must be strictly positive; for input nodes it is
// the observation-noise precision.
type NodeConfig struct {
	Kind            Kind
	Mean            float64
	Precision       float64
	TonicVolatility float64
	TonicDrift      float64

	// Autoconnection overrides the autoconnection strength λ in the
	// expected-mean law μ̂ = λ·μ + Δt·drift. Defaults to 1 for state nodes
	// and 0 for input nodes.
	Autoconnection *float64

	// Optional marks an observable node whose observation may be omitted on
	// a given step; the branch then propagates predictions only.
	Optional bool
}

// nodeParams is the immutable per-node configuration held by the network.
type nodeParams struct {
	kind            Kind
	tonicVolatility float64
	tonicDrift      float64
	autoconnection  float64
	optional        bool
}

// NodeState holds the mutable belief variables of one node. The engine
// advances a scratch copy of the whole state slice and commits it only when
// a step succeeds, so a failed step never leaves partial updates behind.
type NodeState struct {
	Mean              float64
	Precision         float64
	ExpectedMean      float64
	ExpectedPrecision float64

	// Surprise is the node's negative log-likelihood contribution for the
	// last step, NaN when the node received no observation.
	Surprise float64

	// Observed reports whether the node ingested an observation this step.
	Observed bool

	// TimeStep is the elapsed time used by the last prediction.
	TimeStep float64

	// effectivePrecision is γ = Ω·π̂, the volatility-weighted share of the
	// predicted variance, consumed by volatility parents.
	effectivePrecision float64

	// valuePE and volatilityPE are the prediction errors emitted bottom-up
	// after the node's own update.
	valuePE      float64
	volatilityPE float64

	// obs is the raw value ingested during the observing phase, valid only
	// when Observed is set. Binary nodes need it separately from Mean,
	// which holds the latent log-odds.
	obs float64

	// informed reports whether any information reached this node during the
	// update pass: an observation for observable leaves, at least one
	// informed child otherwise. Uninformed nodes keep their prediction and
	// stay silent toward their parents, so a branch with a skipped optional
	// observation propagates predictions only.
	informed bool
}

func newNodeState(cfg NodeConfig) NodeState {
	mean := cfg.Mean
	if cfg.Kind == KindBinary {
		mean = logit(cfg.Mean)
	}
	return NodeState{
		Mean:              mean,
		Precision:         cfg.Precision,
		ExpectedMean:      mean,
		ExpectedPrecision: cfg.Precision,
		Surprise:          math.NaN(),
	}
}

// resetPrediction clears the per-step working values before a new
// prediction pass.
func (s *NodeState) resetPrediction() {
	s.Surprise = math.NaN()
	s.Observed = false
	s.effectivePrecision = 0
	s.valuePE = 0
	s.volatilityPE = 0
	s.obs = 0
	s.informed = false
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
