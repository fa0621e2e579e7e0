package hgf

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

const DefaultPrecisionFloor = 1e-12

// Options tunes the numeric guards of the engine.
type Options struct {
	// PrecisionFloor is the smallest precision a division may see before
	// the step aborts with ErrNumericalInstability.
	PrecisionFloor float64
}

func (o Options) withDefaults() Options {
	if o.PrecisionFloor <= 0 {
		o.PrecisionFloor = DefaultPrecisionFloor
	}
	return o
}

// Observations maps observable node identifiers to the values ingested on
// one step.
type Observations map[int]float64

// StepResult reports the outcome of one committed step.
type StepResult struct {
	// Step is the zero-based index of the committed step.
	Step int `json:"step"`
	// Surprise is the total negative log-likelihood of this step's
	// observations under their predictive distributions.
	Surprise float64 `json:"surprise"`
	// PerNode holds each observed node's surprise contribution.
	PerNode map[int]float64 `json:"per_node"`
	// TimeStep is the elapsed time used for this step.
	TimeStep float64 `json:"time_step"`
}

// Trajectory is the recorded belief history of one node, one entry per
// committed step.
type Trajectory struct {
	Mean              []float64 `json:"mean"`
	Precision         []float64 `json:"precision"`
	ExpectedMean      []float64 `json:"expected_mean"`
	ExpectedPrecision []float64 `json:"expected_precision"`
	Surprise          []float64 `json:"surprise"`
}

// Engine drives the two-pass belief propagation over a network, one
// observation set at a time, and records per-node belief trajectories.
//
// A step is all-or-nothing: the passes run on a scratch copy of the belief
// state that is committed only on success, so every failure leaves the
// network exactly as it was. Given identical inputs, identical outputs: the
// engine holds no hidden state beyond the network and its trajectories.
type Engine struct {
	net    *Network
	opts   Options
	logger *zap.Logger

	phase         Phase
	steps         int
	totalSurprise float64
	trajectories  []Trajectory
}

// NewEngine wraps a network for stepping. A nil logger disables logging.
func NewEngine(net *Network, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		net:    net,
		opts:   opts.withDefaults(),
		logger: logger,
		phase:  PhaseIdle,
	}
}

// Network returns the underlying network.
func (e *Engine) Network() *Network {
	return e.net
}

// Phase reports the stage of the in-flight step, PhaseIdle between steps.
func (e *Engine) Phase() Phase {
	return e.phase
}

// Steps returns the number of committed steps.
func (e *Engine) Steps() int {
	return e.steps
}

// TotalSurprise returns the cumulative surprise over all committed steps.
func (e *Engine) TotalSurprise() float64 {
	return e.totalSurprise
}

// Step advances all beliefs by one observation set. Every non-optional
// observable node must appear in obs; optional nodes may be left out, in
// which case their branch propagates predictions without updating. The
// returned surprise is the sum of each observed node's negative
// log-likelihood under its predictive distribution.
func (e *Engine) Step(obs Observations, timeStep float64) (StepResult, error) {
	defer func() { e.phase = PhaseIdle }()

	if timeStep < 0 {
		return StepResult{}, fmt.Errorf("%w: time step must be non-negative, got %v", ErrInvalidObservation, timeStep)
	}
	seq, err := e.net.sequence()
	if err != nil {
		return StepResult{}, err
	}
	if err := e.validateObservations(obs); err != nil {
		return StepResult{}, err
	}

	// Scratch copy: commit only on success.
	scratch := append([]NodeState(nil), e.net.state...)
	for i := range scratch {
		scratch[i].resetPrediction()
	}

	e.phase = PhasePredicting
	for _, id := range seq.predictions {
		if err := predictNode(e.net, scratch, id, timeStep, e.opts); err != nil {
			return StepResult{}, err
		}
	}

	e.phase = PhaseObserving
	perNode := make(map[int]float64, len(obs))
	for _, id := range e.net.ObservableNodes() {
		value, ok := obs[id]
		if !ok {
			continue
		}
		surprise, err := e.observe(scratch, id, value)
		if err != nil {
			return StepResult{}, err
		}
		perNode[id] = surprise
	}

	e.phase = PhaseUpdating
	for _, step := range seq.updates {
		switch step.Op {
		case OpPosterior:
			err = updatePosterior(e.net, scratch, step.NodeID, e.opts)
		case OpPredictionError:
			err = emitPredictionErrors(e.net, scratch, step.NodeID, e.opts)
		}
		if err != nil {
			return StepResult{}, err
		}
	}

	e.phase = PhaseDone
	total := 0.0
	for _, s := range perNode {
		total += s
	}

	e.net.state = scratch
	e.record()
	result := StepResult{
		Step:     e.steps,
		Surprise: total,
		PerNode:  perNode,
		TimeStep: timeStep,
	}
	e.steps++
	e.totalSurprise += total

	e.logger.Debug("belief propagation step",
		zap.Int("step", result.Step),
		zap.Float64("time_step", timeStep),
		zap.Float64("surprise", total),
		zap.Int("observed_nodes", len(perNode)))

	return result, nil
}

// Run feeds a sequence of observation sets, one step each. Cancellation is
// honored between steps only; a failing step stops the run and returns the
// results committed so far alongside the error.
func (e *Engine) Run(ctx context.Context, series []Observations, timeSteps []float64) ([]StepResult, error) {
	if timeSteps != nil && len(timeSteps) != len(series) {
		return nil, fmt.Errorf("hgf: got %d time steps for %d observation sets", len(timeSteps), len(series))
	}
	results := make([]StepResult, 0, len(series))
	for i, obs := range series {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		dt := 1.0
		if timeSteps != nil {
			dt = timeSteps[i]
		}
		res, err := e.Step(obs, dt)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// InputData is the single-input convenience over Run: the network must have
// exactly one observable node, and each value becomes one step. A nil
// timeSteps defaults every interval to one.
func (e *Engine) InputData(ctx context.Context, values []float64, timeSteps []float64) ([]StepResult, error) {
	observable := e.net.ObservableNodes()
	if len(observable) != 1 {
		return nil, fmt.Errorf("hgf: InputData needs exactly one observable node, network has %d", len(observable))
	}
	series := make([]Observations, len(values))
	for i, v := range values {
		series[i] = Observations{observable[0]: v}
	}
	return e.Run(ctx, series, timeSteps)
}

// Trajectory returns a copy of one node's recorded belief history.
func (e *Engine) Trajectory(nodeID int) (Trajectory, error) {
	if err := e.net.checkID(nodeID); err != nil {
		return Trajectory{}, err
	}
	t := e.trajectories[nodeID]
	return Trajectory{
		Mean:              append([]float64(nil), t.Mean...),
		Precision:         append([]float64(nil), t.Precision...),
		ExpectedMean:      append([]float64(nil), t.ExpectedMean...),
		ExpectedPrecision: append([]float64(nil), t.ExpectedPrecision...),
		Surprise:          append([]float64(nil), t.Surprise...),
	}, nil
}

func (e *Engine) validateObservations(obs Observations) error {
	for id, value := range obs {
		if err := e.net.checkID(id); err != nil {
			return err
		}
		if !e.net.Observable(id) {
			return fmt.Errorf("%w: node %d does not accept observations", ErrInvalidObservation, id)
		}
		kind := e.net.params[id].kind
		if kind == KindBinary && value != 0 && value != 1 {
			return fmt.Errorf("%w: binary node %d requires 0 or 1, got %v", ErrInvalidObservation, id, value)
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%w: node %d observation %v", ErrInvalidObservation, id, value)
		}
	}
	for _, id := range e.net.ObservableNodes() {
		if _, ok := obs[id]; !ok && !e.net.Optional(id) {
			return fmt.Errorf("%w: node %d", ErrMissingObservation, id)
		}
	}
	return nil
}

// observe ingests one value into an observable node and returns the node's
// surprise under its predictive distribution.
func (e *Engine) observe(st []NodeState, id int, value float64) (float64, error) {
	s := &st[id]
	s.obs = value
	s.Observed = true
	s.informed = true

	var surprise float64
	switch e.net.params[id].kind {
	case KindBinary:
		surprise = bernoulliSurprise(value, expectedProbability(s))
	default:
		if s.ExpectedPrecision < e.opts.PrecisionFloor {
			return 0, fmt.Errorf("%w: node %d expected precision %v below floor %v",
				ErrNumericalInstability, id, s.ExpectedPrecision, e.opts.PrecisionFloor)
		}
		s.Mean = value
		surprise = gaussianSurprise(value, s.ExpectedMean, s.ExpectedPrecision)
	}
	s.Surprise = surprise
	return surprise, nil
}

// record appends the committed state to the per-node trajectories.
func (e *Engine) record() {
	if e.trajectories == nil {
		e.trajectories = make([]Trajectory, e.net.Len())
	}
	// Nodes added after the first step start their history late; pad so the
	// slices stay step-aligned.
	for len(e.trajectories) < e.net.Len() {
		pad := Trajectory{}
		for i := 0; i < e.steps; i++ {
			pad.Mean = append(pad.Mean, math.NaN())
			pad.Precision = append(pad.Precision, math.NaN())
			pad.ExpectedMean = append(pad.ExpectedMean, math.NaN())
			pad.ExpectedPrecision = append(pad.ExpectedPrecision, math.NaN())
			pad.Surprise = append(pad.Surprise, math.NaN())
		}
		e.trajectories = append(e.trajectories, pad)
	}
	for id := range e.net.state {
		s := &e.net.state[id]
		t := &e.trajectories[id]
		t.Mean = append(t.Mean, s.Mean)
		t.Precision = append(t.Precision, s.Precision)
		t.ExpectedMean = append(t.ExpectedMean, s.ExpectedMean)
		t.ExpectedPrecision = append(t.ExpectedPrecision, s.ExpectedPrecision)
		t.Surprise = append(t.Surprise, s.Surprise)
	}
}
