package hgf

import "fmt"

// Phase is the stage the engine is in while advancing one time step.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePredicting Phase = "predicting"
	PhaseObserving  Phase = "observing"
	PhaseUpdating   Phase = "updating"
	PhaseDone       Phase = "done"
)

// UpdateOp distinguishes the two kinds of bottom-up steps.
type UpdateOp string

const (
	// OpPosterior folds the prediction errors received from children into
	// the node's posterior mean and precision.
	OpPosterior UpdateOp = "posterior"
	// OpPredictionError computes the errors the node sends to its parents.
	OpPredictionError UpdateOp = "prediction-error"
)

// UpdateStep is one scheduled bottom-up operation.
type UpdateStep struct {
	NodeID int
	Op     UpdateOp
}

// updateSequence is the cached traversal plan for one topology: a top-down
// prediction order (parents before children) and a bottom-up update order
// interleaving posterior updates with prediction-error emissions.
type updateSequence struct {
	predictions []int
	updates     []UpdateStep
}

// sequence returns the cached traversal plan, rebuilding it after a
// topology edit. Repeated calls on an unmodified network return the same
// orderings.
func (n *Network) sequence() (*updateSequence, error) {
	if n.seq != nil {
		return n.seq, nil
	}
	predictions, err := n.predictionOrder()
	if err != nil {
		return nil, err
	}
	updates, err := n.updateOrder()
	if err != nil {
		return nil, err
	}
	n.seq = &updateSequence{predictions: predictions, updates: updates}
	return n.seq, nil
}

// PredictionOrder returns the top-down pass ordering: every node appears
// after all of its parents, ties broken by ascending identifier.
func (n *Network) PredictionOrder() ([]int, error) {
	seq, err := n.sequence()
	if err != nil {
		return nil, err
	}
	return append([]int(nil), seq.predictions...), nil
}

// UpdateOrder returns the bottom-up pass ordering. A node's posterior runs
// once every child has emitted its prediction errors; a node emits
// prediction errors once its own posterior is settled. Observable leaves
// skip no steps here; whether they fire depends on the step's observations.
func (n *Network) UpdateOrder() ([]UpdateStep, error) {
	seq, err := n.sequence()
	if err != nil {
		return nil, err
	}
	return append([]UpdateStep(nil), seq.updates...), nil
}

func (n *Network) predictionOrder() ([]int, error) {
	remaining := make(map[int]bool, len(n.params))
	for id := range n.params {
		remaining[id] = true
	}

	order := make([]int, 0, len(n.params))
	for len(remaining) > 0 {
		progressed := false
		for id := range n.params {
			if !remaining[id] {
				continue
			}
			ready := true
			for _, p := range n.allParents(id) {
				if remaining[p] {
					ready = false
					break
				}
			}
			if ready {
				order = append(order, id)
				delete(remaining, id)
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("%w: no parents-first ordering exists", ErrCyclicGraph)
		}
	}
	return order, nil
}

func (n *Network) updateOrder() ([]UpdateStep, error) {
	// Exogenous inputs take their posterior directly from the observation,
	// so only state nodes get a posterior step.
	pendingPosterior := make(map[int]bool)
	pendingError := make(map[int]bool, len(n.params))
	for id := range n.params {
		pendingError[id] = true
		if n.params[id].kind != KindInput {
			pendingPosterior[id] = true
		}
	}

	var steps []UpdateStep
	for len(pendingPosterior) > 0 || len(pendingError) > 0 {
		progressed := false

		for id := range n.params {
			if !pendingPosterior[id] {
				continue
			}
			ready := true
			for _, c := range n.allChildren(id) {
				if pendingError[c] {
					ready = false
					break
				}
			}
			if ready {
				steps = append(steps, UpdateStep{NodeID: id, Op: OpPosterior})
				delete(pendingPosterior, id)
				progressed = true
			}
		}

		for id := range n.params {
			if !pendingError[id] {
				continue
			}
			if pendingPosterior[id] {
				continue
			}
			// Leaves without parents have nobody to message.
			if len(n.allParents(id)) > 0 {
				steps = append(steps, UpdateStep{NodeID: id, Op: OpPredictionError})
			}
			delete(pendingError, id)
			progressed = true
		}

		if !progressed {
			return nil, fmt.Errorf("%w: no children-first ordering exists", ErrCyclicGraph)
		}
	}
	return steps, nil
}
