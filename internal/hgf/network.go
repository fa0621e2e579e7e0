package hgf

import (
	"fmt"
)

// Neighbor is one coupled node seen from a given side of an edge.
type Neighbor struct {
	ID     int
	Weight float64
}

// adjacency stores a node's couplings as index lists with parallel weight
// slices. Edges run child → parent; both endpoints carry the edge so that
// prediction (top-down) and update (bottom-up) passes read locally.
type adjacency struct {
	valueParents       []int
	valueParentWeights []float64
	valueChildren      []int
	valueChildWeights  []float64

	volatilityParents       []int
	volatilityParentWeights []float64
	volatilityChildren      []int
	volatilityChildWeights  []float64
}

// Network owns the node arena and the coupling structure. Nodes are
// addressed by dense integer identifiers assigned at creation and never
// reused. Belief state lives in a flat slice so the engine can snapshot it
// with a single copy.
//
// A Network is not safe for concurrent mutation; topology edits and steps
// follow a single-writer discipline.
type Network struct {
	params []nodeParams
	edges  []adjacency
	state  []NodeState

	// seq caches the traversal orders derived from topology; nil when an
	// edit has invalidated it.
	seq *updateSequence
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{}
}

// AddNode appends a node and returns its identifier.
func (n *Network) AddNode(cfg NodeConfig) (int, error) {
	if !ValidKind(string(cfg.Kind)) {
		return 0, fmt.Errorf("%w: unknown node kind %q", ErrInvalidTopology, cfg.Kind)
	}
	if cfg.Precision <= 0 {
		return 0, fmt.Errorf("%w: initial precision must be positive, got %v", ErrInvalidTopology, cfg.Precision)
	}
	if cfg.Kind == KindBinary && (cfg.Mean <= 0 || cfg.Mean >= 1) {
		return 0, fmt.Errorf("%w: binary initial belief must lie in (0,1), got %v", ErrInvalidTopology, cfg.Mean)
	}

	auto := 1.0
	if cfg.Kind == KindInput {
		auto = 0.0
	}
	if cfg.Autoconnection != nil {
		auto = *cfg.Autoconnection
	}

	id := len(n.params)
	n.params = append(n.params, nodeParams{
		kind:            cfg.Kind,
		tonicVolatility: cfg.TonicVolatility,
		tonicDrift:      cfg.TonicDrift,
		autoconnection:  auto,
		optional:        cfg.Optional,
	})
	n.edges = append(n.edges, adjacency{})
	n.state = append(n.state, newNodeState(cfg))
	n.seq = nil
	return id, nil
}

// AddEdge couples child → parent with the given kind and strength. The edge
// is rejected, leaving the network unchanged, when it would close a cycle or
// when the coupling is unsupported for either endpoint's kind.
func (n *Network) AddEdge(childID, parentID int, kind CouplingKind, weight float64) error {
	if err := n.checkID(childID); err != nil {
		return err
	}
	if err := n.checkID(parentID); err != nil {
		return err
	}
	if !ValidCouplingKind(string(kind)) {
		return fmt.Errorf("%w: unknown coupling kind %q", ErrInvalidTopology, kind)
	}
	if childID == parentID {
		return fmt.Errorf("%w: self-loop on node %d", ErrInvalidTopology, childID)
	}
	if n.params[parentID].kind == KindInput {
		return fmt.Errorf("%w: exogenous-input node %d cannot be a parent", ErrInvalidTopology, parentID)
	}
	if n.params[parentID].kind == KindBinary {
		return fmt.Errorf("%w: binary node %d cannot be a parent", ErrInvalidTopology, parentID)
	}
	if kind == CouplingVolatility {
		// Binary beliefs carry no volatility state on either end.
		if n.params[childID].kind == KindBinary {
			return fmt.Errorf("%w: volatility coupling on binary node %d", ErrInvalidTopology, childID)
		}
	}
	if n.hasEdge(childID, parentID, kind) {
		return fmt.Errorf("%w: duplicate %s edge %d -> %d", ErrInvalidTopology, kind, childID, parentID)
	}
	// The new edge closes a cycle iff the child is already reachable from
	// the parent along existing child→parent edges.
	if n.reachable(parentID, childID) {
		return fmt.Errorf("%w: edge %d -> %d closes a cycle", ErrCyclicGraph, childID, parentID)
	}

	child := &n.edges[childID]
	parent := &n.edges[parentID]
	switch kind {
	case CouplingValue:
		child.valueParents = append(child.valueParents, parentID)
		child.valueParentWeights = append(child.valueParentWeights, weight)
		parent.valueChildren = append(parent.valueChildren, childID)
		parent.valueChildWeights = append(parent.valueChildWeights, weight)
	case CouplingVolatility:
		child.volatilityParents = append(child.volatilityParents, parentID)
		child.volatilityParentWeights = append(child.volatilityParentWeights, weight)
		parent.volatilityChildren = append(parent.volatilityChildren, childID)
		parent.volatilityChildWeights = append(parent.volatilityChildWeights, weight)
	}
	n.seq = nil
	return nil
}

// Len returns the number of nodes.
func (n *Network) Len() int {
	return len(n.params)
}

// Kind returns a node's kind.
func (n *Network) Kind(id int) (Kind, error) {
	if err := n.checkID(id); err != nil {
		return "", err
	}
	return n.params[id].kind, nil
}

// State returns a copy of a node's current belief state.
func (n *Network) State(id int) (NodeState, error) {
	if err := n.checkID(id); err != nil {
		return NodeState{}, err
	}
	return n.state[id], nil
}

// Belief returns a node's posterior on its natural scale: the sigmoid of the
// latent mean for binary nodes, the mean itself otherwise.
func (n *Network) Belief(id int) (float64, error) {
	if err := n.checkID(id); err != nil {
		return 0, err
	}
	if n.params[id].kind == KindBinary {
		return sigmoid(n.state[id].Mean), nil
	}
	return n.state[id].Mean, nil
}

// Parents returns the coupled parents of a node for one coupling kind.
// The result is a copy; reads never mutate the network.
func (n *Network) Parents(id int, kind CouplingKind) ([]Neighbor, error) {
	if err := n.checkID(id); err != nil {
		return nil, err
	}
	adj := &n.edges[id]
	switch kind {
	case CouplingValue:
		return neighbors(adj.valueParents, adj.valueParentWeights), nil
	case CouplingVolatility:
		return neighbors(adj.volatilityParents, adj.volatilityParentWeights), nil
	}
	return nil, fmt.Errorf("%w: unknown coupling kind %q", ErrInvalidTopology, kind)
}

// Children returns the coupled children of a node for one coupling kind.
func (n *Network) Children(id int, kind CouplingKind) ([]Neighbor, error) {
	if err := n.checkID(id); err != nil {
		return nil, err
	}
	adj := &n.edges[id]
	switch kind {
	case CouplingValue:
		return neighbors(adj.valueChildren, adj.valueChildWeights), nil
	case CouplingVolatility:
		return neighbors(adj.volatilityChildren, adj.volatilityChildWeights), nil
	}
	return nil, fmt.Errorf("%w: unknown coupling kind %q", ErrInvalidTopology, kind)
}

// Observable reports whether a node ingests observations during the
// observing phase: exogenous inputs, and binary state nodes (which are
// observed directly through their Bernoulli link).
func (n *Network) Observable(id int) bool {
	switch n.params[id].kind {
	case KindInput, KindBinary:
		return true
	}
	return false
}

// Optional reports whether a node's observation may be omitted on a step.
func (n *Network) Optional(id int) bool {
	return n.params[id].optional
}

// ObservableNodes returns the identifiers of all observable nodes in
// ascending order.
func (n *Network) ObservableNodes() []int {
	var ids []int
	for id := range n.params {
		if n.Observable(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clone returns a deep copy sharing nothing with the receiver, so a caller
// can embed stepping in an outer optimization loop without threading state.
func (n *Network) Clone() *Network {
	c := &Network{
		params: append([]nodeParams(nil), n.params...),
		edges:  make([]adjacency, len(n.edges)),
		state:  append([]NodeState(nil), n.state...),
	}
	for i := range n.edges {
		src := &n.edges[i]
		c.edges[i] = adjacency{
			valueParents:            append([]int(nil), src.valueParents...),
			valueParentWeights:      append([]float64(nil), src.valueParentWeights...),
			valueChildren:           append([]int(nil), src.valueChildren...),
			valueChildWeights:       append([]float64(nil), src.valueChildWeights...),
			volatilityParents:       append([]int(nil), src.volatilityParents...),
			volatilityParentWeights: append([]float64(nil), src.volatilityParentWeights...),
			volatilityChildren:      append([]int(nil), src.volatilityChildren...),
			volatilityChildWeights:  append([]float64(nil), src.volatilityChildWeights...),
		}
	}
	return c
}

func (n *Network) checkID(id int) error {
	if id < 0 || id >= len(n.params) {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return nil
}

func (n *Network) hasEdge(childID, parentID int, kind CouplingKind) bool {
	adj := &n.edges[childID]
	list := adj.valueParents
	if kind == CouplingVolatility {
		list = adj.volatilityParents
	}
	for _, p := range list {
		if p == parentID {
			return true
		}
	}
	return false
}

// reachable reports whether `to` can be reached from `from` by following
// child→parent edges of either coupling kind.
func (n *Network) reachable(from, to int) bool {
	seen := make([]bool, len(n.params))
	stack := []int{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		adj := &n.edges[cur]
		stack = append(stack, adj.valueParents...)
		stack = append(stack, adj.volatilityParents...)
	}
	return false
}

// allParents returns value and volatility parents merged, for scheduling.
func (n *Network) allParents(id int) []int {
	adj := &n.edges[id]
	out := make([]int, 0, len(adj.valueParents)+len(adj.volatilityParents))
	out = append(out, adj.valueParents...)
	out = append(out, adj.volatilityParents...)
	return out
}

// allChildren returns value and volatility children merged, for scheduling.
func (n *Network) allChildren(id int) []int {
	adj := &n.edges[id]
	out := make([]int, 0, len(adj.valueChildren)+len(adj.volatilityChildren))
	out = append(out, adj.valueChildren...)
	out = append(out, adj.volatilityChildren...)
	return out
}

func neighbors(ids []int, weights []float64) []Neighbor {
	out := make([]Neighbor, len(ids))
	for i, id := range ids {
		out[i] = Neighbor{ID: id, Weight: weights[i]}
	}
	return out
}
