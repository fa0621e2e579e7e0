package hgf

import "errors"

var (
	// ErrUnknownNode is returned when a node identifier does not exist in
	// the network.
	ErrUnknownNode = errors.New("hgf: unknown node")

	// ErrInvalidTopology is returned when an edit would produce a graph the
	// filter cannot run on: self-loops, unsupported couplings for a node
	// kind, or duplicate edges. The network is left in its last valid state.
	ErrInvalidTopology = errors.New("hgf: invalid topology")

	// ErrCyclicGraph is returned when an edge would close a directed cycle.
	ErrCyclicGraph = errors.New("hgf: cyclic graph")

	// ErrMissingObservation is returned by Step when a required observable
	// node has no value in the observation map. The step performs no
	// mutation.
	ErrMissingObservation = errors.New("hgf: missing observation")

	// ErrInvalidObservation is returned when an observation is supplied for
	// a node that cannot ingest one, or is outside the node's support
	// (binary nodes accept exactly 0 or 1).
	ErrInvalidObservation = errors.New("hgf: invalid observation")

	// ErrNumericalInstability is returned when a precision would become
	// non-positive or non-finite. The step is aborted and the prior state
	// preserved; callers may retry with a smaller time step or adjusted
	// volatility.
	ErrNumericalInstability = errors.New("hgf: numerical instability")
)
