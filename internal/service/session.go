package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/velle-lab/gohgf/internal/hgf"
	"github.com/velle-lab/gohgf/internal/netdef"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound        = errors.New("model session not found")
	ErrDefinitionRequired     = errors.New("model definition is required")
	ErrObservationNodeUnknown = errors.New("observation references an undeclared node")
)

// session is one live filter: a definition, its engine, and a lock
// serializing steps against it.
type session struct {
	id        uuid.UUID
	def       *netdef.Definition
	engine    *hgf.Engine
	createdAt time.Time
	lastUsed  time.Time
	mu        sync.Mutex
}

// SessionInfo is the public snapshot of a session.
type SessionInfo struct {
	ID            uuid.UUID `json:"id"`
	Model         string    `json:"model"`
	Nodes         int       `json:"nodes"`
	Steps         int       `json:"steps"`
	TotalSurprise float64   `json:"total_surprise"`
	CreatedAt     time.Time `json:"created_at"`
	LastUsedAt    time.Time `json:"last_used_at"`
}

// NodeInfo describes one node of a session's network.
type NodeInfo struct {
	Name              string   `json:"name"`
	Kind              hgf.Kind `json:"kind"`
	Mean              float64  `json:"mean"`
	Precision         float64  `json:"precision"`
	ExpectedMean      float64  `json:"expected_mean"`
	ExpectedPrecision float64  `json:"expected_precision"`
	Belief            *float64 `json:"belief,omitempty"`
	Observable        bool     `json:"observable"`
}

// StepView is a step result with node identifiers mapped back to their
// declared names.
type StepView struct {
	Step     int                `json:"step"`
	Surprise float64            `json:"surprise"`
	PerNode  map[string]float64 `json:"per_node"`
	TimeStep float64            `json:"time_step"`
}

// SessionService owns the live model sessions. Sessions are created from
// HCL definitions, stepped with observations, and expired when idle.
type SessionService struct {
	opts   hgf.Options
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
}

func NewSessionService(opts hgf.Options, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		opts:     opts,
		logger:   logger,
		sessions: make(map[uuid.UUID]*session),
	}
}

// Create parses an HCL definition and starts a session for it.
func (s *SessionService) Create(src []byte, filename string) (SessionInfo, error) {
	if len(src) == 0 {
		return SessionInfo{}, ErrDefinitionRequired
	}
	if filename == "" {
		filename = "definition.hcl"
	}

	def, net, err := netdef.Parse(src, filename)
	if err != nil {
		return SessionInfo{}, err
	}

	opts := s.opts
	if def.Options.PrecisionFloor > 0 {
		opts.PrecisionFloor = def.Options.PrecisionFloor
	}

	now := time.Now()
	sess := &session{
		id:        uuid.New(),
		def:       def,
		engine:    hgf.NewEngine(net, opts, s.logger),
		createdAt: now,
		lastUsed:  now,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("model session created",
		zap.String("session_id", sess.id.String()),
		zap.String("model", def.Name),
		zap.Int("nodes", net.Len()))

	return s.info(sess), nil
}

// Get returns the snapshot of one session.
func (s *SessionService) Get(id uuid.UUID) (SessionInfo, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return SessionInfo{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.info(sess), nil
}

// List returns snapshots of every session, unordered.
func (s *SessionService) List() []SessionInfo {
	s.mu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		sess.mu.Lock()
		infos = append(infos, s.info(sess))
		sess.mu.Unlock()
	}
	return infos
}

// Delete removes a session.
func (s *SessionService) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.logger.Info("model session deleted", zap.String("session_id", id.String()))
	return nil
}

// Observe runs one filter step with named observations.
func (s *SessionService) Observe(id uuid.UUID, obs map[string]float64, timeStep float64) (StepView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return StepView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	mapped, err := sess.mapObservations(obs)
	if err != nil {
		return StepView{}, err
	}
	res, err := sess.engine.Step(mapped, timeStep)
	if err != nil {
		return StepView{}, err
	}
	sess.lastUsed = time.Now()
	return sess.view(res), nil
}

// Run feeds a whole observation series through a session, one committed
// step per entry. timeSteps may be nil for unit spacing.
func (s *SessionService) Run(ctx context.Context, id uuid.UUID, series []map[string]float64, timeSteps []float64) ([]StepView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	mapped := make([]hgf.Observations, len(series))
	for i, obs := range series {
		m, err := sess.mapObservations(obs)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		mapped[i] = m
	}

	results, err := sess.engine.Run(ctx, mapped, timeSteps)
	if err != nil {
		return nil, err
	}
	sess.lastUsed = time.Now()

	views := make([]StepView, len(results))
	for i, res := range results {
		views[i] = sess.view(res)
	}
	return views, nil
}

// Nodes describes the current beliefs of every node in a session.
func (s *SessionService) Nodes(id uuid.UUID) ([]NodeInfo, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	net := sess.engine.Network()
	infos := make([]NodeInfo, 0, net.Len())
	for _, name := range sess.def.Names() {
		nodeID, _ := sess.def.NodeID(name)
		st, err := net.State(nodeID)
		if err != nil {
			return nil, err
		}
		kind, err := net.Kind(nodeID)
		if err != nil {
			return nil, err
		}
		info := NodeInfo{
			Name:              name,
			Kind:              kind,
			Mean:              st.Mean,
			Precision:         st.Precision,
			ExpectedMean:      st.ExpectedMean,
			ExpectedPrecision: st.ExpectedPrecision,
			Observable:        net.Observable(nodeID),
		}
		if kind == hgf.KindBinary {
			belief, err := net.Belief(nodeID)
			if err != nil {
				return nil, err
			}
			info.Belief = &belief
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Trajectories returns every node's recorded belief history, keyed by
// declared name.
func (s *SessionService) Trajectories(id uuid.UUID) (map[string]hgf.Trajectory, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	out := make(map[string]hgf.Trajectory, len(sess.def.Names()))
	for _, name := range sess.def.Names() {
		nodeID, _ := sess.def.NodeID(name)
		traj, err := sess.engine.Trajectory(nodeID)
		if err != nil {
			return nil, err
		}
		out[name] = traj
	}
	return out, nil
}

// Surprises returns the committed per-step surprise series of a session,
// summed over observed nodes.
func (s *SessionService) Surprises(id uuid.UUID) ([]float64, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	net := sess.engine.Network()
	observable := net.ObservableNodes()
	if len(observable) == 0 {
		return nil, nil
	}

	total := make([]float64, sess.engine.Steps())
	for _, nodeID := range observable {
		traj, err := sess.engine.Trajectory(nodeID)
		if err != nil {
			return nil, err
		}
		for i, v := range traj.Surprise {
			if i < len(total) && !math.IsNaN(v) {
				total[i] += v
			}
		}
	}
	return total, nil
}

// ExpireIdle deletes sessions unused for longer than ttl, returning how
// many were removed.
func (s *SessionService) ExpireIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastUsed.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			removed++
			s.logger.Info("idle model session expired",
				zap.String("session_id", id.String()),
				zap.String("model", sess.def.Name))
		}
	}
	return removed
}

func (s *SessionService) lookup(id uuid.UUID) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *SessionService) info(sess *session) SessionInfo {
	return SessionInfo{
		ID:            sess.id,
		Model:         sess.def.Name,
		Nodes:         sess.engine.Network().Len(),
		Steps:         sess.engine.Steps(),
		TotalSurprise: sess.engine.TotalSurprise(),
		CreatedAt:     sess.createdAt,
		LastUsedAt:    sess.lastUsed,
	}
}

func (sess *session) mapObservations(obs map[string]float64) (hgf.Observations, error) {
	mapped := make(hgf.Observations, len(obs))
	for name, value := range obs {
		nodeID, ok := sess.def.NodeID(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrObservationNodeUnknown, name)
		}
		mapped[nodeID] = value
	}
	return mapped, nil
}

func (sess *session) view(res hgf.StepResult) StepView {
	perNode := make(map[string]float64, len(res.PerNode))
	for nodeID, surprise := range res.PerNode {
		perNode[sess.def.NodeName(nodeID)] = surprise
	}
	return StepView{
		Step:     res.Step,
		Surprise: res.Surprise,
		PerNode:  perNode,
		TimeStep: res.TimeStep,
	}
}
