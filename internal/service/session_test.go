package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/velle-lab/gohgf/internal/hgf"
	"go.uber.org/zap"
)

const chainDefinition = `
model "chain" {}

node "u" {
  kind      = "exogenous-input"
  precision = 1
}

node "x1" {
  kind       = "continuous-state"
  precision  = 1
  volatility = -4
}

edge {
  child    = "u"
  parent   = "x1"
  coupling = "value"
}
`

func newSessionService() *SessionService {
	return NewSessionService(hgf.Options{}, zap.NewNop())
}

func TestSessionService_CreateAndGet(t *testing.T) {
	svc := newSessionService()

	info, err := svc.Create([]byte(chainDefinition), "chain.hcl")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if info.Model != "chain" {
		t.Errorf("model = %q, want chain", info.Model)
	}
	if info.Nodes != 2 {
		t.Errorf("nodes = %d, want 2", info.Nodes)
	}
	if info.Steps != 0 {
		t.Errorf("steps = %d, want 0", info.Steps)
	}

	got, err := svc.Get(info.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != info.ID {
		t.Errorf("Get returned ID %s, want %s", got.ID, info.ID)
	}
}

func TestSessionService_CreateEmptyDefinition(t *testing.T) {
	svc := newSessionService()
	if _, err := svc.Create(nil, ""); !errors.Is(err, ErrDefinitionRequired) {
		t.Fatalf("expected ErrDefinitionRequired, got %v", err)
	}
}

func TestSessionService_CreateBadDefinition(t *testing.T) {
	svc := newSessionService()
	if _, err := svc.Create([]byte(`node "x" {}`), "bad.hcl"); err == nil {
		t.Fatal("expected error for invalid definition")
	}
	if len(svc.List()) != 0 {
		t.Fatal("failed create must not leave a session behind")
	}
}

func TestSessionService_Observe(t *testing.T) {
	svc := newSessionService()
	info, err := svc.Create([]byte(chainDefinition), "chain.hcl")
	if err != nil {
		t.Fatal(err)
	}

	view, err := svc.Observe(info.ID, map[string]float64{"u": 0.8}, 1)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if view.Step != 0 {
		t.Errorf("step = %d, want 0", view.Step)
	}
	if _, ok := view.PerNode["u"]; !ok {
		t.Errorf("per-node surprise missing entry for u: %v", view.PerNode)
	}

	got, _ := svc.Get(info.ID)
	if got.Steps != 1 {
		t.Errorf("steps after observe = %d, want 1", got.Steps)
	}
}

func TestSessionService_ObserveUnknownName(t *testing.T) {
	svc := newSessionService()
	info, _ := svc.Create([]byte(chainDefinition), "chain.hcl")

	_, err := svc.Observe(info.ID, map[string]float64{"ghost": 1}, 1)
	if !errors.Is(err, ErrObservationNodeUnknown) {
		t.Fatalf("expected ErrObservationNodeUnknown, got %v", err)
	}
}

func TestSessionService_ObserveMissingSession(t *testing.T) {
	svc := newSessionService()
	_, err := svc.Observe(uuid.New(), map[string]float64{"u": 1}, 1)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionService_RunAndTrajectories(t *testing.T) {
	svc := newSessionService()
	info, _ := svc.Create([]byte(chainDefinition), "chain.hcl")

	views, err := svc.Run(context.Background(), info.ID, []map[string]float64{
		{"u": 0.0}, {"u": 1.0}, {"u": 0.0},
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("got %d views, want 3", len(views))
	}

	trajectories, err := svc.Trajectories(info.ID)
	if err != nil {
		t.Fatalf("Trajectories: %v", err)
	}
	x1, ok := trajectories["x1"]
	if !ok {
		t.Fatalf("trajectories missing x1: %v", trajectories)
	}
	if len(x1.Mean) != 3 {
		t.Errorf("x1 trajectory length = %d, want 3", len(x1.Mean))
	}

	surprises, err := svc.Surprises(info.ID)
	if err != nil {
		t.Fatalf("Surprises: %v", err)
	}
	if len(surprises) != 3 {
		t.Fatalf("surprise series length = %d, want 3", len(surprises))
	}
	for i, v := range surprises {
		if v != views[i].Surprise {
			t.Errorf("surprise[%d] = %v, want %v", i, v, views[i].Surprise)
		}
	}
}

func TestSessionService_RunFailureKeepsState(t *testing.T) {
	svc := newSessionService()
	info, _ := svc.Create([]byte(chainDefinition), "chain.hcl")

	_, err := svc.Run(context.Background(), info.ID, []map[string]float64{
		{"u": 0.5}, {"ghost": 1.0},
	}, nil)
	if !errors.Is(err, ErrObservationNodeUnknown) {
		t.Fatalf("expected ErrObservationNodeUnknown, got %v", err)
	}

	got, _ := svc.Get(info.ID)
	if got.Steps != 0 {
		t.Errorf("steps after failed run = %d, want 0", got.Steps)
	}
}

func TestSessionService_Nodes(t *testing.T) {
	svc := newSessionService()
	info, _ := svc.Create([]byte(chainDefinition), "chain.hcl")

	nodes, err := svc.Nodes(info.ID)
	if err != nil {
		t.Fatalf("Nodes: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	if nodes[0].Name != "u" || !nodes[0].Observable {
		t.Errorf("first node = %+v, want observable u", nodes[0])
	}
	if nodes[1].Name != "x1" || nodes[1].Observable {
		t.Errorf("second node = %+v, want hidden x1", nodes[1])
	}
	if nodes[0].Belief != nil {
		t.Errorf("continuous node reported a belief: %v", *nodes[0].Belief)
	}
}

func TestSessionService_Delete(t *testing.T) {
	svc := newSessionService()
	info, _ := svc.Create([]byte(chainDefinition), "chain.hcl")

	if err := svc.Delete(info.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(info.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second delete: expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionService_ExpireIdle(t *testing.T) {
	svc := newSessionService()
	a, _ := svc.Create([]byte(chainDefinition), "chain.hcl")
	b, _ := svc.Create([]byte(chainDefinition), "chain.hcl")

	// Backdate one session's last use.
	svc.mu.Lock()
	svc.sessions[a.ID].lastUsed = time.Now().Add(-2 * time.Hour)
	svc.mu.Unlock()

	if removed := svc.ExpireIdle(time.Hour); removed != 1 {
		t.Fatalf("expired %d sessions, want 1", removed)
	}
	if _, err := svc.Get(a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expired session still resolvable: %v", err)
	}
	if _, err := svc.Get(b.ID); err != nil {
		t.Errorf("fresh session expired: %v", err)
	}
}
