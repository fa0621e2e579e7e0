package netdef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velle-lab/gohgf/internal/hgf"
)

const threeLevelSrc = `
model "usdchf" {
  precision_floor = 1e-10
}

locals {
  noise = 1e4
}

node "u" {
  kind      = "exogenous-input"
  precision = local.noise
}

node "x1" {
  kind       = "continuous-state"
  mean       = 1.04
  precision  = local.noise
  volatility = -13
}

node "x2" {
  kind       = "continuous-state"
  mean       = 1
  precision  = 10
  volatility = -2
}

edge {
  child    = "u"
  parent   = "x1"
  coupling = "value"
}

edge {
  child    = "x1"
  parent   = "x2"
  coupling = "volatility"
  weight   = 0.5
}
`

func TestParseThreeLevelModel(t *testing.T) {
	def, net, err := Parse([]byte(threeLevelSrc), "usdchf.hcl")
	require.NoError(t, err)

	assert.Equal(t, "usdchf", def.Name)
	assert.Equal(t, 1e-10, def.Options.PrecisionFloor)
	assert.Equal(t, []string{"u", "x1", "x2"}, def.Names())
	assert.Equal(t, 3, net.Len())

	u, ok := def.NodeID("u")
	require.True(t, ok)
	x1, ok := def.NodeID("x1")
	require.True(t, ok)
	x2, ok := def.NodeID("x2")
	require.True(t, ok)
	assert.Equal(t, "x1", def.NodeName(x1))
	assert.Equal(t, "", def.NodeName(99))

	kind, err := net.Kind(u)
	require.NoError(t, err)
	assert.Equal(t, hgf.KindInput, kind)
	kind, err = net.Kind(x1)
	require.NoError(t, err)
	assert.Equal(t, hgf.KindContinuous, kind)

	st, err := net.State(u)
	require.NoError(t, err)
	assert.Equal(t, 1e4, st.Precision)

	st, err = net.State(x1)
	require.NoError(t, err)
	assert.Equal(t, 1.04, st.Mean)

	parents, err := net.Parents(u, hgf.CouplingValue)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, x1, parents[0].ID)
	assert.Equal(t, 1.0, parents[0].Weight, "weight defaults to 1")

	parents, err = net.Parents(x1, hgf.CouplingVolatility)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, x2, parents[0].ID)
	assert.Equal(t, 0.5, parents[0].Weight)
}

func TestParseBinaryDefaults(t *testing.T) {
	src := `
model "coin" {}

node "b" {
  kind      = "binary-state"
  precision = 1
}
`
	def, net, err := Parse([]byte(src), "coin.hcl")
	require.NoError(t, err)
	assert.Equal(t, 0.0, def.Options.PrecisionFloor, "unset floor left to engine default")

	b, ok := def.NodeID("b")
	require.True(t, ok)
	belief, err := net.Belief(b)
	require.NoError(t, err)
	assert.Equal(t, 0.5, belief)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"missing model block",
			`node "a" {
  kind      = "continuous-state"
  precision = 1
}`,
			"missing model block",
		},
		{
			"unknown kind",
			`model "m" {}
node "a" {
  kind      = "spline-state"
  precision = 1
}`,
			"unknown kind",
		},
		{
			"duplicate node",
			`model "m" {}
node "a" {
  kind      = "continuous-state"
  precision = 1
}
node "a" {
  kind      = "continuous-state"
  precision = 1
}`,
			"duplicate node",
		},
		{
			"undeclared edge endpoint",
			`model "m" {}
node "a" {
  kind      = "continuous-state"
  precision = 1
}
edge {
  child    = "a"
  parent   = "ghost"
  coupling = "value"
}`,
			"undeclared node",
		},
		{
			"cycle",
			`model "m" {}
node "a" {
  kind      = "continuous-state"
  precision = 1
}
node "b" {
  kind      = "continuous-state"
  precision = 1
}
edge {
  child    = "a"
  parent   = "b"
  coupling = "value"
}
edge {
  child    = "b"
  parent   = "a"
  coupling = "value"
}`,
			"cyclic graph",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.src), tt.name+".hcl")
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestLoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.hcl")
	require.NoError(t, os.WriteFile(path, []byte(threeLevelSrc), 0o644))

	def, net, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "usdchf", def.Name)
	assert.Equal(t, 3, net.Len())

	_, _, err = Load(path + ".missing")
	assert.Error(t, err)
}
