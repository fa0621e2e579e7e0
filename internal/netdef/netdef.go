// Package netdef loads filter network definitions from HCL files.
//
// A definition declares the nodes and couplings of one model:
//
//	model "usdchf" {
//	  precision_floor = 1e-12
//	}
//
//	locals {
//	  noise = 1e4
//	}
//
//	node "u" {
//	  kind      = "exogenous-input"
//	  precision = local.noise
//	}
//
//	node "x1" {
//	  kind       = "continuous-state"
//	  mean       = 1.04
//	  precision  = 1e4
//	  volatility = -13
//	}
//
//	edge {
//	  child    = "u"
//	  parent   = "x1"
//	  coupling = "value"
//	}
//
// Blocks decode in file order, so edges may only reference nodes declared
// in the same file. Locals are evaluated first and exposed to node and edge
// attributes as local.<name>.
package netdef

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/velle-lab/gohgf/internal/hgf"
	"github.com/zclconf/go-cty/cty"
)

// Definition is the decoded metadata of one model file, alongside the
// network it builds.
type Definition struct {
	// Name is the model block's label.
	Name string
	// Options carries the engine tuning the file declared.
	Options hgf.Options

	ids   map[string]int
	names []string
}

// NodeID resolves a declared node name to its network identifier.
func (d *Definition) NodeID(name string) (int, bool) {
	id, ok := d.ids[name]
	return id, ok
}

// NodeName returns the declared name of a network identifier, or "".
func (d *Definition) NodeName(id int) string {
	if id < 0 || id >= len(d.names) {
		return ""
	}
	return d.names[id]
}

// Names lists the declared node names in declaration order.
func (d *Definition) Names() []string {
	return append([]string(nil), d.names...)
}

type localsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type localsSchema struct {
	Locals []*localsBlock `hcl:"locals,block"`
	Remain hcl.Body       `hcl:",remain"`
}

type modelBlock struct {
	Name           string   `hcl:"name,label"`
	PrecisionFloor *float64 `hcl:"precision_floor"`
}

type nodeBlock struct {
	Name            string   `hcl:"name,label"`
	Kind            string   `hcl:"kind"`
	Mean            *float64 `hcl:"mean"`
	Precision       float64  `hcl:"precision"`
	TonicVolatility *float64 `hcl:"volatility"`
	TonicDrift      *float64 `hcl:"drift"`
	Autoconnection  *float64 `hcl:"autoconnection"`
	Optional        *bool    `hcl:"optional"`
}

type edgeBlock struct {
	Child    string   `hcl:"child"`
	Parent   string   `hcl:"parent"`
	Coupling string   `hcl:"coupling"`
	Weight   *float64 `hcl:"weight"`
}

type fileSchema struct {
	Model *modelBlock  `hcl:"model,block"`
	Nodes []*nodeBlock `hcl:"node,block"`
	Edges []*edgeBlock `hcl:"edge,block"`
}

// Load reads and builds a model definition from an HCL file on disk.
func Load(path string) (*Definition, *hgf.Network, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("netdef: read %s: %w", path, err)
	}
	return Parse(src, path)
}

// Parse builds a model definition from HCL source. The filename is used in
// diagnostics only.
func Parse(src []byte, filename string) (*Definition, *hgf.Network, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("netdef: parse %s: %w", filename, diags)
	}

	var withLocals localsSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &withLocals); diags.HasErrors() {
		return nil, nil, fmt.Errorf("netdef: decode %s: %w", filename, diags)
	}
	ctx, err := evalContext(withLocals.Locals)
	if err != nil {
		return nil, nil, fmt.Errorf("netdef: %s: %w", filename, err)
	}

	var parsed fileSchema
	if diags := gohcl.DecodeBody(withLocals.Remain, ctx, &parsed); diags.HasErrors() {
		return nil, nil, fmt.Errorf("netdef: decode %s: %w", filename, diags)
	}
	if parsed.Model == nil {
		return nil, nil, fmt.Errorf("netdef: %s: missing model block", filename)
	}

	def := &Definition{
		Name: parsed.Model.Name,
		ids:  make(map[string]int, len(parsed.Nodes)),
	}
	if parsed.Model.PrecisionFloor != nil {
		def.Options.PrecisionFloor = *parsed.Model.PrecisionFloor
	}

	net := hgf.NewNetwork()
	for _, nb := range parsed.Nodes {
		if _, dup := def.ids[nb.Name]; dup {
			return nil, nil, fmt.Errorf("netdef: %s: duplicate node %q", filename, nb.Name)
		}
		cfg, err := nodeConfig(nb)
		if err != nil {
			return nil, nil, fmt.Errorf("netdef: %s: node %q: %w", filename, nb.Name, err)
		}
		id, err := net.AddNode(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("netdef: %s: node %q: %w", filename, nb.Name, err)
		}
		def.ids[nb.Name] = id
		def.names = append(def.names, nb.Name)
	}

	for _, eb := range parsed.Edges {
		child, ok := def.ids[eb.Child]
		if !ok {
			return nil, nil, fmt.Errorf("netdef: %s: edge references undeclared node %q", filename, eb.Child)
		}
		parent, ok := def.ids[eb.Parent]
		if !ok {
			return nil, nil, fmt.Errorf("netdef: %s: edge references undeclared node %q", filename, eb.Parent)
		}
		weight := 1.0
		if eb.Weight != nil {
			weight = *eb.Weight
		}
		if err := net.AddEdge(child, parent, hgf.CouplingKind(eb.Coupling), weight); err != nil {
			return nil, nil, fmt.Errorf("netdef: %s: edge %q -> %q: %w", filename, eb.Child, eb.Parent, err)
		}
	}

	return def, net, nil
}

func nodeConfig(nb *nodeBlock) (hgf.NodeConfig, error) {
	if !hgf.ValidKind(nb.Kind) {
		return hgf.NodeConfig{}, fmt.Errorf("unknown kind %q", nb.Kind)
	}
	kind := hgf.Kind(nb.Kind)
	cfg := hgf.NodeConfig{
		Kind:           kind,
		Precision:      nb.Precision,
		Autoconnection: nb.Autoconnection,
	}
	switch {
	case nb.Mean != nil:
		cfg.Mean = *nb.Mean
	case kind == hgf.KindBinary:
		cfg.Mean = 0.5
	}
	if nb.TonicVolatility != nil {
		cfg.TonicVolatility = *nb.TonicVolatility
	}
	if nb.TonicDrift != nil {
		cfg.TonicDrift = *nb.TonicDrift
	}
	if nb.Optional != nil {
		cfg.Optional = *nb.Optional
	}
	return cfg, nil
}

// evalContext evaluates every locals block into the local.<name> namespace.
// Locals are constants: they may not reference other locals.
func evalContext(blocks []*localsBlock) (*hcl.EvalContext, error) {
	values := map[string]cty.Value{}
	for _, b := range blocks {
		attrs, diags := b.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("locals: %w", diags)
		}
		for name, attr := range attrs {
			if _, dup := values[name]; dup {
				return nil, fmt.Errorf("locals: duplicate local %q", name)
			}
			v, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("local %q: %w", name, diags)
			}
			values[name] = v
		}
	}
	ctx := &hcl.EvalContext{Variables: map[string]cty.Value{}}
	if len(values) > 0 {
		ctx.Variables["local"] = cty.ObjectVal(values)
	}
	return ctx, nil
}
