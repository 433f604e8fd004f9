package loader

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rendis/flowplan/pkg/schema"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// hclWorkflow is the top-level layout of an HCL workflow document:
//
//	name        = "intake"
//	entry_point = "input"
//
//	node "input" {
//	  type   = "input"
//	  config = { schema = "order" }
//	}
//
//	edge "e1" {
//	  source = "input"
//	  target = "classify"
//	}
type hclWorkflow struct {
	Name       string     `hcl:"name,optional"`
	EntryPoint string     `hcl:"entry_point"`
	Nodes      []*hclNode `hcl:"node,block"`
	Edges      []*hclEdge `hcl:"edge,block"`
}

type hclNode struct {
	ID       string       `hcl:"id,label"`
	Type     string       `hcl:"type"`
	Name     string       `hcl:"name,optional"`
	Config   cty.Value    `hcl:"config,optional"`
	Position *hclPosition `hcl:"position,block"`
	OnError  *hclOnError  `hcl:"on_error,block"`
}

type hclPosition struct {
	X float64 `hcl:"x,optional"`
	Y float64 `hcl:"y,optional"`
}

type hclOnError struct {
	Strategy string `hcl:"strategy"`
	Target   string `hcl:"target,optional"`
}

type hclEdge struct {
	ID           string `hcl:"id,label"`
	Source       string `hcl:"source"`
	Target       string `hcl:"target"`
	SourceHandle string `hcl:"source_handle,optional"`
	TargetHandle string `hcl:"target_handle,optional"`
}

func (l *Loader) loadHCL(data []byte, filename string) (*schema.WorkflowDefinition, error) {
	if filename == "" {
		filename = "workflow.hcl"
	}
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, diagError("parse", filename, diags)
	}

	var doc hclWorkflow
	if diags := gohcl.DecodeBody(file.Body, nil, &doc); diags.HasErrors() {
		return nil, diagError("decode", filename, diags)
	}

	def, err := doc.definition()
	if err != nil {
		return nil, err
	}

	// Run the converted document through the same schema as JSON input.
	encoded, err := json.Marshal(def)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidDocument, "encode HCL workflow").WithCause(err)
	}
	if err := l.validator.ValidateJSON(encoded); err != nil {
		return nil, err
	}
	return def, nil
}

func (w *hclWorkflow) definition() (*schema.WorkflowDefinition, error) {
	def := &schema.WorkflowDefinition{
		Name:       w.Name,
		Nodes:      make(map[string]schema.NodeDefinition, len(w.Nodes)),
		Edges:      make([]schema.EdgeDefinition, 0, len(w.Edges)),
		EntryPoint: w.EntryPoint,
	}

	for _, n := range w.Nodes {
		if _, dup := def.Nodes[n.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidDocument, "node %q is declared more than once", n.ID).
				WithNode(n.ID)
		}
		config, err := nativeConfig(n.Config)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidDocument, "node %q config", n.ID).
				WithNode(n.ID).WithCause(err)
		}
		nd := schema.NodeDefinition{Type: n.Type, Name: n.Name, Config: config}
		if n.Position != nil {
			nd.Position = schema.Position{X: n.Position.X, Y: n.Position.Y}
		}
		if n.OnError != nil {
			nd.OnError = &schema.OnErrorConfig{Strategy: n.OnError.Strategy, TargetNodeID: n.OnError.Target}
		}
		def.Nodes[n.ID] = nd
		def.NodeOrder = append(def.NodeOrder, n.ID)
	}

	for _, e := range w.Edges {
		def.Edges = append(def.Edges, schema.EdgeDefinition{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
		})
	}
	return def, nil
}

// nativeConfig converts an HCL config value into plain Go maps, slices,
// strings, float64 numbers and bools.
func nativeConfig(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("config contains unknown values")
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("config must be an object, got %s", ty.FriendlyName())
	}

	raw, err := ctyjson.Marshal(v, ty)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func diagError(stage, filename string, diags hcl.Diagnostics) *schema.BuildError {
	return schema.NewErrorf(schema.ErrCodeInvalidDocument, "%s %s: %s", stage, filename, diags.Error()).
		WithCause(diags)
}
