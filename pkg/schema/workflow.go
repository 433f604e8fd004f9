package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// WorkflowDefinition is the editor-produced workflow document the builder compiles.
type WorkflowDefinition struct {
	Name       string                    `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes      map[string]NodeDefinition `json:"nodes" yaml:"nodes"`
	Edges      []EdgeDefinition          `json:"edges" yaml:"edges"`
	EntryPoint string                    `json:"entryPoint" yaml:"entryPoint"`

	// NodeOrder records the order in which nodes appeared in the source
	// document. Decoders fill it; programmatic callers may leave it empty.
	NodeOrder []string `json:"-" yaml:"-"`
}

// NodeDefinition is a raw node as authored in the editor.
type NodeDefinition struct {
	Type     string         `json:"type" yaml:"type"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Position Position       `json:"position" yaml:"position"`
	OnError  *OnErrorConfig `json:"onError,omitempty" yaml:"onError,omitempty"`
}

// Position is the canvas location of a node. The builder only carries it through.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// OnErrorConfig describes how a node's failures are routed.
type OnErrorConfig struct {
	Strategy     string `json:"strategy" yaml:"strategy"` // fail | continue | goto
	TargetNodeID string `json:"targetNodeId,omitempty" yaml:"targetNodeId,omitempty"`
}

// OnErrorGoto routes failures along the node's error edge.
const OnErrorGoto = "goto"

// EdgeDefinition is a raw edge between two nodes.
type EdgeDefinition struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
}

// NodeIDs returns every node id in document order, followed by any ids
// missing from NodeOrder in lexical order. The result is stable across calls.
func (d *WorkflowDefinition) NodeIDs() []string {
	ids := make([]string, 0, len(d.Nodes))
	seen := make(map[string]bool, len(d.Nodes))
	for _, id := range d.NodeOrder {
		if _, ok := d.Nodes[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	var rest []string
	for id := range d.Nodes {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// UnmarshalJSON decodes a definition while recording node key order.
func (d *WorkflowDefinition) UnmarshalJSON(data []byte) error {
	type plain WorkflowDefinition
	var raw struct {
		plain
		Nodes json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = WorkflowDefinition(raw.plain)
	d.Nodes = nil
	d.NodeOrder = nil

	trimmed := bytes.TrimSpace(raw.Nodes)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("nodes: expected object, got %v", tok)
	}
	d.Nodes = make(map[string]NodeDefinition)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		id, _ := keyTok.(string)
		var node NodeDefinition
		if err := dec.Decode(&node); err != nil {
			return fmt.Errorf("nodes.%s: %w", id, err)
		}
		if _, dup := d.Nodes[id]; !dup {
			d.NodeOrder = append(d.NodeOrder, id)
		}
		d.Nodes[id] = node
	}
	return nil
}

// UnmarshalYAML decodes a definition while recording node key order.
func (d *WorkflowDefinition) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name       string           `yaml:"name"`
		Nodes      yaml.Node        `yaml:"nodes"`
		Edges      []EdgeDefinition `yaml:"edges"`
		EntryPoint string           `yaml:"entryPoint"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*d = WorkflowDefinition{Name: raw.Name, Edges: raw.Edges, EntryPoint: raw.EntryPoint}

	if raw.Nodes.Kind == 0 || raw.Nodes.Tag == "!!null" {
		return nil
	}
	if raw.Nodes.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: nodes must be a mapping", raw.Nodes.Line)
	}
	d.Nodes = make(map[string]NodeDefinition, len(raw.Nodes.Content)/2)
	for i := 0; i+1 < len(raw.Nodes.Content); i += 2 {
		id := raw.Nodes.Content[i].Value
		var node NodeDefinition
		if err := raw.Nodes.Content[i+1].Decode(&node); err != nil {
			return fmt.Errorf("nodes.%s: %w", id, err)
		}
		if _, dup := d.Nodes[id]; !dup {
			d.NodeOrder = append(d.NodeOrder, id)
		}
		d.Nodes[id] = node
	}
	return nil
}
