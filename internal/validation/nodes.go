package validation

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/flowplan/internal/expressions"
	"github.com/rendis/flowplan/internal/nodeconfig"
	"github.com/rendis/flowplan/pkg/schema"
	"github.com/robfig/cron/v3"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// NodeValidator checks node configs at build time. Findings are warnings:
// a badly configured node still compiles into a plan.
type NodeValidator struct {
	schemas map[string]*jsonschema.Schema
	exprs   *expressions.Set
	cron    cron.Parser
}

// NewNodeValidator compiles every node config schema and expression checker.
func NewNodeValidator() (*NodeValidator, error) {
	c := newCompiler()
	schemas := make(map[string]*jsonschema.Schema, len(nodeConfigSchemas))

	types := make([]string, 0, len(nodeConfigSchemas))
	for t := range nodeConfigSchemas {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(nodeConfigSchemas[t]))
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s config schema: %w", t, err)
		}
		url := "flowplan://node-config/" + t
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add %s config schema: %w", t, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s config schema: %w", t, err)
		}
		schemas[t] = compiled
	}

	exprs, err := expressions.NewSet()
	if err != nil {
		return nil, err
	}

	return &NodeValidator{
		schemas: schemas,
		exprs:   exprs,
		cron:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}, nil
}

var (
	defaultOnce      sync.Once
	defaultValidator *NodeValidator
	defaultErr       error
)

// Default returns a process-wide NodeValidator, built on first use.
// The validator is read-only after construction.
func Default() (*NodeValidator, error) {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = NewNodeValidator()
	})
	return defaultValidator, defaultErr
}

// ValidateNode checks one node's config. known reports whether a node id
// exists in the workflow and is used to resolve ${{nodes.<id>}} references.
func (v *NodeValidator) ValidateNode(id string, node schema.NodeDefinition, known func(string) bool) []schema.Warning {
	var warnings []schema.Warning
	warn := func(format string, args ...any) {
		warnings = append(warnings, schema.Warning{
			Code:    schema.WarnInvalidNodeConfig,
			NodeID:  id,
			Message: fmt.Sprintf(format, args...),
		})
	}

	nodeType := schema.NormalizeNodeType(node.Type)
	if compiled, ok := v.schemas[nodeType]; ok {
		cfg := node.Config
		if cfg == nil {
			cfg = map[string]any{}
		}
		doc, err := toJSONValue(cfg)
		if err != nil {
			warn("config is not JSON-serializable: %v", err)
		} else if err := compiled.Validate(doc); err != nil {
			for _, violation := range violationsOf(err) {
				warn("config %s", violation)
			}
		}
	}

	cfg := nodeconfig.New(node.Config)

	switch nodeType {
	case "while", "dowhile":
		if cond := cfg.String("condition", ""); cond != "" {
			if err := v.exprs.CEL.Check(expressions.Unwrap(cond)); err != nil {
				warn("loop condition: %v", err)
			}
		}
	case "foreach":
		if src := expressions.Unwrap(cfg.String("sourceArray", "")); strings.HasPrefix(src, ".") {
			if err := v.exprs.JQ.Check(src); err != nil {
				warn("sourceArray: %v", err)
			}
		}
	case "conditional", "condition", "if":
		for _, key := range []string{"expression", "condition"} {
			if e := cfg.String(key, ""); e != "" {
				if err := v.exprs.Expr.Check(expressions.Unwrap(e)); err != nil {
					warn("%s: %v", key, err)
				}
			}
		}
	case "router", "switch":
		routes, _ := cfg.Slice("routes")
		for i, r := range routes {
			route, ok := r.(map[string]any)
			if !ok {
				continue
			}
			if e := nodeconfig.New(route).String("expression", ""); e != "" {
				if err := v.exprs.Expr.Check(expressions.Unwrap(e)); err != nil {
					warn("routes[%d].expression: %v", i, err)
				}
			}
		}
	case "transform":
		if q := cfg.String("jq", ""); q != "" {
			if err := v.exprs.JQ.Check(q); err != nil {
				warn("jq: %v", err)
			}
		}
	case "schedule":
		if spec := cfg.String("cron", ""); spec != "" {
			if _, err := v.cron.Parse(spec); err != nil {
				warn("cron %q: %v", spec, err)
			}
		}
	}

	if cfg.Has("timeout") {
		if _, err := cfg.DurationErr("timeout"); err != nil {
			warn("timeout: %v", err)
		}
	}

	if known != nil {
		for _, ref := range expressions.NodeRefs(node.Config) {
			if !known(ref) {
				warn("references unknown node %q", ref)
			}
		}
	}

	return warnings
}

func violationsOf(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	return collectViolations(verr)
}
