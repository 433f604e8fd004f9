package schema

import "strings"

// NodeCategory groups node types that share structural semantics.
type NodeCategory string

const (
	CategoryLLM         NodeCategory = "llm"
	CategoryAgent       NodeCategory = "agent"
	CategoryHTTP        NodeCategory = "http"
	CategoryIntegration NodeCategory = "integration"
	CategoryLogic       NodeCategory = "logic"
	CategoryRouter      NodeCategory = "router"
	CategoryLoop        NodeCategory = "loop"
	CategoryParallel    NodeCategory = "parallel"
	CategoryHuman       NodeCategory = "human"
	CategoryTrigger     NodeCategory = "trigger"
	CategoryData        NodeCategory = "data"
	CategorySentinel    NodeCategory = "sentinel"
	CategoryUnknown     NodeCategory = "unknown"
)

// HasErrorPort reports whether nodes of this category expose an error port.
func (c NodeCategory) HasErrorPort() bool {
	switch c {
	case CategoryLLM, CategoryHTTP, CategoryIntegration, CategoryAgent:
		return true
	}
	return false
}

var builtinCategories = map[string]NodeCategory{
	"llm":             CategoryLLM,
	"vision":          CategoryLLM,
	"audio":           CategoryLLM,
	"embeddings":      CategoryLLM,
	"imagegeneration": CategoryLLM,
	"agent":           CategoryAgent,
	"aiagent":         CategoryAgent,
	"http":            CategoryHTTP,
	"httprequest":     CategoryHTTP,
	"graphql":         CategoryHTTP,
	"integration":     CategoryIntegration,
	"database":        CategoryIntegration,
	"email":           CategoryIntegration,
	"slack":           CategoryIntegration,
	"conditional":     CategoryLogic,
	"condition":       CategoryLogic,
	"if":              CategoryLogic,
	"router":          CategoryRouter,
	"switch":          CategoryRouter,
	"loop":            CategoryLoop,
	"for":             CategoryLoop,
	"foreach":         CategoryLoop,
	"while":           CategoryLoop,
	"dowhile":         CategoryLoop,
	"parallel":        CategoryParallel,
	"humanapproval":   CategoryHuman,
	"approval":        CategoryHuman,
	"userinput":       CategoryHuman,
	"wait":            CategoryHuman,
	"trigger":         CategoryTrigger,
	"schedule":        CategoryTrigger,
	"webhook":         CategoryTrigger,
	"manual":          CategoryTrigger,
	"input":           CategoryData,
	"output":          CategoryData,
	"transform":       CategoryData,
	"code":            CategoryData,
	"variable":        CategoryData,
	"filereader":      CategoryData,
	"filewriter":      CategoryData,
	"loopsentinel":    CategorySentinel,
}

// NodeCatalog resolves node types to categories. Lookups ignore case and
// the separators '-', '_' and ' '.
type NodeCatalog struct {
	overrides map[string]NodeCategory
}

// NewNodeCatalog returns a catalog with the built-in mappings plus overrides.
func NewNodeCatalog(overrides map[string]NodeCategory) *NodeCatalog {
	c := &NodeCatalog{overrides: make(map[string]NodeCategory, len(overrides))}
	for t, cat := range overrides {
		c.overrides[NormalizeNodeType(t)] = cat
	}
	return c
}

// DefaultCatalog is the catalog with only the built-in mappings.
var DefaultCatalog = NewNodeCatalog(nil)

// Category returns the category for nodeType, or CategoryUnknown.
func (c *NodeCatalog) Category(nodeType string) NodeCategory {
	key := NormalizeNodeType(nodeType)
	if c != nil {
		if cat, ok := c.overrides[key]; ok {
			return cat
		}
	}
	if cat, ok := builtinCategories[key]; ok {
		return cat
	}
	return CategoryUnknown
}

// IsConditional reports whether nodeType is a true/false branching node.
func (c *NodeCatalog) IsConditional(nodeType string) bool {
	return c.Category(nodeType) == CategoryLogic
}

// IsRouter reports whether nodeType selects one of several named routes.
func (c *NodeCatalog) IsRouter(nodeType string) bool {
	return c.Category(nodeType) == CategoryRouter
}

// IsLoop reports whether nodeType iterates a body.
func (c *NodeCatalog) IsLoop(nodeType string) bool {
	return c.Category(nodeType) == CategoryLoop
}

// IsParallel reports whether nodeType fans out into branches.
func (c *NodeCatalog) IsParallel(nodeType string) bool {
	return c.Category(nodeType) == CategoryParallel
}

// NormalizeNodeType lowercases t and drops the separators - _ and space.
func NormalizeNodeType(t string) string {
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(t))
}
