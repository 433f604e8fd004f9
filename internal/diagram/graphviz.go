package diagram

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/flowplan/pkg/schema"
)

// ImageFormat selects the graphviz output format.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatSVG ImageFormat = "svg"
	FormatDOT ImageFormat = "dot"
)

// ParseImageFormat maps a format name to an ImageFormat.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch f := ImageFormat(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case FormatPNG, FormatSVG, FormatDOT:
		return f, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeRender, "unsupported image format %q", s)
}

func (f ImageFormat) graphviz() graphviz.Format {
	switch f {
	case FormatSVG:
		return graphviz.SVG
	case FormatDOT:
		return graphviz.XDOT
	default:
		return graphviz.PNG
	}
}

// RenderImage renders a DiagramModel with graphviz in the given format.
func RenderImage(ctx context.Context, model *DiagramModel, format ImageFormat) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, renderErr("create graphviz", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, renderErr("create graph", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	parentOf := make(map[string]*cgraph.Graph)
	var addClusters func(parent *cgraph.Graph, clusters []*Cluster) error
	addClusters = func(parent *cgraph.Graph, clusters []*Cluster) error {
		for _, c := range clusters {
			sub, err := parent.CreateSubGraphByName("cluster_" + c.ID)
			if err != nil {
				return renderErr("create cluster "+c.ID, err)
			}
			sub.SetLabel(c.Label)
			sub.SetStyle(cgraph.DashedGraphStyle)
			for _, id := range c.NodeIDs {
				parentOf[id] = sub
			}
			if err := addClusters(sub, c.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := addClusters(graph, model.Clusters); err != nil {
		return nil, err
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		owner := graph
		if sub, ok := parentOf[node.ID]; ok {
			owner = sub
		}
		gvNode, err := owner.CreateNodeByName(node.ID)
		if err != nil {
			return nil, renderErr("create node "+node.ID, err)
		}
		gvNode.SetLabel(firstLine(node.Label))
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, err := graph.CreateEdgeByName("", fromGV, toGV)
		if err != nil {
			return nil, renderErr("create edge", err)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		switch edge.Handle {
		case schema.HandleError:
			e.SetStyle(cgraph.DashedEdgeStyle)
			e.SetColor("#8b1a1a")
		case schema.HandleLoop:
			e.SetStyle(cgraph.BoldEdgeStyle)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format.graphviz(), &buf); err != nil {
		return nil, renderErr(fmt.Sprintf("render %s", format), err)
	}
	return buf.Bytes(), nil
}

func renderErr(op string, err error) error {
	return schema.NewErrorf(schema.ErrCodeRender, "diagram: %s", op).WithCause(err)
}

// applyNodeStyle sets graphviz attributes based on node kind and warnings.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindAction:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindCondition, NodeKindRouter:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindReasoning:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindWait, NodeKindTrigger:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindParallel, NodeKindLoop:
		gvNode.SetShape(cgraph.BoxShape)
		gvNode.SetColor("#1a5276")
	case NodeKindSentinel:
		gvNode.SetShape(cgraph.EllipseShape)
		gvNode.SetStyle(cgraph.DashedNodeStyle)
		gvNode.SetFontColor("#555555")
	case NodeKindStart, NodeKindEnd:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.5)
		gvNode.SetHeight(0.5)
	}

	if len(node.Warnings) > 0 {
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	}
}
