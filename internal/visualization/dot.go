// Package visualization renders nodespace views in various output formats.
package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/nvandessel/nodenet/internal/nodenet"
	"github.com/nvandessel/nodenet/internal/nodetype"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// nodeColors maps node types to DOT colors.
var nodeColors = map[string]string{
	nodetype.Register:  "lightsteelblue",
	nodetype.Sensor:    "mediumseagreen",
	nodetype.Actor:     "tomato",
	nodetype.Concept:   "goldenrod",
	nodetype.Script:    "plum",
	nodetype.Pipe:      "orchid",
	nodetype.Activator: "lightsalmon",
	nodetype.Comment:   "white",
}

// gateStyles maps gate names to DOT edge styles.
var gateStyles = map[string]string{
	"gen": "solid",
	"por": "bold",
	"ret": "bold",
	"sub": "solid",
	"sur": "dashed",
	"cat": "dotted",
	"exp": "dotted",
	"sym": "tapered",
	"ref": "tapered",
}

func sortedUIDs(nodes map[string]nodenet.NodeData) []string {
	uids := make([]string, 0, len(nodes))
	for uid := range nodes {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

func nodeLabel(n nodenet.NodeData) string {
	name := n.Name
	if name == "" {
		name = n.UID
	}
	return fmt.Sprintf("%s\n%s %.2f", truncate(name, 40), n.Type, n.Activation)
}

func writeDOTNode(b *strings.Builder, n nodenet.NodeData, followup bool) {
	color := nodeColors[n.Type]
	if color == "" {
		color = "lightgray"
	}
	style := "filled"
	if followup {
		style = "filled,dashed"
	}
	fmt.Fprintf(b, "  %q [label=%q, fillcolor=%q, style=%q, tooltip=%q];\n",
		n.UID, nodeLabel(n), color, style, gateTooltip(n))
}

// gateTooltip lists default-sheaf gate activations, one per line.
func gateTooltip(n nodenet.NodeData) string {
	gates := make([]string, 0, len(n.GateActivations))
	for gate := range n.GateActivations {
		gates = append(gates, gate)
	}
	sort.Strings(gates)
	lines := make([]string, 0, len(gates))
	for _, gate := range gates {
		lines = append(lines, fmt.Sprintf("%s=%.3f", gate, n.GateActivations[gate][nodenet.DefaultSheaf.String()].Activation))
	}
	return strings.Join(lines, "\n")
}

// RenderDOT produces a Graphviz DOT representation of a nodespace view.
// Followup nodes outside the view are drawn dashed.
func RenderDOT(view nodenet.NodespaceView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", "nodespace "+view.UID)
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, uid := range sortedUIDs(view.Nodes) {
		writeDOTNode(&b, view.Nodes[uid], false)
	}
	for _, uid := range sortedUIDs(view.Followups) {
		writeDOTNode(&b, view.Followups[uid], true)
	}
	b.WriteString("\n")

	for _, l := range view.Links {
		style := gateStyles[l.Gate]
		if style == "" {
			style = "solid"
		}
		fmt.Fprintf(&b, "  %q -> %q [label=%q, style=%s, weight=\"%.2f\"];\n",
			l.SourceUID, l.TargetUID, l.Gate+":"+l.Slot, style, l.Weight)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON graph representation with nodes and links
// arrays, suitable for graph drawing libraries.
func RenderJSON(view nodenet.NodespaceView) map[string]any {
	jsonNodes := make([]map[string]any, 0, len(view.Nodes)+len(view.Followups))
	add := func(n nodenet.NodeData, followup bool) {
		jsonNodes = append(jsonNodes, map[string]any{
			"id":         n.UID,
			"name":       n.Name,
			"type":       n.Type,
			"activation": n.Activation,
			"x":          n.Position.X,
			"y":          n.Position.Y,
			"followup":   followup,
		})
	}
	for _, uid := range sortedUIDs(view.Nodes) {
		add(view.Nodes[uid], false)
	}
	for _, uid := range sortedUIDs(view.Followups) {
		add(view.Followups[uid], true)
	}

	jsonLinks := make([]map[string]any, 0, len(view.Links))
	for _, l := range view.Links {
		jsonLinks = append(jsonLinks, map[string]any{
			"source": l.SourceUID,
			"target": l.TargetUID,
			"gate":   l.Gate,
			"slot":   l.Slot,
			"weight": l.Weight,
		})
	}

	return map[string]any{
		"nodespace":    view.UID,
		"current_step": view.Step,
		"nodes":        jsonNodes,
		"links":        jsonLinks,
		"node_count":   len(jsonNodes),
		"link_count":   len(jsonLinks),
		"modulators":   view.Modulators,
	}
}

// htmlTemplateData holds data passed to the HTML template. GraphJSON is
// pre-sanitized JSON (via json.HTMLEscape) safe for inline <script>.
type htmlTemplateData struct {
	Title     string
	Step      int
	Nodes     []nodenet.NodeData
	DOT       string
	GraphJSON template.JS
	Refresh   int
}

// RenderHTML produces a self-contained page listing the nodes of a view
// with their activations and the DOT source. A positive refresh makes the
// page reload itself every refresh seconds.
func RenderHTML(view nodenet.NodespaceView, refresh int) ([]byte, error) {
	graphJSON, err := json.Marshal(RenderJSON(view))
	if err != nil {
		return nil, fmt.Errorf("marshal graph data: %w", err)
	}

	tmplBytes, err := templates.ReadFile("templates/nodespace.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("nodespace").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	// json.HTMLEscape converts <, >, & to unicode escapes, so node names
	// cannot break out of the inline <script>.
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, graphJSON)

	nodes := make([]nodenet.NodeData, 0, len(view.Nodes))
	for _, uid := range sortedUIDs(view.Nodes) {
		nodes = append(nodes, view.Nodes[uid])
	}

	var buf bytes.Buffer
	data := htmlTemplateData{
		Title:     "nodespace " + view.UID,
		Step:      view.Step,
		Nodes:     nodes,
		DOT:       RenderDOT(view),
		GraphJSON: template.JS(escaped.String()), // #nosec G203
		Refresh:   refresh,
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
