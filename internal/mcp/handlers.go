package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/nodenet/internal/nodenet"
	"github.com/nvandessel/nodenet/internal/pathutil"
	"github.com/nvandessel/nodenet/internal/ratelimit"
	"github.com/nvandessel/nodenet/internal/sanitize"
	"github.com/nvandessel/nodenet/internal/snapshot"
	"github.com/nvandessel/nodenet/internal/visualization"
)

const (
	nodenetsURI = "nodenet://nodenets"
	maxSteps    = 1000
	defaultGate = "gen"
)

// registerTools registers all nodenet MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nodenet_create",
		Description: "Create an empty nodenet and store it",
	}, s.handleCreateNodenet)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nodenet_list",
		Description: "List stored nodenets with their step and size",
	}, s.handleListNodenets)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nodenet_create_node",
		Description: "Create a node of a standard or native nodetype inside a nodespace",
	}, s.handleCreateNode)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nodenet_delete_node",
		Description: "Delete a node and every link touching it",
	}, s.handleDeleteNode)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nodenet_link",
		Description: "Create or update the link from a gate of one node to a slot of another",
	}, s.handleLink)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nodenet_unlink",
		Description: "Remove links leaving a node; empty gate, target or slot match anything",
	}, s.handleUnlink)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nodenet_step",
		Description: "Advance a nodenet by one or more steps of activation propagation",
	}, s.handleStep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nodenet_get_node",
		Description: "Get the parameters, gate activations and links of a node",
	}, s.handleGetNode)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nodenet_export",
		Description: "Write a nodenet snapshot file into the snapshot directory",
	}, s.handleExport)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nodenet_graph",
		Description: "Render a nodespace in DOT (Graphviz) or JSON format",
	}, s.handleGraph)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         nodenetsURI,
		Name:        "nodenet-list",
		Description: "Stored nodenets with their current step, node and link counts.",
		MIMEType:    "text/markdown",
	}, s.handleNodenetsResource)
}

// handleNodenetsResource lists stored nodenets as a markdown table.
func (s *Server) handleNodenetsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	summaries, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodenets: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Nodenets\n\n")
	if len(summaries) == 0 {
		sb.WriteString("No nodenets stored yet. Create one with `nodenet_create`.\n")
	} else {
		sb.WriteString("| uid | name | step | nodes | links |\n|---|---|---|---|---|\n")
		for _, sum := range summaries {
			fmt.Fprintf(&sb, "| %s | %s | %d | %d | %d |\n",
				sum.UID, sanitize.Name(sum.Name), sum.Step, sum.NodeCount, sum.LinkCount)
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: nodenetsURI, MIMEType: "text/markdown", Text: sb.String()},
		},
	}, nil
}

// handleCreateNodenet implements the nodenet_create tool.
func (s *Server) handleCreateNodenet(ctx context.Context, req *sdk.CallToolRequest, args CreateNodenetInput) (_ *sdk.CallToolResult, _ CreateNodenetOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nodenet_create", args.UID, start, retErr, sanitizeToolParams(map[string]any{
			"name": args.Name,
		}))
	}()

	// Creation is limited globally since there is no nodenet to key on yet.
	if err := ratelimit.CheckLimit(s.toolLimiters, "nodenet_create", ""); err != nil {
		return nil, CreateNodenetOutput{}, err
	}

	name := sanitize.Name(args.Name)
	if name == "" {
		return nil, CreateNodenetOutput{}, fmt.Errorf("'name' parameter is required")
	}
	if args.UID != "" {
		if _, err := s.repo.Load(ctx, args.UID); err == nil {
			return nil, CreateNodenetOutput{}, fmt.Errorf("nodenet %q already exists", args.UID)
		}
	}

	n, err := s.newNet(args.UID, name)
	if err != nil {
		return nil, CreateNodenetOutput{}, fmt.Errorf("failed to create nodenet: %w", err)
	}
	if err := s.save(ctx, n); err != nil {
		return nil, CreateNodenetOutput{}, err
	}
	return nil, CreateNodenetOutput{UID: n.UID(), Name: n.Name()}, nil
}

// handleListNodenets implements the nodenet_list tool.
func (s *Server) handleListNodenets(ctx context.Context, req *sdk.CallToolRequest, args ListNodenetsInput) (_ *sdk.CallToolResult, _ ListNodenetsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nodenet_list", "", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nodenet_list", ""); err != nil {
		return nil, ListNodenetsOutput{}, err
	}

	summaries, err := s.repo.List(ctx)
	if err != nil {
		return nil, ListNodenetsOutput{}, fmt.Errorf("failed to list nodenets: %w", err)
	}
	items := make([]NodenetListItem, 0, len(summaries))
	for _, sum := range summaries {
		items = append(items, NodenetListItem{
			UID:       sum.UID,
			Name:      sum.Name,
			Step:      sum.Step,
			NodeCount: sum.NodeCount,
			LinkCount: sum.LinkCount,
			UpdatedAt: sum.UpdatedAt,
		})
	}
	return nil, ListNodenetsOutput{Nodenets: items, Count: len(items)}, nil
}

// handleCreateNode implements the nodenet_create_node tool.
func (s *Server) handleCreateNode(ctx context.Context, req *sdk.CallToolRequest, args CreateNodeInput) (_ *sdk.CallToolResult, _ CreateNodeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nodenet_create_node", args.Nodenet, start, retErr, sanitizeToolParams(map[string]any{
			"type": args.Type, "nodespace": args.Nodespace, "name": args.Name, "parameters": args.Parameters,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nodenet_create_node", args.Nodenet); err != nil {
		return nil, CreateNodeOutput{}, err
	}
	if args.Type == "" {
		return nil, CreateNodeOutput{}, fmt.Errorf("'type' parameter is required")
	}

	n, err := s.net(ctx, args.Nodenet)
	if err != nil {
		return nil, CreateNodeOutput{}, err
	}

	spec := nodenet.NodeSpec{
		Type:       args.Type,
		Nodespace:  args.Nodespace,
		Name:       sanitize.Name(args.Name),
		Parameters: args.Parameters,
	}
	if args.X != nil || args.Y != nil {
		var pos nodenet.Position
		if args.X != nil {
			pos.X = *args.X
		}
		if args.Y != nil {
			pos.Y = *args.Y
		}
		spec.Position = &pos
	}

	uid, err := n.CreateNode(spec)
	if err != nil {
		return nil, CreateNodeOutput{}, fmt.Errorf("failed to create node: %w", err)
	}
	if err := s.save(ctx, n); err != nil {
		return nil, CreateNodeOutput{}, err
	}
	return nil, CreateNodeOutput{UID: uid}, nil
}

// handleDeleteNode implements the nodenet_delete_node tool.
func (s *Server) handleDeleteNode(ctx context.Context, req *sdk.CallToolRequest, args DeleteNodeInput) (_ *sdk.CallToolResult, _ DeleteNodeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nodenet_delete_node", args.Nodenet, start, retErr, sanitizeToolParams(map[string]any{
			"node": args.Node,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nodenet_delete_node", args.Nodenet); err != nil {
		return nil, DeleteNodeOutput{}, err
	}
	if args.Node == "" {
		return nil, DeleteNodeOutput{}, fmt.Errorf("'node' parameter is required")
	}

	n, err := s.net(ctx, args.Nodenet)
	if err != nil {
		return nil, DeleteNodeOutput{}, err
	}
	if err := n.DeleteNode(args.Node); err != nil {
		return nil, DeleteNodeOutput{}, fmt.Errorf("failed to delete node: %w", err)
	}
	if err := s.save(ctx, n); err != nil {
		return nil, DeleteNodeOutput{}, err
	}
	return nil, DeleteNodeOutput{Deleted: true}, nil
}

// handleLink implements the nodenet_link tool.
func (s *Server) handleLink(ctx context.Context, req *sdk.CallToolRequest, args LinkInput) (_ *sdk.CallToolResult, _ LinkOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nodenet_link", args.Nodenet, start, retErr, linkParams(args))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nodenet_link", args.Nodenet); err != nil {
		return nil, LinkOutput{}, err
	}
	if args.Source == "" || args.Target == "" {
		return nil, LinkOutput{}, fmt.Errorf("'source' and 'target' parameters are required")
	}

	n, err := s.net(ctx, args.Nodenet)
	if err != nil {
		return nil, LinkOutput{}, err
	}

	gate := orDefault(args.Gate, defaultGate)
	slot := orDefault(args.Slot, defaultGate)
	weight, certainty := 1.0, 1.0
	if args.Weight != nil {
		weight = *args.Weight
	}
	if args.Certainty != nil {
		certainty = *args.Certainty
	}

	if err := n.Link(args.Source, gate, args.Target, slot, weight, certainty); err != nil {
		return nil, LinkOutput{}, fmt.Errorf("failed to link: %w", err)
	}
	if err := s.save(ctx, n); err != nil {
		return nil, LinkOutput{}, err
	}
	return nil, LinkOutput{Links: outgoing(n, args.Source)}, nil
}

// handleUnlink implements the nodenet_unlink tool.
func (s *Server) handleUnlink(ctx context.Context, req *sdk.CallToolRequest, args LinkInput) (_ *sdk.CallToolResult, _ LinkOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nodenet_unlink", args.Nodenet, start, retErr, linkParams(args))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nodenet_unlink", args.Nodenet); err != nil {
		return nil, LinkOutput{}, err
	}
	if args.Source == "" {
		return nil, LinkOutput{}, fmt.Errorf("'source' parameter is required")
	}

	n, err := s.net(ctx, args.Nodenet)
	if err != nil {
		return nil, LinkOutput{}, err
	}
	removed, err := n.Unlink(args.Source, args.Gate, args.Target, args.Slot)
	if err != nil {
		return nil, LinkOutput{}, fmt.Errorf("failed to unlink: %w", err)
	}
	if removed > 0 {
		if err := s.save(ctx, n); err != nil {
			return nil, LinkOutput{}, err
		}
	}
	return nil, LinkOutput{Links: outgoing(n, args.Source), Removed: removed}, nil
}

// handleStep implements the nodenet_step tool. Stepping stops early when a
// node asks the user for input.
func (s *Server) handleStep(ctx context.Context, req *sdk.CallToolRequest, args StepInput) (_ *sdk.CallToolResult, _ StepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nodenet_step", args.Nodenet, start, retErr, sanitizeToolParams(map[string]any{
			"steps": args.Steps,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nodenet_step", args.Nodenet); err != nil {
		return nil, StepOutput{}, err
	}
	steps := args.Steps
	if steps == 0 {
		steps = 1
	}
	if steps < 0 || steps > maxSteps {
		return nil, StepOutput{}, fmt.Errorf("steps must be between 1 and %d, got %d", maxSteps, steps)
	}

	n, err := s.net(ctx, args.Nodenet)
	if err != nil {
		return nil, StepOutput{}, err
	}

	out := StepOutput{}
	var stepErr error
	for out.Stepped < steps {
		if err := ctx.Err(); err != nil {
			stepErr = err
			break
		}
		if err := n.Step(ctx); err != nil {
			stepErr = fmt.Errorf("step %d failed: %w", n.CurrentStep()+1, err)
			break
		}
		out.Stepped++
		if p := n.PendingPrompt(); p != nil {
			p.Message = sanitize.Message(p.Message)
			out.Prompt = p
			break
		}
	}
	out.CurrentStep = n.CurrentStep()

	// Completed steps are kept even when a later one failed.
	if out.Stepped > 0 {
		if err := s.save(ctx, n); err != nil {
			return nil, StepOutput{}, errors.Join(stepErr, err)
		}
	}
	if stepErr != nil {
		return nil, StepOutput{}, stepErr
	}
	return nil, out, nil
}

// handleGetNode implements the nodenet_get_node tool.
func (s *Server) handleGetNode(ctx context.Context, req *sdk.CallToolRequest, args GetNodeInput) (_ *sdk.CallToolResult, _ GetNodeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nodenet_get_node", args.Nodenet, start, retErr, sanitizeToolParams(map[string]any{
			"node": args.Node,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nodenet_get_node", args.Nodenet); err != nil {
		return nil, GetNodeOutput{}, err
	}
	n, err := s.net(ctx, args.Nodenet)
	if err != nil {
		return nil, GetNodeOutput{}, err
	}
	node, err := n.GetNode(args.Node)
	if err != nil {
		return nil, GetNodeOutput{}, err
	}
	return nil, GetNodeOutput{Node: node}, nil
}

// handleExport implements the nodenet_export tool.
func (s *Server) handleExport(ctx context.Context, req *sdk.CallToolRequest, args ExportInput) (_ *sdk.CallToolResult, _ ExportOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nodenet_export", args.Nodenet, start, retErr, sanitizeToolParams(map[string]any{
			"output_path": args.OutputPath, "compress": args.Compress,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nodenet_export", args.Nodenet); err != nil {
		return nil, ExportOutput{}, err
	}
	n, err := s.net(ctx, args.Nodenet)
	if err != nil {
		return nil, ExportOutput{}, err
	}
	data := n.Export()

	outputPath := args.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(s.snapshotDir, snapshot.FileName(data.UID, data.Step, time.Now()))
	} else {
		if !filepath.IsAbs(outputPath) {
			outputPath = filepath.Join(s.snapshotDir, outputPath)
		}
		if err := os.MkdirAll(s.snapshotDir, 0700); err != nil {
			return nil, ExportOutput{}, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		if err := pathutil.ValidatePath(outputPath, []string{s.snapshotDir}); err != nil {
			return nil, ExportOutput{}, fmt.Errorf("export path rejected: %w", err)
		}
	}

	format := snapshot.FormatV2
	if args.Compress != nil && !*args.Compress {
		format = snapshot.FormatV1
	}
	if err := snapshot.Write(outputPath, data, format); err != nil {
		return nil, ExportOutput{}, fmt.Errorf("export failed: %w", err)
	}

	return nil, ExportOutput{
		Path:      outputPath,
		NodeCount: len(data.Nodes),
		LinkCount: len(data.Links),
		Step:      data.Step,
	}, nil
}

// handleGraph implements the nodenet_graph tool.
func (s *Server) handleGraph(ctx context.Context, req *sdk.CallToolRequest, args GraphInput) (_ *sdk.CallToolResult, _ GraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nodenet_graph", args.Nodenet, start, retErr, sanitizeToolParams(map[string]any{
			"nodespace": args.Nodespace, "format": args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nodenet_graph", args.Nodenet); err != nil {
		return nil, GraphOutput{}, err
	}
	n, err := s.net(ctx, args.Nodenet)
	if err != nil {
		return nil, GraphOutput{}, err
	}
	view, err := n.GetNodespaceData(args.Nodespace, nil)
	if err != nil {
		return nil, GraphOutput{}, err
	}

	format := visualization.Format(orDefault(args.Format, string(visualization.FormatDOT)))
	switch format {
	case visualization.FormatDOT:
		return nil, GraphOutput{Format: string(format), Graph: visualization.RenderDOT(view)}, nil
	case visualization.FormatJSON:
		return nil, GraphOutput{Format: string(format), JSON: visualization.RenderJSON(view)}, nil
	default:
		return nil, GraphOutput{}, fmt.Errorf("unsupported format %q (use 'dot' or 'json')", format)
	}
}

func linkParams(args LinkInput) map[string]string {
	return sanitizeToolParams(map[string]any{
		"source": args.Source, "gate": args.Gate, "target": args.Target, "slot": args.Slot,
		"weight": args.Weight, "certainty": args.Certainty,
	})
}

// outgoing returns the links leaving uid.
func outgoing(n *nodenet.Nodenet, uid string) []nodenet.Link {
	var out []nodenet.Link
	for _, l := range n.Links() {
		if l.SourceUID == uid {
			out = append(out, l)
		}
	}
	return out
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
