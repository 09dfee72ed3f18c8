package mcp

import (
	"time"

	"github.com/nvandessel/nodenet/internal/nodenet"
)

// CreateNodenetInput defines the input for the nodenet_create tool.
type CreateNodenetInput struct {
	Name string `json:"name" jsonschema:"Human readable name of the new nodenet"`
	UID  string `json:"uid,omitempty" jsonschema:"Uid to use instead of a generated one"`
}

// CreateNodenetOutput defines the output for the nodenet_create tool.
type CreateNodenetOutput struct {
	UID  string `json:"uid" jsonschema:"Uid of the new nodenet"`
	Name string `json:"name" jsonschema:"Name of the new nodenet"`
}

// ListNodenetsInput defines the input for the nodenet_list tool.
type ListNodenetsInput struct{}

// ListNodenetsOutput defines the output for the nodenet_list tool.
type ListNodenetsOutput struct {
	Nodenets []NodenetListItem `json:"nodenets" jsonschema:"Stored nodenets ordered by name"`
	Count    int               `json:"count" jsonschema:"Number of stored nodenets"`
}

// NodenetListItem provides a list view of a stored nodenet.
type NodenetListItem struct {
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Step      int       `json:"step"`
	NodeCount int       `json:"node_count"`
	LinkCount int       `json:"link_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateNodeInput defines the input for the nodenet_create_node tool.
type CreateNodeInput struct {
	Nodenet    string         `json:"nodenet" jsonschema:"Uid of the nodenet"`
	Type       string         `json:"type" jsonschema:"Nodetype name such as Register, Concept, Pipe or a native module"`
	Nodespace  string         `json:"nodespace,omitempty" jsonschema:"Parent nodespace uid (default: Root)"`
	Name       string         `json:"name,omitempty" jsonschema:"Node name"`
	X          *float64       `json:"x,omitempty" jsonschema:"Horizontal position (default: next free slot)"`
	Y          *float64       `json:"y,omitempty" jsonschema:"Vertical position"`
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"Initial node parameters"`
}

// CreateNodeOutput defines the output for the nodenet_create_node tool.
type CreateNodeOutput struct {
	UID string `json:"uid" jsonschema:"Uid of the new node"`
}

// DeleteNodeInput defines the input for the nodenet_delete_node tool.
type DeleteNodeInput struct {
	Nodenet string `json:"nodenet" jsonschema:"Uid of the nodenet"`
	Node    string `json:"node" jsonschema:"Uid of the node to delete together with its links"`
}

// DeleteNodeOutput defines the output for the nodenet_delete_node tool.
type DeleteNodeOutput struct {
	Deleted bool `json:"deleted"`
}

// LinkInput defines the input for the nodenet_link and nodenet_unlink tools.
type LinkInput struct {
	Nodenet   string   `json:"nodenet" jsonschema:"Uid of the nodenet"`
	Source    string   `json:"source" jsonschema:"Uid of the source node"`
	Gate      string   `json:"gate,omitempty" jsonschema:"Source gate (default: gen)"`
	Target    string   `json:"target" jsonschema:"Uid of the target node"`
	Slot      string   `json:"slot,omitempty" jsonschema:"Target slot (default: gen)"`
	Weight    *float64 `json:"weight,omitempty" jsonschema:"Link weight (default: 1)"`
	Certainty *float64 `json:"certainty,omitempty" jsonschema:"Link certainty (default: 1)"`
}

// LinkOutput defines the output for the nodenet_link and nodenet_unlink tools.
type LinkOutput struct {
	Links   []nodenet.Link `json:"links,omitempty" jsonschema:"Outgoing links of the source node after the change"`
	Removed int            `json:"removed,omitempty" jsonschema:"Number of links removed"`
}

// StepInput defines the input for the nodenet_step tool.
type StepInput struct {
	Nodenet string `json:"nodenet" jsonschema:"Uid of the nodenet"`
	Steps   int    `json:"steps,omitempty" jsonschema:"Number of steps to run (default: 1, max: 1000)"`
}

// StepOutput defines the output for the nodenet_step tool.
type StepOutput struct {
	CurrentStep int                 `json:"current_step" jsonschema:"Step counter after stepping"`
	Stepped     int                 `json:"stepped" jsonschema:"Number of steps completed"`
	Prompt      *nodenet.UserPrompt `json:"user_prompt,omitempty" jsonschema:"Prompt raised by a node, which stops stepping"`
}

// GetNodeInput defines the input for the nodenet_get_node tool.
type GetNodeInput struct {
	Nodenet string `json:"nodenet" jsonschema:"Uid of the nodenet"`
	Node    string `json:"node" jsonschema:"Uid of the node"`
}

// GetNodeOutput defines the output for the nodenet_get_node tool.
type GetNodeOutput struct {
	Node nodenet.NodeData `json:"node"`
}

// ExportInput defines the input for the nodenet_export tool.
type ExportInput struct {
	Nodenet    string `json:"nodenet" jsonschema:"Uid of the nodenet"`
	OutputPath string `json:"output_path,omitempty" jsonschema:"Snapshot file inside the snapshot directory (default: generated name)"`
	Compress   *bool  `json:"compress,omitempty" jsonschema:"Write a compressed snapshot (default: true)"`
}

// ExportOutput defines the output for the nodenet_export tool.
type ExportOutput struct {
	Path      string `json:"path" jsonschema:"Snapshot file written"`
	NodeCount int    `json:"node_count"`
	LinkCount int    `json:"link_count"`
	Step      int    `json:"step"`
}

// GraphInput defines the input for the nodenet_graph tool.
type GraphInput struct {
	Nodenet   string `json:"nodenet" jsonschema:"Uid of the nodenet"`
	Nodespace string `json:"nodespace,omitempty" jsonschema:"Nodespace to render (default: Root)"`
	Format    string `json:"format,omitempty" jsonschema:"Output format: dot or json (default: dot)"`
}

// GraphOutput defines the output for the nodenet_graph tool.
type GraphOutput struct {
	Format string         `json:"format"`
	Graph  string         `json:"graph,omitempty" jsonschema:"DOT source when format is dot"`
	JSON   map[string]any `json:"json,omitempty" jsonschema:"Graph object when format is json"`
}
