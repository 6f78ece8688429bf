package models

import (
	"encoding/json"
	"fmt"
)

// WorkflowIR is the engine's view of a compiled workflow: a set of named
// nodes with dependency edges. Producers may attach extra fields; the
// engine reads only what is declared here.
type WorkflowIR struct {
	Nodes map[string]NodeDef `json:"nodes"`
}

// NodeDef describes one node of the workflow graph.
type NodeDef struct {
	// Type is one of the Node* constants. Empty defaults to COMPUTE at
	// scheduling time.
	Type         string   `json:"type"`
	Dependencies []string `json:"dependencies"`

	// Routes is read for ROUTER nodes: candidate targets guarded by
	// conditions over the hydrated input.
	Routes []Route `json:"routes,omitempty"`

	// SubWorkflowID names the child workflow of a SUBWORKFLOW node. The
	// engine itself takes the child from the coordinator's output; the
	// field is carried for workers that derive that output from the IR.
	SubWorkflowID string `json:"subWorkflowId,omitempty"`

	// DelaySeconds is read for TIMER nodes.
	DelaySeconds int `json:"delay_seconds,omitempty"`
}

// Route is one candidate edge out of a ROUTER node.
type Route struct {
	Condition string `json:"condition"`
	Target    string `json:"target"`
}

// registrableNodeTypes are the types accepted in a registered IR.
// MAP_SUBTASK is reserved for engine-generated fan-out rows.
var registrableNodeTypes = map[string]bool{
	NodeCompute:       true,
	NodeEffect:        true,
	NodeReduce:        true,
	NodeRouter:        true,
	NodeMap:           true,
	NodeTimer:         true,
	NodeHumanApproval: true,
	NodeSubWorkflow:   true,
}

// ParseIR decodes an IR document.
func ParseIR(irJSON string) (*WorkflowIR, error) {
	var ir WorkflowIR
	if err := json.Unmarshal([]byte(irJSON), &ir); err != nil {
		return nil, err
	}
	return &ir, nil
}

// Validate checks the structural rules enforced at registration: nodes
// present, every declared type known (MAP_SUBTASK rejected), every
// dependency referring to an existing node. An empty type is tolerated
// and treated as COMPUTE downstream.
func (ir *WorkflowIR) Validate() error {
	if ir.Nodes == nil {
		return fmt.Errorf("missing nodes object")
	}
	for nodeID, node := range ir.Nodes {
		if node.Type != "" && !registrableNodeTypes[node.Type] {
			return fmt.Errorf("node %s has unknown type %q", nodeID, node.Type)
		}
		for _, dep := range node.Dependencies {
			if _, ok := ir.Nodes[dep]; !ok {
				return fmt.Errorf("node %s depends on unknown node %q", nodeID, dep)
			}
		}
	}
	return nil
}

// NodeType returns the effective type of a node, defaulting to COMPUTE.
func (ir *WorkflowIR) NodeType(nodeID string) string {
	node, ok := ir.Nodes[nodeID]
	if !ok || node.Type == "" {
		return NodeCompute
	}
	return node.Type
}
