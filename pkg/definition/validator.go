// Package definition proves that a node/edge graph reduces to exactly one
// linear execution chain, or rejects it with a precise, node-scoped reason.
package definition

import (
	"fmt"

	"github.com/thibo-redpepper/convoflow/pkg/models"
)

// ErrorCode identifies the structural or configuration rule a definition
// violated.
type ErrorCode string

const (
	CodeDuplicateNodeID     ErrorCode = "duplicate_node_id"
	CodeNoTrigger           ErrorCode = "no_trigger"
	CodeMultipleTriggers    ErrorCode = "multiple_triggers"
	CodeDanglingEdge        ErrorCode = "dangling_edge"
	CodeBranchingNotAllowed ErrorCode = "branching_not_allowed"
	CodeInvalidEdgeTopology ErrorCode = "invalid_edge_topology"
	CodeCycleDetected       ErrorCode = "cycle_detected"
	CodeUnreachableNode     ErrorCode = "unreachable_node"
	CodeUnknownNodeType     ErrorCode = "unknown_node_type"
	CodeMissingField        ErrorCode = "missing_field"
)

// ValidationError describes why a definition cannot execute. NodeID points
// the editor at the offending node when one is identifiable.
type ValidationError struct {
	Code    ErrorCode
	NodeID  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s (node %s)", e.Message, e.NodeID)
	}

	return e.Message
}

func newError(code ErrorCode, nodeID, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    code,
		NodeID:  nodeID,
		Message: fmt.Sprintf(format, args...),
	}
}

// Chain is the validated, strictly linear node sequence derived from a
// definition, starting at its unique trigger.
type Chain struct {
	Nodes []*models.Node
}

// IDs returns the node ids in execution order.
func (c *Chain) IDs() []string {
	ids := make([]string, len(c.Nodes))
	for i, node := range c.Nodes {
		ids[i] = node.ID
	}

	return ids
}

// Trigger returns the chain's first node.
func (c *Chain) Trigger() *models.Node {
	if len(c.Nodes) == 0 {
		return nil
	}

	return c.Nodes[0]
}

// Options controls how strict Validate is.
type Options struct {
	// ValidateConfig enforces per-type required fields. The editor uses the
	// relaxed form while a flow is being drawn; save and execute use the
	// strict form.
	ValidateConfig bool
}

// Validate proves the definition reduces to one linear chain. It is pure
// and deterministic: the same definition always yields the same chain or
// the same error.
func Validate(def *models.Definition, opts Options) (*Chain, error) {
	byID := make(map[string]*models.Node, len(def.Nodes))
	for _, node := range def.Nodes {
		if _, exists := byID[node.ID]; exists {
			return nil, newError(CodeDuplicateNodeID, node.ID, "duplicate node id %q", node.ID)
		}

		if !node.Type.IsKnown() {
			return nil, newError(CodeUnknownNodeType, node.ID, "node %q has unknown type %q", node.ID, node.Type)
		}

		byID[node.ID] = node
	}

	trigger, err := findTrigger(def.Nodes)
	if err != nil {
		return nil, err
	}

	outgoing := make(map[string]*models.Edge, len(def.Edges))
	incoming := make(map[string]int, len(def.Nodes))

	for _, edge := range def.Edges {
		if _, ok := byID[edge.Source]; !ok {
			return nil, newError(CodeDanglingEdge, "", "edge %q references missing source node %q", edge.ID, edge.Source)
		}

		if _, ok := byID[edge.Target]; !ok {
			return nil, newError(CodeDanglingEdge, "", "edge %q references missing target node %q", edge.ID, edge.Target)
		}

		if _, ok := outgoing[edge.Source]; ok {
			return nil, newError(CodeBranchingNotAllowed, edge.Source, "node %q has more than one outgoing edge", edge.Source)
		}

		outgoing[edge.Source] = edge
		incoming[edge.Target]++
	}

	for _, node := range def.Nodes {
		if node.ID == trigger.ID {
			if incoming[node.ID] != 0 {
				return nil, newError(CodeInvalidEdgeTopology, node.ID, "trigger node %q must have no incoming edges", node.ID)
			}

			continue
		}

		if incoming[node.ID] != 1 {
			return nil, newError(CodeInvalidEdgeTopology, node.ID,
				"node %q must have exactly one incoming edge, found %d", node.ID, incoming[node.ID])
		}
	}

	chain, err := walkChain(trigger, byID, outgoing)
	if err != nil {
		return nil, err
	}

	if len(chain.Nodes) != len(def.Nodes) {
		return nil, newError(CodeUnreachableNode, firstUnreached(def.Nodes, chain),
			"node %q is not reachable from the trigger", firstUnreached(def.Nodes, chain))
	}

	if opts.ValidateConfig {
		for _, node := range chain.Nodes {
			if err := validateNodeConfig(node); err != nil {
				return nil, err
			}
		}
	}

	return chain, nil
}

func findTrigger(nodes []*models.Node) (*models.Node, error) {
	var trigger *models.Node

	for _, node := range nodes {
		if !node.Type.IsTrigger() {
			continue
		}

		if trigger != nil {
			return nil, newError(CodeMultipleTriggers, node.ID, "definition has more than one trigger node")
		}

		trigger = node
	}

	if trigger == nil {
		return nil, newError(CodeNoTrigger, "", "definition has no trigger node")
	}

	return trigger, nil
}

func walkChain(trigger *models.Node, byID map[string]*models.Node, outgoing map[string]*models.Edge) (*Chain, error) {
	visited := make(map[string]bool, len(byID))
	chain := &Chain{Nodes: make([]*models.Node, 0, len(byID))}

	current := trigger
	for current != nil {
		if visited[current.ID] {
			return nil, newError(CodeCycleDetected, current.ID, "cycle detected at node %q", current.ID)
		}

		visited[current.ID] = true
		chain.Nodes = append(chain.Nodes, current)

		edge, ok := outgoing[current.ID]
		if !ok {
			break
		}

		current = byID[edge.Target]
	}

	return chain, nil
}

// firstUnreached returns the first node, in definition order, missing from
// the chain.
func firstUnreached(nodes []*models.Node, chain *Chain) string {
	reached := make(map[string]bool, len(chain.Nodes))
	for _, node := range chain.Nodes {
		reached[node.ID] = true
	}

	for _, node := range nodes {
		if !reached[node.ID] {
			return node.ID
		}
	}

	return ""
}

// validateNodeConfig enforces per-type required fields. The recipient ("to")
// is deliberately never required here: absence means "use the lead's own
// address", resolved by the runner at send time.
func validateNodeConfig(node *models.Node) *ValidationError {
	switch node.Type {
	case models.NodeTypeTriggerManual, models.NodeTypeTriggerVoicemail:
		return nil
	case models.NodeTypeActionEmail:
		if node.DataString("subject") == "" {
			return newError(CodeMissingField, node.ID, "email node %q requires a subject", node.ID)
		}

		if node.DataString("body") == "" {
			return newError(CodeMissingField, node.ID, "email node %q requires a body", node.ID)
		}

		return nil
	case models.NodeTypeActionSMS:
		if node.DataString("message") == "" {
			return newError(CodeMissingField, node.ID, "sms node %q requires a message", node.ID)
		}

		return nil
	case models.NodeTypeActionWait:
		if _, err := node.WaitSpec(); err != nil {
			return newError(CodeMissingField, node.ID, "%s", err.Error())
		}

		return nil
	case models.NodeTypeActionAgent:
		if node.DataString("agentId") == "" {
			return newError(CodeMissingField, node.ID, "agent node %q requires an agentId", node.ID)
		}

		return nil
	default:
		return newError(CodeUnknownNodeType, node.ID, "node %q has unknown type %q", node.ID, node.Type)
	}
}
