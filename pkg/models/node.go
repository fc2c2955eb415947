// Package models defines the core domain records for linear outreach
// workflows: definitions, enrollments, agent sessions and their events.
package models

import (
	"fmt"
	"strings"
)

// NodeType identifies the behavior of a node in a workflow definition.
type NodeType string

const (
	NodeTypeTriggerManual    NodeType = "trigger.manual"
	NodeTypeTriggerVoicemail NodeType = "trigger.voicemail5"
	NodeTypeActionEmail      NodeType = "action.email"
	NodeTypeActionSMS        NodeType = "action.sms"
	NodeTypeActionWait       NodeType = "action.wait"
	NodeTypeActionAgent      NodeType = "action.agent"
)

// KnownNodeTypes lists every node type the validator and runner handle.
// Adding a type here without a matching case in both places fails their
// exhaustiveness tests.
func KnownNodeTypes() []NodeType {
	return []NodeType{
		NodeTypeTriggerManual,
		NodeTypeTriggerVoicemail,
		NodeTypeActionEmail,
		NodeTypeActionSMS,
		NodeTypeActionWait,
		NodeTypeActionAgent,
	}
}

func (t NodeType) IsTrigger() bool {
	return strings.HasPrefix(string(t), "trigger.")
}

func (t NodeType) IsKnown() bool {
	for _, known := range KnownNodeTypes() {
		if t == known {
			return true
		}
	}

	return false
}

// Position is the editor canvas placement of a node. The engine never
// reads it; it round-trips so saved definitions render where they were left.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one step of a workflow definition. Data is schemaless at this
// level; the per-type accessors below interpret it.
type Node struct {
	ID       string         `json:"id"       validate:"required"`
	Type     NodeType       `json:"type"     validate:"required"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data"`
}

// Edge links two nodes. A validated definition has at most one outgoing
// edge per source and exactly one incoming edge per non-trigger node.
type Edge struct {
	ID     string `json:"id"     validate:"required"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// DataString returns a string field from the node data, trimmed. Missing
// or non-string values come back empty.
func (n *Node) DataString(key string) string {
	if n.Data == nil {
		return ""
	}

	value, ok := n.Data[key].(string)
	if !ok {
		return ""
	}

	return strings.TrimSpace(value)
}

// WaitUnit is the time unit of an action.wait node.
type WaitUnit string

const (
	WaitUnitMinutes WaitUnit = "minutes"
	WaitUnitHours   WaitUnit = "hours"
	WaitUnitDays    WaitUnit = "days"
)

// WaitSpec is the decoded configuration of an action.wait node.
type WaitSpec struct {
	Amount int      `json:"amount"`
	Unit   WaitUnit `json:"unit"`
}

// WaitSpec decodes the amount/unit pair from node data. JSON decoding
// yields float64 for numbers, so both int and float forms are accepted;
// a fractional amount is rejected.
func (n *Node) WaitSpec() (WaitSpec, error) {
	if n.Data == nil {
		return WaitSpec{}, fmt.Errorf("wait node %s has no data", n.ID)
	}

	var amount int

	switch v := n.Data["amount"].(type) {
	case int:
		amount = v
	case float64:
		amount = int(v)
		if float64(amount) != v {
			return WaitSpec{}, fmt.Errorf("wait node %s amount must be a whole number", n.ID)
		}
	default:
		return WaitSpec{}, fmt.Errorf("wait node %s amount must be a number", n.ID)
	}

	if amount <= 0 {
		return WaitSpec{}, fmt.Errorf("wait node %s amount must be positive", n.ID)
	}

	unit := WaitUnit(n.DataString("unit"))
	switch unit {
	case WaitUnitMinutes, WaitUnitHours, WaitUnitDays:
	default:
		return WaitSpec{}, fmt.Errorf("wait node %s unit must be minutes, hours or days", n.ID)
	}

	return WaitSpec{Amount: amount, Unit: unit}, nil
}
