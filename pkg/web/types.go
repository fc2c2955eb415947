// Package web provides HTTP handlers and request types for the workflow API.
package web

import "github.com/thibo-redpepper/convoflow/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string            `json:"name"                  validate:"required,min=3"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status,omitempty"      validate:"omitempty,oneof=draft active inactive"`
	Definition  models.Definition `json:"definition"`
}

// UpdateWorkflowRequest represents the request body for replacing a workflow.
// An empty status keeps the stored one.
type UpdateWorkflowRequest struct {
	Name        string            `json:"name"                  validate:"required,min=3"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status,omitempty"      validate:"omitempty,oneof=draft active inactive"`
	Definition  models.Definition `json:"definition"`
}

// TestRunRequest represents the request body for a test execution. Recipient
// overrides redirect real sends to the operator running the test.
type TestRunRequest struct {
	Lead        models.Lead `json:"lead"`
	TestEmail   string      `json:"test_email,omitempty"   validate:"omitempty,email"`
	TestPhone   string      `json:"test_phone,omitempty"`
	TestChannel string      `json:"test_channel,omitempty" validate:"omitempty,oneof=SMS EMAIL"`
}

// InboundSMSRequest represents one provider webhook for a lead reply.
type InboundSMSRequest struct {
	From      string `json:"from"                 validate:"required"`
	To        string `json:"to,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// VoicemailRequest represents one voicemail-drop notification that should
// enroll the lead into matching live workflows.
type VoicemailRequest struct {
	Lead       models.Lead `json:"lead"`
	LocationID string      `json:"location_id,omitempty"`
}

// ValidateResponse is the editor-facing validation verdict for a posted
// definition.
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Chain  []string `json:"chain,omitempty"`
	Code   string   `json:"code,omitempty"`
	NodeID string   `json:"node_id,omitempty"`
	Error  string   `json:"error,omitempty"`
}
