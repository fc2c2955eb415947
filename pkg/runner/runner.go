// Package runner executes a validated chain node-by-node, consulting the
// send window before each send and short-circuiting on first failure.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/thibo-redpepper/convoflow/pkg/definition"
	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/otelhelper"
)

// EmailMessage is the payload handed to the email transport collaborator.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// SMSMessage is the payload handed to the SMS transport collaborator.
type SMSMessage struct {
	To   string
	Body string
}

// SendResult is what a transport reports back on success.
type SendResult struct {
	ProviderMessageID string
}

// HandoffLead is the lead identity passed to the agent collaborator,
// including the channel the conversation should continue on.
type HandoffLead struct {
	Name    string
	Email   string
	Phone   string
	Channel models.Channel
}

// Handoff is the request to activate an AI agent for a lead.
type Handoff struct {
	AgentID string
	Notes   string
	Lead    HandoffLead
}

// Collaborators are the external send/handoff contracts the runner invokes.
// Any returned error stops the run at the current node.
type Collaborators struct {
	SendEmail    func(ctx context.Context, msg EmailMessage) (SendResult, error)
	SendSMS      func(ctx context.Context, msg SMSMessage) (SendResult, error)
	HandoffAgent func(ctx context.Context, handoff Handoff) (map[string]any, error)
}

// TestRecipients override where sends actually go during a test run, and
// optionally force the agent handoff channel.
type TestRecipients struct {
	LeadEmail   string
	LeadPhone   string
	LeadChannel models.Channel
}

// Input is one runner invocation.
type Input struct {
	Definition     *models.Definition
	Lead           models.Lead
	TestRecipients TestRecipients
	Collaborators  Collaborators

	// Now overrides the clock for send-window evaluation; zero means
	// time.Now.
	Now time.Time

	// PauseAtWait stops the walk at the first wait node, recording it with
	// the paused marker. Live enrollments run this way and resume later.
	PauseAtWait bool

	// ResumeAfter skips chain nodes up to and including this node id
	// before executing. Used when a paused enrollment advances.
	ResumeAfter string
}

// ExecutionError identifies the node a run stopped at and why.
type ExecutionError struct {
	NodeID  string
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %s: %s", e.NodeID, e.Message)
}

// Report is the complete outcome of one run: every recorded step in chain
// order, and the error that stopped the run, if any.
type Report struct {
	Status EnrollmentOutcome
	Steps  []*models.Step
	Err    *ExecutionError

	// Paused is set when the walk stopped at a wait node; the last step
	// carries the paused marker.
	Paused bool
}

// EnrollmentOutcome mirrors models.EnrollmentStatus for the report.
type EnrollmentOutcome = models.EnrollmentStatus

// Runner walks validated chains. It holds no per-run state; one Runner is
// safe for concurrent Run calls.
type Runner struct {
	logger *slog.Logger
	tracer trace.Tracer
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		logger: logger,
		tracer: noop.NewTracerProvider().Tracer("runner"),
	}
}

// WithTracer replaces the no-op tracer, giving each node execution a span.
func (r *Runner) WithTracer(tracer trace.Tracer) *Runner {
	r.tracer = tracer

	return r
}

// Run validates the definition strictly and walks the chain. It never
// returns an error: validation and execution failures are reported as a
// failed Report so callers always get an inspectable step history.
func (r *Runner) Run(ctx context.Context, input Input) *Report {
	now := input.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	chain, err := definition.Validate(input.Definition, definition.Options{ValidateConfig: true})
	if err != nil {
		return r.failBeforeStart(ctx, input.Definition, err)
	}

	report := &Report{Status: models.EnrollmentStatusSuccess}
	emailSeen := false
	skipping := input.ResumeAfter != ""

	for _, node := range chain.Nodes {
		if skipping {
			if node.Type == models.NodeTypeActionEmail {
				emailSeen = true
			}

			if node.ID == input.ResumeAfter {
				skipping = false
			}

			continue
		}

		stepCtx, span := otelhelper.StartSpan(ctx, r.tracer, "runner.node",
			attribute.String(otelhelper.NodeIDKey, node.ID),
			attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		)

		output, err := r.executeNode(stepCtx, node, input, now, emailSeen)
		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, node.ID))
		}

		span.End()

		if node.Type == models.NodeTypeActionEmail {
			emailSeen = true
		}

		if err != nil {
			report.Steps = append(report.Steps, newStep(node, models.StepStatusFailed, map[string]any{
				"error": err.Error(),
			}))
			report.Status = models.EnrollmentStatusFailed
			report.Err = &ExecutionError{NodeID: node.ID, Message: err.Error()}

			r.logger.ErrorContext(ctx, "Chain execution stopped",
				"node_id", node.ID, "node_type", node.Type, "error", err)

			return report
		}

		if input.PauseAtWait && node.Type == models.NodeTypeActionWait {
			if output == nil {
				output = map[string]any{}
			}

			output[models.StepOutputPaused] = true
			report.Steps = append(report.Steps, newStep(node, models.StepStatusSuccess, output))
			report.Paused = true

			r.logger.InfoContext(ctx, "Chain paused at wait node", "node_id", node.ID)

			return report
		}

		report.Steps = append(report.Steps, newStep(node, models.StepStatusSuccess, output))
	}

	if skipping {
		report.Status = models.EnrollmentStatusFailed
		report.Err = &ExecutionError{
			NodeID:  input.ResumeAfter,
			Message: "resume node not found in chain",
		}
	}

	return report
}

// failBeforeStart records a validation failure as a single failed step
// pinned to the trigger so history panels always have something to show.
func (r *Runner) failBeforeStart(ctx context.Context, def *models.Definition, err error) *Report {
	nodeID := "definition"
	nodeType := models.NodeTypeTriggerManual

	for _, node := range def.Nodes {
		if node.Type.IsTrigger() {
			nodeID = node.ID
			nodeType = node.Type

			break
		}
	}

	r.logger.WarnContext(ctx, "Definition failed validation before execution", "error", err)

	step := &models.Step{
		ID:        uuid.New().String(),
		NodeID:    nodeID,
		NodeType:  nodeType,
		Status:    models.StepStatusFailed,
		Output:    map[string]any{"error": err.Error()},
		CreatedAt: time.Now().UTC(),
	}

	return &Report{
		Status: models.EnrollmentStatusFailed,
		Steps:  []*models.Step{step},
		Err:    &ExecutionError{NodeID: nodeID, Message: err.Error()},
	}
}

func (r *Runner) executeNode(ctx context.Context, node *models.Node, input Input, now time.Time, emailSeen bool) (map[string]any, error) {
	switch node.Type {
	case models.NodeTypeTriggerManual, models.NodeTypeTriggerVoicemail:
		return map[string]any{"triggered": true}, nil
	case models.NodeTypeActionWait:
		return r.executeWait(node)
	case models.NodeTypeActionEmail:
		return r.executeEmail(ctx, node, input, now)
	case models.NodeTypeActionSMS:
		return r.executeSMS(ctx, node, input, now)
	case models.NodeTypeActionAgent:
		return r.executeAgent(ctx, node, input, emailSeen)
	default:
		return nil, fmt.Errorf("no handler for node type %q", node.Type)
	}
}

// executeWait records the wait as a logical marker only. No real delay
// happens here; live enrollments resume at this marker via an external
// scheduler.
func (r *Runner) executeWait(node *models.Node) (map[string]any, error) {
	spec, err := node.WaitSpec()
	if err != nil {
		return nil, err
	}

	return map[string]any{"amount": spec.Amount, "unit": string(spec.Unit)}, nil
}

func (r *Runner) executeEmail(ctx context.Context, node *models.Node, input Input, now time.Time) (map[string]any, error) {
	to := node.DataString("to")
	if to == "" {
		to = input.TestRecipients.LeadEmail
	}

	if to == "" {
		to = input.Lead.Email
	}

	if to == "" {
		return nil, fmt.Errorf("missing recipient: no email address on node or lead")
	}

	if skipped, output := r.checkWindow(ctx, node, input, now); skipped {
		return output, nil
	}

	result, err := input.Collaborators.SendEmail(ctx, EmailMessage{
		To:      to,
		Subject: node.DataString("subject"),
		Body:    node.DataString("body"),
	})
	if err != nil {
		return nil, fmt.Errorf("email send failed: %w", err)
	}

	return map[string]any{"to": to, "provider_message_id": result.ProviderMessageID}, nil
}

func (r *Runner) executeSMS(ctx context.Context, node *models.Node, input Input, now time.Time) (map[string]any, error) {
	to := node.DataString("to")
	if to == "" {
		to = input.TestRecipients.LeadPhone
	}

	if to == "" {
		to = input.Lead.Phone
	}

	if to == "" {
		return nil, fmt.Errorf("missing recipient: no phone number on node or lead")
	}

	if skipped, output := r.checkWindow(ctx, node, input, now); skipped {
		return output, nil
	}

	result, err := input.Collaborators.SendSMS(ctx, SMSMessage{
		To:   to,
		Body: node.DataString("message"),
	})
	if err != nil {
		return nil, fmt.Errorf("sms send failed: %w", err)
	}

	return map[string]any{"to": to, "provider_message_id": result.ProviderMessageID}, nil
}

func (r *Runner) executeAgent(ctx context.Context, node *models.Node, input Input, emailSeen bool) (map[string]any, error) {
	channel := input.TestRecipients.LeadChannel
	if channel == "" {
		if emailSeen {
			channel = models.ChannelEmail
		} else {
			channel = models.ChannelSMS
		}
	}

	agentID := node.DataString("agentId")

	result, err := input.Collaborators.HandoffAgent(ctx, Handoff{
		AgentID: agentID,
		Notes:   node.DataString("notes"),
		Lead: HandoffLead{
			Name:    input.Lead.Name,
			Email:   firstNonEmpty(input.TestRecipients.LeadEmail, input.Lead.Email),
			Phone:   firstNonEmpty(input.TestRecipients.LeadPhone, input.Lead.Phone),
			Channel: channel,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("agent handoff failed: %w", err)
	}

	output := map[string]any{"agentId": agentID, "channel": string(channel)}
	for k, v := range result {
		output[k] = v
	}

	return output, nil
}

// checkWindow returns the skipped marker when the send window excludes now.
// A skipped send is a success: the step is logically deferred, not failed,
// and the transport is never invoked.
func (r *Runner) checkWindow(ctx context.Context, node *models.Node, input Input, now time.Time) (bool, map[string]any) {
	window := input.Definition.Settings.SendWindow
	if window.Contains(now) {
		return false, nil
	}

	r.logger.InfoContext(ctx, "Send outside window, deferring",
		"node_id", node.ID, "node_type", node.Type)

	return true, map[string]any{models.StepOutputSkipped: true}
}

func newStep(node *models.Node, status models.StepStatus, output map[string]any) *models.Step {
	return &models.Step{
		ID:        uuid.New().String(),
		NodeID:    node.ID,
		NodeType:  node.Type,
		Status:    status,
		Output:    output,
		CreatedAt: time.Now().UTC(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
