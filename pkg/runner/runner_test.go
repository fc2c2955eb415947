package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/testutil"
)

type transportLog struct {
	emails   []EmailMessage
	sms      []SMSMessage
	handoffs []Handoff

	emailErr   error
	smsErr     error
	handoffErr error
}

func (tl *transportLog) collaborators() Collaborators {
	return Collaborators{
		SendEmail: func(_ context.Context, msg EmailMessage) (SendResult, error) {
			if tl.emailErr != nil {
				return SendResult{}, tl.emailErr
			}

			tl.emails = append(tl.emails, msg)

			return SendResult{ProviderMessageID: "email-1"}, nil
		},
		SendSMS: func(_ context.Context, msg SMSMessage) (SendResult, error) {
			if tl.smsErr != nil {
				return SendResult{}, tl.smsErr
			}

			tl.sms = append(tl.sms, msg)

			return SendResult{ProviderMessageID: "sms-1"}, nil
		},
		HandoffAgent: func(_ context.Context, handoff Handoff) (map[string]any, error) {
			if tl.handoffErr != nil {
				return nil, tl.handoffErr
			}

			tl.handoffs = append(tl.handoffs, handoff)

			return map[string]any{"session_ref": "sess-1"}, nil
		},
	}
}

func newTestRunner() *Runner {
	return NewRunner(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func stepIDs(steps []*models.Step) []string {
	ids := make([]string, len(steps))
	for i, step := range steps {
		ids[i] = step.NodeID
	}

	return ids
}

func TestRun_FullChainSuccess(t *testing.T) {
	transports := &transportLog{}

	def := testutil.NewDefinition(
		testutil.TriggerNode("t1"),
		testutil.WaitNode("w1", 2, "hours"),
		testutil.EmailNode("e1", "Hello", "First touch"),
		testutil.SMSNode("s1", "Still there?"),
	)

	started := time.Now()
	report := newTestRunner().Run(context.Background(), Input{
		Definition:    def,
		Lead:          models.Lead{Email: "lead@example.com", Phone: "+15551234567"},
		Collaborators: transports.collaborators(),
	})

	require.NotNil(t, report)
	assert.Equal(t, models.EnrollmentStatusSuccess, report.Status)
	assert.Nil(t, report.Err)
	assert.Equal(t, []string{"t1", "w1", "e1", "s1"}, stepIDs(report.Steps))

	// The wait is a logical marker only: no real delay.
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, map[string]any{"amount": 2, "unit": "hours"}, report.Steps[1].Output)

	require.Len(t, transports.emails, 1)
	assert.Equal(t, "lead@example.com", transports.emails[0].To)
	require.Len(t, transports.sms, 1)
	assert.Equal(t, "+15551234567", transports.sms[0].To)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	transports := &transportLog{emailErr: errors.New("mailgun unavailable")}

	def := testutil.NewDefinition(
		testutil.TriggerNode("t1"),
		testutil.EmailNode("e1", "Hello", "body"),
		testutil.SMSNode("s1", "never sent"),
	)

	report := newTestRunner().Run(context.Background(), Input{
		Definition:    def,
		Lead:          models.Lead{Email: "lead@example.com", Phone: "+15551234567"},
		Collaborators: transports.collaborators(),
	})

	assert.Equal(t, models.EnrollmentStatusFailed, report.Status)
	require.NotNil(t, report.Err)
	assert.Equal(t, "e1", report.Err.NodeID)

	// Only the trigger and the failing email step are recorded; the sms
	// node is never attempted.
	assert.Equal(t, []string{"t1", "e1"}, stepIDs(report.Steps))
	assert.Empty(t, transports.sms)
}

func TestRun_MissingRecipient(t *testing.T) {
	transports := &transportLog{}

	def := testutil.NewDefinition(
		testutil.TriggerNode("t1"),
		testutil.SMSNode("s1", "hi"),
	)

	report := newTestRunner().Run(context.Background(), Input{
		Definition:    def,
		Lead:          models.Lead{}, // no phone anywhere
		Collaborators: transports.collaborators(),
	})

	assert.Equal(t, models.EnrollmentStatusFailed, report.Status)
	require.NotNil(t, report.Err)
	assert.Equal(t, "s1", report.Err.NodeID)
	assert.Contains(t, report.Err.Message, "missing recipient")
	assert.Empty(t, transports.sms)
}

func TestRun_TestRecipientOverrides(t *testing.T) {
	transports := &transportLog{}

	def := testutil.NewDefinition(
		testutil.TriggerNode("t1"),
		testutil.EmailNode("e1", "s", "b"),
		testutil.SMSNode("s1", "m"),
	)

	report := newTestRunner().Run(context.Background(), Input{
		Definition: def,
		Lead:       models.Lead{Email: "real@example.com", Phone: "+15550001111"},
		TestRecipients: TestRecipients{
			LeadEmail: "tester@example.com",
			LeadPhone: "+15559998888",
		},
		Collaborators: transports.collaborators(),
	})

	assert.Equal(t, models.EnrollmentStatusSuccess, report.Status)
	require.Len(t, transports.emails, 1)
	assert.Equal(t, "tester@example.com", transports.emails[0].To)
	require.Len(t, transports.sms, 1)
	assert.Equal(t, "+15559998888", transports.sms[0].To)
}

func TestRun_ExplicitNodeRecipientWins(t *testing.T) {
	transports := &transportLog{}

	def := testutil.NewDefinition(
		testutil.TriggerNode("t1"),
		testutil.EmailNodeTo("e1", "fixed@example.com", "s", "b"),
	)

	report := newTestRunner().Run(context.Background(), Input{
		Definition:     def,
		Lead:           models.Lead{Email: "lead@example.com"},
		TestRecipients: TestRecipients{LeadEmail: "tester@example.com"},
		Collaborators:  transports.collaborators(),
	})

	assert.Equal(t, models.EnrollmentStatusSuccess, report.Status)
	require.Len(t, transports.emails, 1)
	assert.Equal(t, "fixed@example.com", transports.emails[0].To)
}

func TestRun_SendWindowSkips(t *testing.T) {
	transports := &transportLog{}

	def := testutil.NewDefinition(
		testutil.TriggerNode("t1"),
		testutil.EmailNode("e1", "s", "b"),
	)
	def.Settings.SendWindow = &models.SendWindow{
		Enabled:   true,
		StartTime: "09:00",
		EndTime:   "17:00",
		Days:      []int{1}, // Monday only
		Timezone:  "UTC",
	}

	// A Tuesday: outside the configured days.
	report := newTestRunner().Run(context.Background(), Input{
		Definition:    def,
		Lead:          models.Lead{Email: "lead@example.com"},
		Collaborators: transports.collaborators(),
		Now:           time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, models.EnrollmentStatusSuccess, report.Status)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, models.StepStatusSuccess, report.Steps[1].Status)
	assert.Equal(t, true, report.Steps[1].Output[models.StepOutputSkipped])
	assert.Empty(t, transports.emails, "transport must not be invoked outside the window")
}

func TestRun_AgentChannelInference(t *testing.T) {
	t.Run("email earlier in chain implies EMAIL", func(t *testing.T) {
		transports := &transportLog{}

		def := testutil.NewDefinition(
			testutil.TriggerNode("t1"),
			testutil.EmailNode("e1", "s", "b"),
			testutil.AgentNode("g1", "agent-9"),
		)

		report := newTestRunner().Run(context.Background(), Input{
			Definition:    def,
			Lead:          models.Lead{Email: "lead@example.com", Phone: "+15551234567"},
			Collaborators: transports.collaborators(),
		})

		assert.Equal(t, models.EnrollmentStatusSuccess, report.Status)
		require.Len(t, transports.handoffs, 1)
		assert.Equal(t, models.ChannelEmail, transports.handoffs[0].Lead.Channel)
	})

	t.Run("no email means SMS", func(t *testing.T) {
		transports := &transportLog{}

		def := testutil.NewDefinition(
			testutil.TriggerNode("t1"),
			testutil.SMSNode("s1", "hi"),
			testutil.AgentNode("g1", "agent-9"),
		)

		report := newTestRunner().Run(context.Background(), Input{
			Definition:    def,
			Lead:          models.Lead{Phone: "+15551234567"},
			Collaborators: transports.collaborators(),
		})

		assert.Equal(t, models.EnrollmentStatusSuccess, report.Status)
		require.Len(t, transports.handoffs, 1)
		assert.Equal(t, models.ChannelSMS, transports.handoffs[0].Lead.Channel)
	})

	t.Run("explicit override beats inference", func(t *testing.T) {
		transports := &transportLog{}

		def := testutil.NewDefinition(
			testutil.TriggerNode("t1"),
			testutil.EmailNode("e1", "s", "b"),
			testutil.AgentNode("g1", "agent-9"),
		)

		report := newTestRunner().Run(context.Background(), Input{
			Definition:     def,
			Lead:           models.Lead{Email: "lead@example.com", Phone: "+15551234567"},
			TestRecipients: TestRecipients{LeadChannel: models.ChannelSMS},
			Collaborators:  transports.collaborators(),
		})

		assert.Equal(t, models.EnrollmentStatusSuccess, report.Status)
		require.Len(t, transports.handoffs, 1)
		assert.Equal(t, models.ChannelSMS, transports.handoffs[0].Lead.Channel)
	})
}

func TestRun_AgentStepOutputMergesHandoffResult(t *testing.T) {
	transports := &transportLog{}

	def := testutil.NewDefinition(
		testutil.TriggerNode("t1"),
		testutil.AgentNode("g1", "agent-9"),
	)

	report := newTestRunner().Run(context.Background(), Input{
		Definition:    def,
		Lead:          models.Lead{Phone: "+15551234567"},
		Collaborators: transports.collaborators(),
	})

	require.Len(t, report.Steps, 2)
	output := report.Steps[1].Output
	assert.Equal(t, "agent-9", output["agentId"])
	assert.Equal(t, "sess-1", output["session_ref"])
}

func TestRun_ValidationFailureIsSingleFailedStep(t *testing.T) {
	transports := &transportLog{}

	// Branching definition: t1 -> a1 and t1 -> a2.
	def := &models.Definition{
		Nodes: []*models.Node{
			testutil.TriggerNode("t1"),
			testutil.SMSNode("a1", "hi"),
			testutil.SMSNode("a2", "hi"),
		},
		Edges: []*models.Edge{
			{ID: "edge-1", Source: "t1", Target: "a1"},
			{ID: "edge-2", Source: "t1", Target: "a2"},
		},
	}

	report := newTestRunner().Run(context.Background(), Input{
		Definition:    def,
		Lead:          models.Lead{Phone: "+15551234567"},
		Collaborators: transports.collaborators(),
	})

	assert.Equal(t, models.EnrollmentStatusFailed, report.Status)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, "t1", report.Steps[0].NodeID)
	assert.Equal(t, models.StepStatusFailed, report.Steps[0].Status)
	assert.Empty(t, transports.sms)
}

func TestRun_PausesAtWaitNode(t *testing.T) {
	transports := &transportLog{}

	def := testutil.NewDefinition(
		testutil.TriggerNode("t1"),
		testutil.SMSNode("s1", "first"),
		testutil.WaitNode("w1", 1, "days"),
		testutil.SMSNode("s2", "second"),
	)

	report := newTestRunner().Run(context.Background(), Input{
		Definition:    def,
		Lead:          models.Lead{Phone: "+15551234567"},
		Collaborators: transports.collaborators(),
		PauseAtWait:   true,
	})

	assert.Equal(t, models.EnrollmentStatusSuccess, report.Status)
	assert.True(t, report.Paused)
	assert.Equal(t, []string{"t1", "s1", "w1"}, stepIDs(report.Steps))

	last := report.Steps[len(report.Steps)-1]
	assert.Equal(t, true, last.Output[models.StepOutputPaused])
	assert.Equal(t, 1, last.Output["amount"])

	// Nothing past the wait was attempted.
	require.Len(t, transports.sms, 1)
	assert.Equal(t, "first", transports.sms[0].Body)
}

func TestRun_ResumeAfterWaitNode(t *testing.T) {
	transports := &transportLog{}

	def := testutil.NewDefinition(
		testutil.TriggerNode("t1"),
		testutil.EmailNode("e1", "Hello", "First touch"),
		testutil.WaitNode("w1", 1, "days"),
		testutil.AgentNode("a1", "agent-9"),
	)

	report := newTestRunner().Run(context.Background(), Input{
		Definition:    def,
		Lead:          models.Lead{Phone: "+15551234567", Email: "pat@example.com"},
		Collaborators: transports.collaborators(),
		PauseAtWait:   true,
		ResumeAfter:   "w1",
	})

	assert.Equal(t, models.EnrollmentStatusSuccess, report.Status)
	assert.False(t, report.Paused)
	assert.Equal(t, []string{"a1"}, stepIDs(report.Steps))

	// The skipped email node still counts for channel inference.
	require.Len(t, transports.handoffs, 1)
	assert.Equal(t, models.ChannelEmail, transports.handoffs[0].Lead.Channel)
	assert.Empty(t, transports.emails)
}

func TestRun_ResumeAfterUnknownNode(t *testing.T) {
	transports := &transportLog{}

	def := testutil.NewDefinition(
		testutil.TriggerNode("t1"),
		testutil.SMSNode("s1", "hello"),
	)

	report := newTestRunner().Run(context.Background(), Input{
		Definition:    def,
		Lead:          models.Lead{Phone: "+15551234567"},
		Collaborators: transports.collaborators(),
		ResumeAfter:   "missing",
	})

	assert.Equal(t, models.EnrollmentStatusFailed, report.Status)
	require.NotNil(t, report.Err)
	assert.Equal(t, "missing", report.Err.NodeID)
	assert.Empty(t, report.Steps)
	assert.Empty(t, transports.sms)
}

func TestRun_MarksNodeSpanOnTransportFailure(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	transports := &transportLog{smsErr: errors.New("twilio unavailable")}

	def := testutil.NewDefinition(
		testutil.TriggerNode("t1"),
		testutil.SMSNode("s1", "hello"),
	)

	report := newTestRunner().WithTracer(provider.Tracer("test")).Run(context.Background(), Input{
		Definition:    def,
		Lead:          models.Lead{Phone: "+15551234567"},
		Collaborators: transports.collaborators(),
	})
	require.Equal(t, models.EnrollmentStatusFailed, report.Status)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	// The trigger span ends clean, the failed sms span carries the error.
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Equal(t, "twilio unavailable", failed.Status().Description)

	names := make([]string, 0, len(failed.Events()))
	for _, event := range failed.Events() {
		names = append(names, event.Name)
	}

	assert.Contains(t, names, "error_occurred")
}
