package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).WorkflowRepository()

	workflow := &models.Workflow{
		ID:     "wf-1",
		Name:   "Voicemail follow-up",
		Status: models.WorkflowStatusDraft,
	}

	require.NoError(t, repo.Save(ctx, workflow))
	assert.False(t, workflow.CreatedAt.IsZero())

	loaded, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Voicemail follow-up", loaded.Name)
	assert.Equal(t, models.WorkflowStatusDraft, loaded.Status)
}

func TestWorkflowRepository_GetByIDMissing(t *testing.T) {
	repo := newTestPersistence(t).WorkflowRepository()

	loaded, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestWorkflowRepository_SaveRequiresID(t *testing.T) {
	repo := newTestPersistence(t).WorkflowRepository()

	err := repo.Save(context.Background(), &models.Workflow{Name: "no id"})
	require.Error(t, err)
}

func TestWorkflowRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).WorkflowRepository()

	require.NoError(t, repo.Save(ctx, &models.Workflow{ID: "wf-1"}))
	require.NoError(t, repo.Delete(ctx, "wf-1"))

	loaded, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	err = repo.Delete(ctx, "wf-1")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_ListActive(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).WorkflowRepository()

	require.NoError(t, repo.Save(ctx, &models.Workflow{ID: "wf-1", Status: models.WorkflowStatusActive}))
	require.NoError(t, repo.Save(ctx, &models.Workflow{ID: "wf-2", Status: models.WorkflowStatusDraft}))
	require.NoError(t, repo.Save(ctx, &models.Workflow{ID: "wf-3", Status: models.WorkflowStatusInactive}))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "wf-1", active[0].ID)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestEnrollmentRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).EnrollmentRepository()

	enrollment := &models.Enrollment{
		ID:         "enr-1",
		WorkflowID: "wf-1",
		Status:     models.EnrollmentStatusSuccess,
		StartedAt:  time.Now().UTC(),
		Steps: []*models.Step{
			{NodeID: "t1", NodeType: models.NodeTypeTriggerManual, Status: models.StepStatusSuccess},
		},
	}

	require.NoError(t, repo.Save(ctx, enrollment))

	loaded, err := repo.GetByID(ctx, "enr-1")
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "t1", loaded.Steps[0].NodeID)

	require.NoError(t, repo.Delete(ctx, "enr-1"))

	_, err = repo.GetByID(ctx, "enr-1")
	require.Error(t, err)
	assert.True(t, persistence.IsEnrollmentNotFound(err))

	err = repo.Delete(ctx, "enr-1")
	require.Error(t, err)
	assert.True(t, persistence.IsEnrollmentNotFound(err))
}

func TestEnrollmentRepository_ListByWorkflow(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).EnrollmentRepository()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"enr-a", "enr-b", "enr-c"} {
		require.NoError(t, repo.Save(ctx, &models.Enrollment{
			ID:         id,
			WorkflowID: "wf-1",
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	require.NoError(t, repo.Save(ctx, &models.Enrollment{ID: "enr-other", WorkflowID: "wf-2", StartedAt: base}))

	listed, err := repo.ListByWorkflow(ctx, "wf-1", 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "enr-c", listed[0].ID)
	assert.Equal(t, "enr-b", listed[1].ID)
}

func smsSession(id, workflowID, agentID, phone string) *models.AgentSession {
	norm := phone
	last10 := phone
	if len(phone) > 10 {
		last10 = phone[len(phone)-10:]
	}

	return &models.AgentSession{
		ID:              id,
		WorkflowID:      workflowID,
		AgentID:         agentID,
		Channel:         models.ChannelSMS,
		LeadPhoneNorm:   norm,
		LeadPhoneLast10: last10,
		Active:          true,
		ActivatedAt:     time.Now().UTC(),
	}
}

func TestSessionRepository_GetByIDMissing(t *testing.T) {
	repo := newTestPersistence(t).SessionRepository()

	_, err := repo.GetByID(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, persistence.IsSessionNotFound(err))
}

func TestSessionRepository_ListActiveByIdentity(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).SessionRepository()

	require.NoError(t, repo.Save(ctx, smsSession("s-full", "wf-1", "agent-1", "15551230001")))
	require.NoError(t, repo.Save(ctx, smsSession("s-other-agent", "wf-1", "agent-2", "15551230001")))
	require.NoError(t, repo.Save(ctx, smsSession("s-other-wf", "wf-2", "agent-1", "15551230001")))

	inactive := smsSession("s-inactive", "wf-1", "agent-1", "15551230001")
	inactive.Active = false
	require.NoError(t, repo.Save(ctx, inactive))

	matched, err := repo.ListActiveByIdentity(ctx, persistence.SessionIdentityQuery{
		WorkflowID:  "wf-1",
		AgentID:     "agent-1",
		Channel:     models.ChannelSMS,
		PhoneNorm:   "15551230001",
		PhoneLast10: "5551230001",
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "s-full", matched[0].ID)
}

func TestSessionRepository_ListActiveByIdentityLast10(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).SessionRepository()

	// Stored without country code, queried with it.
	stored := smsSession("s-bare", "wf-1", "agent-1", "5551230001")
	require.NoError(t, repo.Save(ctx, stored))

	matched, err := repo.ListActiveByIdentity(ctx, persistence.SessionIdentityQuery{
		WorkflowID:  "wf-1",
		AgentID:     "agent-1",
		Channel:     models.ChannelSMS,
		PhoneNorm:   "15551230001",
		PhoneLast10: "5551230001",
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "s-bare", matched[0].ID)
}

func TestSessionRepository_ListActiveByIdentityEmail(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).SessionRepository()

	session := &models.AgentSession{
		ID:            "s-email",
		WorkflowID:    "wf-1",
		AgentID:       "agent-1",
		Channel:       models.ChannelEmail,
		LeadEmailNorm: "lead@example.com",
		Active:        true,
	}
	require.NoError(t, repo.Save(ctx, session))

	matched, err := repo.ListActiveByIdentity(ctx, persistence.SessionIdentityQuery{
		WorkflowID: "wf-1",
		AgentID:    "agent-1",
		Channel:    models.ChannelEmail,
		EmailNorm:  "lead@example.com",
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, matched, 1)

	none, err := repo.ListActiveByIdentity(ctx, persistence.SessionIdentityQuery{
		WorkflowID: "wf-1",
		AgentID:    "agent-1",
		Channel:    models.ChannelEmail,
		EmailNorm:  "other@example.com",
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSessionRepository_ListDueFollowUps(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).SessionRepository()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	overdue := smsSession("s-overdue", "wf-1", "agent-1", "15551230001")
	at1 := now.Add(-2 * time.Hour)
	overdue.NextFollowUpAt = &at1
	require.NoError(t, repo.Save(ctx, overdue))

	justDue := smsSession("s-just-due", "wf-1", "agent-1", "15551230002")
	at2 := now.Add(-time.Minute)
	justDue.NextFollowUpAt = &at2
	require.NoError(t, repo.Save(ctx, justDue))

	future := smsSession("s-future", "wf-1", "agent-1", "15551230003")
	at3 := now.Add(time.Hour)
	future.NextFollowUpAt = &at3
	require.NoError(t, repo.Save(ctx, future))

	unscheduled := smsSession("s-unscheduled", "wf-1", "agent-1", "15551230004")
	require.NoError(t, repo.Save(ctx, unscheduled))

	due, err := repo.ListDueFollowUps(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "s-overdue", due[0].ID)
	assert.Equal(t, "s-just-due", due[1].ID)
}

func TestSessionRepository_ListDueFollowUpsLimit(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).SessionRepository()

	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		session := smsSession("s-"+string(rune('a'+i)), "wf-1", "agent-1", "1555123000"+string(rune('0'+i)))
		at := now.Add(-time.Duration(i+1) * time.Minute)
		session.NextFollowUpAt = &at
		require.NoError(t, repo.Save(ctx, session))
	}

	due, err := repo.ListDueFollowUps(ctx, now, 3)
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestSessionRepository_DeactivateByEnrollment(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).SessionRepository()

	session := smsSession("s-1", "wf-1", "agent-1", "15551230001")
	session.EnrollmentID = "enr-1"
	require.NoError(t, repo.Save(ctx, session))

	unrelated := smsSession("s-2", "wf-1", "agent-1", "15551230002")
	unrelated.EnrollmentID = "enr-2"
	require.NoError(t, repo.Save(ctx, unrelated))

	require.NoError(t, repo.DeactivateByEnrollment(ctx, "enr-1"))

	loaded, err := repo.GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, loaded.Active)

	other, err := repo.GetByID(ctx, "s-2")
	require.NoError(t, err)
	assert.True(t, other.Active)
}

func TestEventRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).EventRepository()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"ev-a", "ev-b", "ev-c"} {
		require.NoError(t, repo.Append(ctx, &models.AgentEvent{
			ID:         id,
			WorkflowID: "wf-1",
			Level:      models.EventLevelInfo,
			Message:    "enrollment started",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.NoError(t, repo.Append(ctx, &models.AgentEvent{
		ID:         "ev-other",
		WorkflowID: "wf-2",
		Level:      models.EventLevelWarn,
		CreatedAt:  base,
	}))

	events, err := repo.ListByWorkflow(ctx, "wf-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-c", events[0].ID)
	assert.Equal(t, "ev-b", events[1].ID)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := newTestPersistence(t)
	require.NoError(t, p.HealthCheck(context.Background()))

	missing := NewPersistence("/nonexistent/convoflow-test-root")
	require.Error(t, missing.HealthCheck(context.Background()))
}
