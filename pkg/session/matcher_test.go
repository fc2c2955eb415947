package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
	"github.com/thibo-redpepper/convoflow/pkg/persistence/file"
)

func newTestMatcher(t *testing.T) (*Matcher, persistence.SessionRepository) {
	t.Helper()

	repo := file.NewPersistence(t.TempDir()).SessionRepository()

	return NewMatcher(repo, slog.New(slog.DiscardHandler)), repo
}

func smsInput(phone string) UpsertInput {
	return UpsertInput{
		WorkflowID: "wf-1",
		AgentID:    "agent-1",
		Channel:    models.ChannelSMS,
		Lead:       models.Lead{Name: "Pat", Phone: phone},
	}
}

func TestUpsert_CreatesSession(t *testing.T) {
	matcher, _ := newTestMatcher(t)

	session, err := matcher.Upsert(context.Background(), smsInput("+1 (555) 123-0001"))
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.True(t, session.Active)
	assert.Equal(t, "15551230001", session.LeadPhoneNorm)
	assert.Equal(t, "5551230001", session.LeadPhoneLast10)
	assert.False(t, session.ActivatedAt.IsZero())
}

func TestUpsert_SMSRequiresPhone(t *testing.T) {
	matcher, _ := newTestMatcher(t)

	input := smsInput("not a phone")

	_, err := matcher.Upsert(context.Background(), input)
	require.Error(t, err)
	assert.True(t, IsIdentityError(err))
}

func TestUpsert_EmailRequiresEmailOrContactID(t *testing.T) {
	matcher, _ := newTestMatcher(t)
	ctx := context.Background()

	input := UpsertInput{
		WorkflowID: "wf-1",
		AgentID:    "agent-1",
		Channel:    models.ChannelEmail,
		Lead:       models.Lead{Name: "Pat"},
	}

	_, err := matcher.Upsert(ctx, input)
	require.Error(t, err)
	assert.True(t, IsIdentityError(err))

	input.ContactID = "crm-42"

	session, err := matcher.Upsert(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "crm-42", session.ContactID)
}

func TestUpsert_MergesExistingSession(t *testing.T) {
	matcher, _ := newTestMatcher(t)
	ctx := context.Background()

	first, err := matcher.Upsert(ctx, UpsertInput{
		WorkflowID: "wf-1",
		AgentID:    "agent-1",
		Channel:    models.ChannelSMS,
		Lead:       models.Lead{Name: "Pat", Phone: "5551230001", Email: "pat@example.com"},
	})
	require.NoError(t, err)

	// Same lead phone in a different format, no email this time.
	second, err := matcher.Upsert(ctx, UpsertInput{
		WorkflowID:   "wf-1",
		EnrollmentID: "enr-1",
		AgentID:      "agent-1",
		Channel:      models.ChannelSMS,
		Lead:         models.Lead{Phone: "+15551230001"},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "enr-1", second.EnrollmentID)

	// Populated fields survive an absent input.
	assert.Equal(t, "Pat", second.Lead.Name)
	assert.Equal(t, "pat@example.com", second.Lead.Email)
}

func TestUpsert_SMSSendingNumberTieBreak(t *testing.T) {
	matcher, _ := newTestMatcher(t)
	ctx := context.Background()

	existing, err := matcher.Upsert(ctx, UpsertInput{
		WorkflowID:    "wf-1",
		AgentID:       "agent-1",
		Channel:       models.ChannelSMS,
		Lead:          models.Lead{Phone: "5551230001"},
		TwilioToPhone: "+15559990000",
	})
	require.NoError(t, err)

	// Same sending number in a different format matches on last-10.
	matched, err := matcher.Upsert(ctx, UpsertInput{
		WorkflowID:    "wf-1",
		AgentID:       "agent-1",
		Channel:       models.ChannelSMS,
		Lead:          models.Lead{Phone: "5551230001"},
		TwilioToPhone: "5559990000",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, matched.ID)

	// A different sending number gets its own session.
	other, err := matcher.Upsert(ctx, UpsertInput{
		WorkflowID:    "wf-1",
		AgentID:       "agent-1",
		Channel:       models.ChannelSMS,
		Lead:          models.Lead{Phone: "5551230001"},
		TwilioToPhone: "5558880000",
	})
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, other.ID)
}

func TestUpsert_SMSFallsBackToSessionWithoutSendingNumber(t *testing.T) {
	matcher, _ := newTestMatcher(t)
	ctx := context.Background()

	existing, err := matcher.Upsert(ctx, smsInput("5551230001"))
	require.NoError(t, err)
	require.Empty(t, existing.TwilioToPhoneNorm)

	matched, err := matcher.Upsert(ctx, UpsertInput{
		WorkflowID:    "wf-1",
		AgentID:       "agent-1",
		Channel:       models.ChannelSMS,
		Lead:          models.Lead{Phone: "5551230001"},
		TwilioToPhone: "5559990000",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, matched.ID)
	assert.Equal(t, "5559990000", matched.TwilioToPhoneNorm)
}

func TestFindActiveForInbound_MatchesLast10(t *testing.T) {
	matcher, _ := newTestMatcher(t)
	ctx := context.Background()

	created, err := matcher.Upsert(ctx, smsInput("+15551230001"))
	require.NoError(t, err)

	found, err := matcher.FindActiveForInbound(ctx, InboundQuery{FromPhone: "(555) 123-0001"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
}

func TestFindActiveForInbound_PrefersMatchingSendingNumber(t *testing.T) {
	matcher, _ := newTestMatcher(t)
	ctx := context.Background()

	_, err := matcher.Upsert(ctx, UpsertInput{
		WorkflowID:    "wf-1",
		AgentID:       "agent-1",
		Channel:       models.ChannelSMS,
		Lead:          models.Lead{Phone: "5551230001"},
		TwilioToPhone: "5558880000",
	})
	require.NoError(t, err)

	target, err := matcher.Upsert(ctx, UpsertInput{
		WorkflowID:    "wf-1",
		AgentID:       "agent-1",
		Channel:       models.ChannelSMS,
		Lead:          models.Lead{Phone: "5551230001"},
		TwilioToPhone: "5559990000",
	})
	require.NoError(t, err)

	found, err := matcher.FindActiveForInbound(ctx, InboundQuery{
		FromPhone: "5551230001",
		ToPhone:   "+15559990000",
	})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, target.ID, found.ID)
}

func TestFindActiveForInbound_AcceptsAnyWhenNoSendingNumberRecorded(t *testing.T) {
	matcher, _ := newTestMatcher(t)
	ctx := context.Background()

	created, err := matcher.Upsert(ctx, smsInput("5551230001"))
	require.NoError(t, err)

	found, err := matcher.FindActiveForInbound(ctx, InboundQuery{
		FromPhone: "5551230001",
		ToPhone:   "5559990000",
	})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
}

func TestFindActiveForInbound_NoCandidates(t *testing.T) {
	matcher, _ := newTestMatcher(t)

	found, err := matcher.FindActiveForInbound(context.Background(), InboundQuery{FromPhone: "5551230001"})
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindActiveForInbound_BadSenderPhone(t *testing.T) {
	matcher, _ := newTestMatcher(t)

	_, err := matcher.FindActiveForInbound(context.Background(), InboundQuery{FromPhone: "123"})
	require.Error(t, err)
	assert.True(t, IsIdentityError(err))
}

func TestDeactivate_ByEnrollment(t *testing.T) {
	matcher, repo := newTestMatcher(t)
	ctx := context.Background()

	created, err := matcher.Upsert(ctx, UpsertInput{
		WorkflowID:   "wf-1",
		EnrollmentID: "enr-1",
		AgentID:      "agent-1",
		Channel:      models.ChannelSMS,
		Lead:         models.Lead{Phone: "5551230001"},
	})
	require.NoError(t, err)

	require.NoError(t, matcher.Deactivate(ctx, "enr-1"))

	loaded, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Active)
}

func TestTouchInboundAndOutbound(t *testing.T) {
	matcher, repo := newTestMatcher(t)
	ctx := context.Background()

	created, err := matcher.Upsert(ctx, smsInput("5551230001"))
	require.NoError(t, err)

	inboundAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, matcher.TouchInbound(ctx, created, "in-1", inboundAt))

	outboundAt := inboundAt.Add(5 * time.Minute)
	require.NoError(t, matcher.TouchOutbound(ctx, created, "out-1", outboundAt))

	loaded, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)

	require.NotNil(t, loaded.LastInboundAt)
	assert.True(t, loaded.LastInboundAt.Equal(inboundAt))
	assert.Equal(t, "in-1", loaded.LastInboundMessageID)

	require.NotNil(t, loaded.LastOutboundAt)
	assert.True(t, loaded.LastOutboundAt.Equal(outboundAt))
	assert.Equal(t, "out-1", loaded.LastOutboundMessageID)
}
