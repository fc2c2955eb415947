// Package session matches inbound and outbound agent conversations to
// durable session records and drives the follow-up cadence. Lead identity
// is noisy, so matching relies on a bounded candidate search plus a
// deterministic tie-break rather than on store-level uniqueness.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thibo-redpepper/convoflow/pkg/identity"
	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
)

// candidateLimit bounds the upsert and inbound candidate searches. Sessions
// beyond the ten most recently updated are stale enough to ignore.
const candidateLimit = 10

// UpsertInput describes one conversation touch for a lead.
type UpsertInput struct {
	WorkflowID   string
	EnrollmentID string
	LocationID   string
	AgentID      string
	Channel      models.Channel
	Lead         models.Lead
	ContactID    string

	// Provider numbers for this send, when known. TwilioToPhone is the
	// sending number the provider used toward the lead.
	TwilioFromPhone string
	TwilioToPhone   string
}

// InboundQuery identifies a reply by its sender, and optionally by the
// number it was sent to.
type InboundQuery struct {
	FromPhone string
	ToPhone   string
}

// Matcher upserts and looks up agent sessions.
type Matcher struct {
	sessions persistence.SessionRepository
	logger   *slog.Logger
}

func NewMatcher(sessions persistence.SessionRepository, logger *slog.Logger) *Matcher {
	return &Matcher{
		sessions: sessions,
		logger:   logger.With("module", "session_matcher"),
	}
}

// Upsert finds the active session for the lead's conversation slot and
// merges the input into it, or creates a new session when no candidate
// matches.
func (m *Matcher) Upsert(ctx context.Context, input UpsertInput) (*models.AgentSession, error) {
	if input.WorkflowID == "" || input.AgentID == "" {
		return nil, fmt.Errorf("workflow id and agent id are required")
	}

	phoneNorm := identity.NormalizePhone(input.Lead.Phone)
	phoneLast10 := identity.PhoneLast10(input.Lead.Phone)
	emailNorm := identity.NormalizeEmail(input.Lead.Email)

	switch input.Channel {
	case models.ChannelSMS:
		if phoneNorm == "" {
			return nil, &IdentityError{Channel: input.Channel, Message: "lead phone is not normalizable"}
		}
	case models.ChannelEmail:
		if emailNorm == "" && input.ContactID == "" {
			return nil, &IdentityError{Channel: input.Channel, Message: "lead email is not normalizable and no contact id given"}
		}
	default:
		return nil, fmt.Errorf("unsupported channel: %s", input.Channel)
	}

	candidates, err := m.sessions.ListActiveByIdentity(ctx, persistence.SessionIdentityQuery{
		WorkflowID:  input.WorkflowID,
		AgentID:     input.AgentID,
		Channel:     input.Channel,
		PhoneNorm:   phoneNorm,
		PhoneLast10: phoneLast10,
		EmailNorm:   emailNorm,
		Limit:       candidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search candidate sessions: %w", err)
	}

	matched := m.pickUpsertCandidate(input.Channel, candidates, input.TwilioToPhone)

	if matched == nil {
		return m.insertSession(ctx, input, phoneNorm, phoneLast10, emailNorm)
	}

	m.mergeSession(matched, input, phoneNorm, phoneLast10, emailNorm)

	if err := m.sessions.Save(ctx, matched); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	m.logger.DebugContext(ctx, "Merged agent session", "session_id", matched.ID, "channel", matched.Channel)

	return matched, nil
}

// pickUpsertCandidate applies the channel tie-break. For SMS the sending
// number must match on full normalization or last-10 suffix, with a
// fallback to a candidate that never recorded one. For EMAIL the canonical
// email already qualified every candidate.
func (m *Matcher) pickUpsertCandidate(channel models.Channel, candidates []*models.AgentSession, toPhone string) *models.AgentSession {
	if len(candidates) == 0 {
		return nil
	}

	if channel != models.ChannelSMS {
		return candidates[0]
	}

	toNorm := identity.NormalizePhone(toPhone)
	toLast10 := identity.PhoneLast10(toPhone)

	if toNorm == "" {
		return candidates[0]
	}

	for _, candidate := range candidates {
		if sendingNumberMatches(candidate.TwilioToPhoneNorm, toNorm, toLast10) {
			return candidate
		}
	}

	for _, candidate := range candidates {
		if candidate.TwilioToPhoneNorm == "" {
			return candidate
		}
	}

	return nil
}

// FindActiveForInbound resolves a reply to its session. When the query
// carries a toPhone, candidates whose recorded sending number matches it
// win; when no candidate recorded a sending number at all, any candidate is
// acceptable; otherwise the most recently updated candidate is used.
// Providers route through varying sender numbers, so this degrades
// gracefully rather than dropping the reply.
func (m *Matcher) FindActiveForInbound(ctx context.Context, q InboundQuery) (*models.AgentSession, error) {
	fromNorm := identity.NormalizePhone(q.FromPhone)
	if fromNorm == "" {
		return nil, &IdentityError{Channel: models.ChannelSMS, Message: "sender phone is not normalizable"}
	}

	fromLast10 := identity.PhoneLast10(q.FromPhone)

	candidates, err := m.sessions.ListActiveByPhone(ctx, fromNorm, fromLast10, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search inbound sessions: %w", err)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	toNorm := identity.NormalizePhone(q.ToPhone)
	toLast10 := identity.PhoneLast10(q.ToPhone)

	if toNorm != "" {
		for _, candidate := range candidates {
			if sendingNumberMatches(candidate.TwilioToPhoneNorm, toNorm, toLast10) {
				return candidate, nil
			}
		}
	}

	return candidates[0], nil
}

// TouchInbound records an inbound message on a session.
func (m *Matcher) TouchInbound(ctx context.Context, session *models.AgentSession, messageID string, at time.Time) error {
	session.LastInboundAt = &at

	if messageID != "" {
		session.LastInboundMessageID = messageID
	}

	if err := m.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("failed to record inbound touch: %w", err)
	}

	return nil
}

// TouchOutbound records an outbound message on a session.
func (m *Matcher) TouchOutbound(ctx context.Context, session *models.AgentSession, messageID string, at time.Time) error {
	session.LastOutboundAt = &at

	if messageID != "" {
		session.LastOutboundMessageID = messageID
	}

	if err := m.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("failed to record outbound touch: %w", err)
	}

	return nil
}

// Deactivate closes every active session belonging to an enrollment, used
// when the enrollment completes or is deleted.
func (m *Matcher) Deactivate(ctx context.Context, enrollmentID string) error {
	if err := m.sessions.DeactivateByEnrollment(ctx, enrollmentID); err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}

	return nil
}

func (m *Matcher) insertSession(ctx context.Context, input UpsertInput, phoneNorm, phoneLast10, emailNorm string) (*models.AgentSession, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &models.AgentSession{
		ID:                id.String(),
		WorkflowID:        input.WorkflowID,
		EnrollmentID:      input.EnrollmentID,
		LocationID:        input.LocationID,
		AgentID:           input.AgentID,
		Channel:           input.Channel,
		Lead:              input.Lead,
		LeadPhoneNorm:     phoneNorm,
		LeadPhoneLast10:   phoneLast10,
		LeadEmailNorm:     emailNorm,
		ContactID:         input.ContactID,
		TwilioFromPhone:   input.TwilioFromPhone,
		TwilioToPhoneNorm: identity.NormalizePhone(input.TwilioToPhone),
		Active:            true,
		ActivatedAt:       time.Now().UTC(),
	}

	if err := m.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	m.logger.InfoContext(ctx, "Activated agent session",
		"session_id", session.ID,
		"workflow_id", session.WorkflowID,
		"agent_id", session.AgentID,
		"channel", session.Channel)

	return session, nil
}

// mergeSession applies non-empty input fields over the stored session. A
// populated field is never overwritten with an absent one.
func (m *Matcher) mergeSession(session *models.AgentSession, input UpsertInput, phoneNorm, phoneLast10, emailNorm string) {
	mergeString(&session.EnrollmentID, input.EnrollmentID)
	mergeString(&session.LocationID, input.LocationID)
	mergeString(&session.Lead.Name, input.Lead.Name)
	mergeString(&session.Lead.Email, input.Lead.Email)
	mergeString(&session.Lead.Phone, input.Lead.Phone)
	mergeString(&session.LeadPhoneNorm, phoneNorm)
	mergeString(&session.LeadPhoneLast10, phoneLast10)
	mergeString(&session.LeadEmailNorm, emailNorm)
	mergeString(&session.ContactID, input.ContactID)
	mergeString(&session.TwilioFromPhone, input.TwilioFromPhone)
	mergeString(&session.TwilioToPhoneNorm, identity.NormalizePhone(input.TwilioToPhone))

	session.Active = true
}

func mergeString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func sendingNumberMatches(recorded, toNorm, toLast10 string) bool {
	if recorded == "" {
		return false
	}

	if recorded == toNorm {
		return true
	}

	return toLast10 != "" && identity.PhoneLast10(recorded) == toLast10
}
