package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
)

const sessionColumns = `
		id
	  , workflow_id
	  , enrollment_id
	  , location_id
	  , agent_id
	  , channel
	  , lead
	  , lead_phone_norm
	  , lead_phone_last10
	  , lead_email_norm
	  , contact_id
	  , twilio_from_phone
	  , twilio_to_phone_norm
	  , active
	  , activated_at
	  , last_inbound_at
	  , last_inbound_message_id
	  , last_outbound_at
	  , last_outbound_message_id
	  , follow_up_step
	  , next_follow_up_at
	  , last_follow_up_at
	  , created_at
	  , updated_at
`

// SessionRepository handles agent session database operations. Identity
// lookups go through the partial indexes on the normalized phone and email
// columns, so candidate sets stay small even on busy workflows.
type SessionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.AgentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM workflow_agent_sessions WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "session", id, persistence.ErrSessionNotFound)
		}

		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	return session, nil
}

func (r *SessionRepository) Save(ctx context.Context, session *models.AgentSession) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}

	session.UpdatedAt = now

	leadJSON, err := json.Marshal(session.Lead)
	if err != nil {
		return fmt.Errorf("failed to marshal lead: %w", err)
	}

	query := `
		INSERT INTO workflow_agent_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (id) DO UPDATE SET
			enrollment_id = EXCLUDED.enrollment_id,
			lead = EXCLUDED.lead,
			lead_phone_norm = EXCLUDED.lead_phone_norm,
			lead_phone_last10 = EXCLUDED.lead_phone_last10,
			lead_email_norm = EXCLUDED.lead_email_norm,
			contact_id = EXCLUDED.contact_id,
			twilio_from_phone = EXCLUDED.twilio_from_phone,
			twilio_to_phone_norm = EXCLUDED.twilio_to_phone_norm,
			active = EXCLUDED.active,
			last_inbound_at = EXCLUDED.last_inbound_at,
			last_inbound_message_id = EXCLUDED.last_inbound_message_id,
			last_outbound_at = EXCLUDED.last_outbound_at,
			last_outbound_message_id = EXCLUDED.last_outbound_message_id,
			follow_up_step = EXCLUDED.follow_up_step,
			next_follow_up_at = EXCLUDED.next_follow_up_at,
			last_follow_up_at = EXCLUDED.last_follow_up_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.WorkflowID,
		nullString(session.EnrollmentID),
		nullString(session.LocationID),
		session.AgentID,
		session.Channel,
		leadJSON,
		nullString(session.LeadPhoneNorm),
		nullString(session.LeadPhoneLast10),
		nullString(session.LeadEmailNorm),
		nullString(session.ContactID),
		nullString(session.TwilioFromPhone),
		nullString(session.TwilioToPhoneNorm),
		session.Active,
		session.ActivatedAt,
		session.LastInboundAt,
		nullString(session.LastInboundMessageID),
		session.LastOutboundAt,
		nullString(session.LastOutboundMessageID),
		session.FollowUpStep,
		session.NextFollowUpAt,
		session.LastFollowUpAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

func (r *SessionRepository) ListActiveByIdentity(ctx context.Context, q persistence.SessionIdentityQuery) ([]*models.AgentSession, error) {
	var (
		identityClause string
		identityArgs   []any
	)

	switch q.Channel {
	case models.ChannelSMS:
		identityClause = "(lead_phone_norm = $4 OR lead_phone_last10 = $5)"
		identityArgs = []any{q.PhoneNorm, q.PhoneLast10}
	case models.ChannelEmail:
		identityClause = "lead_email_norm = $4"
		identityArgs = []any{q.EmailNorm}
	default:
		return nil, fmt.Errorf("unsupported channel: %s", q.Channel)
	}

	query := `
		SELECT ` + sessionColumns + `
		FROM workflow_agent_sessions
		WHERE active
		  AND workflow_id = $1
		  AND agent_id = $2
		  AND channel = $3
		  AND ` + identityClause + `
		ORDER BY updated_at DESC
		LIMIT ` + fmt.Sprintf("$%d", 4+len(identityArgs))

	args := append([]any{q.WorkflowID, q.AgentID, q.Channel}, identityArgs...)
	args = append(args, q.Limit)

	return r.querySessions(ctx, query, args...)
}

func (r *SessionRepository) ListActiveByPhone(ctx context.Context, phoneNorm, last10 string, limit int) ([]*models.AgentSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM workflow_agent_sessions
		WHERE active
		  AND channel = $1
		  AND (lead_phone_norm = $2 OR (lead_phone_last10 = $3 AND $3 <> ''))
		ORDER BY updated_at DESC
		LIMIT $4
	`

	return r.querySessions(ctx, query, models.ChannelSMS, phoneNorm, last10, limit)
}

func (r *SessionRepository) ListDueFollowUps(ctx context.Context, now time.Time, limit int) ([]*models.AgentSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM workflow_agent_sessions
		WHERE active
		  AND next_follow_up_at IS NOT NULL
		  AND next_follow_up_at <= $1
		ORDER BY next_follow_up_at ASC
		LIMIT $2
	`

	return r.querySessions(ctx, query, now, limit)
}

func (r *SessionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.AgentSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM workflow_agent_sessions
		WHERE workflow_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`

	return r.querySessions(ctx, query, workflowID, limit)
}

func (r *SessionRepository) DeactivateByEnrollment(ctx context.Context, enrollmentID string) error {
	query := `
		UPDATE workflow_agent_sessions
		SET active = false, updated_at = NOW()
		WHERE enrollment_id = $1 AND active
	`

	_, err := r.db.ExecContext(ctx, query, enrollmentID)
	if err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}

	return nil
}

func (r *SessionRepository) querySessions(ctx context.Context, query string, args ...any) ([]*models.AgentSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	sessions := make([]*models.AgentSession, 0)

	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		sessions = append(sessions, session)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(scanner interface {
	Scan(dest ...any) error
}) (*models.AgentSession, error) {
	var (
		session      models.AgentSession
		leadJSON     []byte
		enrollmentID sql.NullString
		locationID   sql.NullString
		phoneNorm    sql.NullString
		phoneLast10  sql.NullString
		emailNorm    sql.NullString
		contactID    sql.NullString
		fromPhone    sql.NullString
		toPhoneNorm  sql.NullString
		inMessageID  sql.NullString
		outMessageID sql.NullString
	)

	err := scanner.Scan(
		&session.ID,
		&session.WorkflowID,
		&enrollmentID,
		&locationID,
		&session.AgentID,
		&session.Channel,
		&leadJSON,
		&phoneNorm,
		&phoneLast10,
		&emailNorm,
		&contactID,
		&fromPhone,
		&toPhoneNorm,
		&session.Active,
		&session.ActivatedAt,
		&session.LastInboundAt,
		&inMessageID,
		&session.LastOutboundAt,
		&outMessageID,
		&session.FollowUpStep,
		&session.NextFollowUpAt,
		&session.LastFollowUpAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.EnrollmentID = enrollmentID.String
	session.LocationID = locationID.String
	session.LeadPhoneNorm = phoneNorm.String
	session.LeadPhoneLast10 = phoneLast10.String
	session.LeadEmailNorm = emailNorm.String
	session.ContactID = contactID.String
	session.TwilioFromPhone = fromPhone.String
	session.TwilioToPhoneNorm = toPhoneNorm.String
	session.LastInboundMessageID = inMessageID.String
	session.LastOutboundMessageID = outMessageID.String

	if leadJSON != nil {
		err := json.Unmarshal(leadJSON, &session.Lead)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal lead: %w", err)
		}
	}

	return &session, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
