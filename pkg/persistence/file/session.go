package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
)

const sessionKind = "sessions"

// SessionRepository stores one JSON file per agent session. Query methods
// load everything and filter in memory, which is fine at the scale a file
// backend is used for.
type SessionRepository struct {
	root string
}

func (r *SessionRepository) GetByID(_ context.Context, id string) (*models.AgentSession, error) {
	var session models.AgentSession

	found, err := readRecord(r.root, sessionKind, id, &session)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewStoreError("GetByID", "session", id, persistence.ErrSessionNotFound)
	}

	return &session, nil
}

func (r *SessionRepository) Save(_ context.Context, session *models.AgentSession) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}

	session.UpdatedAt = now

	return writeRecord(r.root, sessionKind, session.ID, session)
}

func (r *SessionRepository) ListActiveByIdentity(ctx context.Context, q persistence.SessionIdentityQuery) ([]*models.AgentSession, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.AgentSession, 0)

	for _, session := range all {
		if !session.Active ||
			session.WorkflowID != q.WorkflowID ||
			session.AgentID != q.AgentID ||
			session.Channel != q.Channel {
			continue
		}

		switch q.Channel {
		case models.ChannelSMS:
			if session.LeadPhoneNorm != q.PhoneNorm && session.LeadPhoneLast10 != q.PhoneLast10 {
				continue
			}
		case models.ChannelEmail:
			if session.LeadEmailNorm != q.EmailNorm {
				continue
			}
		}

		matched = append(matched, session)
	}

	sortByUpdatedDesc(matched)

	return clamp(matched, q.Limit), nil
}

func (r *SessionRepository) ListActiveByPhone(ctx context.Context, phoneNorm, last10 string, limit int) ([]*models.AgentSession, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.AgentSession, 0)

	for _, session := range all {
		if !session.Active || session.Channel != models.ChannelSMS {
			continue
		}

		if session.LeadPhoneNorm == phoneNorm || (last10 != "" && session.LeadPhoneLast10 == last10) {
			matched = append(matched, session)
		}
	}

	sortByUpdatedDesc(matched)

	return clamp(matched, limit), nil
}

func (r *SessionRepository) ListDueFollowUps(ctx context.Context, now time.Time, limit int) ([]*models.AgentSession, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*models.AgentSession, 0)

	for _, session := range all {
		if session.Active && session.NextFollowUpAt != nil && !session.NextFollowUpAt.After(now) {
			due = append(due, session)
		}
	}

	// Oldest due first, so long-waiting sessions are served before fresh ones.
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextFollowUpAt.Before(*due[j].NextFollowUpAt)
	})

	return clamp(due, limit), nil
}

func (r *SessionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.AgentSession, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.AgentSession, 0)

	for _, session := range all {
		if session.WorkflowID == workflowID {
			matched = append(matched, session)
		}
	}

	sortByUpdatedDesc(matched)

	return clamp(matched, limit), nil
}

func (r *SessionRepository) DeactivateByEnrollment(ctx context.Context, enrollmentID string) error {
	all, err := r.loadAll(ctx)
	if err != nil {
		return err
	}

	for _, session := range all {
		if session.EnrollmentID == enrollmentID && session.Active {
			session.Active = false

			if err := r.Save(ctx, session); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *SessionRepository) loadAll(ctx context.Context) ([]*models.AgentSession, error) {
	ids, err := listIDs(r.root, sessionKind)
	if err != nil {
		return nil, err
	}

	sessions := make([]*models.AgentSession, 0, len(ids))

	for _, id := range ids {
		session, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		sessions = append(sessions, session)
	}

	return sessions, nil
}

func sortByUpdatedDesc(sessions []*models.AgentSession) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}

func clamp(sessions []*models.AgentSession, limit int) []*models.AgentSession {
	if limit > 0 && len(sessions) > limit {
		return sessions[:limit]
	}

	return sessions
}
