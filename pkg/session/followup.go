package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
)

const (
	// DefaultDueLimit applies when a caller asks for due sessions without
	// a limit.
	DefaultDueLimit = 200

	// MaxDueLimit is the hard cap on one due-sessions batch.
	MaxDueLimit = 500
)

// Advancement is one scheduling update for a session. Nil fields are left
// untouched; the write is last-write-wins, which is an accepted
// approximation when two ticks briefly overlap.
type Advancement struct {
	FollowUpStep   *int
	NextFollowUpAt *time.Time
	LastFollowUpAt *time.Time
}

// FollowUps drives the randomized follow-up cadence over active sessions.
type FollowUps struct {
	sessions persistence.SessionRepository
	logger   *slog.Logger
}

func NewFollowUps(sessions persistence.SessionRepository, logger *slog.Logger) *FollowUps {
	return &FollowUps{
		sessions: sessions,
		logger:   logger.With("module", "session_followups"),
	}
}

// Due returns active sessions whose next follow-up is at or before now,
// oldest due first. A non-positive limit falls back to DefaultDueLimit and
// anything above MaxDueLimit is clamped.
func (f *FollowUps) Due(ctx context.Context, now time.Time, limit int) ([]*models.AgentSession, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}

	if limit > MaxDueLimit {
		limit = MaxDueLimit
	}

	due, err := f.sessions.ListDueFollowUps(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due sessions: %w", err)
	}

	return due, nil
}

// Advance applies one scheduling update to a session.
func (f *FollowUps) Advance(ctx context.Context, sessionID string, adv Advancement) error {
	session, err := f.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if adv.FollowUpStep != nil {
		session.FollowUpStep = *adv.FollowUpStep
	}

	if adv.NextFollowUpAt != nil {
		session.NextFollowUpAt = adv.NextFollowUpAt
	}

	if adv.LastFollowUpAt != nil {
		session.LastFollowUpAt = adv.LastFollowUpAt
	}

	if err := f.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("failed to advance session: %w", err)
	}

	f.logger.DebugContext(ctx, "Advanced session cadence",
		"session_id", sessionID,
		"follow_up_step", session.FollowUpStep)

	return nil
}

// NextAt draws the next follow-up time uniformly in [min, max] after now,
// so the cadence is not perfectly periodic and each session drifts
// independently.
func NextAt(now time.Time, minDelay, maxDelay time.Duration) time.Time {
	if maxDelay <= minDelay {
		return now.Add(minDelay)
	}

	jitter := rand.N(maxDelay - minDelay + 1)

	return now.Add(minDelay + jitter)
}
