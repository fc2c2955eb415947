// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/thibo-redpepper/convoflow/pkg/persistence"
	"github.com/thibo-redpepper/convoflow/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on top of PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	workflows   *WorkflowRepository
	enrollments *EnrollmentRepository
	sessions    *SessionRepository
	events      *EventRepository
}

// NewPersistence connects to the database and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		workflows:   &WorkflowRepository{db: database, logger: logger},
		enrollments: &EnrollmentRepository{db: database, logger: logger},
		sessions:    &SessionRepository{db: database, logger: logger},
		events:      &EventRepository{db: database, logger: logger},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return p.enrollments
}

func (p *Persistence) SessionRepository() persistence.SessionRepository {
	return p.sessions
}

func (p *Persistence) EventRepository() persistence.EventRepository {
	return p.events
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
