// Package main provides the Convoflow API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/google/uuid"

	"github.com/thibo-redpepper/convoflow/pkg/eventbus"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
	"github.com/thibo-redpepper/convoflow/pkg/runner"
	"github.com/thibo-redpepper/convoflow/pkg/session"
	"github.com/thibo-redpepper/convoflow/pkg/web"
	"github.com/thibo-redpepper/convoflow/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	publisher   message.Publisher
	runner      *runner.Runner
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	publisher message.Publisher,
	chainRunner *runner.Runner,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		publisher:   publisher,
		runner:      chainRunner,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	matcher := session.NewMatcher(a.persistence.SessionRepository(), a.logger)

	enrollments := workflow.NewEnrollmentService(
		a.persistence,
		a.runner,
		matcher,
		a.eventBus,
		eventbus.NewAgentEventWriter(a.publisher, a.logger),
		a.collaborators(),
		a.logger,
	)

	handlers := web.NewAPIHandlers(
		workflow.NewRepository(a.persistence),
		enrollments,
		matcher,
		a.persistence,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Convoflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/validate", handlers.ValidateWorkflow)
	w.Post("/:id/test", handlers.TestWorkflow)
	w.Get("/:id/enrollments", handlers.GetWorkflowEnrollments)
	w.Get("/:id/sessions", handlers.GetWorkflowSessions)
	w.Get("/:id/events", handlers.GetWorkflowEvents)

	e := app.Group("/enrollments")
	e.Get("/:id", handlers.GetEnrollment)
	e.Post("/:id/advance", handlers.AdvanceEnrollment)
	e.Delete("/:id", handlers.DeleteEnrollment)

	app.Post("/inbound/sms", handlers.InboundSMS)
	app.Post("/inbound/voicemail", handlers.InboundVoicemail)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}

// collaborators returns the transport boundary. The concrete email/SMS
// providers and the agent runtime live outside this service; until they are
// attached the sends are logged and acknowledged with a synthetic message id.
func (a *API) collaborators() runner.Collaborators {
	return runner.Collaborators{
		SendEmail: func(ctx context.Context, msg runner.EmailMessage) (runner.SendResult, error) {
			a.logger.InfoContext(ctx, "Email send requested", "to", msg.To, "subject", msg.Subject)

			return runner.SendResult{ProviderMessageID: "email-" + uuid.New().String()}, nil
		},
		SendSMS: func(ctx context.Context, msg runner.SMSMessage) (runner.SendResult, error) {
			a.logger.InfoContext(ctx, "SMS send requested", "to", msg.To)

			return runner.SendResult{ProviderMessageID: "sms-" + uuid.New().String()}, nil
		},
		HandoffAgent: func(ctx context.Context, handoff runner.Handoff) (map[string]any, error) {
			a.logger.InfoContext(ctx, "Agent handoff requested",
				"agent_id", handoff.AgentID,
				"channel", handoff.Lead.Channel)

			return map[string]any{"accepted": true}, nil
		},
	}
}
