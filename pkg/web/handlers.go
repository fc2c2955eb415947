package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/thibo-redpepper/convoflow/pkg/definition"
	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
	"github.com/thibo-redpepper/convoflow/pkg/runner"
	"github.com/thibo-redpepper/convoflow/pkg/session"
	"github.com/thibo-redpepper/convoflow/pkg/workflow"
)

// defaultListLimit caps enrollment, session and event listings when the
// request does not say otherwise.
const defaultListLimit = 50

type APIHandlers struct {
	workflows   *workflow.Repository
	enrollments *workflow.EnrollmentService
	matcher     *session.Matcher
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	workflows *workflow.Repository,
	enrollments *workflow.EnrollmentService,
	matcher *session.Matcher,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflows:   workflows,
		enrollments: enrollments,
		matcher:     matcher,
		persistence: persistence,
		validator:   validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflows.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Convoflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Convoflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflows.FetchAll(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	found, err := h.workflows.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := checkDefinitionSchema(c); err != nil {
		return unprocessable(c, err.Error())
	}

	created, err := h.workflows.Create(c.Context(), &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Status:      models.WorkflowStatus(req.Status),
		Definition:  req.Definition,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := checkDefinitionSchema(c); err != nil {
		return unprocessable(c, err.Error())
	}

	updated, err := h.workflows.Update(c.Context(), id, &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Status:      models.WorkflowStatus(req.Status),
		Definition:  req.Definition,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflows.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ValidateWorkflow checks a posted definition without saving it, using the
// relaxed rules so half-drawn flows still get structural feedback. With an
// empty body the stored definition is checked instead.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var def *models.Definition

	if body := c.Body(); len(body) > 0 {
		if err := definition.CheckSchema(body); err != nil {
			return unprocessable(c, err.Error())
		}

		def = &models.Definition{}
		if err := json.Unmarshal(body, def); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	} else {
		found, err := h.workflows.FetchByID(c.Context(), id)
		if err != nil {
			return handleServiceError(c, err)
		}

		def = &found.Definition
	}

	chain, err := definition.Validate(def, definition.Options{ValidateConfig: false})
	if err != nil {
		var validationErr *definition.ValidationError
		if errors.As(err, &validationErr) {
			return c.JSON(ValidateResponse{
				Valid:  false,
				Code:   string(validationErr.Code),
				NodeID: validationErr.NodeID,
				Error:  validationErr.Message,
			})
		}

		return internalError(c, err)
	}

	return c.JSON(ValidateResponse{Valid: true, Chain: chain.IDs()})
}

func (h *APIHandlers) TestWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req TestRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	enrollment, err := h.enrollments.RunTest(c.Context(), id, workflow.TestInput{
		Lead: req.Lead,
		Recipients: runner.TestRecipients{
			LeadEmail:   req.TestEmail,
			LeadPhone:   req.TestPhone,
			LeadChannel: models.Channel(req.TestChannel),
		},
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(enrollment)
}

func (h *APIHandlers) GetWorkflowEnrollments(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	limit, err := listLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit parameter")
	}

	enrollments, err := h.persistence.EnrollmentRepository().ListByWorkflow(c.Context(), id, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(enrollments)
}

func (h *APIHandlers) GetEnrollment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Enrollment ID is required")
	}

	enrollment, err := h.persistence.EnrollmentRepository().GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(enrollment)
}

func (h *APIHandlers) AdvanceEnrollment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Enrollment ID is required")
	}

	advanced, err := h.enrollments.Advance(c.Context(), id)
	if err != nil {
		if persistence.IsEnrollmentNotFound(err) || persistence.IsWorkflowNotFound(err) {
			return handleServiceError(c, err)
		}

		return badRequest(c, err.Error())
	}

	return c.JSON(advanced)
}

func (h *APIHandlers) DeleteEnrollment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Enrollment ID is required")
	}

	if err := h.enrollments.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWorkflowSessions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	limit, err := listLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit parameter")
	}

	sessions, err := h.persistence.SessionRepository().ListByWorkflow(c.Context(), id, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(sessions)
}

func (h *APIHandlers) GetWorkflowEvents(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	limit, err := listLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit parameter")
	}

	events, err := h.persistence.EventRepository().ListByWorkflow(c.Context(), id, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(events)
}

// InboundSMS resolves a lead reply to its active agent session and records
// the inbound touch.
func (h *APIHandlers) InboundSMS(c fiber.Ctx) error {
	var req InboundSMSRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	matched, err := h.matcher.FindActiveForInbound(c.Context(), session.InboundQuery{
		FromPhone: req.From,
		ToPhone:   req.To,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if matched == nil {
		return notFound(c, "No active session for sender")
	}

	if err := h.matcher.TouchInbound(c.Context(), matched, req.MessageID, time.Now().UTC()); err != nil {
		return internalError(c, err)
	}

	return c.JSON(matched)
}

// InboundVoicemail enrolls the lead into every active workflow listening
// for the voicemail drop.
func (h *APIHandlers) InboundVoicemail(c fiber.Ctx) error {
	var req VoicemailRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	enrollments, err := h.enrollments.HandleVoicemail(c.Context(), workflow.VoicemailSignal{
		Lead:       req.Lead,
		LocationID: req.LocationID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(enrollments)
}

// checkDefinitionSchema runs the raw definition sub-document of the request
// body through the payload schema. Binding alone accepts values the schema
// rejects, like a malformed sendWindow time, which would otherwise save
// fine and fail open at send time.
func checkDefinitionSchema(c fiber.Ctx) error {
	var raw struct {
		Definition json.RawMessage `json:"definition"`
	}

	if err := json.Unmarshal(c.Body(), &raw); err != nil || len(raw.Definition) == 0 {
		return nil
	}

	return definition.CheckSchema(raw.Definition)
}

func listLimit(c fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}

	return limit, nil
}
