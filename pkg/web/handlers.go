// Package web provides HTTP handlers and REST API endpoints for queue and
// workflow management.
package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/comfychain/comfychain/pkg/persistence"
	"github.com/comfychain/comfychain/pkg/queue"
)

// Uploader pushes image bytes into the backend's input store.
type Uploader interface {
	UploadImage(ctx context.Context, filename string, r io.Reader) (string, error)
}

type APIHandlers struct {
	queue     *queue.Queue
	store     persistence.Store
	uploader  Uploader
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(q *queue.Queue, store persistence.Store, uploader Uploader, validate *validator.Validate, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		queue:     q,
		store:     store,
		uploader:  uploader,
		validator: validate,
		logger:    logger.With("module", "web"),
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	names, err := h.store.ListWorkflows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": names})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Workflow name is required")
	}

	graph, err := h.store.LoadWorkflow(c.Context(), name)
	if err != nil {
		return handleQueueError(c, err)
	}

	groups, err := h.store.LoadGroups(c.Context(), name)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(WorkflowResponse{Name: name, Graph: graph, Groups: groups})
}

func (h *APIHandlers) SaveWorkflowGroups(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Workflow name is required")
	}

	var req SaveGroupsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.store.LoadWorkflow(c.Context(), name); err != nil {
		return handleQueueError(c, err)
	}

	if err := h.store.SaveGroups(c.Context(), name, req.Groups); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetAutomations(c fiber.Ctx) error {
	names, err := h.store.ListAutomations(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"automations": names})
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Automation name is required")
	}

	steps, err := h.store.LoadAutomation(c.Context(), name)
	if err != nil {
		return handleQueueError(c, err)
	}

	return c.JSON(fiber.Map{"name": name, "steps": steps})
}

func (h *APIHandlers) SaveAutomation(c fiber.Ctx) error {
	var req SaveAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	stored, err := h.store.SaveAutomation(c.Context(), req.Name, req.Steps)
	if err != nil {
		return handleQueueError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"name": stored})
}

func (h *APIHandlers) GetQueue(c fiber.Ctx) error {
	return c.JSON(QueueResponse{
		Running: h.queue.IsRunning(),
		Steps:   h.queue.Steps(),
	})
}

func (h *APIHandlers) EnqueueStep(c fiber.Ctx) error {
	var req EnqueueRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.queue.Enqueue(c.Context(), req.Filename)
	if err != nil {
		return handleQueueError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

func (h *APIHandlers) RemoveStep(c fiber.Ctx) error {
	if err := h.queue.Remove(c.Params("id")); err != nil {
		return handleQueueError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ReorderStep(c fiber.Ctx) error {
	var req ReorderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.queue.Reorder(c.Params("id"), req.Position); err != nil {
		return handleQueueError(c, err)
	}

	return c.JSON(QueueResponse{Running: h.queue.IsRunning(), Steps: h.queue.Steps()})
}

func (h *APIHandlers) ConnectStep(c fiber.Ctx) error {
	var req ConnectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.Output != nil && req.Output.IsImage() {
		if !h.stepHasSaveNode(c.Params("id")) {
			return badRequest(c, "generated-image selector requires a save node")
		}
	}

	if err := h.queue.SetConnection(c.Params("id"), req.Output, req.Input); err != nil {
		return handleQueueError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) stepHasSaveNode(id string) bool {
	for _, step := range h.queue.Steps() {
		if step.ID == id {
			return step.Graph.HasSaveNode()
		}
	}

	return false
}

func (h *APIHandlers) ClearQueue(c fiber.Ctx) error {
	if err := h.queue.Clear(); err != nil {
		return handleQueueError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RunQueue(c fiber.Ctx) error {
	// Runs are long; drive them in the background and let clients poll
	// GET /queue for progress.
	steps := h.queue.Steps()
	if len(steps) == 0 {
		return badRequest(c, "queue is empty")
	}

	if h.queue.IsRunning() {
		return conflict(c, "queue is running")
	}

	// The request context dies with the response; the run gets its own.
	go func() {
		if err := h.queue.RunAll(context.Background()); err != nil {
			h.logger.Error("Queue run failed", "error", err)
		}
	}()

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) RunStep(c fiber.Ctx) error {
	id := c.Params("id")

	go func() {
		if err := h.queue.RunStep(context.Background(), id); err != nil {
			h.logger.Error("Step run failed", "step", id, "error", err)
		}
	}()

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) StopQueue(c fiber.Ctx) error {
	if err := h.queue.Stop(c.Context()); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) SaveQueue(c fiber.Ctx) error {
	var req NameRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	stored, err := h.queue.SaveAs(c.Context(), req.Name)
	if err != nil {
		return handleQueueError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"name": stored})
}

func (h *APIHandlers) LoadQueue(c fiber.Ctx) error {
	var req NameRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.queue.Load(c.Context(), req.Name); err != nil {
		return handleQueueError(c, err)
	}

	return c.JSON(QueueResponse{Running: h.queue.IsRunning(), Steps: h.queue.Steps()})
}

// UploadImage pushes a multipart image into the backend's input store so a
// LoadImage input can reference it before a run.
func (h *APIHandlers) UploadImage(c fiber.Ctx) error {
	header, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "image file is required")
	}

	file, err := header.Open()
	if err != nil {
		return internalError(c, err)
	}
	defer file.Close()

	name, err := h.uploader.UploadImage(c.Context(), header.Filename, file)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"name": name})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "ComfyChain API is healthy"
	httpStatus := http.StatusOK

	var storeCheck string
	if err := h.store.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "ComfyChain API is unhealthy"
		httpStatus = http.StatusInternalServerError
		storeCheck = err.Error()
	} else {
		storeCheck = "ok"
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
