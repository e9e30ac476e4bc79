package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/comfychain/comfychain/pkg/persistence"
	"github.com/comfychain/comfychain/pkg/queue"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleQueueError maps queue and store errors to problem responses.
func handleQueueError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, queue.ErrQueueRunning):
		return conflict(c, "queue is running")
	case errors.Is(err, queue.ErrQueueEmpty):
		return badRequest(c, "queue is empty")
	case errors.Is(err, queue.ErrStepNotFound):
		return notFound(c, "step not found")
	case errors.Is(err, queue.ErrNoGroupsDefined):
		return badRequest(c, "workflow has no input groups defined")
	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")
	case persistence.IsAutomationNotFound(err):
		return notFound(c, "automation not found")
	case persistence.IsInvalidAutomation(err):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err)
	}
}
