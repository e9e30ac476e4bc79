package web

import "github.com/gofiber/fiber/v3"

// Register mounts all API routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Post("/images", h.UploadImage)

	w := app.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Get("/:name", h.GetWorkflow)
	w.Put("/:name/groups", h.SaveWorkflowGroups)

	a := app.Group("/automations")
	a.Get("/", h.GetAutomations)
	a.Post("/", h.SaveAutomation)
	a.Get("/:name", h.GetAutomation)

	q := app.Group("/queue")
	q.Get("/", h.GetQueue)
	q.Delete("/", h.ClearQueue)
	q.Post("/steps", h.EnqueueStep)
	q.Delete("/steps/:id", h.RemoveStep)
	q.Post("/steps/:id/reorder", h.ReorderStep)
	q.Post("/steps/:id/connection", h.ConnectStep)
	q.Post("/steps/:id/run", h.RunStep)
	q.Post("/run", h.RunQueue)
	q.Post("/stop", h.StopQueue)
	q.Post("/save", h.SaveQueue)
	q.Post("/load", h.LoadQueue)
}
