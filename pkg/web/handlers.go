// Package web provides HTTP handlers and REST API endpoints for workflow management and execution.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	validator        *validator.Validate
	registry         *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		validator:        validator,
		registry:         registry,
	}
}

// Register mounts every handler on the router.
func (h *APIHandlers) Register(router fiber.Router) {
	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/enable", h.EnableWorkflow)
	w.Post("/:id/disable", h.DisableWorkflow)
	w.Post("/:id/execute", h.ExecuteWorkflow)
	w.Post("/:id/test", h.TestWorkflow)
	w.Get("/:id/stats", h.GetWorkflowStats)
	w.Get("/:id/executions", h.GetWorkflowExecutions)

	router.Get("/executions/:id", h.GetExecution)
	router.Get("/actions", h.GetActions)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := h.parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflowService.ListWorkflows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListWorkflowsRequest parses query parameters for listing workflows.
func (h *APIHandlers) parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if enabledStr := c.Query("enabled"); enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return nil, err
		}

		req.Enabled = &enabled
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), req.Workflow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	updated, err := h.workflowService.Update(c.Context(), id, req.Apply(existing))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.workflowService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnableWorkflow(c fiber.Ctx) error {
	return h.setEnabled(c, true)
}

func (h *APIHandlers) DisableWorkflow(c fiber.Ctx) error {
	return h.setEnabled(c, false)
}

func (h *APIHandlers) setEnabled(c fiber.Ctx, enabled bool) error {
	workflow, err := h.workflowService.SetEnabled(c.Context(), c.Params("id"), enabled)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	req, err := parseExecuteRequest(c)
	if err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	result, err := h.executionService.Execute(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) TestWorkflow(c fiber.Ctx) error {
	req, err := parseExecuteRequest(c)
	if err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	result, err := h.executionService.Test(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// parseExecuteRequest accepts an empty body as an empty request.
func parseExecuteRequest(c fiber.Ctx) (services.ExecuteRequest, error) {
	var req services.ExecuteRequest

	if len(c.Body()) == 0 {
		return req, nil
	}

	err := c.Bind().JSON(&req)

	return req, err
}

func (h *APIHandlers) GetWorkflowStats(c fiber.Ctx) error {
	days := 0

	if daysStr := c.Query("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil {
			return badRequest(c, "Invalid query parameters: days must be an integer")
		}

		days = parsed
	}

	result, err := h.executionService.Stats(c.Context(), c.Params("id"), days)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	req := services.HistoryRequest{Status: c.Query("status")}

	if pageStr := c.Query("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return badRequest(c, "Invalid query parameters: page must be a positive integer")
		}

		req.Page = page
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return badRequest(c, "Invalid query parameters: limit must be a positive integer")
		}

		req.Limit = limit
	}

	result, err := h.executionService.History(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executionService.FetchExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	return c.JSON(h.registry.AvailableActions())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "flowrun API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "flowrun API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
