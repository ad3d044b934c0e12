package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/engine"
	"github.com/AniruddhAgrahari/smartstock/internal/repository"
	"github.com/AniruddhAgrahari/smartstock/internal/service"
)

type PlanningHandler struct {
	service *service.PlanningService
}

func NewPlanningHandler(service *service.PlanningService) *PlanningHandler {
	return &PlanningHandler{service: service}
}

type forecastRequest struct {
	Records []domain.DemandRecord `json:"records" binding:"required"`
	Horizon int                   `json:"horizon" binding:"required,min=1"`
}

type planRequest struct {
	Records           []domain.DemandRecord `json:"records" binding:"required"`
	Items             []domain.Item         `json:"items"`
	Horizon           int                   `json:"horizon" binding:"required,min=1"`
	Constraints       domain.ConstraintSpec `json:"constraints"`
	SolverTimeLimitMS int                   `json:"solver_time_limit_ms" binding:"min=0"`
}

type runRequest struct {
	SKUs              []string              `json:"skus"`
	From              *time.Time            `json:"from"`
	To                *time.Time            `json:"to"`
	Horizon           int                   `json:"horizon" binding:"required,min=1"`
	Constraints       domain.ConstraintSpec `json:"constraints"`
	SolverTimeLimitMS int                   `json:"solver_time_limit_ms" binding:"min=0"`
}

type evaluateRequest struct {
	Records []domain.DemandRecord `json:"records" binding:"required"`
}

type transfersRequest struct {
	Locations []domain.StockLocation `json:"locations"`
	SKUs      []string               `json:"skus"`
}

func (h *PlanningHandler) Forecast(c *gin.Context) {
	var req forecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	res, err := h.service.Forecast(c.Request.Context(), req.Records, req.Horizon)
	if err != nil {
		errorResponse(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *PlanningHandler) InvalidateForecasts(c *gin.Context) {
	if err := h.service.InvalidateForecasts(c.Request.Context()); err != nil {
		errorResponse(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

func (h *PlanningHandler) Plan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	run, err := h.service.Plan(c.Request.Context(), domain.PlanRequest{
		Records:         req.Records,
		Items:           req.Items,
		Horizon:         req.Horizon,
		Constraints:     req.Constraints.Constraints(),
		SolverTimeLimit: time.Duration(req.SolverTimeLimitMS) * time.Millisecond,
	})
	h.respondRun(c, run, err)
}

func (h *PlanningHandler) RunFromDB(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	rr := service.RunRequest{
		SKUs:            req.SKUs,
		Horizon:         req.Horizon,
		Constraints:     req.Constraints.Constraints(),
		SolverTimeLimit: time.Duration(req.SolverTimeLimitMS) * time.Millisecond,
	}
	if req.From != nil {
		rr.From = *req.From
	}
	if req.To != nil {
		rr.To = *req.To
	}

	run, err := h.service.RunFromDB(c.Request.Context(), rr)
	h.respondRun(c, run, err)
}

func (h *PlanningHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		errorResponse(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *PlanningHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	runs, err := h.service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		errorResponse(c, statusFor(err), err)
		return
	}
	if runs == nil {
		runs = make([]domain.PlanRun, 0)
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func (h *PlanningHandler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.service.Models()})
}

func (h *PlanningHandler) Evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	report, err := h.service.Evaluate(c.Request.Context(), req.Records)
	if err != nil {
		errorResponse(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *PlanningHandler) Transfers(c *gin.Context) {
	var req transfersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	transfers, err := h.service.Transfers(c.Request.Context(), req.Locations, req.SKUs)
	if err != nil {
		errorResponse(c, statusFor(err), err)
		return
	}
	if transfers == nil {
		transfers = make([]domain.TransferRecommendation, 0)
	}
	c.JSON(http.StatusOK, gin.H{"data": transfers})
}

func (h *PlanningHandler) respondRun(c *gin.Context, run *domain.PlanRun, err error) {
	if err != nil {
		status := statusFor(err)
		log.Error().Err(err).Int("status", status).Msg("plan request failed")
		body := gin.H{"error": err.Error()}
		if run != nil {
			body["run_id"] = run.ID
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, run)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		infeasible *domain.InfeasibleConstraintsError
		invalid    *domain.PlanValidationError
	)
	switch {
	case errors.Is(err, engine.ErrInvalidHorizon):
		return http.StatusBadRequest
	case errors.As(err, &infeasible), errors.As(err, &invalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoRepository):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func errorResponse(c *gin.Context, status int, err error) {
	log.Error().Err(err).Int("status", status).Msg("request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}
