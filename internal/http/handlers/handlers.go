package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/chatbot-factory/backend/internal/db"
	"github.com/chatbot-factory/backend/internal/models"
	"github.com/chatbot-factory/backend/internal/service"
)

type Handler struct {
	Store     *db.Store
	Validator *validator.Validate
	Logger    zerolog.Logger
	AdminKey  string

	ListenAction   string
	FallbackIntent string
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary List inbox records
// @Tags inbox
// @Produce json
// @Param status query string false "Triage status filter"
// @Param intent query string false "Intent filter"
// @Param q query string false "Question substring"
// @Success 200 {object} map[string]any
// @Router /api/inbox [get]
func (h *Handler) InboxList(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))
	if status != "" && !validInboxStatus(models.InboxStatus(status)) {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown status", status)
		return
	}
	intent := strings.TrimSpace(c.Query("intent"))
	q := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.Store.ListInboxes(c.Request.Context(), status, intent, q, limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list inbox", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset})
}

// @Summary Confirm an inbox record after human review
// @Tags inbox
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/inbox/{id}/validate [post]
func (h *Handler) InboxValidate(c *gin.Context) {
	id, ok := inboxID(c)
	if !ok {
		return
	}
	updated, err := h.Store.UpdateInboxStatus(c.Request.Context(), id, models.StatusConfirmed)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to update inbox", err.Error())
		return
	}
	if !updated {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Inbox record not found", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) InboxAssign(c *gin.Context) {
	id, ok := inboxID(c)
	if !ok {
		return
	}
	email := c.Param("email")
	if err := h.Validator.Var(email, "required,email"); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid reviewer email", email)
		return
	}
	updated, err := h.Store.AssignInbox(c.Request.Context(), id, email)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to assign inbox", err.Error())
		return
	}
	if !updated {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Inbox record not found", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "assigned_to": email})
}

type InboxUpdateRequest struct {
	Question string `json:"question" validate:"required,max=1900"`
	Intent   string `json:"intent" validate:"required"`
	Status   string `json:"status" validate:"required,oneof=pending to_verify confirmed archived"`
}

func (h *Handler) InboxEdit(c *gin.Context) {
	id, ok := inboxID(c)
	if !ok {
		return
	}
	var req InboxUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	known, err := h.Store.IntentExists(c.Request.Context(), req.Intent)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to check intent", err.Error())
		return
	}
	if !known {
		writeError(c, http.StatusBadRequest, "UNKNOWN_INTENT", "Intent is not in the registry", req.Intent)
		return
	}

	updated, err := h.Store.UpdateInbox(c.Request.Context(), models.Inbox{
		ID:       id,
		Question: req.Question,
		Intent:   req.Intent,
		Status:   models.InboxStatus(req.Status),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Inbox record not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to update inbox", err.Error())
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) InboxArchive(c *gin.Context) {
	id, ok := inboxID(c)
	if !ok {
		return
	}
	updated, err := h.Store.ArchiveInbox(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to archive inbox", err.Error())
		return
	}
	if !updated {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Inbox record not found", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) IntentsList(c *gin.Context) {
	includeArchived := c.Query("include_archived") == "1" || strings.EqualFold(c.Query("include_archived"), "true")
	items, err := h.Store.ListIntents(c.Request.Context(), includeArchived)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list intents", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Match intents for the chat widget
// @Tags public
// @Produce json
// @Param query path string true "Search term"
// @Success 200 {object} map[string]any
// @Router /api/public/intents/{query} [get]
func (h *Handler) IntentsSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Param("query"))
	if query == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "query is required", nil)
		return
	}
	items, err := h.Store.SearchIntents(c.Request.Context(), query, 10)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to search intents", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type IntentCreateRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) IntentCreate(c *gin.Context) {
	var req IntentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	intent, err := h.Store.CreateIntent(c.Request.Context(), models.Intent{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create intent", err.Error())
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *Handler) IntentArchive(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	archived, err := h.Store.ArchiveIntent(c.Request.Context(), name)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to archive intent", err.Error())
		return
	}
	if !archived {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Intent not found", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type FeedbackRequest struct {
	UserQuestion string  `json:"user_question" validate:"required,max=1900"`
	Timestamp    float64 `json:"timestamp" validate:"required,gt=0"`
	Status       string  `json:"status" validate:"required,oneof=relevant wrong"`
}

// @Summary Submit feedback about a bot answer
// @Tags public
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/public/feedback [post]
func (h *Handler) FeedbackCreate(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	outcome, err := h.Store.UpsertFeedback(c.Request.Context(), models.Feedback{
		UserQuestion: req.UserQuestion,
		Timestamp:    req.Timestamp,
		Status:       models.FeedbackStatus(req.Status),
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to store feedback", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

// @Summary Trigger a consolidation run
// @Tags process
// @Produce json
// @Success 200 {object} service.ConsolidationSummary
// @Router /api/consolidate [post]
func (h *Handler) Consolidate(c *gin.Context) {
	runID, err := h.Store.CreateRun(c.Request.Context(), "consolidation", "RUNNING")
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to create run")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create run", err.Error())
		return
	}

	svc := service.ConsolidationService{
		Events:         h.Store,
		Inbox:          h.Store,
		Intents:        h.Store,
		Logger:         h.Logger,
		ListenAction:   h.ListenAction,
		FallbackIntent: h.FallbackIntent,
	}
	summary, err := svc.Run(c.Request.Context())
	h.finishRun(c, runID, summary, err)
	if err != nil {
		h.Logger.Error().Err(err).Msg("consolidation failed")
		writeError(c, http.StatusInternalServerError, "PROCESSING_ERROR", "Consolidation failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Trigger a feedback reconciliation run
// @Tags process
// @Produce json
// @Success 200 {object} service.ReconciliationSummary
// @Router /api/reconcile [post]
func (h *Handler) Reconcile(c *gin.Context) {
	runID, err := h.Store.CreateRun(c.Request.Context(), "reconciliation", "RUNNING")
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to create run")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create run", err.Error())
		return
	}

	svc := service.ReconciliationService{
		Feedback: h.Store,
		Matcher:  h.Store,
		Logger:   h.Logger,
	}
	summary, err := svc.Run(c.Request.Context())
	h.finishRun(c, runID, summary, err)
	if err != nil {
		h.Logger.Error().Err(err).Msg("reconciliation failed")
		writeError(c, http.StatusInternalServerError, "PROCESSING_ERROR", "Reconciliation failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) RunsLatest(c *gin.Context) {
	kind := c.DefaultQuery("kind", "consolidation")
	run, err := h.Store.GetLatestRun(c.Request.Context(), kind)
	if err != nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "No runs found", err.Error())
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) finishRun(c *gin.Context, runID string, summary any, runErr error) {
	status := "SUCCESS"
	if runErr != nil {
		status = "FAILED"
	}
	b, _ := json.Marshal(summary)
	if err := h.Store.FinishRun(c.Request.Context(), runID, status, b); err != nil {
		h.Logger.Error().Err(err).Msg("failed to finish run")
	}
}

func inboxID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid inbox id", c.Param("id"))
		return 0, false
	}
	return id, true
}

func validInboxStatus(s models.InboxStatus) bool {
	switch s {
	case models.StatusPending, models.StatusToVerify, models.StatusConfirmed, models.StatusArchived:
		return true
	}
	return false
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
