package documents

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"doccontrol/portal-backend/internal/auth"
)

// Handler exposes approval workflows over HTTP
type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	docs := rg.Group("/documents/:id")
	{
		docs.POST("/approval-workflow", h.createWorkflow)
		docs.GET("/approval-workflow", h.getWorkflow)
		docs.POST("/approval-workflow/actions", h.act)
		docs.GET("/approval-workflow/verify", h.verifyWorkflow)
		docs.GET("/approval-workflow/export", h.exportWorkflow)
		docs.GET("/activity", h.listActivity)
	}
}

type createWorkflowBody struct {
	Approvers []uuid.UUID `json:"approvers"`
	Comments  *string     `json:"comments"`
}

type actBody struct {
	Action   string  `json:"action" binding:"required"`
	Comments *string `json:"comments"`
}

// createWorkflow handles POST /api/v1/documents/:id/approval-workflow
func (h *Handler) createWorkflow(c *gin.Context) {
	docID, ok := h.documentID(c)
	if !ok {
		return
	}
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	var body createWorkflowBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wf, doc, err := h.service.CreateWorkflow(c.Request.Context(), CreateWorkflowRequest{
		DocumentID:  docID,
		RequestedBy: userID,
		Approvers:   body.Approvers,
		Comments:    body.Comments,
	})
	if err != nil {
		h.writeError(c, "Failed to create approval workflow", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"workflow": wf, "document": doc})
}

// getWorkflow handles GET /api/v1/documents/:id/approval-workflow
func (h *Handler) getWorkflow(c *gin.Context) {
	docID, ok := h.documentID(c)
	if !ok {
		return
	}

	wf, err := h.service.GetActiveOrLatestWorkflow(c.Request.Context(), docID)
	if err != nil {
		h.writeError(c, "Failed to get approval workflow", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workflow": wf})
}

// act handles POST /api/v1/documents/:id/approval-workflow/actions
func (h *Handler) act(c *gin.Context) {
	docID, ok := h.documentID(c)
	if !ok {
		return
	}
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	var body actBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := ParseAction(body.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.ActOnWorkflow(c.Request.Context(), ActRequest{
		DocumentID:   docID,
		ActingUserID: userID,
		Action:       action,
		Comments:     body.Comments,
	})
	if err != nil {
		h.writeError(c, "Failed to process approval action", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// verifyWorkflow handles GET /api/v1/documents/:id/approval-workflow/verify
func (h *Handler) verifyWorkflow(c *gin.Context) {
	docID, ok := h.documentID(c)
	if !ok {
		return
	}

	wf, err := h.service.VerifyWorkflow(c.Request.Context(), docID)
	if err != nil {
		h.writeError(c, "Failed to verify approval workflow", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workflow_id": wf.ID, "consistent": true})
}

// exportWorkflow handles GET /api/v1/documents/:id/approval-workflow/export
func (h *Handler) exportWorkflow(c *gin.Context) {
	docID, ok := h.documentID(c)
	if !ok {
		return
	}
	format, err := ParseExportFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := h.service.ExportWorkflow(c.Request.Context(), docID, format, &buf); err != nil {
		h.writeError(c, "Failed to export approval workflow", err)
		return
	}

	filename := fmt.Sprintf("approval-trail-%s.%s", docID, format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// listActivity handles GET /api/v1/documents/:id/activity
func (h *Handler) listActivity(c *gin.Context) {
	docID, ok := h.documentID(c)
	if !ok {
		return
	}

	entries, err := h.service.ListActivity(c.Request.Context(), docID)
	if err != nil {
		h.writeError(c, "Failed to list document activity", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"activity": entries})
}

func (h *Handler) documentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return uuid.Nil, false
	}
	return id, true
}

// getUserID returns the acting user resolved by the auth middleware
func (h *Handler) getUserID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(c *gin.Context, msg string, err error) {
	var (
		notYourTurn *NotYourTurnError
		invalid     *InvalidApproversError
		drift       *DriftError
	)
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "missing": invalid.Missing})
	case errors.Is(err, ErrNotAnApprover):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDocumentNotFound),
		errors.Is(err, ErrNoActiveWorkflow),
		errors.Is(err, ErrWorkflowNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &notYourTurn):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "expected_step": notYourTurn.ExpectedStep})
	case errors.As(err, &drift):
		c.JSON(http.StatusConflict, gin.H{"error": ErrWorkflowDrift.Error(), "workflow_id": drift.WorkflowID, "mismatches": drift.Mismatches})
	case errors.Is(err, ErrActiveWorkflowExists), errors.Is(err, ErrAlreadyActed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
