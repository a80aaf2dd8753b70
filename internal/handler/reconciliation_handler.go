package handler

import (
	"net/http"

	"nexuspay/internal/domain"
	"nexuspay/internal/repository"

	"github.com/gin-gonic/gin"
)

type ReconciliationHandler struct {
	submissionRepo *repository.SubmissionRepository
	auditRepo      *repository.AuditLogRepository
}

func NewReconciliationHandler(submissionRepo *repository.SubmissionRepository, auditRepo *repository.AuditLogRepository) *ReconciliationHandler {
	return &ReconciliationHandler{submissionRepo: submissionRepo, auditRepo: auditRepo}
}

// Report lists succeeded payments whose submission never reached paid, plus
// the audit entries written when those submission updates were skipped.
// Since the webhook always acknowledges 200, this report is the only way to
// notice a half-applied success event after the fact.
func (h *ReconciliationHandler) Report(c *gin.Context) {
	stale, err := h.submissionRepo.ListStale()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load stale pairs"})
		return
	}
	skipped, err := h.auditRepo.ListByAction(domain.AuditSubmissionStale, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load audit log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stale":           stale,
		"skipped_updates": skipped,
	})
}
