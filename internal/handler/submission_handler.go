package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"nexuspay/internal/domain"
	"nexuspay/internal/models"
	"nexuspay/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SubmissionHandler struct {
	submissionRepo *repository.SubmissionRepository
}

func NewSubmissionHandler(submissionRepo *repository.SubmissionRepository) *SubmissionHandler {
	return &SubmissionHandler{submissionRepo: submissionRepo}
}

// Create stores a veteran's intake form. Payment comes later via the
// checkout endpoint; new submissions always start unpaid.
func (h *SubmissionHandler) Create(c *gin.Context) {
	var req struct {
		FullName         string `json:"full_name" binding:"required"`
		Email            string `json:"email" binding:"required,email"`
		Phone            string `json:"phone"`
		ServiceBranch    string `json:"service_branch"`
		CurrentRating    int    `json:"current_rating" binding:"min=0,max=100"`
		ConditionSummary string `json:"condition_summary"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s := &models.FormSubmission{
		Reference:        fmt.Sprintf("nexus-%s", uuid.New().String()),
		FullName:         req.FullName,
		Email:            req.Email,
		Phone:            req.Phone,
		ServiceBranch:    req.ServiceBranch,
		CurrentRating:    req.CurrentRating,
		ConditionSummary: req.ConditionSummary,
		PaymentStatus:    domain.SubmissionUnpaid,
	}
	if err := h.submissionRepo.Create(s); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save submission"})
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *SubmissionHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	s, err := h.submissionRepo.GetByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}
