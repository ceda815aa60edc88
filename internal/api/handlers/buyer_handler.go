package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/estatedesk/lead-intake-backend/internal/api/middleware"
	"github.com/estatedesk/lead-intake-backend/internal/csvio"
	"github.com/estatedesk/lead-intake-backend/internal/service"
	"github.com/estatedesk/lead-intake-backend/internal/validation"
	"github.com/gin-gonic/gin"
)

// ============================================
// Buyer Handler
// ============================================

type BuyerHandler struct {
	buyerService service.BuyerService
}

func (h *BuyerHandler) Create(c *gin.Context) {
	identity, ok := middleware.RequireIdentity(c)
	if !ok {
		return
	}

	var input validation.BuyerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyer, err := h.buyerService.Create(c.Request.Context(), identity, &input)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toBuyerResponse(buyer))
}

func (h *BuyerHandler) Get(c *gin.Context) {
	identity, ok := middleware.RequireIdentity(c)
	if !ok {
		return
	}

	buyer, err := h.buyerService.Get(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBuyerResponse(buyer))
}

func (h *BuyerHandler) List(c *gin.Context) {
	identity, ok := middleware.RequireIdentity(c)
	if !ok {
		return
	}

	page, err := h.buyerService.List(c.Request.Context(), identity, listQueryFromRequest(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"buyers":   toBuyerResponses(page.Buyers),
		"total":    page.Total,
		"page":     page.Page,
		"pageSize": page.PageSize,
	})
}

func (h *BuyerHandler) Update(c *gin.Context) {
	identity, ok := middleware.RequireIdentity(c)
	if !ok {
		return
	}

	var input validation.BuyerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyer, err := h.buyerService.Update(c.Request.Context(), identity, c.Param("id"), &input)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBuyerResponse(buyer))
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *BuyerHandler) UpdateStatus(c *gin.Context) {
	identity, ok := middleware.RequireIdentity(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyer, err := h.buyerService.UpdateStatus(c.Request.Context(), identity, c.Param("id"), req.Status)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBuyerResponse(buyer))
}

func (h *BuyerHandler) History(c *gin.Context) {
	identity, ok := middleware.RequireIdentity(c)
	if !ok {
		return
	}

	entries, err := h.buyerService.History(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *BuyerHandler) Import(c *gin.Context) {
	identity, ok := middleware.RequireIdentity(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A CSV file is required"})
		return
	}
	if fileHeader.Size > csvio.MaxImportBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": csvio.ErrFileTooLarge.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open uploaded file"})
		return
	}
	defer file.Close()

	result, err := h.buyerService.ImportCSV(c.Request.Context(), identity, file)
	if err != nil {
		if err == csvio.ErrFileTooLarge || err == csvio.ErrTooManyRows || err == csvio.ErrMissingHeader {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *BuyerHandler) Export(c *gin.Context) {
	identity, ok := middleware.RequireIdentity(c)
	if !ok {
		return
	}

	filename := fmt.Sprintf("buyers-%s.csv", time.Now().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)

	if err := h.buyerService.ExportCSV(c.Request.Context(), identity, listQueryFromRequest(c), c.Writer); err != nil {
		logAPIError(c, err)
	}
}

func listQueryFromRequest(c *gin.Context) *service.ListQuery {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	return &service.ListQuery{
		Search:       c.Query("search"),
		City:         c.Query("city"),
		PropertyType: c.Query("propertyType"),
		Status:       c.Query("status"),
		Timeline:     c.Query("timeline"),
		Sort:         c.Query("sort"),
		Page:         page,
	}
}
