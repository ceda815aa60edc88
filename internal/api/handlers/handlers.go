package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/estatedesk/lead-intake-backend/internal/repository"
	"github.com/estatedesk/lead-intake-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	Auth  *AuthHandler
	Buyer *BuyerHandler
}

// NewHandlers creates all handlers
func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Auth:  &AuthHandler{authService: services.Auth},
		Buyer: &BuyerHandler{buyerService: services.Buyer},
	}
}

// ============================================
// Response Mappers
// ============================================

type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(u *repository.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

type BuyerResponse struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	FullName     string    `json:"fullName"`
	Email        *string   `json:"email"`
	Phone        string    `json:"phone"`
	City         string    `json:"city"`
	PropertyType string    `json:"propertyType"`
	BHK          *string   `json:"bhk"`
	Purpose      string    `json:"purpose"`
	BudgetMin    *int64    `json:"budgetMin"`
	BudgetMax    *int64    `json:"budgetMax"`
	Timeline     string    `json:"timeline"`
	Source       string    `json:"source"`
	Status       string    `json:"status"`
	Notes        *string   `json:"notes"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toBuyerResponse(b *repository.Buyer) BuyerResponse {
	resp := BuyerResponse{
		ID:           b.ID,
		OwnerID:      b.OwnerID,
		FullName:     b.FullName,
		Email:        b.Email,
		Phone:        b.Phone,
		City:         b.City,
		PropertyType: b.PropertyType,
		BHK:          b.BHK,
		Purpose:      b.Purpose,
		BudgetMin:    b.BudgetMin,
		BudgetMax:    b.BudgetMax,
		Timeline:     b.Timeline,
		Source:       b.Source,
		Status:       b.Status,
		Notes:        b.Notes,
		Tags:         b.Tags,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	return resp
}

func toBuyerResponses(buyers []*repository.Buyer) []BuyerResponse {
	responses := make([]BuyerResponse, len(buyers))
	for i, b := range buyers {
		responses[i] = toBuyerResponse(b)
	}
	return responses
}

// ============================================
// Error Mapping
// ============================================

func handleServiceError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":       "Validation failed",
			"fieldErrors": validationErr.Fields,
		})
		return
	}

	var importErr *service.ImportError
	if errors.As(err, &importErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Import rejected",
			"rowErrors": importErr.Rows,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, slow down"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Record changed, please refresh"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, service.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
	case errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
	default:
		logAPIError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func logAPIError(c *gin.Context, err error) {
	log.Printf("❌ [API] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
}
