package service

import (
	"errors"
	"time"

	"github.com/estatedesk/lead-intake-backend/internal/config"
	"github.com/estatedesk/lead-intake-backend/internal/db"
	"github.com/estatedesk/lead-intake-backend/internal/ratelimit"
	"github.com/estatedesk/lead-intake-backend/internal/repository"
	"github.com/estatedesk/lead-intake-backend/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrNotFound           = errors.New("resource not found")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("record changed, please refresh")
	ErrRateLimited        = errors.New("too many requests")
)

// ValidationError carries the field-level violations of one rejected
// submission. It wraps the individual messages so handlers can return
// all of them at once.
type ValidationError struct {
	Fields []validation.FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Fields[0].Error()
}

// ============================================
// Services Container
// ============================================

type Services struct {
	Auth       AuthService
	Permission PermissionService
	Buyer      BuyerService
}

// ServiceDeps contains all dependencies needed to create services
type ServiceDeps struct {
	Config *config.Config
	Repos  *repository.Repositories
	Redis  *db.RedisDB // optional, nil disables caching
}

func NewServices(deps *ServiceDeps) *Services {
	permissionService := NewPermissionService(deps.Config, deps.Repos.UserRepo)

	limiter := ratelimit.New(
		deps.Config.RateLimitMax,
		time.Duration(deps.Config.RateLimitWindowSec)*time.Second,
	)

	return &Services{
		Auth:       NewAuthService(deps.Config, deps.Repos.UserRepo),
		Permission: permissionService,
		Buyer: NewBuyerService(
			deps.Config,
			deps.Repos.BuyerRepo,
			deps.Repos.HistoryRepo,
			permissionService,
			limiter,
			deps.Redis,
		),
	}
}
