package service

import (
	"context"
	"strings"

	"github.com/estatedesk/lead-intake-backend/internal/config"
	"github.com/estatedesk/lead-intake-backend/internal/repository"
	"github.com/estatedesk/lead-intake-backend/internal/types"
)

// ============================================
// Permission Service
// ============================================

// Identity is the resolved caller of one request. IsAdmin is computed
// once at resolution time from three independent channels: the token's
// role claim, the stored user role, and the configured demo admin
// email. Any one of them is sufficient.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	TokenRole string
	IsAdmin   bool
}

type PermissionService interface {
	ResolveIdentity(ctx context.Context, userID, tokenRole string) (*Identity, error)
	CanEditBuyer(identity *Identity, ownerID string) bool
	CanViewBuyer(identity *Identity, ownerID string) bool
	CanViewAllBuyers(identity *Identity) bool
}

type permissionService struct {
	cfg      *config.Config
	userRepo repository.UserRepository
}

func NewPermissionService(cfg *config.Config, userRepo repository.UserRepository) PermissionService {
	return &permissionService{cfg: cfg, userRepo: userRepo}
}

// ResolveIdentity loads the user row and settles admin status for the
// rest of the request. Unknown user IDs fail closed.
func (s *permissionService) ResolveIdentity(ctx context.Context, userID, tokenRole string) (*Identity, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}

	identity := &Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TokenRole: tokenRole,
	}
	identity.IsAdmin = tokenRole == types.RoleAdmin ||
		user.Role == types.RoleAdmin ||
		(s.cfg.AdminEmail != "" && strings.EqualFold(user.Email, s.cfg.AdminEmail))

	return identity, nil
}

// Visibility and edit rights are the same rule: the owner, or an
// admin. Non-admin callers never see other owners' leads.
func (s *permissionService) CanEditBuyer(identity *Identity, ownerID string) bool {
	if identity == nil {
		return false
	}
	return identity.IsAdmin || identity.UserID == ownerID
}

func (s *permissionService) CanViewBuyer(identity *Identity, ownerID string) bool {
	return s.CanEditBuyer(identity, ownerID)
}

func (s *permissionService) CanViewAllBuyers(identity *Identity) bool {
	return identity != nil && identity.IsAdmin
}
