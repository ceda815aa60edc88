package seed

import (
	"context"
	"log"

	"github.com/estatedesk/lead-intake-backend/internal/repository"
	"github.com/estatedesk/lead-intake-backend/internal/types"
	"golang.org/x/crypto/bcrypt"
)

// SeedData creates demo users and a few sample leads for development.
// Safe to run repeatedly: existing users are left alone.
func SeedData(repos *repository.Repositories) {
	ctx := context.Background()

	admin := seedUser(ctx, repos, "Asha Verma", "admin@leadintake.dev", "admin12345", types.RoleAdmin)
	agent := seedUser(ctx, repos, "Rohan Gill", "rohan@leadintake.dev", "agent12345", types.RoleUser)
	if admin == nil || agent == nil {
		return
	}

	existing, err := repos.BuyerRepo.CountWithFilters(ctx, &repository.BuyerFilters{})
	if err != nil || existing > 0 {
		return
	}

	leads := []*repository.Buyer{
		{
			OwnerID:      agent.ID,
			FullName:     "Simran Kaur",
			Phone:        "9876543210",
			City:         types.CityMohali,
			PropertyType: types.PropertyApartment,
			BHK:          strPtr(types.BHKThree),
			Purpose:      types.PurposeBuy,
			BudgetMin:    intPtr(5000000),
			BudgetMax:    intPtr(7500000),
			Timeline:     types.TimelineZeroToThree,
			Source:       types.SourceWebsite,
			Status:       types.StatusNew,
			Tags:         []string{"urgent"},
		},
		{
			OwnerID:      agent.ID,
			FullName:     "Vikram Mehta",
			Phone:        "9811122233",
			City:         types.CityChandigarh,
			PropertyType: types.PropertyPlot,
			Purpose:      types.PurposeBuy,
			BudgetMin:    intPtr(3000000),
			Timeline:     types.TimelineExploring,
			Source:       types.SourceReferral,
			Status:       types.StatusNew,
			Tags:         []string{},
		},
		{
			OwnerID:      admin.ID,
			FullName:     "Neha Sharma",
			Phone:        "9900112233",
			City:         types.CityZirakpur,
			PropertyType: types.PropertyOffice,
			Purpose:      types.PurposeRent,
			Timeline:     types.TimelineThreeToSix,
			Source:       types.SourceWalkIn,
			Status:       types.StatusNew,
			Tags:         []string{"commercial", "follow-up"},
		},
	}

	for _, lead := range leads {
		if err := repos.BuyerRepo.CreateWithHistory(ctx, lead, nil); err != nil {
			log.Printf("⚠️ [Seed] Failed to create lead %s: %v", lead.FullName, err)
		}
	}
	log.Printf("🌱 [Seed] Created %d sample leads", len(leads))
}

func seedUser(ctx context.Context, repos *repository.Repositories, name, email, password, role string) *repository.User {
	existing, err := repos.UserRepo.FindByEmail(ctx, email)
	if err != nil {
		log.Printf("⚠️ [Seed] Failed to look up %s: %v", email, err)
		return nil
	}
	if existing != nil {
		return existing
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("⚠️ [Seed] Failed to hash password for %s: %v", email, err)
		return nil
	}

	user := &repository.User{
		Name:     name,
		Email:    email,
		Password: string(hashed),
		Role:     role,
	}
	if err := repos.UserRepo.Create(ctx, user); err != nil {
		log.Printf("⚠️ [Seed] Failed to create user %s: %v", email, err)
		return nil
	}
	log.Printf("🌱 [Seed] Created user %s (%s)", email, role)
	return user
}

func strPtr(v string) *string { return &v }

func intPtr(v int64) *int64 { return &v }
