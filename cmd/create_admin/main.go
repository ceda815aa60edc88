// Creates an admin user, or promotes an existing one.
//
//	go run ./cmd/create_admin -email admin@example.com -name "Admin" -password secret
package main

import (
	"context"
	"flag"
	"log"

	"github.com/estatedesk/lead-intake-backend/internal/config"
	"github.com/estatedesk/lead-intake-backend/internal/db"
	"github.com/estatedesk/lead-intake-backend/internal/repository"
	"github.com/estatedesk/lead-intake-backend/internal/types"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	email := flag.String("email", "", "admin email address")
	name := flag.String("name", "Admin", "display name for a newly created user")
	password := flag.String("password", "", "password for a newly created user")
	flag.Parse()

	if *email == "" {
		log.Fatal("❌ -email is required")
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	pg, err := db.NewPostgresDB(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("❌ Failed to connect to PostgreSQL: %v", err)
	}
	defer pg.Close()

	repos := repository.NewPgRepositories(pg.Pool)
	ctx := context.Background()

	existing, err := repos.UserRepo.FindByEmail(ctx, *email)
	if err != nil {
		log.Fatalf("❌ Failed to look up user: %v", err)
	}

	if existing != nil {
		if existing.Role == types.RoleAdmin {
			log.Printf("✅ %s is already an admin", *email)
			return
		}
		if err := repos.UserRepo.UpdateRole(ctx, existing.ID, types.RoleAdmin); err != nil {
			log.Fatalf("❌ Failed to promote user: %v", err)
		}
		log.Printf("✅ Promoted %s to admin", *email)
		return
	}

	if *password == "" {
		log.Fatal("❌ -password is required when creating a new user")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}

	user := &repository.User{
		Name:     *name,
		Email:    *email,
		Password: string(hashed),
		Role:     types.RoleAdmin,
	}
	if err := repos.UserRepo.Create(ctx, user); err != nil {
		log.Fatalf("❌ Failed to create user: %v", err)
	}
	log.Printf("✅ Created admin user %s", *email)
}
