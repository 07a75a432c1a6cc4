// seed inserts development sample users for local testing. Idempotent: skips
// when the dev user already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lanstar128/jjds-auth-service/internal/config"
	"github.com/lanstar128/jjds-auth-service/internal/db"
	"github.com/lanstar128/jjds-auth-service/internal/security"
	userdomain "github.com/lanstar128/jjds-auth-service/internal/user/domain"
	userrepo "github.com/lanstar128/jjds-auth-service/internal/user/repository"
)

const (
	devPhone      = "13800138888"
	devPassword   = "abc123"
	disabledPhone = "13900139999"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	repo := userrepo.NewPostgresRepository(conn)
	ctx := context.Background()

	existing, err := repo.GetByPhone(ctx, devPhone)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping.", devPhone)
		os.Exit(0)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	active := &userdomain.User{
		Phone:        devPhone,
		PasswordHash: passwordHash,
		Status:       userdomain.UserStatusActive,
		Nickname:     "开发测试",
		Role:         userdomain.DefaultRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(ctx, active); err != nil {
		log.Fatalf("create dev user: %v", err)
	}

	disabled := &userdomain.User{
		Phone:        disabledPhone,
		PasswordHash: passwordHash,
		Status:       userdomain.UserStatusDisabled,
		Nickname:     "禁用账号",
		Role:         userdomain.DefaultRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(ctx, disabled); err != nil {
		log.Fatalf("create disabled user: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s (id %d)\n", devPhone, devPassword, active.ID)
	fmt.Printf("Disabled account: %s / %s (id %d)\n", disabledPhone, devPassword, disabled.ID)
}
