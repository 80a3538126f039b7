// Command createadmin seeds the default administrator account.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/shopsphere/shopsphere-api/internal/config"
	"github.com/shopsphere/shopsphere-api/internal/logger"
	"github.com/shopsphere/shopsphere-api/internal/model"
	"github.com/shopsphere/shopsphere-api/internal/repository"
)

const (
	adminName     = "Admin User"
	adminEmail    = "admin@shopsphere.com"
	adminPassword = "admin123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := repository.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
	if err != nil {
		log.Fatal("connect to MongoDB", zap.Error(err))
	}
	defer client.Disconnect(context.Background())

	db := client.Database(cfg.Mongo.Database)
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		log.Fatal("ensure indexes", zap.Error(err))
	}
	users := repository.NewUserRepository(db)

	existing, err := users.GetByEmail(ctx, adminEmail)
	if err != nil {
		log.Fatal("look up admin", zap.Error(err))
	}
	if existing != nil {
		log.Info("admin user already exists", zap.String("email", adminEmail), zap.String("role", existing.Role))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("hash password", zap.Error(err))
	}
	admin := &model.User{Name: adminName, Email: adminEmail, Password: string(hash), Role: model.RoleAdmin}
	if err := users.Create(ctx, admin); err != nil {
		log.Fatal("create admin", zap.Error(err))
	}
	log.Info("admin user created", zap.String("id", admin.ID), zap.String("email", adminEmail))
}
