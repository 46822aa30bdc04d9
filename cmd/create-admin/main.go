package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"usercenter/backend/internal/auth"
	"usercenter/backend/internal/bootstrap"
	"usercenter/backend/internal/config"
	"usercenter/backend/internal/logger"
)

func main() {
	username := flag.String("username", "", "管理员用户名")
	email := flag.String("email", "", "管理员邮箱")
	password := flag.String("password", "", "管理员密码，默认取 USERCENTER_ADMIN_PASSWORD")
	flag.Parse()

	// 兼容位置参数: create-admin <email> <password> <username>
	if args := flag.Args(); len(args) >= 3 {
		*email, *password, *username = args[0], args[1], args[2]
	}
	if *password == "" {
		*password = os.Getenv("USERCENTER_ADMIN_PASSWORD")
	}

	if *username == "" || *email == "" || *password == "" {
		fmt.Println("Usage: create-admin -username=<name> -email=<email> -password=<password>")
		fmt.Println("   or: create-admin <email> <password> <username>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.Type == "memory" {
		fmt.Println("Warning: USERCENTER_STORAGE_TYPE=memory, the admin user will not outlive this process")
	}

	log, err := logger.NewLogger(logger.Config{Service: "create-admin", Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backend, err := bootstrap.OpenBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer func() { _ = backend.Close() }()

	if err := bootstrap.SeedRBAC(ctx, backend.Store, cfg.Auth, log); err != nil {
		log.Fatal("failed to seed roles", zap.Error(err))
	}

	user, err := bootstrap.EnsureAdmin(ctx, backend.Store, auth.BcryptHasher{}, bootstrap.AdminInput{
		Username: *username,
		Email:    *email,
		Password: *password,
	}, log)
	if err != nil {
		log.Fatal("failed to create admin user", zap.Error(err))
	}

	fmt.Printf("✓ Admin user ready!\n")
	fmt.Printf("  ID:       %d\n", user.ID)
	fmt.Printf("  Email:    %s\n", user.Email)
	fmt.Printf("  Username: %s\n", user.Username)
}
