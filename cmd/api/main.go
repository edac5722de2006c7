package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/odaiidemos/k9-sub001/gen/docs/swagger"
	"github.com/odaiidemos/k9-sub001/internal/infra/app"
	"github.com/odaiidemos/k9-sub001/internal/infra/config"
)

// @title K9 Records Auth API
// @version 1.0
// @description Authentication and account-security service for the kennel records platform.
// @BasePath /
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("application stopped: %w", err)
	}
	return nil
}
