// Command seed-plans loads the plan catalog YAML into the plans table.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/config"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/database"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/logger"
)

func main() {
	plansPath := flag.String("plans", "./configs/plans.yaml", "path to the plan catalog")
	flag.Parse()

	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewZapLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	data, err := os.ReadFile(*plansPath)
	if err != nil {
		zapLogger.Fatal("Failed to read plan catalog", zap.String("path", *plansPath), zap.Error(err))
	}
	plans, err := usecase.ParsePlans(data)
	if err != nil {
		zapLogger.Fatal("Invalid plan catalog", zap.String("path", *plansPath), zap.Error(err))
	}

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// Run migrations
	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	repos := database.NewRepositories(db, zapLogger)
	catalog := usecase.NewPlanCatalog(repos.Plan, zapLogger)

	synced, err := catalog.Sync(context.Background(), plans)
	if err != nil {
		zapLogger.Error("Plan catalog partially synced", zap.Int("synced", synced), zap.Error(err))
		return
	}
	zapLogger.Info("Plan catalog seeded", zap.Int("plans_synced", synced))
}
