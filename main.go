package main

import (
	"context"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorecal/internal/api"
	"gorecal/internal/config"
	"gorecal/internal/container"
	"gorecal/internal/errors"
	"gorecal/internal/migration"
	"gorecal/ui"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// initDatabase initializes the PostgreSQL database connection
func initDatabase(appConfig *config.Config) (*sqlx.DB, error) {
	if appConfig.Database.URL == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}

	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	// Run migrations
	migrator := migration.NewRunner()
	if err := migrator.Run(context.Background(), db); err != nil {
		return nil, errors.Wrap(err, "database migration failed")
	}

	return db, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load application configuration
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	gin.SetMode(appConfig.Server.GinMode)

	// Initialize database
	db, err := initDatabase(appConfig)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// Create dependency injection container
	appContainer, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}

	// Initialize container with database
	if err := appContainer.InitWithDatabase(db); err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Restore the audit chain and registry, then start the sweep and decay loops
	if err := appContainer.Start(ctx); err != nil {
		log.Fatalf("Failed to start services: %v", err)
	}

	// Evidence handler backs the per-entry audit endpoint
	evidence := api.NewEvidenceHandler(appContainer.Forensic, appContainer.Ledger, appContainer.Mutations)

	server := ui.NewServer(ui.Deps{
		Monitor:   appContainer.Monitor,
		Reweight:  appContainer.Reweight,
		Forensic:  appContainer.Forensic,
		Admission: appContainer.Admission,
		Reports:   appContainer.Reports,
		Hub:       appContainer.SSEHub,
		Evidence:  evidence,
		Mutations: appContainer.Mutations,
	})

	// Admin endpoints run on their own port
	admin := ui.NewAdminServer(db, appContainer.Forensic, appContainer.Monitor, appContainer.Reweight)
	go func() {
		if err := admin.Start(":" + appConfig.Server.AdminPort); err != nil {
			log.Printf("❌ Admin server failed: %v", err)
		}
	}()

	// Start pprof server for performance profiling
	if appConfig.Profiling.Enabled {
		go func() {
			log.Printf("🚀 Performance profiling server starting on :%s", appConfig.Profiling.Port)
			if err := http.ListenAndServe(":"+appConfig.Profiling.Port, nil); err != nil {
				log.Printf("❌ pprof server failed: %v", err)
			}
		}()
	}

	go func() {
		log.Printf("🚀 Starting recalibration server on port %s", appConfig.Server.Port)
		if err := server.Start(":" + appConfig.Server.Port); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	// Graceful shutdown: stop the loops, then release resources
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := appContainer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("✅ Shutdown complete")
}
