package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	config "postflow/configs"
	"postflow/internal/api/handlers"
	"postflow/internal/api/middleware"
	"postflow/internal/notifier"
	"postflow/internal/queue"
	"postflow/internal/repository"
	"postflow/internal/scheduler"
	"postflow/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	postRepo := repository.NewPostRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	historyRepo := repository.NewPostingHistoryRepository(db)

	tokenService := service.NewTokenService(*cfg, socialAccountRepo)
	r2Service := service.NewR2Service(*cfg)
	mediaService := service.NewMediaService(*cfg, postMediaRepo, mediaAssetRepo, r2Service)
	twitterService := service.NewTwitterService(*cfg, tokenService, mediaService, postMediaRepo)
	retryService := service.NewRetryService(*cfg, postRepo)

	dispatcher := queue.NewDispatcher(settingsRepo, queue.NewAsynqEnqueuer(client))
	queueW := queue.NewQueue(buildNotifier(cfg))

	sched := scheduler.NewScheduler(*cfg, postRepo, socialAccountRepo, postMediaRepo,
		historyRepo, twitterService, retryService, dispatcher)

	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(logger.New())

	health := handlers.NewHealthHandler(*cfg, db, postRepo, socialAccountRepo)
	app.Get("/health", health.Health)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())
	api.Get("/status", health.Status)

	c := cron.New()
	if _, err := c.AddFunc(cfg.CronSpec, sched.Run); err != nil {
		log.Fatalf("Invalid cron spec %q: %v", cfg.CronSpec, err)
	}
	c.Start()
	log.Printf("Publish scheduler started with spec %q", cfg.CronSpec)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeNotification, queueW.HandleNotificationTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db, c)
}

// buildNotifier picks the concrete delivery provider. Without Gmail
// credentials the mock provider logs events instead, which is what local
// development wants.
func buildNotifier(cfg *config.Config) notifier.Notifier {
	if cfg.GmailCredsFile == "" || cfg.GmailFrom == "" {
		log.Println("Gmail not configured, using mock notifier")
		return notifier.NewMockNotifier()
	}

	gmailService, err := gmail.NewService(context.Background(),
		option.WithCredentialsFile(cfg.GmailCredsFile),
		option.WithScopes(gmail.GmailSendScope))
	if err != nil {
		log.Printf("Failed to build Gmail service, using mock notifier: %v", err)
		return notifier.NewMockNotifier()
	}

	return notifier.NewGmailNotifier(gmailService, cfg.GmailFrom)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, c *cron.Cron) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	// Let an in-flight tick finish before the process goes away.
	<-c.Stop().Done()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
