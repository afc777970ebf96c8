package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"referral-tracking-system/handlers"
	"referral-tracking-system/middleware"
	"referral-tracking-system/models"
	"referral-tracking-system/services"
	"referral-tracking-system/utils"
	"referral-tracking-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("⚠️  No .env file found, reading environment variables directly")
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}
	var origins []string
	for _, origin := range strings.Split(allowedOrigins, ",") {
		origins = append(origins, strings.TrimSpace(origin))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID, X-User-Roles",
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logrus.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("failed to connect to database: %v", err)
	}

	if err := models.AutoMigrate(db); err != nil {
		logrus.Fatalf("failed to migrate database: %v", err)
	}
	if err := models.Seed(db); err != nil {
		logrus.Fatalf("failed to seed database: %v", err)
	}

	// Redis is optional: without it the bank list and welcome text are read
	// straight from Postgres on every request.
	var redisClient *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASS"),
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
	} else {
		logrus.Warn("⚠️  REDIS_ADDR not set, bank cache disabled")
	}

	if err := utils.InitR2(); err != nil {
		logrus.Fatalf("failed to initialize R2 client: %v", err)
	}

	bankService := services.NewBankService(db, redisClient)
	referralService := services.NewReferralService(db, bankService)
	rewardService := services.NewRewardService(db, bankService)
	statsService := services.NewStatsService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if redisClient != nil {
		workers.NewCacheRefreshWorker(bankService).Start(ctx)
	}
	statsService.StartExportScheduler()

	handlers.SetupReferralRoutes(app, referralService, rewardService)
	handlers.SetupAdminRoutes(app, bankService, statsService, rewardService)

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			logrus.Errorf("Server error: %v", err)
		}
	}()

	logrus.Infof("✅ Server running on http://localhost:%s", port)
	logrus.Info("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")

	<-ctx.Done()
	logrus.Info("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		logrus.Errorf("shutdown error: %v", err)
	}
}
