package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"game-match-system/handlers"
	"game-match-system/middleware"
	"game-match-system/models"
	"game-match-system/monitor"
	"game-match-system/services"
	"game-match-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: only Gateway requests allowed (stream routes use query tokens)
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Match{},
		&models.MatchPlayer{},
		&models.Move{},
		&models.UserProgress{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := monitor.NewMonitor("game_match")
	mon.StartServer(getEnv("METRICS_ADDR", ":9100"))

	hub := services.NewHub()
	hub.Metrics = mon

	// With REDIS_ADDR set, events fan out across nodes; without it the hub
	// broadcasts in-process only.
	var publisher services.Publisher = hub
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		relay := services.NewRedisRelay(hub, rdb)
		go relay.Run(ctx)
		publisher = relay
		log.Printf("✅ Redis event relay enabled (%s)", redisAddr)
	}

	progressionService := services.NewProgressionService(db, nil)
	ledger := services.NewMoveLedger(db)

	matchmakingService := services.NewMatchmakingService(db, publisher)
	matchmakingService.Metrics = mon
	matchmakingService.TotalRounds = getEnvInt("RPS_TOTAL_ROUNDS", 3)
	matchmakingService.RoundTimeout = time.Duration(getEnvInt("ROUND_TIMEOUT_SECONDS", 30)) * time.Second

	tictactoeService := services.NewTicTacToeService(db, ledger, publisher, progressionService)
	tictactoeService.Metrics = mon

	rpsService := services.NewRPSService(db, ledger, publisher, progressionService)
	rpsService.Metrics = mon
	rpsService.RoundTimeout = matchmakingService.RoundTimeout

	eventService := services.NewEventService(hub)

	// Background maintenance: reap abandoned WAITING matches, fill in NO_PICK
	// for overdue RPS rounds.
	matchWaitTTL := time.Duration(getEnvInt("MATCH_WAIT_TTL_MINUTES", 10)) * time.Minute
	matchmakingService.StartReaper(matchWaitTTL)

	deadlineWorker := workers.NewRoundDeadlineWorker(db, rpsService, ledger)
	deadlineWorker.Start(ctx)

	handlers.SetupMatchRoutes(app, matchmakingService, tictactoeService, rpsService, eventService)
	handlers.SetupProgressionRoutes(app, progressionService)

	port := getEnv("PORT", "5300")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Match server running on http://localhost:%s", port)
	log.Printf("✅ Reaper running (TTL %s), round deadline worker running", matchWaitTTL)
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️  invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
