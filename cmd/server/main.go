package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/converso-io/converso-ce/internal/api"
	"github.com/converso-io/converso-ce/internal/auth"
	"github.com/converso-io/converso-ce/internal/cache"
	"github.com/converso-io/converso-ce/internal/config"
	"github.com/converso-io/converso-ce/internal/database"
	"github.com/converso-io/converso-ce/internal/repository"
	"github.com/converso-io/converso-ce/internal/service"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	if err := config.Load(configPath); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.Get()

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	db, err := database.Connect(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.Database.Driver == "sqlite3" {
		if err := database.BootstrapDevSchema(ctx, db); err != nil {
			log.Fatalf("Failed to bootstrap schema: %v", err)
		}
	}

	var memberships repository.IMembershipRepository = repository.NewMembershipRepository(db)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		memberships = cache.NewMembershipCache(memberships, redisClient, cache.WithCacheTTL(cfg.Redis.CacheTTL))
		log.Printf("Membership cache enabled (redis %s)", cfg.Redis.GetRedisAddr())
	}

	ruleRepo := repository.NewRuleRepository(db)
	conversationRepo := repository.NewConversationRepository(db)

	catalog := auth.NewCatalog()
	guard := auth.NewGuard(catalog, memberships)
	jwtManager := auth.NewJWTManager(cfg.Auth.JWT.Secret, cfg.Auth.JWT.AccessTokenTTL)

	memberService := service.NewMemberService(guard, memberships)
	ruleService := service.NewRuleService(guard, ruleRepo)
	assignmentService := service.NewAssignmentService(conversationRepo, ruleRepo)

	router := api.SetupRouter(api.RouterDeps{
		Guard:         guard,
		JWTManager:    jwtManager,
		Members:       memberService,
		Rules:         ruleService,
		Assignments:   assignmentService,
		Conversations: conversationRepo,
		MetricsOn:     cfg.Metrics.Enabled,
	})

	server := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Starting %s on %s", cfg.App.Name, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
