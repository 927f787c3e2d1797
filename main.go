package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ailab-unisabana/mail-organizer/config"
	"github.com/ailab-unisabana/mail-organizer/dedup"
	"github.com/ailab-unisabana/mail-organizer/graph"
	"github.com/ailab-unisabana/mail-organizer/subscription"
	"github.com/ailab-unisabana/mail-organizer/triage"
)

const VERSION = "0.1.0"

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	log.Println("Starting Mail Organizer Server...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		log.Fatalf("Failed to load category rules: %v", err)
	}
	log.Printf("Loaded %d categories from %s", len(rules.Categories), cfg.RulesPath)

	// Initialize Redis
	redisURL := cfg.RedisURL
	if strings.HasPrefix(redisURL, "redis://") {
		redisURL = strings.TrimPrefix(redisURL, "redis://")
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")

	// Microsoft Graph
	tokens := graph.NewTokenManager(graph.TokenConfig{
		TenantID:     cfg.TenantID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, redisClient)
	graphClient := graph.NewClient(tokens)

	// LLM backends
	chat := triage.NewGroqClient(cfg.GroqAPIKey, "")
	var vision triage.ImageDescriber
	if cfg.GoogleAPIKey != "" {
		describer, err := triage.NewGeminiDescriber(ctx, cfg.GoogleAPIKey, cfg.VisionModel)
		if err != nil {
			log.Fatalf("Failed to init vision backend: %v", err)
		}
		vision = describer
	} else {
		log.Println("GOOGLE_API_KEY not set, image analysis disabled")
	}

	pipeline := triage.NewPipeline(chat, vision, rules, cfg)
	cache := dedup.New(cfg.DedupWindow)
	processor := NewProcessor(cfg, rules, graphClient, pipeline, cache)
	subManager := subscription.NewManager(graphClient, cfg.TargetEmail, cfg.ClientState, subscription.DefaultRetryPolicy())

	r := mux.NewRouter()
	webhookHandler := NewWebhookHandler(cfg.ClientState, processor, subManager, processor)
	webhookHandler.RegisterRoutes(r)

	srv := &http.Server{
		Handler:      r,
		Addr:         "0.0.0.0:" + cfg.Port,
		WriteTimeout: 180 * time.Second,
		ReadTimeout:  180 * time.Second,
	}

	log.Printf("Mail Organizer v%s starting on %s", VERSION, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// The provider validates the webhook URL with a handshake, so the
	// subscription is created after the server is listening. Exhausted retries
	// leave the service up; /process still works without push delivery.
	if cfg.WebhookURL != "" {
		go func() {
			if _, err := subManager.Create(ctx, cfg.WebhookURL+"/webhook"); err != nil {
				log.Printf("Could not create subscription, push delivery disabled: %v", err)
			}
		}()
	} else {
		log.Println("WEBHOOK_URL not set, skipping subscription creation")
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
