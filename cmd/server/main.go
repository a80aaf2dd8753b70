package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexuspay/config"
	"nexuspay/internal/database"
	"nexuspay/internal/router"
	"nexuspay/pkg/stripeapi"
)

func main() {
	cfg := config.Load()
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if cfg.Stripe.SecretKey == "" {
		log.Printf("STRIPE_SECRET_KEY is not set; checkout and enrichment calls will fail")
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Printf("STRIPE_WEBHOOK_SECRET is not set; webhook deliveries will be rejected with 500")
	}
	stripeClient := stripeapi.New(cfg.Stripe.SecretKey)

	engine := router.Setup(cfg, db, stripeClient)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server shutdown:", err)
	}
	log.Println("server stopped")
}
