package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v79"

	"github.com/capifyhq/capify/db"
	"github.com/capifyhq/capify/logger"
	"github.com/capifyhq/capify/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	// db initialization
	postgres, err := db.CreatePostgresConnection()
	if err != nil {
		log.Fatal(err)
	}
	defer postgres.Close()

	// geoip lookups are optional; events still relay without location data
	geoipDB, err := db.CreateGeoIPConnection()
	if err != nil {
		log.Printf("GeoIP database unavailable: %v", err)
	} else {
		defer geoipDB.Close()
	}

	logPath := os.Getenv("EVENT_LOG_PATH")
	if logPath == "" {
		logPath = "logs/gtm_events.log"
	}
	eventLog := logger.NewEventLogger(logPath)
	defer eventLog.Close()

	tokens := &services.SQLTokenStore{DB: postgres}
	verifications := &services.SQLVerificationStore{DB: postgres}
	relay := services.NewRelay(tokens, verifications, eventLog, os.Getenv("META_API_BASE"))

	pool := services.NewPageViewPool(relay, services.DefaultBatchSize)
	pool.Start(services.DefaultBatchInterval)
	defer pool.Stop()

	// router
	router := SetupRouter(postgres, geoipDB, eventLog, relay, pool, logPath)

	port := 8080
	if raw := os.Getenv("PORT"); raw != "" {
		fmt.Sscanf(raw, "%d", &port)
	}
	address := fmt.Sprintf(":%d", port)

	server := &http.Server{
		Addr: address,
		Handler: handlers.CORS( // cors config
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		)(router),
	}

	go func() {
		log.Printf("Server is listening on port %d...\n", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v\n", err)
		}
	}()

	// drain the page view pool before exiting so queued events still ship
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
