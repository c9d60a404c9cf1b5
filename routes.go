package main

import (
	"database/sql"

	"github.com/gorilla/mux"
	"github.com/oschwald/geoip2-golang"

	"github.com/capifyhq/capify/handlers"
	"github.com/capifyhq/capify/logger"
	"github.com/capifyhq/capify/middleware"
	"github.com/capifyhq/capify/services"
)

func SetupRouter(db *sql.DB, geoipDB *geoip2.Reader, eventLog *logger.EventLogger, relay *services.Relay, pool *services.PageViewPool, logPath string) *mux.Router {

	router := mux.NewRouter()

	tokens := &services.SQLTokenStore{DB: db}
	fetcher := handlers.NewDomainFetcher()

	// health route
	router.HandleFunc("/api/health", handlers.Health()).Methods("GET")

	// auth routes
	router.HandleFunc("/api/auth/register", handlers.Register(db)).Methods("POST")
	router.HandleFunc("/api/auth/login", handlers.Login(db)).Methods("POST")
	router.HandleFunc("/api/auth/refresh-token", handlers.RefreshToken(db)).Methods("POST")

	// user routes
	router.Handle("/api/user/profile", middleware.AuthMiddleware(handlers.GetProfile(db))).Methods("GET")
	router.Handle("/api/user/profile", middleware.AuthMiddleware(handlers.UpdateProfile(db))).Methods("PUT")

	// facebook token routes
	router.Handle("/api/user/facebook-tokens", middleware.AuthMiddleware(handlers.GetFacebookTokens(db))).Methods("GET")
	router.Handle("/api/user/facebook-tokens", middleware.AuthMiddleware(handlers.CreateFacebookToken(db))).Methods("POST")
	router.Handle("/api/user/facebook-tokens/{id}", middleware.AuthMiddleware(handlers.UpdateFacebookToken(db))).Methods("PUT")
	router.Handle("/api/user/facebook-tokens/{id}", middleware.AuthMiddleware(handlers.DeleteFacebookToken(db))).Methods("DELETE")
	router.Handle("/api/user/facebook-tokens/{id}/script", middleware.AuthMiddleware(handlers.GetTokenScript(db, eventLog))).Methods("GET")

	// gtm verification routes
	router.Handle("/api/gtm-verifications", middleware.AuthMiddleware(handlers.GetGtmVerifications(db))).Methods("GET")
	router.Handle("/api/gtm-verifications", middleware.AuthMiddleware(handlers.CreateGtmVerification(db))).Methods("POST")
	router.Handle("/api/gtm-verifications/{id}", middleware.AuthMiddleware(handlers.UpdateGtmVerification(db))).Methods("PUT")
	router.Handle("/api/gtm-verifications/{id}", middleware.AuthMiddleware(handlers.DeleteGtmVerification(db))).Methods("DELETE")
	router.Handle("/api/gtm-verifications/{id}/verify", middleware.AuthMiddleware(handlers.VerifyGtmVerification(db, fetcher))).Methods("POST")
	router.Handle("/api/gtm-verifications/{id}/script", middleware.AuthMiddleware(handlers.GetVerificationScript(db))).Methods("GET")

	// token info for GTM scripts, no auth
	router.HandleFunc("/api/facebook/token-info/{containerId}", handlers.GetTokenInfo(tokens, eventLog)).Methods("GET")

	// event relay routes; called by GTM scripts on public pages
	events := router.PathPrefix("/api/facebook/events").Subrouter()
	events.Use(middleware.OptionalAuthMiddleware)
	events.HandleFunc("/purchase", handlers.SendEvent(relay, geoipDB, "Purchase", handlers.PurchaseCustomData)).Methods("POST")
	events.HandleFunc("/lead", handlers.SendEvent(relay, geoipDB, "Lead", handlers.LeadCustomData)).Methods("POST")
	events.HandleFunc("/add-to-cart", handlers.SendEvent(relay, geoipDB, "AddToCart", handlers.CartCustomData)).Methods("POST")
	events.HandleFunc("/view-content", handlers.SendEvent(relay, geoipDB, "ViewContent", handlers.CartCustomData)).Methods("POST")
	events.HandleFunc("/complete-registration", handlers.SendEvent(relay, geoipDB, "CompleteRegistration", handlers.RegistrationCustomData)).Methods("POST")
	events.HandleFunc("/initiate-checkout", handlers.SendEvent(relay, geoipDB, "InitiateCheckout", handlers.CartCustomData)).Methods("POST")
	events.HandleFunc("/search", handlers.SendEvent(relay, geoipDB, "Search", handlers.SearchCustomData)).Methods("POST")
	events.HandleFunc("/contact", handlers.SendEvent(relay, geoipDB, "Contact", handlers.ContactCustomData)).Methods("POST")
	events.HandleFunc("/subscribe", handlers.SendEvent(relay, geoipDB, "Subscribe", handlers.SubscriptionCustomData)).Methods("POST")
	events.HandleFunc("/add-payment-info", handlers.SendEvent(relay, geoipDB, "AddPaymentInfo", handlers.CartCustomData)).Methods("POST")
	events.HandleFunc("/add-to-wishlist", handlers.SendEvent(relay, geoipDB, "AddToWishlist", handlers.ContentCustomData)).Methods("POST")
	events.HandleFunc("/customize-product", handlers.SendEvent(relay, geoipDB, "CustomizeProduct", handlers.ContentCustomData)).Methods("POST")
	events.HandleFunc("/donate", handlers.SendEvent(relay, geoipDB, "Donate", handlers.DonateCustomData)).Methods("POST")
	events.HandleFunc("/find-location", handlers.SendEvent(relay, geoipDB, "FindLocation", handlers.FindLocationCustomData)).Methods("POST")
	events.HandleFunc("/schedule", handlers.SendEvent(relay, geoipDB, "Schedule", handlers.ScheduleCustomData)).Methods("POST")
	events.HandleFunc("/start-trial", handlers.SendEvent(relay, geoipDB, "StartTrial", handlers.SubscriptionCustomData)).Methods("POST")
	events.HandleFunc("/submit-application", handlers.SendEvent(relay, geoipDB, "SubmitApplication", handlers.CartCustomData)).Methods("POST")
	events.HandleFunc("/page-view", handlers.SendPageView(pool, geoipDB)).Methods("POST")

	// log inspection routes
	router.Handle("/api/logs/gtm-events", middleware.AuthMiddleware(handlers.GetEventLogs(logPath))).Methods("GET")
	router.Handle("/api/logs/gtm-events/download", middleware.AuthMiddleware(handlers.DownloadEventLogs(logPath))).Methods("GET")
	router.Handle("/api/logs/gtm-events/clear", middleware.AuthMiddleware(handlers.ClearEventLogs(logPath))).Methods("POST")
	router.Handle("/api/logs/gtm-events/stats", middleware.AuthMiddleware(handlers.GetEventLogStats(logPath))).Methods("GET")

	// payment routes
	router.Handle("/api/payment/create-checkout-session", middleware.AuthMiddleware(handlers.CreateCheckoutSession(db))).Methods("POST")
	router.HandleFunc("/api/payment/webhook", handlers.StripeWebhook(db)).Methods("POST")

	return router
}
