package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-invites/internal/auth"
	"ms-invites/internal/billing"
	billingapi "ms-invites/internal/billing/api"
	"ms-invites/internal/config"
	"ms-invites/internal/event"
	eventapi "ms-invites/internal/event/api"
	eventdb "ms-invites/internal/event/db"
	"ms-invites/internal/invitation"
	invitationapi "ms-invites/internal/invitation/api"
	"ms-invites/internal/kafka"
	"ms-invites/internal/ledger"
	ledgerapi "ms-invites/internal/ledger/api"
	ledgerdb "ms-invites/internal/ledger/db"
	ledgerredis "ms-invites/internal/ledger/redis"
	"ms-invites/internal/logger"
	"ms-invites/internal/mailer"
	"ms-invites/internal/migrations"
	"ms-invites/internal/rsvp"
	rsvpapi "ms-invites/internal/rsvp/api"
	rsvpdb "ms-invites/internal/rsvp/db"
	"ms-invites/internal/sse"
)

func connectDatabase(cfg config.DatabaseConfig) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("[Database] Failed to open Postgres: %v", err)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatalf("[Database] Failed to connect to Postgres: %v", err)
	}
	log.Println("[Database] Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	_ = godotenv.Load() // Loads .env file if present

	cfg := config.Load()
	appLogger := logger.NewLogger()
	defer appLogger.Close()

	bunDB := connectDatabase(cfg.Database)
	defer bunDB.Close()

	// Schema migrations run before anything touches the tables.
	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		appLogger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}

	redisClient, err := auth.InitializeRedis(cfg.Redis.Addr, appLogger)
	if err != nil {
		appLogger.Fatal("REDIS", fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer redisClient.Close()

	// Kafka is optional; the service degrades to log-only domain events.
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}); err != nil {
			appLogger.Warn("KAFKA", fmt.Sprintf("Topic setup failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		appLogger.Info("KAFKA", fmt.Sprintf("Producer connected to %v", cfg.Kafka.Brokers))
	}

	// --- Stores ---
	ledgerStore := &ledgerdb.DB{Bun: bunDB}
	eventStore := &eventdb.DB{Bun: bunDB}
	rsvpStore := &rsvpdb.DB{Bun: bunDB}
	balanceLocks := ledgerredis.NewRedis(redisClient, cfg.Redis.BalanceLockTTL)

	// --- Services ---
	// The ledger and event services reference each other: the publish
	// guard reads purchased totals, and balance summaries include the
	// capacity reserved by published events.
	ledgerService := ledger.NewService(ledgerStore, nil, appLogger)
	var eventKafka event.KafkaPublisher
	if producer != nil {
		eventKafka = producer
	}
	eventService := event.NewService(eventStore, ledgerService, balanceLocks, eventKafka, appLogger)
	ledgerService.Reservations = eventService

	mail := mailer.NewMailer(cfg.Email, appLogger)

	rsvpService := rsvp.NewService(rsvpStore, eventStore, ledgerService, appLogger)

	var usageKafka invitation.UsagePublisher
	if producer != nil {
		usageKafka = producer
	}
	invitationService := invitation.NewService(rsvpStore, eventStore, ledgerService, mail, usageKafka,
		invitation.LinkBuilder{FrontendURL: cfg.Frontend.PublicURL, APIURL: cfg.Frontend.APIPublicURL}, appLogger)

	purchaseEmitter := sse.NewPurchaseEventEmitter()
	var purchaseKafka billing.PurchasePublisher
	if producer != nil {
		purchaseKafka = producer
	}
	finalizer := billing.NewFinalizer(ledgerStore, eventService, purchaseEmitter, purchaseKafka, appLogger)

	stripeService, err := billing.NewStripeService(cfg.Stripe, cfg.Frontend.PublicURL, eventService, appLogger)
	if err != nil {
		appLogger.Fatal("STRIPE", fmt.Sprintf("Stripe setup failed: %v", err))
	}

	// --- Handlers ---
	eventHandler := eventapi.NewHandler(eventService, appLogger)
	ledgerHandler := ledgerapi.NewHandler(ledgerService, appLogger)
	billingHandler := billingapi.NewHandler(stripeService, finalizer, ledgerStore, purchaseEmitter, appLogger)
	rsvpHandler := rsvpapi.NewHandler(rsvpService, appLogger)
	invitationHandler := invitationapi.NewHandler(invitationService, appLogger)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes: invitation pages, RSVP submission, webhook, pixel.
	r.Get("/api/public/events/{eventID}", eventHandler.PublicEvent)
	r.Post("/api/public/events/{eventID}/rsvp", rsvpHandler.SubmitRSVP)
	r.Get("/api/public/guests/{guestID}", rsvpHandler.GetGuest)
	r.Post("/api/public/guests/{guestID}/rsvp", rsvpHandler.SubmitGuestRSVP)
	r.Get("/api/invitations/track/{guestID}/pixel.gif", invitationHandler.TrackPixel)
	r.Get("/api/billing/products", billingHandler.ListProducts)
	r.Post("/api/billing/webhook", billingHandler.HandleWebhook)
	// SSE authenticates through the query-param token itself.
	r.Get("/api/billing/stream", billingHandler.StreamPurchases)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))

		r.Post("/api/events", eventHandler.CreateEvent)
		r.Get("/api/events", eventHandler.ListEvents)
		r.Get("/api/events/{eventID}", eventHandler.GetEvent)
		r.Patch("/api/events/{eventID}", eventHandler.PatchEvent)
		r.Delete("/api/events/{eventID}", eventHandler.DeleteEvent)

		r.Get("/api/events/{eventID}/rsvps", rsvpHandler.GetTree)
		r.Post("/api/events/{eventID}/groups", rsvpHandler.CreateGroup)
		r.Patch("/api/guests/{guestID}", rsvpHandler.PatchGuest)
		r.Delete("/api/guests/{guestID}", rsvpHandler.DeleteGuest)
		r.Patch("/api/groups/{groupID}", rsvpHandler.PatchGroup)
		r.Delete("/api/groups/{groupID}", rsvpHandler.DeleteGroup)

		r.Post("/api/guests/{guestID}/invitation", invitationHandler.SendInvitation)
		r.Post("/api/events/{eventID}/invitations/send-all", invitationHandler.SendAllInvitations)
		r.Get("/api/guests/{guestID}/qr.png", invitationHandler.InvitationQR)

		r.Get("/api/balances", ledgerHandler.GetBalances)
		r.Post("/api/billing/checkout-session", billingHandler.CreateCheckoutSession)
		r.Get("/api/billing/verify-session", billingHandler.VerifySession)
		r.Get("/api/billing/purchases", billingHandler.ListPurchases)
	})

	// Reconciler retries purchases whose follow-up steps did not stick.
	reconcileCtx, stopReconciler := context.WithCancel(context.Background())
	go finalizer.RunReconciler(reconcileCtx, cfg.Reconcile.Interval)

	// No write timeout: the SSE stream holds its response open.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("SERVER", "Invite service running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	appLogger.Info("SERVER", "Shutdown signal received")
	stopReconciler()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	appLogger.Info("SERVER", "Invite service shutdown complete")
}
