package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"ms-registration/internal/analytics"
	analytics_api "ms-registration/internal/analytics/api"
	"ms-registration/internal/auth"
	"ms-registration/internal/catalog"
	"ms-registration/internal/config"
	"ms-registration/internal/database/migrations"
	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/metrics"
	"ms-registration/internal/rabbit"
	"ms-registration/internal/registration"
	regapi "ms-registration/internal/registration/api"
	regdb "ms-registration/internal/registration/db"
	"ms-registration/internal/registration/gate"
	ticketdb "ms-registration/internal/tickets/db"
	"ms-registration/internal/tickets/qr"
	tickets "ms-registration/internal/tickets/service"
	"ms-registration/internal/tickets/ticket_api"
	"ms-registration/internal/utils"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the registration HTTP service and the check-in consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log := bootstrap()
			defer log.Close()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log.Info("APP", "Starting registration service")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	bunDB, err := connectDB(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, log)
		err := runner.Up()
		_ = runner.Close()
		if err != nil {
			return err
		}
	}

	m := metrics.New()

	verifier, err := auth.NewVerifier(ctx, cfg.Auth.OIDCIssuer)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.Auth.OIDCIssuer == "" {
		log.Warn("AUTH", "OIDC_ISSUER not set, bearer tokens are read without verification")
	}

	if cfg.QR.SecretKey == "" {
		log.Warn("CONFIG", "QR_SECRET_KEY not set, sealed tickets use an empty key")
	}
	gen, err := qr.NewQRGenerator(cfg.QR.SecretKey, cfg.QR.Size)
	if err != nil {
		return fmt.Errorf("qr: %w", err)
	}
	ticketService := tickets.NewTicketService(&ticketdb.DB{Bun: bunDB}, gen, log)

	registrationService := registration.NewService(
		&regdb.DB{Bun: bunDB},
		catalog.NewStore(bunDB),
		cfg.Registration.TokenLength,
		cfg.Registration.TokenAttempts,
		log,
	)
	registrationHandler := regapi.NewHandler(registrationService, log)
	registrationHandler.Metrics = m
	registrationHandler.Sealer = ticketService

	if cfg.Gate.Enabled {
		rdb, err := gate.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			return fmt.Errorf("verification gate: %w", err)
		}
		defer rdb.Close()
		registrationHandler.Gate = gate.NewStore(rdb, gate.Options{
			Tolerance:  cfg.Gate.Tolerance,
			TrackWidth: cfg.Gate.TrackWidth,
			PieceSize:  cfg.Gate.PieceSize,
			TTL:        cfg.Gate.TTL,
		}, log)
	} else {
		log.Warn("GATE", "Human verification disabled")
	}

	var consumers sync.WaitGroup
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.RegistrationCreated, cfg.Kafka.Topics.AttendanceCheckin}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.RegistrationCreated, log)
		defer producer.Close()
		registrationHandler.Events = producer

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.AttendanceCheckin, cfg.Kafka.GroupID, log)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			defer consumer.Close()
			_ = consumer.Run(ctx, ticket_api.KafkaCheckin(ticketService, m, log))
		}()
	}

	if cfg.Rabbit.Enabled {
		client, err := rabbit.NewClient(cfg.Rabbit.URL, cfg.Rabbit.Exchange, cfg.Rabbit.Queue, log)
		if err != nil {
			log.Warn("RABBIT", fmt.Sprintf("Ticket delivery disabled: %v", err))
		} else {
			defer client.Close()
			registrationHandler.Delivery = rabbit.NewDelivery(client, log)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.Optional(verifier, log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})
	r.Handle("/metrics", m.Handler())

	registrationHandler.RegisterRoutes(r)
	ticket_api.NewHandler(ticketService, m, log).RegisterRoutes(r, auth.Required(verifier, log))
	r.Group(func(r chi.Router) {
		r.Use(auth.Required(verifier, log))
		analytics_api.NewHandler(analytics.NewService(bunDB), log).RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP", fmt.Sprintf("Registration service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	cancel()
	consumers.Wait()
	log.Info("APP", "Registration service shutdown complete")
	return nil
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(started))
		})
	}
}
