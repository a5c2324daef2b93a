package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"freight-cloud/internal/auth"
	"freight-cloud/internal/companies"
	"freight-cloud/internal/currency"
	"freight-cloud/internal/notify"
	"freight-cloud/internal/observability/metrics"
	offermongo "freight-cloud/internal/offers/infrastructure/mongo"
	offerhttp "freight-cloud/internal/offers/interfaces/http"
	listmongo "freight-cloud/internal/pricelists/infrastructure/mongo"
	listhttp "freight-cloud/internal/pricelists/interfaces/http"
	"freight-cloud/internal/reference"
	userapp "freight-cloud/internal/users/application"
	usermongo "freight-cloud/internal/users/infrastructure/mongo"
	userhttp "freight-cloud/internal/users/interfaces/http"
	"freight-cloud/internal/views"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		logger.Fatalf("mongo connect error: %v", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Printf("mongo disconnect error: %v", err)
		}
	}()
	if err := client.Ping(ctx, nil); err != nil {
		logger.Fatalf("mongo ping error: %v", err)
	}
	db := client.Database(cfg.Database)

	metrics.Init(db, logger)

	referenceStore, err := reference.NewStore(db, logger)
	if err != nil {
		logger.Fatalf("reference store error: %v", err)
	}
	companyStore, err := companies.NewStore(db, logger)
	if err != nil {
		logger.Fatalf("company store error: %v", err)
	}
	userRepo, err := usermongo.NewRepository(db, logger)
	if err != nil {
		logger.Fatalf("user repository error: %v", err)
	}
	if err := referenceStore.EnsureIndexes(ctx); err != nil {
		logger.Fatalf("reference indexes error: %v", err)
	}
	if err := userRepo.EnsureIndexes(ctx); err != nil {
		logger.Fatalf("user indexes error: %v", err)
	}

	installer, err := views.NewInstaller(db, logger)
	if err != nil {
		logger.Fatalf("view installer error: %v", err)
	}
	installed, err := installer.Install(ctx)
	if err != nil {
		logger.Fatalf("view install error: %v", err)
	}
	logger.Printf("views installed created=%d existing=%d", len(installed.Created), len(installed.Existing))

	var mailer notify.Sender
	if cfg.SMTPHost != "" {
		smtpSender, err := notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		if err != nil {
			logger.Fatalf("smtp sender error: %v", err)
		}
		mailer = smtpSender
	} else {
		mailer = notify.NewLogSender(logger)
	}

	userService, err := userapp.NewService(userRepo, companyStore, mailer, logger,
		[]byte(cfg.JWTSecret), cfg.TokenTTL, cfg.AppBaseURL)
	if err != nil {
		logger.Fatalf("user service error: %v", err)
	}

	offerRecorder, err := offermongo.NewRecorder(db)
	if err != nil {
		logger.Fatalf("offer recorder error: %v", err)
	}
	offerRepo, err := offermongo.NewRepository(db, offerRecorder, referenceStore, companyStore, logger)
	if err != nil {
		logger.Fatalf("offer repository error: %v", err)
	}
	listRepo, err := listmongo.NewRepository(db, logger)
	if err != nil {
		logger.Fatalf("price-list repository error: %v", err)
	}

	currencyCfg, err := currency.LoadConfig()
	if err != nil {
		logger.Fatalf("currency config error: %v", err)
	}
	currencyClient, err := currency.NewClient(currencyCfg.SourceURL)
	if err != nil {
		logger.Fatalf("currency client error: %v", err)
	}
	currencyStore, err := currency.NewStore(db)
	if err != nil {
		logger.Fatalf("currency store error: %v", err)
	}
	refresher, err := currency.NewRefresher(currencyClient, currencyStore, currencyCfg.Base, logger)
	if err != nil {
		logger.Fatalf("currency refresher error: %v", err)
	}
	scheduler, err := currency.NewScheduler(refresher, currencyCfg.DailyAt, logger)
	if err != nil {
		logger.Fatalf("currency scheduler error: %v", err)
	}

	offerHandler, err := offerhttp.NewHandler(offerRepo, offerRecorder, auth.NewCompanyChecker(offerRepo), logger)
	if err != nil {
		logger.Fatalf("offer handler error: %v", err)
	}
	listHandler, err := listhttp.NewHandler(listRepo, auth.NewCompanyChecker(listRepo), logger)
	if err != nil {
		logger.Fatalf("price-list handler error: %v", err)
	}
	authHandler, err := userhttp.NewAuthHandler(userService, logger)
	if err != nil {
		logger.Fatalf("auth handler error: %v", err)
	}
	usersHandler, err := userhttp.NewUsersHandler(userRepo, userService, logger)
	if err != nil {
		logger.Fatalf("users handler error: %v", err)
	}
	referenceHandler, err := reference.NewHandler(referenceStore, logger)
	if err != nil {
		logger.Fatalf("reference handler error: %v", err)
	}
	currencyHandler, err := currency.NewHandler(currencyStore, logger)
	if err != nil {
		logger.Fatalf("currency handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/api/v1/auth/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy, userService)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/auth/", authHandler)
	mux.Handle("/api/v1/users", usersHandler)
	mux.Handle("/api/v1/users/", usersHandler)
	mux.Handle("/api/v1/offers", offerHandler)
	mux.Handle("/api/v1/offers/", offerHandler)
	mux.Handle("/api/v1/price-lists", listHandler)
	mux.Handle("/api/v1/price-lists/", listHandler)
	mux.Handle("/api/v1/per/", referenceHandler)
	mux.Handle("/api/v1/item-lines", referenceHandler)
	mux.Handle("/api/v1/currencies", currencyHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go scheduler.Start(schedulerCtx)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Fatalf("http server error: %v", err)
	case sig := <-sigCh:
		logger.Printf("shutting down on %s", sig)
	}

	stopScheduler()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
}

type config struct {
	MongoURL     string
	Database     string
	HTTPAddr     string
	JWTSecret    string
	TokenTTL     time.Duration
	AppBaseURL   string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func loadConfig() config {
	cfg := config{
		MongoURL:     getenvDefault("MONGO_URL", getenvDefault("DATABASE_URL", "")),
		Database:     getenvDefault("MONGO_DATABASE", "freight"),
		HTTPAddr:     getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:    getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		TokenTTL:     getenvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		AppBaseURL:   getenvDefault("APP_BASE_URL", "http://localhost:3000"),
		SMTPHost:     getenvDefault("SMTP_HOST", ""),
		SMTPPort:     getenvIntDefault("SMTP_PORT", 587),
		SMTPUsername: getenvDefault("SMTP_USERNAME", ""),
		SMTPPassword: getenvDefault("SMTP_PASSWORD", ""),
		SMTPFrom:     getenvDefault("SMTP_FROM", "noreply@localhost"),
	}
	if cfg.MongoURL == "" {
		log.Fatal("MONGO_URL or DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
