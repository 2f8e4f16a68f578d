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

	"planforge/api/internal/app"
	"planforge/api/internal/archive"
	"planforge/api/internal/blob"
	"planforge/api/internal/compose"
	"planforge/api/internal/config"
	"planforge/api/internal/email"
	"planforge/api/internal/ingest"
	"planforge/api/internal/otp"
	"planforge/api/internal/search"
	"planforge/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	blobStore, err := blob.NewMinioStore(ctx, blob.Config{
		Endpoint:      cfg.BlobEndpoint,
		AccessKey:     cfg.BlobAccessKey,
		SecretKey:     cfg.BlobSecretKey,
		Bucket:        cfg.BlobBucket,
		UseSSL:        cfg.BlobUseSSL,
		PublicBaseURL: cfg.BlobPublicBaseURL,
	})
	if err != nil {
		log.Fatalf("object store connection failed: %v", err)
	}

	otpStore, err := otp.NewStore(cfg.RedisURL, cfg.OTPTTL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer otpStore.Close()

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Printf("WARNING: SMTP not configured, sign-in codes cannot be sent")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.New(meiliClient, dataStore)

	var planArchive *archive.Service
	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			log.Fatalf("failed to create archive dir: %v", err)
		}
		planArchive = archive.New(cfg.ArchiveDir)
	}

	engine, err := compose.NewEngine(cfg.Engine, cfg.EngineURLs, cfg.EngineCacheDir)
	if err != nil {
		log.Fatalf("rendering engine setup failed: %v", err)
	}
	compositor := compose.New(engine, cfg.MaxRenderers, cfg.ComposeTimeout)

	serviceCfg := app.ServiceConfig{
		Store:         dataStore,
		Ingestor:      ingest.New(dataStore, blobStore),
		Compositor:    compositor,
		OTP:           otpStore,
		Email:         mailer,
		Search:        searchService,
		WebhookToken:  cfg.WebhookToken,
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    cfg.SessionTTL,
		OTPTTL:        cfg.OTPTTL,
	}
	if planArchive != nil {
		serviceCfg.Archive = planArchive
	}
	service := app.NewService(serviceCfg)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Planforge API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
