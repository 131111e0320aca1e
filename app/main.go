package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedloft/app/api"
	"feedloft/app/cfg"
	"feedloft/app/database"
	"feedloft/app/events"
	"feedloft/app/importer"
	"feedloft/app/ingest"
	"feedloft/app/llm"
	"feedloft/app/push"
	"feedloft/app/storage"
	"feedloft/app/subscription"
	"feedloft/app/tasks"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load configuration from environment variables and command-line flags
	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	if appCfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	log.Println("Starting Feedloft server...")

	// Database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(
		appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()
	log.Printf("Connected to database successfully")

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	log.Printf("Database schema at version %d (dirty: %v)", version, dirty)

	// Initialize repositories
	accountRepo := database.NewAccountRepository(db)
	subRepo := database.NewSubscriptionRepository(db)
	itemRepo := database.NewItemRepository(db)
	queueRepo := database.NewQueueRepository(db)
	eventRepo := database.NewEventLogRepository(db)
	batchDeleter := database.NewBatchDeleter(db)

	// Side file storage for transcripts and snapshots
	fileStore, err := storage.NewLocalFileStore(appCfg.StorageDir)
	if err != nil {
		log.Fatal("Failed to initialize file storage:", err)
	}

	httpClient := &http.Client{Timeout: time.Duration(appCfg.FetchTimeout) * time.Second}

	// Push provider client; subscription callbacks land on the webhook
	// endpoints served below.
	callbackURL := fmt.Sprintf("%s/webhooks/push?secret=%s", appCfg.BaseUrl, appCfg.PushSecret)
	provider := push.NewClient(httpClient, appCfg.PushEndpoint, callbackURL, appCfg.PushSecret, appCfg.UserAgent)

	recorder := events.NewRecorder(eventRepo)
	manager := subscription.NewManager(accountRepo, subRepo, itemRepo, queueRepo, eventRepo, recorder, provider, batchDeleter)
	ingestService := ingest.NewService(subRepo, itemRepo, queueRepo, recorder)

	// Enrichment pipeline; summarization is optional
	var summarizer *importer.HierarchicalSummarizer
	if appCfg.AnthropicAPIKey != "" {
		generator := llm.NewAnthropicGenerator(appCfg.AnthropicAPIKey, appCfg.AnthropicModel)
		summarizer = importer.NewHierarchicalSummarizer(generator)
		log.Printf("Summarization enabled with model %s", appCfg.AnthropicModel)
	} else {
		log.Printf("Summarization disabled (ANTHROPIC_API_KEY not set)")
	}

	fetchTimeout := time.Duration(appCfg.FetchTimeout) * time.Second
	articleImporter := importer.NewArticleImporter(httpClient, importer.NewSanitizer(), summarizer, appCfg.UserAgent, fetchTimeout)
	transcripts := importer.NewHTTPTranscriptFetcher(httpClient, appCfg.TranscriptAPIURL, fetchTimeout)
	videoImporter := importer.NewYouTubeImporter(transcripts, summarizer, fileStore.WriteFile)
	xkcdImporter := importer.NewXKCDImporter(httpClient, fetchTimeout)
	intervalImporter := importer.NewIntervalImporter()

	importService := importer.NewService(itemRepo, queueRepo, recorder,
		articleImporter, videoImporter, xkcdImporter, intervalImporter)

	// Initialize and start scheduler
	log.Printf("Starting background scheduler with %d workers...", appCfg.WorkerCount)
	scheduler := tasks.NewScheduler(queueRepo, itemRepo, subRepo, importService, ingestService)
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize HTTP server
	log.Println("Initializing HTTP server...")
	apiHandler := api.NewHandler(manager, ingestService, itemRepo, appCfg.PushSecret)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start HTTP server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on port %s", appCfg.Port)
		log.Printf("API endpoints available:")
		log.Printf("  Push webhook:  http://localhost:%s/webhooks/push", appCfg.Port)
		log.Printf("  Health check:  http://localhost:%s/health", appCfg.Port)
		log.Printf("  Statistics:    http://localhost:%s/stats", appCfg.Port)

		if appCfg.APIAccessKey != "" {
			log.Printf("  Accounts:      http://localhost:%s/api/accounts (POST, requires API key)", appCfg.Port)
			log.Printf("  Items:         http://localhost:%s/api/items (POST, requires API key)", appCfg.Port)
			log.Printf("  Pocket import: http://localhost:%s/api/import/pocket (POST, requires API key)", appCfg.Port)
		} else {
			log.Printf("  API endpoints: DISABLED (API_ACCESS_KEY not set)")
		}

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Feedloft server started successfully!")
	log.Println("Press Ctrl+C to shutdown gracefully...")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErrChan:
		log.Printf("Server error: %v", err)
	}

	// Graceful shutdown
	log.Println("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	} else {
		log.Println("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	log.Println("Background scheduler stopped")

	log.Println("Feedloft server shutdown complete")
}
