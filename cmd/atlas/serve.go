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

	"github.com/spf13/cobra"

	"atlas-overwatch/api"
	"atlas-overwatch/db"
	"atlas-overwatch/pkg/config"
	"atlas-overwatch/pkg/services/atlas"
	embeddednats "atlas-overwatch/pkg/services/embedded-nats"
	"atlas-overwatch/pkg/services/remote"
	"atlas-overwatch/pkg/services/render"
	"atlas-overwatch/pkg/services/transport"
	"atlas-overwatch/pkg/services/workers"
	"atlas-overwatch/pkg/shared"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine, its message bus and the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func initDB(cfg *config.Config) (*db.Service, error) {
	dbService, err := db.New(cfg.DatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database service: %w", err)
	}

	// Verify schema is properly initialized
	if err := dbService.VerifySchema(); err != nil {
		log.Printf("Schema verification failed: %v", err)
		log.Println("Attempting to initialize schema...")
		if err := dbService.InitializeSchema(); err != nil {
			dbService.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	log.Println("Database service initialized successfully")
	return dbService, nil
}

func initNATS(cfg *config.Config) (*embeddednats.EmbeddedNATS, error) {
	nats, err := embeddednats.New(cfg.NATSConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS: %w", err)
	}

	if err := nats.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded NATS: %w", err)
	}

	if err := nats.CreateAtlasStreams(); err != nil {
		nats.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create atlas streams: %w", err)
	}

	log.Println("NATS JetStream initialized successfully")
	return nats, nil
}

// inboundHandler moves transport frames onto the inbound stream. Server error
// frames are logged here and never queued.
func inboundHandler(nats *embeddednats.EmbeddedNATS) transport.HandlerFunc {
	return func(ctx context.Context, msg shared.Message) error {
		if msg.Type == shared.MessageError {
			log.Printf("[Transport] server error: %s", string(msg.Data))
			return nil
		}
		return nats.PublishInbound(msg)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbService, err := initDB(cfg)
	if err != nil {
		return err
	}
	defer dbService.Close()

	nats, err := initNATS(cfg)
	if err != nil {
		return err
	}

	publisher := render.NewPublisher(nats)
	opts := atlas.Options{
		Sink:     publisher,
		Notifier: publisher,
		Cache:    db.NewArchive(dbService),
		Icons:    cfg.IconSet(),
	}
	if cfg.Remote.URL != "" {
		client := remote.NewClient(cfg.RemoteConfig())
		opts.Archive = client
		opts.Missions = client
		opts.Profiles = client
	} else {
		log.Println("No remote server configured, running with the local cache only")
	}

	var conn *transport.Connection
	if cfg.Transport.Enabled {
		wsURL, err := transport.URL(cfg.Remote.URL, cfg.Transport.Connection, cfg.Remote.Token)
		if err != nil {
			nats.Shutdown(ctx)
			return fmt.Errorf("failed to build transport URL: %w", err)
		}
		conn = transport.NewConnection(ctx, wsURL, inboundHandler(nats), cfg.TransportSettings())
		opts.Sender = conn
	}

	engine := atlas.New(cfg.AtlasConfig(version), opts)
	engine.Start()

	// Start NATS workers
	workerManager, err := workers.NewManager(nats, engine)
	if err != nil {
		engine.Destroy()
		nats.Shutdown(ctx)
		return fmt.Errorf("failed to create worker manager: %w", err)
	}
	if err := workerManager.Start(); err != nil {
		engine.Destroy()
		nats.Shutdown(ctx)
		return fmt.Errorf("failed to start workers: %w", err)
	}

	if err := engine.Init(ctx, cfg.Remote.Token); err != nil {
		log.Printf("[Atlas] warning: init incomplete: %v", err)
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	handlers := api.NewHandlers(engine, dbService, nats, version)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.Routes(cfg.Server.APIToken),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Starting Atlas API server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-sigChan:
	case err = <-serverErr:
		log.Printf("Server failed: %v", err)
	}
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	if conn != nil {
		conn.Close()
	}

	if err := workerManager.Stop(); err != nil {
		log.Printf("Failed to stop workers: %v", err)
	}

	engine.Destroy()

	if err := nats.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown NATS: %v", err)
	}

	log.Println("Server shutdown complete")
	return err
}
