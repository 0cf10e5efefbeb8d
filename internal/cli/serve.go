package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hookflow/hookflow/internal/config"
	"github.com/hookflow/hookflow/internal/database"
	"github.com/hookflow/hookflow/internal/engine"
	"github.com/hookflow/hookflow/internal/idempotency"
	"github.com/hookflow/hookflow/internal/monitor"
	"github.com/hookflow/hookflow/internal/retention"
	"github.com/hookflow/hookflow/internal/runs"
	"github.com/hookflow/hookflow/internal/scenarios"
	"github.com/hookflow/hookflow/internal/secrets"
	"github.com/hookflow/hookflow/internal/server"
	"github.com/hookflow/hookflow/internal/webhooks"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook intake and execution server",
	Long: `Start the Hookflow server.

The server will:
  - Open the SQLite database and apply pending migrations
  - Optionally seed scenarios and connections from a YAML file
  - Start the execution engine workers
  - Start retention sweeps
  - Serve webhook intake and the monitoring API`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", config.DefaultHost, "Host to bind to")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(&cfg.Logging)

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	masterKey := cfg.Secrets.MasterKey
	if masterKey == "" {
		// Sealed credentials written under an ephemeral key cannot be
		// read after restart. Fine for development, not for production.
		masterKey, err = secrets.GenerateMasterKey()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate ephemeral master key")
		}
		log.Warn().Msg("No secrets.master_key configured, using an ephemeral key")
	}

	cipher, err := secrets.NewCipher(masterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize credential cipher")
	}

	connectionStore := secrets.NewStore(db, cipher, cfg.Secrets.DecryptTimeout)
	scenarioStore := scenarios.NewStore(db)
	runStore := runs.NewStore(db)
	resultStore := runs.NewResultStore(db)
	ledger := idempotency.NewLedger(db)
	matcher := scenarios.NewMatcher(scenarioStore)
	creator := runs.NewCreator(runStore)

	intake := webhooks.NewService(cfg.Webhook, db, connectionStore, ledger, matcher, creator, runStore)

	if cfg.Scenarios.SeedFile != "" {
		if err := scenarios.Seed(cmd.Context(), cfg.Scenarios.SeedFile, scenarioStore, connectionStore); err != nil {
			log.Fatal().Err(err).Str("file", cfg.Scenarios.SeedFile).Msg("Failed to seed scenarios")
		}
	}

	registry, err := engine.DefaultRegistry(cfg.Engine.NodeTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build node registry")
	}

	hub := monitor.NewHub(cfg.Monitor.MaxWatchers)
	mon := monitor.New(cfg.Monitor, runStore, resultStore, scenarioStore)

	eng := engine.New(cfg.Engine, runStore, resultStore, scenarioStore, registry)
	eng.SetObserver(hub)
	eng.Start()
	defer eng.Stop()

	sweeper := retention.NewSweeper(cfg.Retention, ledger, runStore)
	if err := sweeper.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start retention sweeper")
	}
	defer sweeper.Stop()

	srv := server.New(cfg, db, server.Deps{
		Intake:      intake,
		Scenarios:   scenarioStore,
		Connections: connectionStore,
		Runs:        runStore,
		Results:     resultStore,
		Monitor:     mon,
		Hub:         hub,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start drains connections itself once ctx is canceled.
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}

	return nil
}
