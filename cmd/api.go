package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/duplexhq/duplex/internal/api"
	"github.com/duplexhq/duplex/internal/canonical"
	"github.com/duplexhq/duplex/internal/config"
	"github.com/duplexhq/duplex/internal/database"
	"github.com/duplexhq/duplex/internal/directory"
	"github.com/duplexhq/duplex/internal/engine"
	"github.com/duplexhq/duplex/internal/escalation"
	"github.com/duplexhq/duplex/internal/executor"
	"github.com/duplexhq/duplex/internal/generation"
	"github.com/duplexhq/duplex/internal/knowledge"
	"github.com/duplexhq/duplex/internal/logging"
	"github.com/duplexhq/duplex/internal/messaging"
	"github.com/duplexhq/duplex/internal/notify"
	"github.com/duplexhq/duplex/internal/policy"
	"github.com/duplexhq/duplex/internal/quota"
	"github.com/duplexhq/duplex/internal/router"
	"github.com/duplexhq/duplex/internal/signal"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the Duplex API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logging.Setup(cfg.Logging.Level)

			port := cfg.Server.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}

			ctx := context.Background()
			pool, err := database.NewPool(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			embedder, err := knowledge.NewOpenAIEmbedder(knowledge.EmbedderConfig{
				APIKey:  cfg.LLM.APIKey,
				BaseURL: cfg.LLM.BaseURL,
				Model:   cfg.LLM.EmbeddingModel,
			})
			if err != nil {
				return err
			}

			client, err := generation.NewClient(generation.Config{
				APIKey:  cfg.LLM.APIKey,
				BaseURL: cfg.LLM.BaseURL,
				Model:   cfg.LLM.Model,
			})
			if err != nil {
				return err
			}
			generator := generation.NewResilient(client, cfg.Orchestrator.GenerationTimeout)

			messages := messaging.NewStore(pool)
			policies := policy.NewStore(pool)
			knowledgeStore := knowledge.NewStore(pool, embedder)
			canonicalStore := canonical.NewPGStore(pool, embedder)
			tracker := quota.NewPGTracker(pool)
			dir := directory.NewPGDirectory(pool)
			signals := signal.NewComputer(knowledgeStore, cfg.Orchestrator.TopK, cfg.Orchestrator.SearchTimeout)

			notifyQueue, err := notify.NewQueue(pool, 5)
			if err != nil {
				return err
			}
			if err := notifyQueue.Start(ctx); err != nil {
				return fmt.Errorf("failed to start notification queue: %w", err)
			}
			defer notifyQueue.Stop(ctx)

			escalations := escalation.NewService(escalation.NewStore(pool), tracker, notifyQueue)

			exec := executor.New(messages, generator, canonicalStore, tracker, notifyQueue)
			rt := router.New(messages, dir, policies, signals, canonicalStore, tracker,
				engine.New(), exec, router.Config{
					Thresholds: engine.Thresholds{
						Canonical:      cfg.Orchestrator.CanonicalThreshold,
						NoContextFloor: cfg.Orchestrator.NoContextFloor,
					},
				})

			server := api.NewServer(port, api.Deps{
				Router:      rt,
				Messages:    messages,
				Policies:    policies,
				Escalations: escalations,
				Quota:       tracker,
				Knowledge:   knowledgeStore,
			})
			return server.Start()
		},
	}
}
