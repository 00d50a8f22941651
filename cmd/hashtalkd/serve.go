package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hashtalk-dev/hashtalk/internal/agent"
	"github.com/hashtalk-dev/hashtalk/internal/history"
	"github.com/hashtalk-dev/hashtalk/internal/llm/provider"
	obs "github.com/hashtalk-dev/hashtalk/internal/observability"
	"github.com/hashtalk-dev/hashtalk/internal/server"
	"github.com/hashtalk-dev/hashtalk/internal/tools"
	"github.com/hashtalk-dev/hashtalk/pkg/config"
	"github.com/hashtalk-dev/hashtalk/pkg/observability"
	"github.com/hashtalk-dev/hashtalk/pkg/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Printf("[serve] hashtalkd %s starting (provider %s, store %s)", Version, cfg.Provider, cfg.Store.Backend)

	observability.InitMetrics()
	if err := obs.InitFromEnv(); err != nil {
		log.Printf("[serve] tracing init: %v", err)
	}

	sessions, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	llm, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	registry := tools.NewDefaultRegistry()
	summarizer := history.NewLLMSummarizer(llm, cfg.Model)
	compactor := history.NewCompactor(sessions, summarizer, history.CompactorConfig{
		ThresholdTurns: cfg.History.ThresholdTurns,
		KeepTurns:      cfg.History.KeepTurns,
	})
	titles := history.NewTitleGenerator(sessions, llm, cfg.Model)

	controller := agent.NewController(agent.Config{
		Store:     sessions,
		Provider:  llm,
		Registry:  registry,
		Compactor: compactor,
		Titles:    titles,
		Model:     cfg.Model,
	})

	api := server.New(server.Config{
		Addr:          cfg.Server.Addr,
		Controller:    controller,
		Store:         sessions,
		RatePerSecond: cfg.Server.RatePerSec,
		RateBurst:     cfg.Server.RateBurst,
	})

	checker := observability.NewHealthChecker()
	checker.RegisterCheck(observability.StoreCheck(func(ctx context.Context) error {
		_, err := sessions.ListSummaries(ctx)
		return err
	}))
	obsServer := observability.NewServer(cfg.Server.MetricsPort, checker)

	var sweeper *history.Sweeper
	if cfg.History.SweepSchedule != "" {
		sweeper = history.NewSweeper(sessions, compactor, cfg.History.SweepSchedule)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(api.Start)
	g.Go(obsServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[serve] shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if sweeper != nil {
			sweeper.Stop()
		}
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Printf("[serve] api shutdown: %v", err)
		}
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[serve] metrics shutdown: %v", err)
		}
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Printf("[serve] tracing shutdown: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Println("[serve] stopped")
	return nil
}

func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(store.RedisConfig{
			Addr:       cfg.Store.RedisAddr,
			Password:   cfg.Store.RedisPassword,
			DB:         cfg.Store.RedisDB,
			SessionTTL: time.Duration(cfg.Store.SessionTTLSeconds) * time.Second,
		})
	case "firestore":
		return store.NewFirestoreStore(context.Background(), store.FirestoreConfig{
			ProjectID:  cfg.Store.GCPProject,
			Collection: cfg.Store.FirestoreCollection,
		})
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}

func buildProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return provider.New("openai", map[string]any{"api_key": cfg.OpenAIKey})
	case "gemini":
		return provider.New("gemini", map[string]any{"api_key": cfg.GeminiKey})
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
