package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunovale/ariaOS/internal/adapters/duckdb"
	"github.com/brunovale/ariaOS/internal/adapters/sim"
	appconfig "github.com/brunovale/ariaOS/internal/config"
	"github.com/brunovale/ariaOS/internal/core/domain"
	"github.com/brunovale/ariaOS/internal/core/services"
	"github.com/brunovale/ariaOS/internal/engine"
	"github.com/brunovale/ariaOS/pkg/api"
	"github.com/rs/cors"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting aria core")

	if err := run(logger); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	cfgPath := os.Getenv("ARIA_CONFIG")
	if cfgPath == "" {
		cfgPath = "aria.yaml"
	}
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := duckdb.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}
	defer store.Close()

	// Engines over simulated integration clients. Real integrations slot in
	// behind the same client interfaces.
	dispatcher := engine.NewDispatcher(
		engine.NewSocialEngine(logger, sim.NewSocialClient()),
		engine.NewEcommerceEngine(logger, sim.NewCommerceClient()),
		engine.NewAutomationEngine(logger, sim.NewDeployClient()),
		engine.NewMarketplaceEngine(logger, sim.NewMarketClient()),
	)

	eventBus := services.NewEventBus(logger)

	manager := services.NewJobManager(logger, store, dispatcher, store)
	manager.SetJobObserver(func(job domain.Job) {
		data, err := json.Marshal(job)
		if err != nil {
			logger.Error("failed to marshal job event", "job_id", job.ID, "error", err)
			return
		}
		eventBus.Publish(services.Event{
			Channel:   services.JobChannel,
			Type:      services.EventTypeJobDone,
			Data:      string(data),
			Timestamp: time.Now().UnixMilli(),
		})
	})

	scheduler := services.NewScheduler(logger, manager, cfg.SchedulerInterval())
	for _, rec := range cfg.RecurringJobs {
		if err := scheduler.AddRecurring(rec.Cron, domain.JobType(rec.Type), json.RawMessage(rec.Payload)); err != nil {
			return fmt.Errorf("invalid recurring job %q: %w", rec.Cron, err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	registry := domain.NewToolRegistry()
	if err := registerBuiltinTools(registry, manager, store); err != nil {
		return fmt.Errorf("failed to register builtin tools: %w", err)
	}

	planner := services.NewPlanRunner(logger, registry, func(plan domain.Plan) {
		data, err := json.Marshal(plan)
		if err != nil {
			logger.Error("failed to marshal plan event", "plan_id", plan.ID, "error", err)
			return
		}
		eventBus.Publish(services.Event{
			Channel:   services.PlanChannel,
			Type:      services.EventTypePlanUpdate,
			Data:      string(data),
			Timestamp: time.Now().UnixMilli(),
		})
	})

	apiServer := api.NewServer(logger, manager, planner, eventBus, store)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: c.Handler(apiServer.Handler()),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api server", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// registerBuiltinTools exposes the queue surface to the plan runner, so an
// LLM-authored plan can enqueue jobs, release approvals and read state the
// same way the UI does.
func registerBuiltinTools(registry *domain.ToolRegistry, manager *services.JobManager, store *duckdb.Store) error {
	if err := registry.Register(&domain.Tool{
		Name:        "enqueue_job",
		Description: "Queue a background job of a given type with a JSON payload.",
		Parameters: domain.ToolParameters{
			Type: "object",
			Properties: map[string]any{
				"type":    map[string]any{"type": "string", "description": "Job type, e.g. post_social."},
				"payload": map[string]any{"type": "object", "description": "Type-specific payload."},
			},
			Required: []string{"type"},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			jobType, _ := args["type"].(string)
			var payload json.RawMessage
			if raw, ok := args["payload"]; ok {
				data, err := json.Marshal(raw)
				if err != nil {
					return nil, fmt.Errorf("invalid payload: %w", err)
				}
				payload = data
			}
			job, err := manager.Enqueue(ctx, domain.JobType(jobType), payload, nil)
			if err != nil {
				return nil, err
			}
			return map[string]any{"job_id": string(job.ID), "status": string(job.Status)}, nil
		},
	}); err != nil {
		return err
	}

	if err := registry.Register(&domain.Tool{
		Name:        "approve_job",
		Description: "Release a job waiting at the approval gate.",
		Parameters: domain.ToolParameters{
			Type: "object",
			Properties: map[string]any{
				"job_id": map[string]any{"type": "string"},
			},
			Required: []string{"job_id"},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			id, _ := args["job_id"].(string)
			manager.Approve(ctx, domain.JobID(id))
			return map[string]any{"approved": id}, nil
		},
	}); err != nil {
		return err
	}

	if err := registry.Register(&domain.Tool{
		Name:        "get_agent_state",
		Description: "Read the current queue, pending approvals and history.",
		Parameters:  domain.ToolParameters{Type: "object", Properties: map[string]any{}},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return manager.Snapshot(), nil
		},
	}); err != nil {
		return err
	}

	return registry.Register(&domain.Tool{
		Name:        "record_note",
		Description: "Append a note to the audit log.",
		Parameters: domain.ToolParameters{
			Type: "object",
			Properties: map[string]any{
				"text": map[string]any{"type": "string"},
			},
			Required: []string{"text"},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			text, _ := args["text"].(string)
			if text == "" {
				return nil, fmt.Errorf("text is required")
			}
			if err := store.Record(ctx, text); err != nil {
				return nil, err
			}
			return map[string]any{"recorded": true}, nil
		},
	})
}
