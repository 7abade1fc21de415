package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zoff-tech/go-payouts/pkg/broker"
	"github.com/zoff-tech/go-payouts/pkg/cache"
	"github.com/zoff-tech/go-payouts/pkg/config"
	"github.com/zoff-tech/go-payouts/pkg/connector"
	"github.com/zoff-tech/go-payouts/pkg/payouts"
	"github.com/zoff-tech/go-payouts/pkg/scheduler"
	"github.com/zoff-tech/go-payouts/pkg/store"
	"github.com/zoff-tech/go-payouts/pkg/telemetry"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Relay due process tracker tasks and run payout workflows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx)
		},
	}
}

func runWorker(ctx context.Context) error {
	cfg, err := config.LoadFromFile(configDir)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(cfg.Observability)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer shutdownTelemetry()

	c, err := cache.NewCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	// The redis_kv storage scheme shares the cache's redis client.
	var kv *redis.Client
	if rc, ok := c.(*cache.RedisCache); ok {
		kv = rc.Client()
		defer rc.Close()
	}

	repo, err := store.NewRepository(ctx, cfg.Database, kv, cfg.Cache.KvTTL)
	if err != nil {
		return fmt.Errorf("initializing payout store: %w", err)
	}

	tasks, err := scheduler.NewTaskRepository(ctx, cfg.TaskStore)
	if err != nil {
		return fmt.Errorf("initializing task store: %w", err)
	}

	eb, err := broker.NewBroker(ctx, &cfg.Broker)
	if err != nil {
		return fmt.Errorf("initializing broker: %w", err)
	}
	defer eb.Close()

	svc := payouts.NewService(payouts.Deps{
		Store:      repo,
		Connectors: connector.NewRegistryFromConfig(cfg.Connectors),
		Tokens:     connector.NewAccessTokenProvider(c),
		Locker:     cache.NewLocker(c, cfg.Payouts.TempLockerTTL),
		Tasks:      tasks,
		Settings:   cfg.Payouts,
	})

	workflows := scheduler.NewWorkflows().RetryFailed(tasks, cfg.MaxRetries)
	workflows.Register(payouts.AttachAccountRunner, payouts.NewAttachAccountWorkflow(svc))

	g, gctx := errgroup.WithContext(ctx)
	for _, runner := range workflows.Names() {
		topic := scheduler.Topic(runner)
		g.Go(func() error {
			log.Printf("Subscribing %s", topic)
			return eb.Subscribe(gctx, topic, workflows.Handle)
		})
	}
	processor := scheduler.NewProcessor(tasks, eb, cfg)
	g.Go(func() error {
		return processor.Run(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
