package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "taskagent/configs"
	"taskagent/pkg/api"
	"taskagent/pkg/api/middleware"
	"taskagent/pkg/coordination"
	"taskagent/pkg/coordination/etcd"
	"taskagent/pkg/executor"
	"taskagent/pkg/logger"
	tracing "taskagent/pkg/observability"
	"taskagent/pkg/storage"
	"taskagent/pkg/storage/redis"
	"taskagent/pkg/sysinfo"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP agent until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		Encoding:   cfg.LogEncoding,
		OutputPath: cfg.LogOutput,
		Service:    "taskagent",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    "taskagent",
		ServiceVersion: "dev",
		Endpoint:       cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SamplingRate:   cfg.TracingSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	engine, err := newEngine(cfg, log)
	if err != nil {
		return err
	}

	store, err := newScriptStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	agent := coordination.AgentInfo{
		ID:        fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		Hostname:  hostname,
		Addr:      advertiseAddr(cfg, hostname),
		StartedAt: time.Now().UTC(),
	}

	publisher, err := newPublisher(cfg, agent.ID, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var registry *etcd.Registry
	var registrar coordination.Registrar
	if len(cfg.EtcdEndpoints) > 0 {
		registry, err = etcd.NewRegistry(cfg.EtcdEndpoints, cfg.RegistrationTTL, log.Named("registry"))
		if err != nil {
			return err
		}
		defer registry.Close()
		registrar = registry
	}

	server := api.NewServer(api.Config{
		Port:         cfg.Port,
		Executor:     engine,
		Store:        store,
		Publisher:    publisher,
		Registrar:    registrar,
		System:       sysinfo.NewCollector(cfg.CPUSample),
		MaxBodyBytes: cfg.MaxBodyBytes,
		RateLimit: middleware.RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRPM,
			BurstSize:         cfg.RateLimitBurst,
			CleanupInterval:   5 * time.Minute,
		},
		WriteTimeout: cfg.ExecTimeout + 30*time.Second,
		Logger:       log.Named("api"),
	})

	log.Info("agent starting",
		zap.String("agent_id", agent.ID),
		zap.String("addr", server.Addr()),
		zap.String("work_dir", engine.Config().WorkDir),
		zap.Duration("exec_timeout", engine.Config().Timeout),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		return executor.NewJanitor(engine, log.Named("janitor")).Run(gctx, cfg.JanitorSchedule)
	})
	if registry != nil {
		g.Go(func() error { return registry.Run(gctx, agent) })
	}
	g.Go(func() error {
		<-gctx.Done()
		// In-flight scripts may run up to the execution timeout.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ExecTimeout+10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("agent stopped with error", zap.Error(err))
		return err
	}
	log.Info("agent stopped")
	return nil
}

func newEngine(cfg *config.Config, log *zap.Logger) (*executor.Engine, error) {
	return executor.NewEngine(executor.Config{
		WorkDir: cfg.WorkDir,
		Timeout: cfg.ExecTimeout,
		Interpreters: executor.Interpreters{
			Python: cfg.PythonBin,
			Node:   cfg.NodeBin,
			Shell:  cfg.ShellBin,
		},
	}, executor.WithLogger(log.Named("executor")))
}

func newScriptStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.ScriptStore, error) {
	if cfg.S3Bucket != "" {
		log.Info("serving scripts from S3", zap.String("bucket", cfg.S3Bucket), zap.String("prefix", cfg.S3Prefix))
		return storage.NewS3ScriptStore(ctx, storage.S3ScriptStoreConfig{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	}

	store, err := storage.NewLocalScriptStore(cfg.ScriptsDir)
	if err != nil {
		return nil, err
	}
	if cfg.SeedScripts {
		written, err := storage.SeedExamples(store.Dir())
		if err != nil {
			log.Warn("failed to seed example scripts", zap.Error(err))
		} else if len(written) > 0 {
			log.Info("seeded example scripts", zap.Strings("scripts", written), zap.String("dir", store.Dir()))
		}
	}
	return store, nil
}

func newPublisher(cfg *config.Config, agentID string, log *zap.Logger) (storage.OutcomePublisher, error) {
	if cfg.RedisAddr == "" {
		return storage.NopPublisher{}, nil
	}
	pcfg := redis.DefaultOutcomePublisherConfig(cfg.RedisAddr)
	pcfg.Password = cfg.RedisPassword
	pcfg.DB = cfg.RedisDB
	pcfg.Channel = cfg.RedisChannel
	pcfg.AgentID = agentID
	return redis.NewOutcomePublisher(pcfg, log.Named("publisher"))
}

func advertiseAddr(cfg *config.Config, hostname string) string {
	if cfg.AdvertiseAddr != "" {
		return cfg.AdvertiseAddr
	}
	return net.JoinHostPort(hostname, cfg.Port)
}
