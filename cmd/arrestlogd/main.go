package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/arrestlog/internal/async"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/core/ocr"
	"github.com/joseph-ayodele/arrestlog/internal/pipeline"
	"github.com/joseph-ayodele/arrestlog/internal/repository"
	"github.com/joseph-ayodele/arrestlog/internal/server"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (or set ARRESTLOG_CONFIG)")
	flag.Parse()

	cfg, err := common.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(2)
	}
	logger := common.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		runs     repository.RunRepository
		procOpts []pipeline.Option
	)
	if cfg.Database.DSN != "" {
		db, err := server.ConnectDB(ctx, cfg.Database, logger)
		if err != nil {
			os.Exit(1)
		}
		defer db.Close(logger)
		runs = repository.NewRunRepository(db, logger)
		if cfg.Server.Persist {
			procOpts = append(procOpts, pipeline.WithTracker(runs))
		}
	} else if cfg.Server.Persist {
		logger.Warn("persist requested but no database configured; runs will not be recorded")
	}

	proc, err := pipeline.NewProcessor(cfg.Extract, logger, procOpts...)
	if err != nil {
		logger.Error("failed to build processor", "error", err)
		os.Exit(2)
	}

	// queued runs always go to the store when there is one, otherwise
	// GetRun could never report them
	queued := proc
	if runs != nil && !cfg.Server.Persist {
		queued, err = pipeline.NewProcessor(cfg.Extract, logger, pipeline.WithTracker(runs))
		if err != nil {
			logger.Error("failed to build processor", "error", err)
			os.Exit(2)
		}
	}

	extractor := ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), logger)
	resolver, err := server.ResolverFromConfig(cfg.Source, extractor, logger)
	if err != nil {
		logger.Error("failed to configure source", "error", err)
		os.Exit(1)
	}

	opts := []server.Option{}
	var queue *async.ProcessorQueue
	if resolver != nil {
		queue = async.NewProcessorQueue(queued, logger,
			async.WithWorkers(cfg.Extract.Workers),
			async.WithQueueSize(64),
			async.WithProcessTimeout(30*time.Minute),
		)
		opts = append(opts, server.WithQueue(queue, resolver))
	}
	if runs != nil {
		opts = append(opts, server.WithRuns(runs))
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	server.Register(grpcServer, server.NewService(proc, cfg.Server, logger, opts...))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(server.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	logger.Info("arrestlogd listening", "addr", cfg.Server.GRPCAddr, "persist", cfg.Server.Persist, "runs", resolver != nil)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	if queue != nil {
		drain, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		queue.Shutdown(drain)
	}
}
