package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"mintgate/internal/audit"
	"mintgate/internal/mint/authorization"
	"mintgate/internal/mint/backend"
	"mintgate/internal/mint/chainwatch"
	"mintgate/internal/mint/eligibility"
	"mintgate/internal/mint/handler"
	mintmetrics "mintgate/internal/mint/metrics"
	"mintgate/internal/mint/pool"
	"mintgate/internal/mint/reconciler"
	"mintgate/internal/mint/service"
	"mintgate/internal/platform/chain"
	"mintgate/internal/platform/config"
	"mintgate/internal/platform/httpserver"
	"mintgate/internal/platform/kafka"
	"mintgate/internal/platform/logger"
	"mintgate/internal/platform/metrics"
	"mintgate/pkg/platform/circuit"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("mintgate", cfg.Server.Environment, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("mintgate stopped", "error", err)
		os.Exit(1)
	}
}

// run wires the stores, the mint service and its background workers, then
// serves until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	stores, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn("closing stores", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.New(reg)
	mintMetrics := mintmetrics.New(reg)

	layout, err := pool.NewLayout(cfg.Mint.CategoryCapacities)
	if err != nil {
		return err
	}
	allocator := pool.NewAllocator(layout, stores.Counters, stores.Pool)
	if stores.EphemeralPool() {
		builder := pool.NewBuilder(layout, stores.Pool, stores.Counters, pool.WithBuilderLogger(log))
		if _, err := builder.Build(ctx, nil); err != nil {
			return fmt.Errorf("build in-memory pool: %w", err)
		}
	}

	signer, err := authorization.NewSigner(cfg.Mint.AuthPrivateKey)
	if err != nil {
		return err
	}
	log.Info("authorization signer loaded", "address", signer.Address().Hex())

	publisher := audit.NewPublisher(cfg.Audit.BufferSize, log)
	var sink audit.Sink = audit.NewLogSink(log)
	if len(cfg.Audit.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(ctx, cfg.Audit.KafkaBrokers, cfg.Audit.Topic, "mintgate")
		if err != nil {
			return fmt.Errorf("audit producer: %w", err)
		}
		defer producer.Close()
		if err := kafka.EnsureTopic(ctx, producer, cfg.Audit.Topic, cfg.Audit.Partitions, cfg.Audit.Replication); err != nil {
			return err
		}
		sink = audit.NewFailoverSink(
			audit.NewKafkaSink(producer, cfg.Audit.Topic),
			sink,
			circuit.New("audit-kafka"),
			log,
		)
	}

	resolver := eligibility.New(stores.Records, stores.Whitelist,
		eligibility.WithGraceWindow(cfg.Mint.GraceWindow),
		eligibility.WithOverflowCategory(cfg.Mint.OverflowCategory),
	)
	issuer := authorization.NewIssuer(allocator, stores.Records, signer)
	mint := service.New(resolver, issuer, stores.Records, stores.Claims, layout,
		service.WithLogger(log),
		service.WithMetrics(mintMetrics),
		service.WithAuditPublisher(publisher),
		service.WithStatusReporter(allocator),
	)

	var artifact *chain.Artifact
	if cfg.Chain.ArtifactPath != "" {
		if artifact, err = chain.LoadArtifact(cfg.Chain.ArtifactPath); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return audit.NewWorker(sink, publisher.Inbox(), log).Run(gctx)
	})

	if cfg.Chain.RPCURL != "" {
		client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return err
		}
		defer client.Close()

		contractAddr := common.HexToAddress(cfg.Chain.ContractAddress)
		batches := make(chan chainwatch.Batch)
		watcher, err := chainwatch.New(client, contractAddr, artifact.ABI, cfg.Chain.EventName, batches,
			chainwatch.WithCursorStore(chainwatch.NewCounterCursor(stores.Counters, contractAddr)),
			chainwatch.WithPollInterval(cfg.Chain.PollInterval),
			chainwatch.WithBlockBatch(cfg.Chain.BlockBatch),
			chainwatch.WithStartBlock(cfg.Chain.StartBlock),
			chainwatch.WithLogger(log),
			chainwatch.WithMetrics(mintMetrics),
		)
		if err != nil {
			return err
		}
		rec := reconciler.New(mint, batches, reconciler.WithLogger(log), reconciler.WithMetrics(mintMetrics))
		g.Go(func() error { return watcher.Run(gctx) })
		g.Go(func() error { return rec.Run(gctx) })
	} else {
		log.Warn("no chain RPC configured; confirmations arrive through registration only")
	}

	contract := handler.Contract{Address: cfg.Chain.ContractAddress}
	if artifact != nil {
		contract.ABI = artifact.Raw
	}
	mintHandler := handler.New(mint, contract, handler.WithLogger(log), handler.WithAdminToken(cfg.Server.AdminToken))
	router, err := newRouter(cfg, log, httpMetrics, reg, mintHandler, stores.Limits, stores.Pingers)
	if err != nil {
		return err
	}
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadHeaderTimeout, cfg.Server.RequestTimeout)

	g.Go(func() error {
		log.Info("starting mintgate", "addr", cfg.Server.Addr, "env", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
