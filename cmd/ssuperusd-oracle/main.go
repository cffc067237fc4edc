package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	bolt "go.etcd.io/bbolt"

	"github.com/SuperReturn/Oracle/pkg/config"
	"github.com/SuperReturn/Oracle/pkg/feeder/keeper"
	"github.com/SuperReturn/Oracle/pkg/feeder/price"
	"github.com/SuperReturn/Oracle/pkg/logging"
	"github.com/SuperReturn/Oracle/pkg/metrics"
	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
	"github.com/SuperReturn/Oracle/pkg/server/api"
	"github.com/SuperReturn/Oracle/pkg/server/sources"
	"github.com/SuperReturn/Oracle/pkg/server/sources/evm"
	"github.com/SuperReturn/Oracle/pkg/server/store"
	"github.com/SuperReturn/Oracle/pkg/version"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	envFile    = flag.String("env-file", "", "Path to a .env file (default: ./.env if present)")
	showVer    = flag.Bool("version", false, "Show version and exit")
	queryURL   = flag.String("query", "", "Print the latest round and price served at this API URL and exit")
)

// stateStore is the persistence backend selected by configuration.
type stateStore interface {
	aggregator.StateStore
	Close() error
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("ssuperusd-oracle version %s\n", version.Version)
		os.Exit(0)
	}

	if *queryURL != "" {
		if err := runQuery(*queryURL); err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.InitWithFile(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, logging.FileOptions{
		Path:       cfg.Logging.File.Path,
		MaxSize:    cfg.Logging.File.MaxSize,
		MaxBackups: cfg.Logging.File.MaxBackups,
		MaxAge:     cfg.Logging.File.MaxAge,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting ssuperusd-oracle", "version", version.Version)

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- run(ctx, cfg, logger)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
		if err := <-errChan; err != nil {
			logger.Error("Shutdown error", "error", err)
		}
	case err := <-errChan:
		if err != nil {
			logger.Error("Oracle failed", "error", err)
			cancel()
			os.Exit(1)
		}
	}

	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.Chain.DialTimeout.ToDuration())
	client, err := evm.Dial(dialCtx, cfg.Chain.RPCURL)
	cancelDial()
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("Connected to EVM RPC", "url", cfg.Chain.RPCURL)

	catalog, err := buildCatalog(cfg, client, logger)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("Failed to close state store", "error", err)
		}
	}()

	primaryName, fallbackName := chooseSources(ctx, st, cfg, catalog, logger)
	primary, _ := catalog.Get(primaryName)
	fallback, _ := catalog.Get(fallbackName)

	agg, err := aggregator.New(ctx, cfg.Aggregator.ToAggregatorConfig(), primary, fallback,
		aggregator.WithLogger(logger.With("component", "aggregator")),
		aggregator.WithStore(st),
	)
	if err != nil {
		return fmt.Errorf("failed to create aggregator: %w", err)
	}
	logger.Info("Aggregator ready", "primary", primaryName, "fallback", fallbackName, "owner", agg.Owner().Hex())

	server := api.NewServer(cfg.Server.HTTP.Addr, agg, catalog, logger.With("component", "api"))
	server.SetMaxRequestSkew(cfg.Server.MaxRequestSkew.ToDuration())
	if cfg.Server.HTTP.TLS.Enabled {
		server.SetTLS(cfg.Server.HTTP.TLS.Cert, cfg.Server.HTTP.TLS.Key)
	}

	if cfg.Server.WebSocket.Enabled {
		wsServer := api.NewWebSocketServer(logger.With("component", "websocket"))
		server.SetWebSocketServer(wsServer)

		events := make(chan aggregator.Event, 100)
		agg.AddSubscriber(events)
		defer agg.RemoveSubscriber(events)
		go wsServer.Run(ctx, events)
	}

	if cfg.Keeper.Enabled {
		k, err := keeper.New(keeper.Config{
			Executor:      common.HexToAddress(cfg.Keeper.Executor),
			Schedule:      cfg.Keeper.Schedule,
			MaxRetries:    cfg.Keeper.MaxRetries,
			RetryInterval: cfg.Keeper.RetryInterval.ToDuration(),
			Timeout:       cfg.Keeper.Timeout.ToDuration(),
		}, agg, logger.ZerologLogger().With().Str("component", "keeper").Logger())
		if err != nil {
			return fmt.Errorf("failed to create keeper: %w", err)
		}
		go func() {
			if err := k.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Keeper stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown failed", "error", err)
		}
	}()

	return server.Start()
}

// buildCatalog creates every configured feed. Feeds share the RPC client and
// the logger.
func buildCatalog(cfg *config.Config, client *ethclient.Client, logger *logging.Logger) (sources.Catalog, error) {
	catalog := make(sources.Catalog, len(cfg.Sources))
	for _, sourceCfg := range cfg.Sources {
		feedCfg := make(map[string]interface{}, len(sourceCfg.Config)+2)
		for k, v := range sourceCfg.Config {
			feedCfg[k] = v
		}
		feedCfg["logger"] = logger
		feedCfg["client"] = client

		feed, err := sources.Create(sourceCfg.Type, sourceCfg.Name, feedCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create source %s: %w", sourceCfg.Name, err)
		}
		catalog[feed.Name()] = feed
		logger.Info("Source configured", "name", feed.Name(), "type", string(feed.Type()))
	}
	return catalog, nil
}

func openStore(cfg config.StoreConfig) (stateStore, error) {
	if cfg.Type == config.StoreTypeMemory {
		return store.NewMemoryStore(), nil
	}
	s, err := store.NewBoltStore(cfg.Path, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return s, nil
}

// chooseSources keeps the sources selected by earlier admin changes when they
// are still in the catalog, and falls back to the configured ones otherwise.
func chooseSources(ctx context.Context, st aggregator.StateStore, cfg *config.Config, catalog sources.Catalog, logger *logging.Logger) (string, string) {
	primary, fallback := cfg.Aggregator.PrimarySource, cfg.Aggregator.FallbackSource

	stored, err := st.Load(ctx)
	if err != nil {
		if !errors.Is(err, aggregator.ErrStateNotFound) {
			logger.Warn("Could not read stored source selection", "error", err)
		}
		return primary, fallback
	}
	if _, ok := catalog.Get(stored.PrimarySource); ok {
		primary = stored.PrimarySource
	}
	if _, ok := catalog.Get(stored.FallbackSource); ok {
		fallback = stored.FallbackSource
	}
	if primary == fallback {
		return cfg.Aggregator.PrimarySource, cfg.Aggregator.FallbackSource
	}
	return primary, fallback
}

func runQuery(baseURL string) error {
	client, err := price.NewHTTPClient(baseURL, 10*time.Second)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	round, err := client.GetRound(ctx)
	if err != nil {
		return err
	}
	p, err := client.GetPrice(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("answer:     %s (%s)\n", round.Answer, round.Price.StringFixed(int32(round.Decimals)))
	fmt.Printf("updated_at: %s\n", time.Unix(int64(round.UpdatedAt), 0).UTC().Format(time.RFC3339))
	fmt.Printf("price:      %s (precision %d)\n", p.Price, p.Precision)
	return nil
}
