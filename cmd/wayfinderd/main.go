package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder-exchange/wayfinder/chains"
	"github.com/wayfinder-exchange/wayfinder/chains/evm"
	"github.com/wayfinder-exchange/wayfinder/chains/solana"
	"github.com/wayfinder-exchange/wayfinder/chains/xrpl"
	"github.com/wayfinder-exchange/wayfinder/config"
	"github.com/wayfinder-exchange/wayfinder/engine"
	"github.com/wayfinder-exchange/wayfinder/oracle"
	"github.com/wayfinder-exchange/wayfinder/planner"
	"github.com/wayfinder-exchange/wayfinder/rpc"
)

var log zerolog.Logger

func init() {
	// Initialize zerolog with console writer
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "./wayfinder.toml", "service config file")
	envOnly := flag.Bool("env", false, "load config from WAYFINDER_ env vars instead of a file")
	flag.Parse()

	log.Info().Str("config", *configPath).Msg("Starting Wayfinder")

	// Load service configuration
	var cfg *config.ServiceConfig
	var err error
	if *envOnly {
		cfg, err = config.LoadServiceConfig(nil)
	} else {
		cfg, err = config.LoadServiceConfig(configPath)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Load the liquidity snapshot; a broken file starts the oracle empty
	// rather than killing the process
	liquidityOracle := oracle.New(cfg.SnapshotPath)
	routePlanner := planner.New(liquidityOracle)

	// Wire one adapter per configured chain
	registry := chains.NewRegistry()
	timeouts := make(map[chains.Family]time.Duration)
	for _, chainCfg := range cfg.Chains {
		adapter, err := buildAdapter(chainCfg)
		if err != nil {
			log.Fatal().Err(err).Str("chain", chainCfg.ID).Msg("Failed to build chain adapter")
		}
		registry.Register(adapter)
		if chainCfg.ConfirmTimeoutSeconds > 0 {
			timeouts[adapter.Family()] = time.Duration(chainCfg.ConfirmTimeoutSeconds) * time.Second
		}
		log.Info().
			Str("chain", chainCfg.ID).
			Str("family", chainCfg.Family).
			Str("network", chainCfg.Network).
			Msg("Chain adapter registered")
	}

	svc := engine.New(routePlanner, registry, engine.Config{
		Enabled:          cfg.ExecutionEnabled,
		ProductionChains: cfg.ProductionChains,
		Timeouts:         timeouts,
	})
	if !cfg.ExecutionEnabled {
		log.Warn().Msg("Execution is disabled, serving quotes only")
	}

	// Create the API server configuration
	serverConfig := buildServerConfig(cfg)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create the API server
	server, err := rpc.NewServer(ctx, serverConfig, svc, liquidityOracle, routePlanner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API server")
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// buildAdapter constructs the family-specific adapter for one chain config
func buildAdapter(cfg config.ChainConfig) (chains.Adapter, error) {
	switch cfg.Family {
	case "xrpl":
		return xrpl.NewAdapter(xrpl.Config{
			ChainID:      cfg.ID,
			Endpoint:     cfg.Endpoint,
			Network:      cfg.Network,
			DemoAddress:  cfg.DemoAddress,
			DemoSecret:   cfg.DemoSecret,
			TokenIssuers: cfg.TokenIssuers,
		}), nil
	case "solana":
		return solana.NewAdapter(solana.Config{
			ChainID:     cfg.ID,
			Endpoint:    cfg.Endpoint,
			Network:     cfg.Network,
			DemoAddress: cfg.DemoAddress,
		}), nil
	case "evm":
		return evm.NewAdapter(evm.Config{
			ChainID:    cfg.ID,
			Endpoint:   cfg.Endpoint,
			Network:    cfg.Network,
			EVMChainID: cfg.EVMChainID,
			DemoKey:    cfg.DemoKey,
		})
	default:
		return nil, fmt.Errorf("unknown chain family %q", cfg.Family)
	}
}

// buildServerConfig converts the loaded ServiceConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.ServiceConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.UsePrometheus, // Enable metrics endpoint if prometheus is enabled
	}

	// Set rate limiting if configured
	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.Burst = &cfg.MaxConcurrentRequests
	}

	// Set OpenTelemetry configuration if any telemetry is enabled
	if cfg.EnableTracing || cfg.EnableMetrics || cfg.UsePrometheus {
		serverConfig.OTelConfig = &rpc.OTelConfig{
			ServiceName:     defaultString(cfg.ServiceName, "wayfinder"),
			ServiceVersion:  defaultString(cfg.ServiceVersion, "1.0.0"),
			Environment:     defaultString(cfg.Environment, "development"),
			EnableTracing:   cfg.EnableTracing,
			UseOTLPTraces:   cfg.UseOTLPTraces,
			OTLPTracesURL:   cfg.OTLPTracesURL,
			EnableMetrics:   cfg.EnableMetrics,
			UsePrometheus:   cfg.UsePrometheus,
			UseOTLPMetrics:  cfg.UseOTLPMetrics,
			OTLPMetricsURL:  cfg.OTLPMetricsURL,
			InsecureOTLP:    cfg.InsecureOTLP,
			DevelopmentMode: cfg.DevelopmentMode,
		}
	}

	return serverConfig
}

// defaultString returns the default value if s is empty
func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
