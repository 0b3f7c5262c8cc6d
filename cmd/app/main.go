package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matchsim/internal/app"
	"matchsim/internal/infra"
	"matchsim/internal/report"
	"matchsim/internal/strategy"

	_ "net/http/pprof" // For pprof profiling

	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config")
	manual := flag.Bool("manual", false, "read orders from stdin instead of generating them")
	pprofAddr := flag.String("pprof", "", "serve pprof on this address (e.g. localhost:6060)")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	if *pprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 2. Graceful Shutdown Context. It stops the brokers only; matching
	// attempts already scheduled are left to finish or time out.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. System Bootstrapping
	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		slog.Error("❌ Failed to load config", slog.String("path", *configPath), slog.Any("error", err))
		os.Exit(1)
	}
	if *manual {
		cfg.Simulator.Manual = true
	}

	bootstrap := app.NewBootstrap()
	if err := bootstrap.InitializeWith(context.Background(), cfg); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 4. Brokers
	brokers := buildBrokers(bootstrap)
	slog.InfoContext(ctx, "✨ Simulation running. Press Ctrl+C to stop early.",
		slog.Int("brokers", len(brokers)),
		slog.Bool("manual", cfg.Simulator.Manual))

	stats, err := strategy.RunBrokers(ctx, brokers)
	if err != nil {
		slog.Error("Brokers stopped with error", slog.Any("error", err))
	}
	slog.Info("Brokers finished",
		slog.Int("submitted", stats.Submitted),
		slog.Int("accepted", stats.Accepted),
		slog.Int("rejected", stats.Rejected))

	// 5. Drain, report, archive
	slog.Info("👋 Shutting down gracefully...")
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout())
	defer cancel()

	exitCode := 0
	if err := bootstrap.Shutdown(drainCtx); err != nil {
		slog.Error("Shutdown incomplete", slog.Any("error", err))
		exitCode = 1
	}

	if err := report.WriteBooks(os.Stdout, bootstrap.Exchange.Books()); err != nil {
		slog.Error("Failed to print order books", slog.Any("error", err))
		exitCode = 1
	}
	if err := report.WriteQuotes(os.Stdout, bootstrap.Quotes.GetAllData()); err != nil {
		slog.Error("Failed to print trade summary", slog.Any("error", err))
		exitCode = 1
	}

	os.Exit(exitCode)
}

func buildBrokers(b *app.Bootstrap) []*strategy.Broker {
	cfg := b.Config

	if cfg.Simulator.Manual {
		slog.Info("Enter orders as: BUY|SELL <ticker> <qty> <price> (quit to finish)")
		strat := strategy.NewManualStrategy(os.Stdin, b.Logger)
		return []*strategy.Broker{strategy.NewBroker(1, strat, b.Exchange, nil, b.Logger)}
	}

	seed := uint64(cfg.Simulator.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	params := strategy.RandomParams{
		Orders:   cfg.Simulator.OrdersPerBroker,
		Tickers:  cfg.Simulator.Tickers,
		MinQty:   cfg.Simulator.MinQty,
		MaxQty:   cfg.Simulator.MaxQty,
		MinPrice: cfg.Simulator.MinPrice,
		MaxPrice: cfg.Simulator.MaxPrice,
	}

	brokers := make([]*strategy.Broker, 0, cfg.Simulator.Brokers)
	for i := 1; i <= cfg.Simulator.Brokers; i++ {
		var limiter *rate.Limiter
		if cfg.Simulator.OrdersPerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.Simulator.OrdersPerSecond), 1)
		}
		strat := strategy.NewRandomStrategy(params, seed, uint64(i))
		brokers = append(brokers, strategy.NewBroker(i, strat, b.Exchange, limiter, b.Logger))
	}
	return brokers
}
