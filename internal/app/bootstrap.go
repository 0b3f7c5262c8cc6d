package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"matchsim/internal/domain"
	"matchsim/internal/engine"
	"matchsim/internal/event"
	"matchsim/internal/infra"
	"matchsim/internal/infra/feed"
	"matchsim/internal/infra/storage"
	"matchsim/internal/service"

	"github.com/google/uuid"
)

// Bootstrap orchestrates the application startup and shutdown sequence
type Bootstrap struct {
	Config    *infra.Config
	Logger    *slog.Logger
	Metrics   *infra.Metrics
	Storage   *storage.Storage
	Feed      *feed.Hub
	Sequencer *engine.Sequencer
	Exchange  *service.Exchange
	Quotes    *service.QuoteService
	Run       *domain.RunRecord

	seqCancel context.CancelFunc
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the config at path and wires every component. The
// exchange's matching attempts run under ctx.
func (b *Bootstrap) Initialize(ctx context.Context, path string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err // Let main handle the error
	}
	return b.InitializeWith(ctx, cfg)
}

// InitializeWith wires every component from an already loaded config.
func (b *Bootstrap) InitializeWith(ctx context.Context, cfg *infra.Config) error {
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	slog.Info("🚀 Bootstrapping matchsim...", slog.String("version", cfg.App.Version))

	b.Metrics = infra.GlobalMetrics
	b.Metrics.Reset()
	b.Run = &domain.RunRecord{ID: uuid.NewString(), StartedAt: time.Now()}

	b.Quotes = service.NewQuoteService()
	handlers := []engine.Handler{b.Quotes}

	// 3. Initialize Storage (DB)
	if cfg.Storage.Enabled {
		store, err := storage.NewStorage(cfg.Storage.Path)
		if err != nil {
			return err
		}
		if err := store.BeginRun(b.Run); err != nil {
			store.Close()
			return fmt.Errorf("failed to record run: %w", err)
		}
		b.Storage = store
		handlers = append(handlers, store)
		slog.Info("✅ Archive initialized", slog.String("path", cfg.Storage.Path))
	}

	// 4. Trade feed
	if cfg.Feed.Enabled {
		hub := feed.NewHub(b.Run.ID, b.Metrics)
		if err := hub.Start(cfg.Feed.Addr); err != nil {
			b.closeStorage()
			return fmt.Errorf("failed to start feed: %w", err)
		}
		b.Feed = hub
		handlers = append(handlers, hub)
	}

	// 5. Sequencer. It is stopped by Close during shutdown, not by ctx, so
	// that events from draining matchers still reach the handlers.
	event.Warmup()
	b.Sequencer = engine.NewSequencer(cfg.Engine.EventBuffer, handlers...)
	seqCtx, cancel := context.WithCancel(context.Background())
	b.seqCancel = cancel
	go b.Sequencer.Run(seqCtx)

	// 6. Exchange
	b.Exchange = service.NewExchange(ctx, service.Options{
		OrderTimeout: cfg.OrderTimeout(),
		Workers:      cfg.Engine.Workers,
		Backoff:      cfg.Backoff(),
		Publisher:    b.Sequencer,
		Metrics:      b.Metrics,
		Logger:       b.Logger,
	})

	slog.Info("✅ Exchange ready",
		slog.String("run_id", b.Run.ID),
		slog.Int("workers", cfg.Engine.Workers),
		slog.Duration("order_timeout", cfg.OrderTimeout()))
	return nil
}

// Shutdown drains the exchange, then the event tape, then archives the final
// books. It is bounded by ctx; errors from every stage are joined.
func (b *Bootstrap) Shutdown(ctx context.Context) error {
	var errs []error

	if b.Exchange != nil {
		if err := b.Exchange.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("exchange drain: %w", err))
		}
	}

	if b.Sequencer != nil {
		b.Sequencer.Close()
		select {
		case <-b.Sequencer.Done():
		case <-ctx.Done():
			b.seqCancel()
			<-b.Sequencer.Done()
			errs = append(errs, fmt.Errorf("sequencer drain: %w", ctx.Err()))
		}
		b.seqCancel()
	}

	if b.Feed != nil {
		if err := b.Feed.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("feed shutdown: %w", err))
		}
	}

	if b.Storage != nil {
		if err := b.archive(); err != nil {
			errs = append(errs, err)
		}
		b.closeStorage()
	}

	snap := b.Metrics.Snapshot()
	slog.Info("📊 Final metrics",
		slog.Uint64("accepted", snap.OrdersAccepted),
		slog.Uint64("rejected", snap.OrdersRejected),
		slog.Uint64("fills", snap.Fills),
		slog.Uint64("filled_qty", snap.FilledQuantity),
		slog.Uint64("orders_filled", snap.OrdersFilled),
		slog.Uint64("expiries", snap.Expiries),
		slog.Uint64("conflicts", snap.Conflicts),
		slog.Duration("avg_latency", time.Duration(snap.AvgLatencyNs)))

	return errors.Join(errs...)
}

func (b *Bootstrap) archive() error {
	if err := b.Storage.FlushTrades(); err != nil {
		return fmt.Errorf("archive trades: %w", err)
	}
	if err := b.Storage.SaveBooks(b.Run.ID, b.Exchange.Books()); err != nil {
		return fmt.Errorf("archive books: %w", err)
	}

	snap := b.Metrics.Snapshot()
	b.Run.FinishedAt = time.Now()
	b.Run.Accepted = snap.OrdersAccepted
	b.Run.Rejected = snap.OrdersRejected
	b.Run.Trades = snap.Fills
	b.Run.Expiries = snap.Expiries
	b.Run.Conflicts = snap.Conflicts
	if err := b.Storage.FinishRun(b.Run); err != nil {
		return fmt.Errorf("archive run: %w", err)
	}
	slog.Info("💾 Run archived", slog.String("run_id", b.Run.ID))
	return nil
}

func (b *Bootstrap) closeStorage() {
	if b.Storage == nil {
		return
	}
	if err := b.Storage.Close(); err != nil {
		slog.Warn("Failed to close archive", slog.Any("error", err))
	}
	b.Storage = nil
}
