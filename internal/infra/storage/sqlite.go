package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"matchsim/internal/domain"
	"matchsim/internal/event"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const tradeBatchSize = 500

// Storage archives finished runs for later inspection. Nothing is ever read
// back into a live book.
type Storage struct {
	db *gorm.DB

	mu      sync.Mutex
	runID   string
	pending []domain.TradeRecord
	err     error // first failed flush from the event path
}

// NewStorage opens (or creates) the SQLite archive at dbPath
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return newStorage(db)
}

func newStorage(db *gorm.DB) (*Storage, error) {
	// Auto Migration
	if err := db.AutoMigrate(&domain.RunRecord{}, &domain.OrderRecord{}, &domain.TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Run Operations
// ======================================================================================

// BeginRun stores the run header and directs subsequent trades to it.
func (s *Storage) BeginRun(run *domain.RunRecord) error {
	if err := s.db.Create(run).Error; err != nil {
		return err
	}
	s.mu.Lock()
	s.runID = run.ID
	s.mu.Unlock()
	return nil
}

// FinishRun updates the run header with its closing counters.
func (s *Storage) FinishRun(run *domain.RunRecord) error {
	return s.db.Save(run).Error
}

// GetRun retrieves a run by id
func (s *Storage) GetRun(id string) (*domain.RunRecord, error) {
	var run domain.RunRecord
	err := s.db.First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &run, err
}

// ListRuns returns all archived runs, newest first.
func (s *Storage) ListRuns() ([]domain.RunRecord, error) {
	var runs []domain.RunRecord
	err := s.db.Order("started_at desc").Find(&runs).Error
	return runs, err
}

// DeleteRun removes a run and everything recorded under it.
func (s *Storage) DeleteRun(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&domain.TradeRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&domain.OrderRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.RunRecord{}).Error
	})
}

// ======================================================================================
// Trade Operations
// ======================================================================================

// Handle buffers fills from the event tape. It runs on the sequencer
// goroutine, so it copies what it needs and only hits the database once a
// full batch has accumulated.
func (s *Storage) Handle(ev event.Event) {
	fill, ok := ev.(*event.FillEvent)
	if !ok {
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, domain.TradeRecord{
		RunID:       s.runID,
		Seq:         fill.Seq,
		Ticker:      fill.Ticker,
		BuyOrderID:  fill.BuyOrderID,
		SellOrderID: fill.SellOrderID,
		Quantity:    fill.Quantity,
		Price:       fill.Price,
		ExecutedAt:  fill.Ts,
	})
	full := len(s.pending) >= tradeBatchSize
	s.mu.Unlock()

	if full {
		if err := s.FlushTrades(); err != nil {
			s.mu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.mu.Unlock()
		}
	}
}

// FlushTrades writes buffered trades. It also reports any earlier failure
// from the event path.
func (s *Storage) FlushTrades() error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	prevErr := s.err
	s.err = nil
	s.mu.Unlock()

	if len(batch) > 0 {
		if err := s.db.CreateInBatches(batch, tradeBatchSize).Error; err != nil {
			return err
		}
	}
	return prevErr
}

// ListTrades returns a run's trades in tape order.
func (s *Storage) ListTrades(runID string) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	err := s.db.Where("run_id = ?", runID).Order("seq asc").Find(&trades).Error
	return trades, err
}

// ======================================================================================
// Book Operations
// ======================================================================================

// SaveBooks stores the final state of every order in books under runID.
func (s *Storage) SaveBooks(runID string, books []domain.BookView) error {
	var records []domain.OrderRecord
	for _, b := range books {
		for _, side := range []domain.SideView{b.Buy, b.Sell} {
			pos := 0
			for _, region := range [][]domain.OrderView{side.Active, side.History} {
				for _, o := range region {
					records = append(records, toOrderRecord(runID, b.Ticker, pos, o))
					pos++
				}
			}
		}
	}
	if len(records) == 0 {
		return nil
	}
	return s.db.CreateInBatches(records, tradeBatchSize).Error
}

// ListOrders returns a run's orders for one ticker in book order, BUY side first.
func (s *Storage) ListOrders(runID, ticker string) ([]domain.OrderRecord, error) {
	var orders []domain.OrderRecord
	err := s.db.
		Where("run_id = ? AND ticker = ?", runID, ticker).
		Order("side asc").Order("position asc").
		Find(&orders).Error
	return orders, err
}

func toOrderRecord(runID, ticker string, pos int, o domain.OrderView) domain.OrderRecord {
	ids := make([]string, len(o.Counterparties))
	for i, id := range o.Counterparties {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return domain.OrderRecord{
		RunID:          runID,
		Ticker:         ticker,
		OrderID:        o.ID,
		Side:           string(o.Side),
		LimitPrice:     o.LimitPrice,
		Quantity:       o.Quantity,
		Active:         o.Active,
		Settled:        o.Settled,
		Notional:       o.Notional,
		AveragePrice:   o.AveragePrice,
		Counterparties: strings.Join(ids, ","),
		InHistory:      o.InHistory,
		Position:       pos,
	}
}
