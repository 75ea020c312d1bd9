// Package archive keeps a write-only audit log of settled round results.
//
// Nothing is ever read back into a running game. Games work the same with the
// Discard recorder as with a Postgres-backed Store.
package archive

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultQueueSize = 256
	maxBatch         = 64
	flushTimeout     = 5 * time.Second
)

// Result is one settled outcome for one player. Final marks the end-of-game
// total rather than a single round.
type Result struct {
	Game     string
	RoundID  int
	PlayerID string
	Name     string
	Pnl      decimal.Decimal
	Capital  decimal.Decimal
	Final    bool
}

type Recorder interface {
	Record(Result)
}

type discard struct{}

func (discard) Record(Result) {}

// Discard drops every result.
var Discard Recorder = discard{}

type Row struct {
	ID        uint            `gorm:"primaryKey"`
	Game      string          `gorm:"size:16;index"`
	RoundID   int             `gorm:"not null"`
	PlayerID  string          `gorm:"size:64;index"`
	Name      string          `gorm:"size:64"`
	Pnl       decimal.Decimal `gorm:"type:numeric(14,2)"`
	Capital   decimal.Decimal `gorm:"type:numeric(14,2)"`
	Final     bool
	CreatedAt time.Time
}

func (Row) TableName() string { return "round_results" }

func toRow(r Result) Row {
	return Row{
		Game:     r.Game,
		RoundID:  r.RoundID,
		PlayerID: r.PlayerID,
		Name:     r.Name,
		Pnl:      r.Pnl.Round(2),
		Capital:  r.Capital.Round(2),
		Final:    r.Final,
	}
}

type InsertFunc func(ctx context.Context, rows []Row) error

// Store queues results and writes them in batches from Run.
type Store struct {
	queue  chan Result
	insert InsertFunc
	log    *zap.Logger
	db     *gorm.DB
}

func NewStore(insert InsertFunc, size int, log *zap.Logger) *Store {
	if size <= 0 {
		size = defaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		queue:  make(chan Result, size),
		insert: insert,
		log:    log,
	}
}

// Open connects to Postgres and migrates the results table.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, err
	}

	s := NewStore(func(ctx context.Context, rows []Row) error {
		return db.WithContext(ctx).Create(&rows).Error
	}, defaultQueueSize, log)
	s.db = db
	return s, nil
}

// Record never blocks the caller. A full queue drops the result.
func (s *Store) Record(r Result) {
	select {
	case s.queue <- r:
	default:
		s.log.Warn("archive queue full, dropping result",
			zap.String("game", r.Game),
			zap.Int("round", r.RoundID),
			zap.String("player", r.PlayerID))
	}
}

// Run drains the queue until ctx is done, then flushes what is left.
func (s *Store) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return nil
		case r := <-s.queue:
			rows := s.collect([]Row{toRow(r)})
			s.write(ctx, rows)
		}
	}
}

func (s *Store) collect(rows []Row) []Row {
	for len(rows) < maxBatch {
		select {
		case r := <-s.queue:
			rows = append(rows, toRow(r))
		default:
			return rows
		}
	}
	return rows
}

func (s *Store) flush() {
	rows := s.collect(nil)
	if len(rows) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	s.write(ctx, rows)
}

func (s *Store) write(ctx context.Context, rows []Row) {
	if err := s.insert(ctx, rows); err != nil {
		s.log.Error("archive insert failed", zap.Int("rows", len(rows)), zap.Error(err))
		return
	}
	s.log.Debug("archived results", zap.Int("rows", len(rows)))
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
