package repositories

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore keeps tasks and bids in a relational database through GORM.
type GormStore struct {
	db        *gorm.DB
	logger    *log.Logger
	tracer    trace.Tracer
	opTimeout time.Duration
	txTimeout time.Duration
}

// OpenSQLite opens the SQLite database at path. SQLite allows a single
// writer, so the pool is capped at one connection and transactions queue
// instead of failing with "database is locked".
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func NewGormStore(db *gorm.DB, logger *log.Logger, tracer trace.Tracer, opTimeout, txTimeout time.Duration) *GormStore {
	return &GormStore{
		db:        db,
		logger:    logger,
		tracer:    tracer,
		opTimeout: opTimeout,
		txTimeout: txTimeout,
	}
}

// Migrate creates or updates every table the service uses.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allRows()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	s.logger.Println("database schema migrated")
	return nil
}

func (s *GormStore) Tasks() domain.TaskRepository {
	return &GormTaskRepo{db: s.db, logger: s.logger, tracer: s.tracer, timeout: s.opTimeout}
}

func (s *GormStore) Bids() domain.BidRepository {
	return &GormBidRepo{db: s.db, logger: s.logger, tracer: s.tracer, timeout: s.opTimeout}
}

func (s *GormStore) Taskers() *GormTaskerRepo {
	return &GormTaskerRepo{db: s.db, logger: s.logger, tracer: s.tracer, timeout: s.opTimeout}
}

func (s *GormStore) Categories() *GormCategoryRepo {
	return &GormCategoryRepo{db: s.db, logger: s.logger, tracer: s.tracer, timeout: s.opTimeout}
}

type gormUnit struct {
	tasks *GormTaskRepo
	bids  *GormBidRepo
}

func (u *gormUnit) Tasks() domain.TaskRepository { return u.tasks }
func (u *gormUnit) Bids() domain.BidRepository   { return u.bids }

// WithTransaction runs fn on repositories bound to a single database
// transaction. GORM rolls back when fn returns an error or panics.
func (s *GormStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	ctx, span := s.tracer.Start(ctx, "GormStore.WithTransaction")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unit := &gormUnit{
			tasks: &GormTaskRepo{db: tx, logger: s.logger, tracer: s.tracer, timeout: s.opTimeout},
			bids:  &GormBidRepo{db: tx, logger: s.logger, tracer: s.tracer, timeout: s.opTimeout},
		}
		return fn(ctx, unit)
	})
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: transaction aborted: %v", domain.ErrUnavailable(), err)
		}
		s.logger.Println("transaction rolled back:", err)
		markSpan(span, err)
		return err
	}
	return nil
}

func (s *GormStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.logger.Println("database connection closed")
	return nil
}
