package postgresengine

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/shelfmarket/purchase-settlement-go/settlement"
	"github.com/shelfmarket/purchase-settlement-go/settlement/postgresengine/internal/adapters"
)

const (
	defaultPurchasesTableName = "purchases"
	defaultBooksTableName     = "books"

	logMsgBuildQueryFailed      = "failed to build query"
	logMsgDBQueryFailed         = "database query execution failed"
	logMsgDBExecFailed          = "database execution failed"
	logMsgBeginTxFailed         = "failed to begin transaction"
	logMsgCommitTxFailed        = "failed to commit transaction"
	logMsgRollbackTxFailed      = "failed to roll back transaction"
	logMsgCloseRowsFailed       = "failed to close database rows"
	logMsgScanRowFailed         = "failed to scan database row"
	logMsgRowsAffectedFailed    = "failed to get rows affected count"
	logMsgConcurrencyConflict   = "concurrency conflict detected"
	logMsgDuplicatePurchase     = "duplicate purchase rejected by unique constraint"
	logMsgPurchaseCreated       = "pending purchase created"
	logMsgPurchaseCompleted     = "purchase completed"
	logMsgPurchaseCancelled     = "purchase cancelled"
	logMsgPurchaseDeleted       = "pending purchase rolled back"
	logMsgIdempotentTransition  = "idempotent transition, no state change"
	logMsgTransitionRejected    = "transition rejected"
	logMsgSQLExecuted           = "executed sql for: "
	logMsgOperation             = "settlement operation: "
	logAttrError                = "error"
	logAttrQuery                = "query"
	logAttrDurationMS           = "duration_ms"
	logAttrPurchaseID           = "purchase_id"
	logAttrBookID               = "book_id"
	logAttrBuyerID              = "buyer_id"
	logAttrStatus               = "status"
	logAttrRowsAffected         = "rows_affected"
	logActionSelect             = "select"
	logActionInsert             = "insert"
	logActionUpdate             = "update"
	logActionDelete             = "delete"
	dialectPostgres             = "postgres"
	uniqueViolationSQLStateCode = "23505"
)

type sqlQueryString = string

// PurchaseStore is the PostgreSQL persistence engine for the purchase state
// machine. It leverages a database adapter and supports customizable logging,
// metrics, tracing, and table configuration.
type PurchaseStore struct {
	db                 adapters.DBAdapter
	feeCalculator      settlement.FeeCalculator
	purchasesTableName string
	booksTableName     string
	logger             settlement.Logger
	contextualLogger   settlement.ContextualLogger
	metrics            settlement.MetricsCollector
	tracing            settlement.TracingCollector
}

// Option defines a functional option for configuring a PurchaseStore.
type Option func(*PurchaseStore) error

// WithPurchasesTableName sets the purchases table name.
func WithPurchasesTableName(tableName string) Option {
	return func(s *PurchaseStore) error {
		if tableName == "" {
			return settlement.ErrEmptyTableName
		}

		s.purchasesTableName = tableName

		return nil
	}
}

// WithBooksTableName sets the books table name.
func WithBooksTableName(tableName string) Option {
	return func(s *PurchaseStore) error {
		if tableName == "" {
			return settlement.ErrEmptyTableName
		}

		s.booksTableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the PurchaseStore.
//
// Debug level: SQL queries with execution timing (development use)
// Info level: operation summaries, idempotent no-ops, conflicts (production-safe)
// Warn level: non-critical issues like cleanup failures
// Error level: critical failures that cause operation failures.
func WithLogger(logger settlement.Logger) Option {
	return func(s *PurchaseStore) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. When both a Logger and a
// ContextualLogger are configured, the contextual one is preferred.
func WithContextualLogger(logger settlement.ContextualLogger) Option {
	return func(s *PurchaseStore) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the PurchaseStore.
func WithMetrics(collector settlement.MetricsCollector) Option {
	return func(s *PurchaseStore) error {
		s.metrics = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the PurchaseStore.
func WithTracing(collector settlement.TracingCollector) Option {
	return func(s *PurchaseStore) error {
		s.tracing = collector
		return nil
	}
}

// NewPurchaseStoreFromPGXPool creates a new PurchaseStore using a pgx Pool with optional configuration.
func NewPurchaseStoreFromPGXPool(db *pgxpool.Pool, feeCalculator settlement.FeeCalculator, options ...Option) (PurchaseStore, error) {
	if db == nil {
		return PurchaseStore{}, settlement.ErrNilDatabaseConnection
	}

	return newPurchaseStore(adapters.NewPGXAdapter(db), feeCalculator, options...)
}

// NewPurchaseStoreFromSQLDB creates a new PurchaseStore using a sql.DB with optional configuration.
func NewPurchaseStoreFromSQLDB(db *sql.DB, feeCalculator settlement.FeeCalculator, options ...Option) (PurchaseStore, error) {
	if db == nil {
		return PurchaseStore{}, settlement.ErrNilDatabaseConnection
	}

	return newPurchaseStore(adapters.NewSQLAdapter(db), feeCalculator, options...)
}

// NewPurchaseStoreFromSQLX creates a new PurchaseStore using a sqlx.DB with optional configuration.
func NewPurchaseStoreFromSQLX(db *sqlx.DB, feeCalculator settlement.FeeCalculator, options ...Option) (PurchaseStore, error) {
	if db == nil {
		return PurchaseStore{}, settlement.ErrNilDatabaseConnection
	}

	return newPurchaseStore(adapters.NewSQLXAdapter(db), feeCalculator, options...)
}

func newPurchaseStore(db adapters.DBAdapter, feeCalculator settlement.FeeCalculator, options ...Option) (PurchaseStore, error) {
	store := PurchaseStore{
		db:                 db,
		feeCalculator:      feeCalculator,
		purchasesTableName: defaultPurchasesTableName,
		booksTableName:     defaultBooksTableName,
	}

	for _, option := range options {
		if err := option(&store); err != nil {
			return PurchaseStore{}, err
		}
	}

	return store, nil
}

// logQueryWithDuration logs SQL queries with execution time at debug level if a logger is configured.
func (s PurchaseStore) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	s.logDebug(ctx, logMsgSQLExecuted+action, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
}

// logOperation logs operational information at info level if a logger is configured.
func (s PurchaseStore) logOperation(ctx context.Context, action string, args ...any) {
	s.logInfo(ctx, logMsgOperation+action, args...)
}

func (s PurchaseStore) logDebug(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s PurchaseStore) logInfo(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s PurchaseStore) logWarn(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s PurchaseStore) logError(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

// recordOperationMetrics records duration and outcome for a store operation if a collector is configured.
func (s PurchaseStore) recordOperationMetrics(operation string, outcome string, duration time.Duration) {
	if s.metrics == nil {
		return
	}

	labels := map[string]string{"operation": operation, "outcome": outcome}
	s.metrics.RecordDuration("settlement_store_operation_duration", duration, labels)
	s.metrics.IncrementCounter("settlement_store_operations_total", labels)
}

// startSpan starts a tracing span for a store operation if a collector is configured.
func (s PurchaseStore) startSpan(ctx context.Context, name string) (context.Context, settlement.SpanContext) {
	if s.tracing == nil {
		return ctx, nil
	}

	return s.tracing.StartSpan(ctx, name, nil)
}

// finishSpan finishes a tracing span with the given status if one was started.
func (s PurchaseStore) finishSpan(span settlement.SpanContext, status string) {
	if s.tracing == nil || span == nil {
		return
	}

	s.tracing.FinishSpan(span, status, nil)
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
