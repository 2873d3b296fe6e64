package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/libraryops/circulation-go/circulation"
	"github.com/libraryops/circulation-go/circulation/postgresengine/internal/adapters"
)

const (
	defaultBooksTableName   = "books"
	defaultUsersTableName   = "users"
	defaultBorrowsTableName = "borrow"

	dialectPostgres = "postgres"

	actionBeginTx  = "begin tx"
	actionCommitTx = "commit tx"

	logMsgBuildQueryFailed  = "failed to build sql query"
	logMsgDBQueryFailed     = "database query execution failed"
	logMsgDBExecFailed      = "database execution failed"
	logMsgCloseRowsFailed   = "failed to close database rows"
	logMsgScanRowFailed     = "failed to scan database row"
	logMsgBeginTxFailed     = "failed to begin transaction"
	logMsgCommitTxFailed    = "failed to commit transaction"
	logMsgRollbackTxFailed  = "failed to roll back transaction"
	logMsgSQLExecuted       = "executed sql for: "
	logAttrError            = "error"
	logAttrQuery            = "query"
	logAttrDurationMS       = "duration_ms"
	metricQueryDuration     = "circulation_db_query_duration"
	metricExecDuration      = "circulation_db_exec_duration"
	metricDBErrors          = "circulation_db_errors"
	metricLabelAction       = "action"
)

var (
	// ErrNilDatabaseConnection is returned by the constructors when the
	// supplied connection handle is nil.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when a table name option is empty.
	ErrEmptyTableName = errors.New("empty table name supplied")
)

// errNoRowReturned signals that a statement expected to return a row (an
// INSERT ... RETURNING, typically) produced none.
var errNoRowReturned = errors.New("statement returned no row")

// Logger interface for SQL query logging, operational metrics, warnings,
// and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsCollector interface for collecting store performance metrics.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
}

// Store implements the circulation store contracts (catalog, ledger, user
// directory, transaction runner) on PostgreSQL. It leverages a database
// adapter and supports customizable logging, metrics, and table names.
type Store struct {
	db           adapters.DBAdapter
	booksTable   string
	usersTable   string
	borrowsTable string
	logger       Logger
	metrics      MetricsCollector
	bcryptCost   int
}

// Option defines a functional option for configuring a Store.
type Option func(*Store) error

// WithTableNames sets the table names for books, users, and borrow records.
func WithTableNames(books string, users string, borrows string) Option {
	return func(s *Store) error {
		if books == "" || users == "" || borrows == "" {
			return ErrEmptyTableName
		}

		s.booksTable = books
		s.usersTable = users
		s.borrowsTable = borrows

		return nil
	}
}

// WithLogger sets the logger for the Store.
//
// Debug level: SQL queries with execution timing (development use)
// Warn level: non-critical issues like rollback or cleanup failures
// Error level: critical failures that cause operation failures.
func WithLogger(logger Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Store. The collector
// receives query and exec durations labeled by operation.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *Store) error {
		s.metrics = collector
		return nil
	}
}

// WithBcryptCost sets the bcrypt cost used when hashing user passwords.
func WithBcryptCost(cost int) Option {
	return func(s *Store) error {
		s.bcryptCost = cost
		return nil
	}
}

// NewStoreFromPGXPool creates a new Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (Store, error) {
	store := Store{
		db:           db,
		booksTable:   defaultBooksTableName,
		usersTable:   defaultUsersTableName,
		borrowsTable: defaultBorrowsTableName,
	}

	for _, option := range options {
		if err := option(&store); err != nil {
			return Store{}, err
		}
	}

	return store, nil
}

type txContextKey struct{}

// txFromContext returns the transaction started by WithinTx, if the context
// descends from one.
func txFromContext(ctx context.Context) (adapters.DBTx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(adapters.DBTx)
	return tx, ok
}

// querier is the subset of adapter operations shared by pools and open
// transactions.
type querier interface {
	Query(ctx context.Context, query string) (adapters.DBRows, error)
	Exec(ctx context.Context, query string) (adapters.DBResult, error)
}

// conn resolves the active querier: the surrounding transaction when the
// context carries one, the pool otherwise.
func (s Store) conn(ctx context.Context) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}

	return s.db
}

// WithinTx runs fn inside a single database transaction. Store methods
// called with the context passed to fn execute on that transaction, so row
// locks taken by SELECT ... FOR UPDATE hold until commit or rollback. A
// nested call joins the outer transaction instead of opening a second one.
func (s Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, alreadyInTx := txFromContext(ctx); alreadyInTx {
		return fn(ctx)
	}

	tx, beginErr := s.db.Begin(ctx)
	if beginErr != nil {
		s.logError(logMsgBeginTxFailed, logAttrError, beginErr.Error())
		s.incrementCounter(metricDBErrors, actionBeginTx)

		return errors.Join(circulation.ErrStore, beginErr)
	}

	if fnErr := fn(context.WithValue(ctx, txContextKey{}, tx)); fnErr != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			s.logWarn(logMsgRollbackTxFailed, logAttrError, rollbackErr.Error())
		}

		return fnErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		s.logError(logMsgCommitTxFailed, logAttrError, commitErr.Error())
		s.incrementCounter(metricDBErrors, actionCommitTx)

		return errors.Join(circulation.ErrStore, commitErr)
	}

	return nil
}

// executeQuery executes the SQL query on the active querier and returns
// rows with timing information.
func (s Store) executeQuery(ctx context.Context, sqlQuery string, action string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := s.conn(ctx).Query(ctx, sqlQuery)
	duration := time.Since(start)
	s.logQueryWithDuration(sqlQuery, action, duration)
	s.recordDuration(metricQueryDuration, duration, action)

	if queryErr != nil {
		s.logError(logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)
		s.incrementCounter(metricDBErrors, action)

		return nil, errors.Join(circulation.ErrStore, queryErr)
	}

	return rows, nil
}

// executeExec executes the SQL statement on the active querier and returns
// the number of affected rows.
func (s Store) executeExec(ctx context.Context, sqlQuery string, action string) (int64, error) {
	start := time.Now()
	result, execErr := s.conn(ctx).Exec(ctx, sqlQuery)
	duration := time.Since(start)
	s.logQueryWithDuration(sqlQuery, action, duration)
	s.recordDuration(metricExecDuration, duration, action)

	if execErr != nil {
		s.logError(logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)
		s.incrementCounter(metricDBErrors, action)

		return 0, errors.Join(circulation.ErrStore, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		s.logError(logMsgDBExecFailed, logAttrError, rowsAffectedErr.Error())
		s.incrementCounter(metricDBErrors, action)

		return 0, errors.Join(circulation.ErrStore, rowsAffectedErr)
	}

	return rowsAffected, nil
}

// closeRows safely closes database rows and logs any errors.
func (s Store) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

func (s Store) scanError(scanErr error) error {
	s.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
	return errors.Join(circulation.ErrStore, scanErr)
}

func (s Store) buildQueryError(buildErr error) error {
	s.logError(logMsgBuildQueryFailed, logAttrError, buildErr.Error())
	return errors.Join(circulation.ErrStore, buildErr)
}

// logQueryWithDuration logs SQL queries with execution time at debug level
// if the logger is configured.
func (s Store) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, s.durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (s Store) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s Store) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

func (s Store) recordDuration(metric string, duration time.Duration, action string) {
	if s.metrics != nil {
		s.metrics.RecordDuration(metric, duration, map[string]string{metricLabelAction: action})
	}
}

func (s Store) incrementCounter(metric string, action string) {
	if s.metrics != nil {
		s.metrics.IncrementCounter(metric, map[string]string{metricLabelAction: action})
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (s Store) durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

var (
	_ circulation.CatalogStore  = Store{}
	_ circulation.Ledger        = Store{}
	_ circulation.TxRunner      = Store{}
	_ circulation.UserDirectory = Store{}
)
