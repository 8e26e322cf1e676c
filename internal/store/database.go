package store

import (
	"context"
	"embed"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// Database is the Postgres connection records are stored in.
type Database struct {
	conn   *sqlx.DB
	dsn    string
	logger *logging.Logger
}

// NewDatabase opens and pings a Postgres connection pool.
func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, crerr.Wrap(err, "open database")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, crerr.Wrap(err, "ping database")
	}

	return &Database{conn: db, dsn: dsn, logger: logging.Component("store")}, nil
}

// NewFromDB wraps an existing handle, for tests.
func NewFromDB(db *sqlx.DB) *Database {
	return &Database{conn: db, logger: logging.Component("store")}
}

func (db *Database) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// DB returns the underlying handle for repositories.
func (db *Database) DB() *sqlx.DB {
	return db.conn
}

// HealthCheck pings the database with a short deadline.
func (db *Database) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// migrator opens its own connection: closing a migrator closes the database
// handle it runs on.
func (db *Database) migrator() (*migrate.Migrate, error) {
	if db.dsn == "" {
		return nil, crerr.New("migrations need a database opened from a DSN")
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, crerr.Wrap(err, "open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, db.dsn)
	if err != nil {
		return nil, crerr.Wrap(err, "create migrator")
	}
	return m, nil
}

func (db *Database) closeMigrator(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		db.logger.Warn("close migration source", "error", srcErr)
	}
	if dbErr != nil {
		db.logger.Warn("close migration db", "error", dbErr)
	}
}

// Migrate applies every pending migration. Running it on an up to date
// schema is a no-op.
func (db *Database) Migrate() error {
	m, err := db.migrator()
	if err != nil {
		return err
	}
	defer db.closeMigrator(m)
	if err := m.Up(); err != nil && !crerr.Is(err, migrate.ErrNoChange) {
		return crerr.Wrap(err, "apply migrations")
	}
	version, dirty, err := m.Version()
	if err != nil && !crerr.Is(err, migrate.ErrNilVersion) {
		return crerr.Wrap(err, "read migration version")
	}
	db.logger.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

// MigrateDown rolls back steps migrations.
func (db *Database) MigrateDown(steps int) error {
	if steps <= 0 {
		return crerr.Newf("down steps must be > 0, got %d", steps)
	}
	m, err := db.migrator()
	if err != nil {
		return err
	}
	defer db.closeMigrator(m)
	if err := m.Steps(-steps); err != nil && !crerr.Is(err, migrate.ErrNoChange) {
		return crerr.Wrapf(err, "roll back %d migrations", steps)
	}
	return nil
}

// MigrationVersion reports the applied schema version; 0 when none.
func (db *Database) MigrationVersion() (uint, bool, error) {
	m, err := db.migrator()
	if err != nil {
		return 0, false, err
	}
	defer db.closeMigrator(m)
	version, dirty, err := m.Version()
	if crerr.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, crerr.Wrap(err, "read migration version")
	}
	return version, dirty, nil
}
