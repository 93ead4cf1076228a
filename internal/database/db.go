package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect selects the schema flavour used by Migrate.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// clientFoundRows=true -> UPDATE reports matched rows, not changed rows
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := ping(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens an embedded SQLite database (development and tests).
// A single connection keeps ":memory:" databases shared across callers.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := ping(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

const mysqlSchema = `CREATE TABLE IF NOT EXISTS bookings (
    id             VARCHAR(64)  NOT NULL PRIMARY KEY,
    room_id        VARCHAR(64)  NOT NULL,
    check_in       CHAR(10)     NOT NULL,
    check_out      CHAR(10)     NOT NULL,
    beds           INT          NOT NULL,
    status         VARCHAR(16)  NOT NULL,
    payment_status VARCHAR(32)  NOT NULL DEFAULT '',
    source         VARCHAR(32)  NOT NULL,
    external_ref   VARCHAR(128) NOT NULL DEFAULT '',
    hold_id        VARCHAR(64)  NOT NULL DEFAULT '',
    total_cents    BIGINT       NOT NULL DEFAULT 0,
    notes          TEXT,
    created_at     BIGINT       NOT NULL,
    updated_at     BIGINT       NOT NULL,
    INDEX idx_bookings_room_dates (room_id, check_in, check_out)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
    id             TEXT    NOT NULL PRIMARY KEY,
    room_id        TEXT    NOT NULL,
    check_in       TEXT    NOT NULL,
    check_out      TEXT    NOT NULL,
    beds           INTEGER NOT NULL,
    status         TEXT    NOT NULL,
    payment_status TEXT    NOT NULL DEFAULT '',
    source         TEXT    NOT NULL,
    external_ref   TEXT    NOT NULL DEFAULT '',
    hold_id        TEXT    NOT NULL DEFAULT '',
    total_cents    INTEGER NOT NULL DEFAULT 0,
    notes          TEXT,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_room_dates ON bookings (room_id, check_in, check_out)`,
}

// Migrate creates the bookings table when it does not exist.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var stmts []string
	switch dialect {
	case MySQL:
		stmts = []string{mysqlSchema}
	case SQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("unknown dialect %q", dialect)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", dialect, err)
		}
	}
	return nil
}
