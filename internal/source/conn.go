// Package source connects to the remote SQL Server database, introspects
// its schema, and runs the parameterized selects and batched tracking
// updates the rest of posync's pipeline needs.
package source

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/ntchinda/posync/internal/model"
	"github.com/ntchinda/posync/internal/utilx"
)

const (
	maxConnLifetime = time.Minute * 3
	maxIdleConns    = 5
)

// DBConfig carries the session and retry tuning posync applies to every
// connection it opens against the source, mirroring the lock-timeout and
// retry knobs a MySQL-oriented connector would carry for its own engine.
type DBConfig struct {
	LockTimeout    time.Duration
	MaxOpenConns   int
	MaxRetries     int
	ConnectTimeout time.Duration
}

// NewDBConfig returns the defaults posync uses absent an override.
func NewDBConfig() *DBConfig {
	return &DBConfig{
		LockTimeout:    30 * time.Second,
		MaxOpenConns:   10,
		MaxRetries:     5,
		ConnectTimeout: 30 * time.Second,
	}
}

// buildDSN builds a sqlserver:// DSN from a SourceConfig. Built through
// net/url rather than string concatenation so that special characters in
// the password never corrupt the connection string.
//
// When cfg.ODBCSource is set it names the server in place of the
// host/port pair, matching a site whose DBA has registered it as a named
// ODBC data source; otherwise the full host/port form is used. Either
// way, credentials are only attached when both a username and password
// are configured — absent either, the connection relies on trusted
// (Windows-integrated) authentication instead.
func buildDSN(cfg model.SourceConfig, dbc *DBConfig) string {
	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("connection timeout", strconv.Itoa(int(dbc.ConnectTimeout.Seconds())))
	query.Add("dial timeout", strconv.Itoa(int(dbc.ConnectTimeout.Seconds())))
	if cfg.Schema != "" {
		query.Add("schema", cfg.Schema)
	}

	host := fmt.Sprintf("%s:%d", utilx.StripPort(cfg.Host), cfg.Port)
	if cfg.ODBCSource != "" {
		host = cfg.ODBCSource
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     host,
		RawQuery: query.Encode(),
	}
	if cfg.Username != "" && cfg.Password != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u.String()
}

// Open opens a connection pool against the configured source and pings it
// to make sure it is reachable before returning.
func Open(cfg model.SourceConfig, dbc *DBConfig) (db *sql.DB, err error) {
	if dbc == nil {
		dbc = NewDBConfig()
	}
	dsn := buildDSN(cfg, dbc)
	db, err = sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open source connection: %w", err)
	}
	defer func() {
		if err == nil {
			// There are multiple ways a pool can end up open; always set
			// the connection limits here so every code path agrees.
			db.SetMaxOpenConns(dbc.MaxOpenConns)
			db.SetConnMaxLifetime(maxConnLifetime)
			db.SetMaxIdleConns(maxIdleConns)
		}
	}()
	if pingErr := db.Ping(); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("source connection ping failed: %w", pingErr)
	}
	return db, nil
}
