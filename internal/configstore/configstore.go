// Package configstore reads posync's local configuration out of an
// embedded SQLite database: the four read-only tables a separate
// (out-of-scope) management tool maintains — database_configuration,
// email_configs, site_configs, and configurations_folders.
package configstore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ntchinda/posync/internal/errs"
	"github.com/ntchinda/posync/internal/model"
)

// Store reads posync's local configuration tables. It never writes to
// them; the management UI that owns their schema is out of this
// program's scope.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite file at path and enables the pragmas a
// single-writer embedded store expects.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &errs.ConfigError{Err: fmt.Errorf("opening config store: %w", err)}
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, &errs.ConfigError{Err: fmt.Errorf("setting %s: %w", pragma, err)}
		}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// SourceConfig reads the single row of database_configuration.
func (s *Store) SourceConfig() (model.SourceConfig, error) {
	row := s.db.QueryRow(`
		SELECT odbc_source, host, port, database_name, schema_name, username, password
		FROM database_configuration LIMIT 1`)

	var cfg model.SourceConfig
	if err := row.Scan(&cfg.ODBCSource, &cfg.Host, &cfg.Port, &cfg.Database, &cfg.Schema, &cfg.Username, &cfg.Password); err != nil {
		return model.SourceConfig{}, &errs.ConfigError{Err: fmt.Errorf("reading database_configuration: %w", err)}
	}
	return cfg, nil
}

// EmailTransport reads the single row of email_configs.
func (s *Store) EmailTransport() (model.EmailTransport, error) {
	row := s.db.QueryRow(`
		SELECT smtp_server, smtp_port, smtp_username, smtp_password, to_email, starttls
		FROM email_configs LIMIT 1`)

	var t model.EmailTransport
	if err := row.Scan(&t.Host, &t.Port, &t.Username, &t.Password, &t.DefaultReceiver, &t.StartTLS); err != nil {
		return model.EmailTransport{}, &errs.ConfigError{Err: fmt.Errorf("reading email_configs: %w", err)}
	}
	t.From = t.Username
	return t, nil
}

// SiteBindings reads every row of site_configs.
func (s *Store) SiteBindings() ([]model.SiteBinding, error) {
	rows, err := s.db.Query(`SELECT site_code, email FROM site_configs`)
	if err != nil {
		return nil, &errs.ConfigError{Err: fmt.Errorf("reading site_configs: %w", err)}
	}
	defer rows.Close()

	var bindings []model.SiteBinding
	for rows.Next() {
		var b model.SiteBinding
		if err := rows.Scan(&b.Site, &b.Email); err != nil {
			return nil, &errs.ConfigError{Err: fmt.Errorf("scanning site_configs row: %w", err)}
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.ConfigError{Err: err}
	}
	return bindings, nil
}

// Folders holds the local directories posync reads from/writes to,
// sourced from the single row of configurations_folders.
type Folders struct {
	StagingDir string
	DeltaDir   string
	LogDir     string
}

// Folders reads the single row of configurations_folders.
func (s *Store) Folders() (Folders, error) {
	row := s.db.QueryRow(`SELECT staging_dir, delta_dir, log_dir FROM configurations_folders LIMIT 1`)

	var f Folders
	if err := row.Scan(&f.StagingDir, &f.DeltaDir, &f.LogDir); err != nil {
		return Folders{}, &errs.ConfigError{Err: fmt.Errorf("reading configurations_folders: %w", err)}
	}
	return f, nil
}
