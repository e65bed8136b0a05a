package source

import (
	"context"
	"database/sql"
	"math/rand"
	"strconv"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/ntchinda/posync/internal/errs"
	"github.com/ntchinda/posync/internal/utilx"
)

// Retryable SQL Server error numbers: lock request timeout, deadlock
// victim, and the connection-loss codes the driver surfaces when the
// network drops mid-statement.
const (
	errLockTimeout   = 1222
	errDeadlock      = 1205
	errConnBroken    = 64
	errConnForcibly  = 10054
	errLoginTimeout  = 18456
)

func canRetry(err error) bool {
	var merr mssql.Error
	if asMssqlError(err, &merr) {
		switch merr.Number {
		case errLockTimeout, errDeadlock, errConnBroken, errConnForcibly, errLoginTimeout:
			return true
		default:
			return false
		}
	}
	return false
}

// asMssqlError mirrors errors.As without importing errors twice in the
// few call sites that need it; kept local since mssql.Error doesn't wrap.
func asMssqlError(err error, target *mssql.Error) bool {
	if e, ok := err.(mssql.Error); ok {
		*target = e
		return true
	}
	return false
}

func standardizeTrx(ctx context.Context, trx *sql.Tx, dbc *DBConfig) error {
	if _, err := trx.ExecContext(ctx, "SET NOCOUNT ON"); err != nil {
		return err
	}
	if _, err := trx.ExecContext(ctx, "SET ARITHABORT ON"); err != nil {
		return err
	}
	_, err := trx.ExecContext(ctx, "SET LOCK_TIMEOUT "+itoaMillis(dbc.LockTimeout))
	return err
}

func itoaMillis(d time.Duration) string {
	ms := d.Milliseconds()
	if ms <= 0 {
		ms = 30000
	}
	return strconv.FormatInt(ms, 10)
}

// backoff sleeps a short jittered interval before the next retry attempt,
// the same shape as a MySQL-oriented connector's own backoff helper.
func backoff(attempt int) {
	randFactor := attempt * rand.Intn(10) * int(time.Millisecond)
	time.Sleep(time.Duration(randFactor))
}

// RetryableExec runs stmt (with args) inside its own transaction, retrying
// on transient source errors up to dbc.MaxRetries times. It returns the
// number of rows affected on success.
func RetryableExec(ctx context.Context, db *sql.DB, dbc *DBConfig, stmt string, args ...any) (int64, error) {
	if dbc == nil {
		dbc = NewDBConfig()
	}
	var err error
	var rows int64
RETRYLOOP:
	for attempt := 0; attempt < dbc.MaxRetries; attempt++ {
		var trx *sql.Tx
		trx, err = db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			backoff(attempt)
			continue RETRYLOOP
		}
		if err = standardizeTrx(ctx, trx, dbc); err != nil {
			utilx.ErrInErr(trx.Rollback())
			if canRetry(err) {
				backoff(attempt)
				continue RETRYLOOP
			}
			return 0, &errs.TransientError{Scope: "source.standardize", Err: err}
		}
		var res sql.Result
		if res, err = trx.ExecContext(ctx, stmt, args...); err != nil {
			utilx.ErrInErr(trx.Rollback())
			if canRetry(err) {
				backoff(attempt)
				continue RETRYLOOP
			}
			return 0, err
		}
		if err = trx.Commit(); err != nil {
			utilx.ErrInErr(trx.Rollback())
			backoff(attempt)
			continue RETRYLOOP
		}
		rows, _ = res.RowsAffected()
		return rows, nil
	}
	return rows, &errs.TransientError{Scope: "source.exec", Err: err}
}
