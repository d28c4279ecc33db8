package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "enrollsync/pkg/domain-errors"
	txcontext "enrollsync/pkg/platform/tx"
)

const defaultDirectoryTxTimeout = 5 * time.Second

// directoryPostgresTx runs provisioning writes that must land together
// (identity + profile) in one target-database transaction. The stores pick
// the transaction up from context through their execers.
type directoryPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newDirectoryPostgresTx(db *sql.DB) *directoryPostgresTx {
	return &directoryPostgresTx{db: db}
}

func (t *directoryPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultDirectoryTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	return sqlTx.Commit()
}
