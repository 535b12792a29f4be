package repo

import (
	"context"
	"fmt"
	"time"

	"slaledger/internal/core/stages"
	"slaledger/internal/core/watermark"
	"slaledger/internal/modkit/repokit"
	"slaledger/internal/services/slarun/domain"
)

// TxMirror upserts every chunk of a run inside one transaction so a
// configuration's mirror never holds half a run
type TxMirror struct {
	db     repokit.TxRunner
	binder repokit.Binder[domain.StageMirror]
}

var _ domain.StageMirror = (*TxMirror)(nil)

// NewTxMirror wraps db; statementTimeout <= 0 leaves the server default
func NewTxMirror(db repokit.TxRunner, statementTimeout time.Duration) *TxMirror {
	if statementTimeout > 0 {
		db = repokit.WithBeginHooks(db, StatementTimeout(statementTimeout))
	}
	return &TxMirror{db: db, binder: NewPG()}
}

// StatementTimeout bounds every statement of the transaction
func StatementTimeout(d time.Duration) repokit.BeginHook {
	stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", d.Milliseconds())
	return func(ctx context.Context, q repokit.Queryer) error {
		_, err := q.Exec(ctx, stmt)
		return err
	}
}

// UpsertStages implements domain.StageMirror
func (m *TxMirror) UpsertStages(ctx context.Context, configID, runID string, rows []stages.Stage) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n := 0
	err := repokit.WithTx(ctx, m.db, func(q repokit.Queryer) error {
		var err error
		n, err = repokit.MustBind(m.binder, q).UpsertStages(ctx, configID, runID, rows)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Watermarks implements domain.StageMirror outside a transaction
func (m *TxMirror) Watermarks(ctx context.Context, configID string) (watermark.Set, error) {
	return repokit.MustBind(m.binder, m.db).Watermarks(ctx, configID)
}
