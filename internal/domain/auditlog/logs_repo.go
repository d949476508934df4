package auditlog

import (
	"context"
	"errors"
	"fmt"

	"paygate/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct {
	q    dbx.Querier
	inTx bool
}

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

// NewTxRepository wraps each insert in a savepoint so a failed audit write
// never aborts the surrounding transaction.
func NewTxRepository(tx dbx.Querier) *Repository { return &Repository{q: tx, inTx: true} }

func (r *Repository) InsertIfAbsent(ctx context.Context, e *Entry) (bool, error) {
	if !r.inTx {
		return r.insert(ctx, e)
	}

	if _, err := r.q.Exec(ctx, `SAVEPOINT payment_log`); err != nil {
		return false, fmt.Errorf("savepoint payment_log: %w", err)
	}
	inserted, err := r.insert(ctx, e)
	if err != nil {
		_, _ = r.q.Exec(ctx, `ROLLBACK TO SAVEPOINT payment_log`)
		return false, err
	}
	_, _ = r.q.Exec(ctx, `RELEASE SAVEPOINT payment_log`)
	return inserted, nil
}

func (r *Repository) insert(ctx context.Context, e *Entry) (bool, error) {
	err := r.q.QueryRow(ctx, `
INSERT INTO payment_logs (event, logger_id, logger_type, context)
VALUES ($1, $2, $3, $4)
ON CONFLICT ON CONSTRAINT payment_logs_logger_uniq DO NOTHING
RETURNING id, created_at`, int(e.Event), e.LoggerID, e.LoggerType, []byte(e.Context)).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert payment_log: %w", err)
	}
	return true, nil
}

func (r *Repository) Get(ctx context.Context, event Event, subject Subject) (*Entry, error) {
	var e Entry
	var ev int
	var raw []byte
	err := r.q.QueryRow(ctx, `
SELECT id, event, logger_id, logger_type, context, created_at
FROM payment_logs
WHERE event = $1 AND logger_id = $2 AND logger_type = $3`, int(event), subject.ID, subject.Type).
		Scan(&e.ID, &ev, &e.LoggerID, &e.LoggerType, &raw, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payment_log: %w", err)
	}
	e.Event = Event(ev)
	e.Context = raw
	return &e, nil
}
