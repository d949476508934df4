package storage

import (
	"context"
	"fmt"

	"paygate/internal/domain/auditlog"
	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is a temporary, tx-scoped set of repos for atomic units of work.
type Tx struct {
	Orders  orders.Store
	Refunds refunds.Store
	Audit   auditlog.Store
}

// Transactor runs fn atomically: every write made through tx commits
// together or not at all.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *Tx) error) error
}

type Container struct {
	pool     *pgxpool.Pool
	Orders   orders.Store
	Refunds  refunds.Store
	Audit    auditlog.Store
	Channels *channels.Repository

	// auditSink replaces the tx-scoped postgres audit repo when set.
	auditSink auditlog.Store
}

var _ Transactor = (*Container)(nil)

func NewContainer(db *pgxpool.Pool) *Container {
	return &Container{
		pool:     db,
		Orders:   orders.NewRepository(db),
		Refunds:  refunds.NewRepository(db),
		Audit:    auditlog.NewRepository(db),
		Channels: channels.NewRepository(db),
	}
}

// UseAuditSink routes audit writes to s (e.g. DynamoDB) instead of the
// payment_logs table. Those writes are not part of the transaction.
func (c *Container) UseAuditSink(s auditlog.Store) {
	c.auditSink = s
	c.Audit = s
}

// WithTx runs a payment unit-of-work atomically.
func (c *Container) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	if c.pool == nil {
		return fmt.Errorf("storage container pool is nil")
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx) // safe even if already committed
	}()

	s := &Tx{
		Orders:  orders.NewRepository(tx),
		Refunds: refunds.NewRepository(tx),
		Audit:   auditlog.NewTxRepository(tx),
	}
	if c.auditSink != nil {
		s.Audit = c.auditSink
	}

	if err := fn(s); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
