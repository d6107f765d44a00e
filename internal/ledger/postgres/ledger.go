// Package postgres is a ledger backed by PostgreSQL. Each RunInTx is one
// SERIALIZABLE transaction; a serialization failure surfaces as
// sentinel.ErrConflict so the caller can resubmit.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"custodia/internal/ledger"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const defaultTxTimeout = 5 * time.Second

// Ledger implements ledger.Ledger on a *sql.DB.
type Ledger struct {
	db      *sql.DB
	timeout time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTimeout overrides the default transaction timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// New constructs a PostgreSQL-backed ledger.
func New(db *sql.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Migrate creates the ledger and outbox tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

// Deposit credits funds to an account outside of any operation. Used for
// genesis balances and tests.
func (l *Ledger) Deposit(ctx context.Context, account id.Address, amount uint64) error {
	return l.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.(*pgTx).credit(ctx, account, amount)
	})
}

func (l *Ledger) RunInTx(ctx context.Context, fn func(txCtx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	sqlTx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return wrapErr("begin ledger tx", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, sqlTx), &pgTx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return wrapErr("commit ledger tx", err)
	}
	return nil
}

// wrapErr annotates err and marks serialization failures and deadlocks as
// conflicts.
func wrapErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%s: %w: %w", op, sentinel.ErrConflict, err)
		case "22003":
			return fmt.Errorf("%s: %w: %w", op, ledger.ErrAmountOverflow, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toInt64(amount uint64) (int64, error) {
	if amount > ledger.MaxAmount {
		return 0, ledger.ErrAmountOverflow
	}
	return int64(amount), nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) KeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_records WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, wrapErr("check record", err)
	}
	return exists, nil
}

func (t *pgTx) ReadRecord(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM ledger_records WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, wrapErr("read record", err)
	}
	return value, nil
}

func (t *pgTx) WriteRecord(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO ledger_records (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := t.tx.ExecContext(ctx, query, key, value); err != nil {
		return wrapErr("write record", err)
	}
	return nil
}

func (t *pgTx) MintUnit(ctx context.Context, creator id.Address, params ledger.UnitParams) (id.AssetID, error) {
	total, err := toInt64(params.Total)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, fmt.Errorf("mint %q: total must be positive", params.UnitName)
	}
	var assetID int64
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO ledger_assets (creator, total, decimals, name, unit_name, url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, creator.String(), total, int64(params.Decimals), params.Name, params.UnitName, params.URL).Scan(&assetID)
	if err != nil {
		return 0, wrapErr("mint unit", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO ledger_holdings (address, asset_id, amount) VALUES ($1, $2, $3)
	`, creator.String(), assetID, total)
	if err != nil {
		return 0, wrapErr("credit minted unit", err)
	}
	return id.AssetID(assetID), nil
}

func (t *pgTx) TransferUnit(ctx context.Context, asset id.AssetID, from, to id.Address, amount uint64) error {
	n, err := toInt64(amount)
	if err != nil {
		return err
	}
	if err := t.requireAsset(ctx, asset); err != nil {
		return err
	}
	toRegistered, err := t.IsRegisteredFor(ctx, to, asset)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE ledger_holdings SET amount = amount - $3
		WHERE address = $1 AND asset_id = $2 AND amount >= $3
	`, from.String(), int64(asset), n)
	if err != nil {
		return wrapErr("debit unit", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ledger.ErrInsufficientUnits
	}
	if !toRegistered {
		return ledger.ErrNotRegistered
	}
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE ledger_holdings SET amount = amount + $3
		WHERE address = $1 AND asset_id = $2
	`, to.String(), int64(asset), n); err != nil {
		return wrapErr("credit unit", err)
	}
	return nil
}

func (t *pgTx) BalanceOf(ctx context.Context, account id.Address, asset id.AssetID) (uint64, error) {
	var amount int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT amount FROM ledger_holdings WHERE address = $1 AND asset_id = $2
	`, account.String(), int64(asset)).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, wrapErr("read holding", err)
	}
	return uint64(amount), nil
}

func (t *pgTx) IsRegisteredFor(ctx context.Context, account id.Address, asset id.AssetID) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM ledger_holdings WHERE address = $1 AND asset_id = $2)
	`, account.String(), int64(asset)).Scan(&exists)
	if err != nil {
		return false, wrapErr("check registration", err)
	}
	return exists, nil
}

func (t *pgTx) Register(ctx context.Context, account id.Address, asset id.AssetID) error {
	if err := t.requireAsset(ctx, asset); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_holdings (address, asset_id, amount) VALUES ($1, $2, 0)
		ON CONFLICT (address, asset_id) DO NOTHING
	`, account.String(), int64(asset))
	if err != nil {
		return wrapErr("register asset", err)
	}
	return nil
}

func (t *pgTx) SendPayment(ctx context.Context, p ledger.Payment) error {
	amount, err := toInt64(p.Amount)
	if err != nil {
		return err
	}
	for _, addr := range []id.Address{p.Sender, p.Recipient} {
		closed, err := t.isClosed(ctx, addr)
		if err != nil {
			return err
		}
		if closed {
			return ledger.ErrAccountClosed
		}
	}
	if err := t.debit(ctx, p.Sender, amount); err != nil {
		return err
	}
	return t.credit(ctx, p.Recipient, p.Amount)
}

func (t *pgTx) FundsOf(ctx context.Context, account id.Address) (uint64, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx, `SELECT balance FROM ledger_accounts WHERE address = $1`, account.String()).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, wrapErr("read balance", err)
	}
	return uint64(balance), nil
}

func (t *pgTx) CloseAccount(ctx context.Context, account, closeTo id.Address) (uint64, error) {
	if account == closeTo {
		return 0, fmt.Errorf("close %s to itself: %w", account, sentinel.ErrInvalidState)
	}
	closed, err := t.isClosed(ctx, account)
	if err != nil {
		return 0, err
	}
	if closed {
		return 0, ledger.ErrAccountClosed
	}
	swept, err := t.FundsOf(ctx, account)
	if err != nil {
		return 0, err
	}
	if err := t.credit(ctx, closeTo, swept); err != nil {
		return 0, err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO ledger_accounts (address, balance, closed) VALUES ($1, 0, TRUE)
		ON CONFLICT (address) DO UPDATE SET balance = 0, closed = TRUE
	`, account.String())
	if err != nil {
		return 0, wrapErr("close account", err)
	}
	return swept, nil
}

func (t *pgTx) Account(ctx context.Context, account id.Address) (*ledger.Account, error) {
	out := &ledger.Account{Address: account, Holdings: []ledger.Holding{}}
	var balance int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT balance, closed FROM ledger_accounts WHERE address = $1
	`, account.String()).Scan(&balance, &out.Closed)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, wrapErr("read account", err)
	}
	out.Balance = uint64(balance)

	rows, err := t.tx.QueryContext(ctx, `
		SELECT asset_id, amount FROM ledger_holdings WHERE address = $1 ORDER BY asset_id
	`, account.String())
	if err != nil {
		return nil, wrapErr("read holdings", err)
	}
	defer rows.Close()
	for rows.Next() {
		var assetID, amount int64
		if err := rows.Scan(&assetID, &amount); err != nil {
			return nil, wrapErr("scan holding", err)
		}
		out.Holdings = append(out.Holdings, ledger.Holding{AssetID: id.AssetID(assetID), Amount: uint64(amount)})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate holdings", err)
	}
	return out, nil
}

func (t *pgTx) requireAsset(ctx context.Context, asset id.AssetID) error {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_assets WHERE id = $1)`, int64(asset)).Scan(&exists)
	if err != nil {
		return wrapErr("read asset", err)
	}
	if !exists {
		return fmt.Errorf("asset %s: %w", asset, sentinel.ErrNotFound)
	}
	return nil
}

func (t *pgTx) isClosed(ctx context.Context, account id.Address) (bool, error) {
	var closed bool
	err := t.tx.QueryRowContext(ctx, `SELECT closed FROM ledger_accounts WHERE address = $1`, account.String()).Scan(&closed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, wrapErr("read account state", err)
	}
	return closed, nil
}

func (t *pgTx) debit(ctx context.Context, account id.Address, amount int64) error {
	if amount == 0 {
		return nil
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE ledger_accounts SET balance = balance - $2
		WHERE address = $1 AND balance >= $2
	`, account.String(), amount)
	if err != nil {
		return wrapErr("debit account", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ledger.ErrInsufficientFunds
	}
	return nil
}

func (t *pgTx) credit(ctx context.Context, account id.Address, amount uint64) error {
	n, err := toInt64(amount)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO ledger_accounts (address, balance) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET balance = ledger_accounts.balance + EXCLUDED.balance
	`, account.String(), n)
	if err != nil {
		return wrapErr("credit account", err)
	}
	return nil
}
