// Package ledger is the execution environment the registry and escrow state
// machines run against: an atomic transaction boundary over a key-value record
// store, fungible balances, and non-fungible units.
//
// Every mutation happens inside Ledger.RunInTx. If the callback returns an
// error, no effect of the transaction is visible afterwards.
package ledger

import (
	"context"
	"errors"
	"math"

	id "custodia/pkg/domain"
)

// Ledger provides the transactional boundary. Implementations wrap a database
// transaction or, in memory, a lock plus an undo journal.
//
// The callback receives a context derived from ctx. Stores that share the
// ledger's backing database (the audit outbox) must use that context so their
// writes join the same commit.
type Ledger interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context, tx Tx) error) error
}

// Tx exposes the primitives available inside a transaction.
type Tx interface {
	// Record store. Keys are namespaced by the caller.
	KeyExists(ctx context.Context, key string) (bool, error)
	// ReadRecord returns sentinel.ErrNotFound when the key is absent.
	ReadRecord(ctx context.Context, key string) ([]byte, error)
	WriteRecord(ctx context.Context, key string, value []byte) error

	// Non-fungible units. MintUnit credits the full supply to creator, which
	// is registered for the new asset automatically.
	MintUnit(ctx context.Context, creator id.Address, params UnitParams) (id.AssetID, error)
	TransferUnit(ctx context.Context, asset id.AssetID, from, to id.Address, amount uint64) error
	BalanceOf(ctx context.Context, account id.Address, asset id.AssetID) (uint64, error)
	IsRegisteredFor(ctx context.Context, account id.Address, asset id.AssetID) (bool, error)
	Register(ctx context.Context, account id.Address, asset id.AssetID) error

	// Fungible balances.
	SendPayment(ctx context.Context, p Payment) error
	FundsOf(ctx context.Context, account id.Address) (uint64, error)
	// CloseAccount moves the entire balance of account to closeTo and closes
	// the account. It returns the amount moved. closeTo may itself be closed:
	// a close-out settles existing funds and is not a new payment.
	CloseAccount(ctx context.Context, account, closeTo id.Address) (uint64, error)
	Account(ctx context.Context, account id.Address) (*Account, error)
}

// Ledger sentinels describe environment-level refusals. Services translate
// them with DomainError.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotRegistered     = errors.New("account not registered for asset")
	ErrInsufficientUnits = errors.New("insufficient asset units")
	ErrAccountClosed     = errors.New("account closed")
	ErrAmountOverflow    = errors.New("amount exceeds the ledger maximum")
)

// MaxAmount bounds every balance and payment. Both backends store amounts
// as signed 64-bit integers.
const MaxAmount uint64 = math.MaxInt64

// AddAmount returns balance+amount, or ErrAmountOverflow past MaxAmount.
func AddAmount(balance, amount uint64) (uint64, error) {
	if amount > MaxAmount || balance > MaxAmount-amount {
		return 0, ErrAmountOverflow
	}
	return balance + amount, nil
}
