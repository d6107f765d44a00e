// Package memory is an in-process ledger. Transactions are serialized by a
// single mutex; every mutation records an undo step so a failed callback
// leaves no trace.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"custodia/internal/ledger"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

// defaultTxTimeout is the maximum duration for a ledger transaction.
const defaultTxTimeout = 5 * time.Second

type state struct {
	records     map[string][]byte
	balances    map[id.Address]uint64
	closed      map[id.Address]bool
	assets      map[id.AssetID]ledger.Asset
	holdings    map[id.Address]map[id.AssetID]uint64
	nextAssetID id.AssetID
}

// Ledger is an in-memory ledger.Ledger.
type Ledger struct {
	mu      sync.Mutex
	st      state
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

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		st: state{
			records:     make(map[string][]byte),
			balances:    make(map[id.Address]uint64),
			closed:      make(map[id.Address]bool),
			assets:      make(map[id.AssetID]ledger.Asset),
			holdings:    make(map[id.Address]map[id.AssetID]uint64),
			nextAssetID: 1,
		},
		timeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Deposit credits funds to an account outside of any operation. Used for
// genesis balances and tests.
func (l *Ledger) Deposit(_ context.Context, account id.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.closed[account] {
		return ledger.ErrAccountClosed
	}
	balance, err := ledger.AddAmount(l.st.balances[account], amount)
	if err != nil {
		return fmt.Errorf("deposit to %s: %w", account, err)
	}
	l.st.balances[account] = balance
	return nil
}

// RunInTx executes fn under the ledger lock. Effects are undone if fn returns
// an error or panics. A context cancelled before fn starts aborts the
// transaction; once fn returns nil the effects stand.
func (l *Ledger) RunInTx(ctx context.Context, fn func(txCtx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx := &memTx{st: &l.st}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	// Committed. Audit events already sit in the memory store, which a
	// rollback here could not reach.
	return nil
}

type memTx struct {
	st   *state
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) KeyExists(_ context.Context, key string) (bool, error) {
	_, ok := t.st.records[key]
	return ok, nil
}

func (t *memTx) ReadRecord(_ context.Context, key string) ([]byte, error) {
	v, ok := t.st.records[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (t *memTx) WriteRecord(_ context.Context, key string, value []byte) error {
	prev, existed := t.st.records[key]
	t.st.records[key] = append([]byte(nil), value...)
	t.undo = append(t.undo, func() {
		if existed {
			t.st.records[key] = prev
		} else {
			delete(t.st.records, key)
		}
	})
	return nil
}

func (t *memTx) MintUnit(_ context.Context, creator id.Address, params ledger.UnitParams) (id.AssetID, error) {
	if params.Total == 0 {
		return 0, fmt.Errorf("mint %q: total must be positive", params.UnitName)
	}
	assetID := t.st.nextAssetID
	t.st.nextAssetID++
	t.st.assets[assetID] = ledger.Asset{ID: assetID, Creator: creator, UnitParams: params}
	t.undo = append(t.undo, func() {
		delete(t.st.assets, assetID)
		t.st.nextAssetID = assetID
	})
	t.setHolding(creator, assetID, params.Total)
	return assetID, nil
}

func (t *memTx) TransferUnit(_ context.Context, asset id.AssetID, from, to id.Address, amount uint64) error {
	if _, ok := t.st.assets[asset]; !ok {
		return fmt.Errorf("asset %s: %w", asset, sentinel.ErrNotFound)
	}
	fromAmount, fromRegistered := t.holding(from, asset)
	if !fromRegistered || fromAmount < amount {
		return ledger.ErrInsufficientUnits
	}
	toAmount, toRegistered := t.holding(to, asset)
	if !toRegistered {
		return ledger.ErrNotRegistered
	}
	if from == to {
		return nil
	}
	t.setHolding(from, asset, fromAmount-amount)
	t.setHolding(to, asset, toAmount+amount)
	return nil
}

func (t *memTx) BalanceOf(_ context.Context, account id.Address, asset id.AssetID) (uint64, error) {
	amount, _ := t.holding(account, asset)
	return amount, nil
}

func (t *memTx) IsRegisteredFor(_ context.Context, account id.Address, asset id.AssetID) (bool, error) {
	_, ok := t.holding(account, asset)
	return ok, nil
}

func (t *memTx) Register(_ context.Context, account id.Address, asset id.AssetID) error {
	if _, ok := t.st.assets[asset]; !ok {
		return fmt.Errorf("asset %s: %w", asset, sentinel.ErrNotFound)
	}
	if _, ok := t.holding(account, asset); ok {
		return nil
	}
	t.setHolding(account, asset, 0)
	return nil
}

func (t *memTx) SendPayment(_ context.Context, p ledger.Payment) error {
	if t.st.closed[p.Sender] || t.st.closed[p.Recipient] {
		return ledger.ErrAccountClosed
	}
	if t.st.balances[p.Sender] < p.Amount {
		return ledger.ErrInsufficientFunds
	}
	if p.Sender == p.Recipient || p.Amount == 0 {
		return nil
	}
	credited, err := ledger.AddAmount(t.st.balances[p.Recipient], p.Amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", p.Recipient, err)
	}
	t.setBalance(p.Sender, t.st.balances[p.Sender]-p.Amount)
	t.setBalance(p.Recipient, credited)
	return nil
}

func (t *memTx) FundsOf(_ context.Context, account id.Address) (uint64, error) {
	return t.st.balances[account], nil
}

func (t *memTx) CloseAccount(_ context.Context, account, closeTo id.Address) (uint64, error) {
	if t.st.closed[account] {
		return 0, ledger.ErrAccountClosed
	}
	if account == closeTo {
		return 0, fmt.Errorf("close %s to itself: %w", account, sentinel.ErrInvalidState)
	}
	amount := t.st.balances[account]
	credited, err := ledger.AddAmount(t.st.balances[closeTo], amount)
	if err != nil {
		return 0, fmt.Errorf("credit %s: %w", closeTo, err)
	}
	t.setBalance(closeTo, credited)
	t.setBalance(account, 0)
	t.st.closed[account] = true
	t.undo = append(t.undo, func() { delete(t.st.closed, account) })
	return amount, nil
}

func (t *memTx) Account(_ context.Context, account id.Address) (*ledger.Account, error) {
	out := &ledger.Account{
		Address:  account,
		Balance:  t.st.balances[account],
		Closed:   t.st.closed[account],
		Holdings: []ledger.Holding{},
	}
	for asset, amount := range t.st.holdings[account] {
		out.Holdings = append(out.Holdings, ledger.Holding{AssetID: asset, Amount: amount})
	}
	sort.Slice(out.Holdings, func(i, j int) bool { return out.Holdings[i].AssetID < out.Holdings[j].AssetID })
	return out, nil
}

func (t *memTx) holding(account id.Address, asset id.AssetID) (uint64, bool) {
	byAsset, ok := t.st.holdings[account]
	if !ok {
		return 0, false
	}
	amount, ok := byAsset[asset]
	return amount, ok
}

func (t *memTx) setHolding(account id.Address, asset id.AssetID, amount uint64) {
	prev, existed := t.holding(account, asset)
	byAsset, ok := t.st.holdings[account]
	if !ok {
		byAsset = make(map[id.AssetID]uint64)
		t.st.holdings[account] = byAsset
	}
	byAsset[asset] = amount
	t.undo = append(t.undo, func() {
		if existed {
			t.st.holdings[account][asset] = prev
			return
		}
		delete(t.st.holdings[account], asset)
		if len(t.st.holdings[account]) == 0 {
			delete(t.st.holdings, account)
		}
	})
}

func (t *memTx) setBalance(account id.Address, amount uint64) {
	prev, existed := t.st.balances[account]
	t.st.balances[account] = amount
	t.undo = append(t.undo, func() {
		if existed {
			t.st.balances[account] = prev
		} else {
			delete(t.st.balances, account)
		}
	})
}
