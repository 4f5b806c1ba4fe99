package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWallet(t *testing.T, s *MemoryStore, currency string) Wallet {
	t.Helper()
	w, err := s.GetOrCreateWallet(context.Background(), uuid.New(), currency)
	require.NoError(t, err)
	return w
}

func TestGetOrCreateWalletIsIdempotentPerOwnerAndCurrency(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	owner := uuid.New()

	first, err := s.GetOrCreateWallet(ctx, owner, "VND")
	require.NoError(t, err)
	assert.True(t, first.Balance.IsZero())

	again, err := s.GetOrCreateWallet(ctx, owner, "VND")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := s.GetOrCreateWallet(ctx, owner, "USD")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestWalletByOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	owner := uuid.New()

	created, err := s.GetOrCreateWallet(ctx, owner, "VND")
	require.NoError(t, err)

	found, err := s.WalletByOwner(ctx, owner, "VND")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	// Lookup never provisions.
	_, err = s.WalletByOwner(ctx, owner, "USD")
	assert.ErrorIs(t, err, ErrWalletNotFound)

	_, err = s.WalletByOwner(ctx, uuid.New(), "VND")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestCreditAndDebitKeepBalanceConsistent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	w := newWallet(t, s, "VND")

	posted, err := s.Credit(ctx, w.ID, decimal.NewFromInt(100000), "VND", Entry{Type: TypeTopup})
	require.NoError(t, err)
	assert.True(t, posted.BalanceBefore.IsZero())
	assert.True(t, posted.BalanceAfter.Equal(decimal.NewFromInt(100000)))

	posted, err = s.Debit(ctx, w.ID, decimal.NewFromInt(30000), "VND", Entry{Type: TypeDebit})
	require.NoError(t, err)
	assert.True(t, posted.BalanceBefore.Equal(decimal.NewFromInt(100000)))
	assert.True(t, posted.BalanceAfter.Equal(decimal.NewFromInt(70000)))

	// The balance equals the running sum of signed posting amounts.
	txs, err := s.Transactions(ctx, w.ID, 10, 0)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, tx := range txs {
		if tx.Type == TypeDebit {
			sum = sum.Sub(tx.Amount)
		} else {
			sum = sum.Add(tx.Amount)
		}
	}
	current, err := s.Wallet(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, current.Balance.Equal(sum), "balance %s, posting sum %s", current.Balance, sum)
}

func TestDebitInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	w := newWallet(t, s, "VND")

	_, err := s.Credit(ctx, w.ID, decimal.NewFromInt(500), "VND", Entry{Type: TypeTopup})
	require.NoError(t, err)

	_, err = s.Debit(ctx, w.ID, decimal.NewFromInt(501), "VND", Entry{Type: TypeDebit})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	current, err := s.Wallet(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, current.Balance.Equal(decimal.NewFromInt(500)))

	txs, err := s.Transactions(ctx, w.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestPostingValidation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	w := newWallet(t, s, "VND")

	_, err := s.Credit(ctx, w.ID, decimal.Zero, "VND", Entry{})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = s.Credit(ctx, w.ID, decimal.NewFromInt(-5), "VND", Entry{})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = s.Credit(ctx, w.ID, decimal.NewFromInt(5), "USD", Entry{})
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = s.Credit(ctx, uuid.New(), decimal.NewFromInt(5), "VND", Entry{})
	assert.ErrorIs(t, err, ErrWalletNotFound)

	_, err = s.Wallet(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrWalletNotFound)

	_, err = s.Transactions(ctx, uuid.New(), 10, 0)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestTransactionsNewestFirstWithPaging(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	w := newWallet(t, s, "VND")

	for i := 1; i <= 5; i++ {
		_, err := s.Credit(ctx, w.ID, decimal.NewFromInt(int64(i)), "VND", Entry{Type: TypeTopup})
		require.NoError(t, err)
	}

	page, err := s.Transactions(ctx, w.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].Amount.Equal(decimal.NewFromInt(5)))
	assert.True(t, page[1].Amount.Equal(decimal.NewFromInt(4)))

	page, err = s.Transactions(ctx, w.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].Amount.Equal(decimal.NewFromInt(3)))
}

func TestConcurrentCreditsAreSerialized(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	w := newWallet(t, s, "VND")

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Credit(ctx, w.ID, decimal.NewFromInt(100), "VND", Entry{Type: TypeTopup})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	current, err := s.Wallet(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, current.Balance.Equal(decimal.NewFromInt(workers*100)))

	txs, err := s.Transactions(ctx, w.ID, 100, 0)
	require.NoError(t, err)
	assert.Len(t, txs, workers)
}
