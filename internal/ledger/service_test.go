package ledger

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/identity"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

const (
	tokenAlice = "token-alice"
	tokenBob   = "token-bob"
	userAlice  = "user-alice"
	userBob    = "user-bob"
)

func newTestService(t *testing.T) (*Service, *storage.Repository) {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ids := identity.NewStaticResolver()
	ids.Register(tokenAlice, userAlice)
	ids.Register(tokenBob, userBob)

	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	return NewService(repo, ids, cache.NewViews(16, time.Minute), logger), repo
}

func mustAccount(t *testing.T, svc *Service, token, balance string) *core.Account {
	t.Helper()
	acc, err := svc.CreateAccount(context.Background(), token, AccountInput{
		Name:    "Main",
		Type:    core.AccountCurrent,
		Balance: decimal.RequireFromString(balance),
	})
	require.NoError(t, err)
	return acc
}

func expenseInput(accountID, amount string) TransactionInput {
	return TransactionInput{
		AccountID: accountID,
		Type:      core.Expense,
		Amount:    decimal.RequireFromString(amount),
		Category:  "groceries",
		Date:      time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
	}
}

func assertBalance(t *testing.T, repo *storage.Repository, ownerID, accountID, want string) {
	t.Helper()
	acc, err := repo.GetAccount(context.Background(), ownerID, accountID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString(want)),
		"balance = %s, want %s", acc.Balance, want)
}

func TestTransactionLifecycleKeepsBalanceConsistent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	acc := mustAccount(t, svc, tokenAlice, "1000")

	created, err := svc.CreateTransaction(ctx, tokenAlice, expenseInput(acc.ID, "200"))
	require.NoError(t, err)
	assertBalance(t, repo, userAlice, acc.ID, "800")

	edit := expenseInput(acc.ID, "50")
	edit.Type = core.Income
	_, err = svc.UpdateTransaction(ctx, tokenAlice, created.ID, edit)
	require.NoError(t, err)
	assertBalance(t, repo, userAlice, acc.ID, "1050")

	deleted, err := svc.BulkDeleteTransactions(ctx, tokenAlice, []string{created.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assertBalance(t, repo, userAlice, acc.ID, "1000")
}

func TestCreateTransactionUnknownAccount(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateTransaction(context.Background(), tokenAlice, expenseInput("missing", "10"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateTransactionForeignAccount(t *testing.T) {
	svc, repo := newTestService(t)
	acc := mustAccount(t, svc, tokenBob, "500")

	_, err := svc.CreateTransaction(context.Background(), tokenAlice, expenseInput(acc.ID, "10"))
	assert.ErrorIs(t, err, core.ErrNotFound)
	assertBalance(t, repo, userBob, acc.ID, "500")
}

func TestCreateTransactionUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateTransaction(context.Background(), "nope", expenseInput("any", "10"))
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestCreateRecurringTransactionSetsDueDate(t *testing.T) {
	svc, _ := newTestService(t)
	acc := mustAccount(t, svc, tokenAlice, "1000")

	input := expenseInput(acc.ID, "15")
	input.Date = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	input.IsRecurring = true
	input.RecurringInterval = core.Monthly

	created, err := svc.CreateTransaction(context.Background(), tokenAlice, input)
	require.NoError(t, err)
	require.NotNil(t, created.NextRecurringDate)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), *created.NextRecurringDate)
}

func TestUpdateTransactionMovesAccounts(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	src := mustAccount(t, svc, tokenAlice, "1000")
	dst, err := svc.CreateAccount(ctx, tokenAlice, AccountInput{
		Name:    "Savings",
		Type:    core.AccountSavings,
		Balance: decimal.RequireFromString("1000"),
	})
	require.NoError(t, err)

	created, err := svc.CreateTransaction(ctx, tokenAlice, expenseInput(src.ID, "100"))
	require.NoError(t, err)
	assertBalance(t, repo, userAlice, src.ID, "900")

	edit := expenseInput(dst.ID, "40")
	edit.Type = core.Income
	_, err = svc.UpdateTransaction(ctx, tokenAlice, created.ID, edit)
	require.NoError(t, err)

	assertBalance(t, repo, userAlice, src.ID, "1000")
	assertBalance(t, repo, userAlice, dst.ID, "1040")
}

func TestUpdateTransactionKeepsUnchangedSchedule(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	acc := mustAccount(t, svc, tokenAlice, "1000")

	input := expenseInput(acc.ID, "15")
	input.IsRecurring = true
	input.RecurringInterval = core.Monthly
	created, err := svc.CreateTransaction(ctx, tokenAlice, input)
	require.NoError(t, err)
	require.NotNil(t, created.NextRecurringDate)

	// Amount changes, the schedule does not: the due date must survive.
	edit := input
	edit.Amount = decimal.RequireFromString("25")
	updated, err := svc.UpdateTransaction(ctx, tokenAlice, created.ID, edit)
	require.NoError(t, err)
	require.NotNil(t, updated.NextRecurringDate)
	assert.Equal(t, *created.NextRecurringDate, *updated.NextRecurringDate)

	// Switching recurrence off clears it.
	edit.IsRecurring = false
	edit.RecurringInterval = ""
	updated, err = svc.UpdateTransaction(ctx, tokenAlice, created.ID, edit)
	require.NoError(t, err)
	assert.Nil(t, updated.NextRecurringDate)
}

func TestConcurrentUpdatesKeepBalanceConsistent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	acc := mustAccount(t, svc, tokenAlice, "1000")

	created, err := svc.CreateTransaction(ctx, tokenAlice, expenseInput(acc.ID, "200"))
	require.NoError(t, err)

	// Racing edits of the same row. Each one must reverse the
	// contribution the row actually carries at commit time, so whichever
	// edit lands last fully determines the balance.
	amounts := []string{"100", "300", "500", "700", "900", "1100"}
	var wg sync.WaitGroup
	for _, amount := range amounts {
		wg.Add(1)
		go func(amount string) {
			defer wg.Done()
			_, err := svc.UpdateTransaction(ctx, tokenAlice, created.ID, expenseInput(acc.ID, amount))
			assert.NoError(t, err)
		}(amount)
	}
	wg.Wait()

	final, err := repo.GetTransaction(ctx, repo.DB(), userAlice, created.ID)
	require.NoError(t, err)
	acc2, err := repo.GetAccount(ctx, userAlice, acc.ID)
	require.NoError(t, err)
	want := decimal.NewFromInt(1000).Add(final.SignedAmount())
	assert.True(t, acc2.Balance.Equal(want),
		"balance = %s, want %s for surviving amount %s", acc2.Balance, want, final.Amount)
}

func TestConcurrentUpdateAndDelete(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	acc := mustAccount(t, svc, tokenAlice, "1000")

	created, err := svc.CreateTransaction(ctx, tokenAlice, expenseInput(acc.ID, "200"))
	require.NoError(t, err)

	// An edit and a bulk delete race on the same row. Whichever order
	// they serialize in, the account must end up reflecting exactly the
	// rows that survive. An edit that arrives after the delete fails
	// cleanly without touching the balance.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = svc.UpdateTransaction(ctx, tokenAlice, created.ID, expenseInput(acc.ID, "500"))
	}()
	go func() {
		defer wg.Done()
		_, err := svc.BulkDeleteTransactions(ctx, tokenAlice, []string{created.ID})
		assert.NoError(t, err)
	}()
	wg.Wait()

	assertBalance(t, repo, userAlice, acc.ID, "1000")
	_, err = repo.GetTransaction(ctx, repo.DB(), userAlice, created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestBulkDeleteAggregatesPerAccount(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	first := mustAccount(t, svc, tokenAlice, "1000")
	second, err := svc.CreateAccount(ctx, tokenAlice, AccountInput{
		Name:    "Savings",
		Type:    core.AccountSavings,
		Balance: decimal.RequireFromString("500"),
	})
	require.NoError(t, err)

	var ids []string
	for _, spend := range []string{"10", "20"} {
		tx, err := svc.CreateTransaction(ctx, tokenAlice, expenseInput(first.ID, spend))
		require.NoError(t, err)
		ids = append(ids, tx.ID)
	}
	income := expenseInput(second.ID, "100")
	income.Type = core.Income
	tx, err := svc.CreateTransaction(ctx, tokenAlice, income)
	require.NoError(t, err)
	ids = append(ids, tx.ID)

	assertBalance(t, repo, userAlice, first.ID, "970")
	assertBalance(t, repo, userAlice, second.ID, "600")

	deleted, err := svc.BulkDeleteTransactions(ctx, tokenAlice, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assertBalance(t, repo, userAlice, first.ID, "1000")
	assertBalance(t, repo, userAlice, second.ID, "500")
}

func TestBulkDeleteRejectsForeignIDs(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	mine := mustAccount(t, svc, tokenAlice, "1000")
	theirs := mustAccount(t, svc, tokenBob, "1000")

	myTx, err := svc.CreateTransaction(ctx, tokenAlice, expenseInput(mine.ID, "50"))
	require.NoError(t, err)
	theirTx, err := svc.CreateTransaction(ctx, tokenBob, expenseInput(theirs.ID, "50"))
	require.NoError(t, err)

	deleted, err := svc.BulkDeleteTransactions(ctx, tokenAlice, []string{myTx.ID, theirTx.ID})
	assert.ErrorIs(t, err, core.ErrPartialOwnership)
	assert.Zero(t, deleted)

	// Nothing happened: both rows and both balances are untouched.
	_, err = repo.GetTransaction(ctx, repo.DB(), userAlice, myTx.ID)
	require.NoError(t, err)
	assertBalance(t, repo, userAlice, mine.ID, "950")
	assertBalance(t, repo, userBob, theirs.ID, "950")
}

func TestBulkDeleteDeduplicatesIDs(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	acc := mustAccount(t, svc, tokenAlice, "1000")

	tx, err := svc.CreateTransaction(ctx, tokenAlice, expenseInput(acc.ID, "100"))
	require.NoError(t, err)

	deleted, err := svc.BulkDeleteTransactions(ctx, tokenAlice, []string{tx.ID, tx.ID, tx.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assertBalance(t, repo, userAlice, acc.ID, "1000")
}

func TestBulkDeleteEmptySelection(t *testing.T) {
	svc, _ := newTestService(t)

	deleted, err := svc.BulkDeleteTransactions(context.Background(), tokenAlice, nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestFirstAccountBecomesDefault(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateAccount(ctx, tokenAlice, AccountInput{
		Name: "Main", Type: core.AccountCurrent,
	})
	require.NoError(t, err)
	assert.True(t, first.IsDefault, "first account should become default")

	second, err := svc.CreateAccount(ctx, tokenAlice, AccountInput{
		Name: "Savings", Type: core.AccountSavings,
	})
	require.NoError(t, err)
	assert.False(t, second.IsDefault)
}

func TestCreateAccountDemotesPreviousDefault(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateAccount(ctx, tokenAlice, AccountInput{
		Name: "Main", Type: core.AccountCurrent,
	})
	require.NoError(t, err)

	second, err := svc.CreateAccount(ctx, tokenAlice, AccountInput{
		Name: "Savings", Type: core.AccountSavings, IsDefault: true,
	})
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	got, err := repo.GetDefaultAccount(ctx, userAlice)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.NotEqual(t, first.ID, got.ID)
}

func TestSetDefaultAccount(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	mustAccount(t, svc, tokenAlice, "0")
	second, err := svc.CreateAccount(ctx, tokenAlice, AccountInput{
		Name: "Savings", Type: core.AccountSavings,
	})
	require.NoError(t, err)

	require.NoError(t, svc.SetDefaultAccount(ctx, tokenAlice, second.ID))

	got, err := repo.GetDefaultAccount(ctx, userAlice)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestAccountOverviewCacheInvalidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	acc := mustAccount(t, svc, tokenAlice, "1000")

	view, err := svc.GetAccountOverview(ctx, tokenAlice, acc.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Transactions)

	// A mutation drops the cached view; the next read sees fresh data.
	_, err = svc.CreateTransaction(ctx, tokenAlice, expenseInput(acc.ID, "200"))
	require.NoError(t, err)

	view, err = svc.GetAccountOverview(ctx, tokenAlice, acc.ID)
	require.NoError(t, err)
	assert.Len(t, view.Transactions, 1)
	assert.True(t, view.Account.Balance.Equal(decimal.RequireFromString("800")),
		"cached balance = %s", view.Account.Balance)
}

func TestAccountOverviewScopedToOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	acc := mustAccount(t, svc, tokenAlice, "1000")

	// Warm the cache as the owner, then read as somebody else.
	_, err := svc.GetAccountOverview(ctx, tokenAlice, acc.ID)
	require.NoError(t, err)

	_, err = svc.GetAccountOverview(ctx, tokenBob, acc.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateBudget(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	b, err := svc.CreateBudget(ctx, tokenAlice, decimal.RequireFromString("750"))
	require.NoError(t, err)

	got, err := repo.GetBudget(ctx, userAlice)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("750")))

	// One budget per owner.
	_, err = svc.CreateBudget(ctx, tokenAlice, decimal.RequireFromString("900"))
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = svc.CreateBudget(ctx, tokenAlice, decimal.Zero)
	assert.ErrorIs(t, err, core.ErrInvalid)
}
