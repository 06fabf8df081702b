package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/mini-ledger/internal/customer"
	"github.com/nathanyu/mini-ledger/internal/domain"
	"github.com/nathanyu/mini-ledger/internal/ledger"
	"github.com/nathanyu/mini-ledger/internal/seed"
	"github.com/nathanyu/mini-ledger/internal/store/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type brokenDirectory struct{}

func (brokenDirectory) Exists(context.Context, int64) (bool, error) {
	return false, errors.New("customer service unavailable")
}

func (brokenDirectory) DisplayName(context.Context, int64) (string, error) {
	return "", errors.New("customer service unavailable")
}

// Test helper to create a service over the seeded sample data
func setupService(t *testing.T) (*ledger.Service, *memory.Store, *recordingPublisher) {
	t.Helper()

	st := memory.New(nil, nil)
	_, err := st.Seed(seed.Events())
	require.NoError(t, err)

	pub := &recordingPublisher{}
	svc := ledger.NewService(st, customer.NewMemoryDirectory(seed.Customers()), pub, nil)
	return svc, st, pub
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// snapshot captures every balance and the size of the history
type snapshot struct {
	balances map[int64]string
	txns     int
}

func takeSnapshot(t *testing.T, st *memory.Store) snapshot {
	t.Helper()
	ctx := context.Background()

	snap := snapshot{balances: map[int64]string{}}
	seen := map[int64]bool{}
	for _, c := range seed.Customers() {
		balances, err := st.BalancesForCustomer(ctx, c.ID)
		require.NoError(t, err)
		for _, b := range balances {
			snap.balances[b.AccountID] = domain.FormatBalance(b.Amount)
		}
		txns, err := st.FindAllForCustomer(ctx, c.ID)
		require.NoError(t, err)
		for _, txn := range txns {
			if !seen[txn.ID] {
				seen[txn.ID] = true
				snap.txns++
			}
		}
	}
	return snap
}

func totalFunds(snap snapshot) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range snap.balances {
		sum = sum.Add(dec(b))
	}
	return sum
}

func TestTransfer_Success(t *testing.T) {
	ctx := context.Background()
	svc, st, pub := setupService(t)
	before := takeSnapshot(t, st)

	txn, err := svc.Transfer(ctx, domain.TransferRequest{
		SenderAccountID:     5,
		SendingCustomerID:   4,
		ReceiverAccountID:   6,
		ReceivingCustomerID: 5,
		Amount:              dec("20"),
	})
	require.NoError(t, err)
	assert.Equal(t, "FROM Georgina Hazel 20 TO Judah Parham", txn.Details)
	assert.Equal(t, int64(2), txn.ID)

	after := takeSnapshot(t, st)
	assert.Equal(t, "280.00", after.balances[5])
	assert.Equal(t, "170.00", after.balances[6])
	assert.Equal(t, before.txns+1, after.txns, "exactly one transaction is appended")
	assert.True(t, totalFunds(before).Equal(totalFunds(after)), "funds are conserved")

	history, err := st.FindAllForCustomer(ctx, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "FROM Georgina Hazel 20 TO Judah Parham", history[0].Details)

	require.Len(t, pub.events, 1)
	recorded, ok := pub.events[0].(domain.TransactionRecorded)
	require.True(t, ok)
	assert.Equal(t, txn.ID, recorded.TransactionID)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	svc, st, pub := setupService(t)
	before := takeSnapshot(t, st)

	_, err := svc.Transfer(context.Background(), domain.TransferRequest{
		SenderAccountID:     6,
		SendingCustomerID:   5,
		ReceiverAccountID:   1,
		ReceivingCustomerID: 1,
		Amount:              dec("10000"),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, "Insufficient funds", err.Error())

	assert.Equal(t, before, takeSnapshot(t, st))
	assert.Empty(t, pub.events)
}

func TestTransfer_ValidationOrder(t *testing.T) {
	valid := domain.TransferRequest{
		SenderAccountID:     5,
		SendingCustomerID:   4,
		ReceiverAccountID:   6,
		ReceivingCustomerID: 5,
		Amount:              dec("20"),
	}

	tests := []struct {
		name   string
		mutate func(r *domain.TransferRequest)
		want   *domain.ValidationError
	}{
		{
			name: "unknown receiver customer wins over everything",
			mutate: func(r *domain.TransferRequest) {
				r.ReceivingCustomerID = 999
				r.SendingCustomerID = 999
				r.SenderAccountID = 999
				r.Amount = dec("1000000")
			},
			want: domain.ErrInvalidReceiverCustomer,
		},
		{
			name: "unknown sender customer",
			mutate: func(r *domain.TransferRequest) {
				r.SendingCustomerID = 999
				r.SenderAccountID = 999
			},
			want: domain.ErrInvalidSenderCustomer,
		},
		{
			name: "unknown sender account before unknown receiver account",
			mutate: func(r *domain.TransferRequest) {
				r.SenderAccountID = 999
				r.ReceiverAccountID = 998
			},
			want: domain.ErrSenderAccountNotFound,
		},
		{
			name: "unknown receiver account",
			mutate: func(r *domain.TransferRequest) {
				r.ReceiverAccountID = 999
				r.Amount = dec("1000000")
			},
			want: domain.ErrReceiverAccountNotFound,
		},
		{
			name: "insufficient funds before ownership",
			mutate: func(r *domain.TransferRequest) {
				r.SenderAccountID = 6 // owned by customer 5
				r.ReceiverAccountID = 1
				r.Amount = dec("1000000")
			},
			want: domain.ErrInsufficientFunds,
		},
		{
			name: "sender ownership before receiver ownership",
			mutate: func(r *domain.TransferRequest) {
				r.SenderAccountID = 3 // owned by customer 2
				r.ReceiverAccountID = 4
			},
			want: domain.ErrSenderAccountOwnership,
		},
		{
			name: "receiver ownership",
			mutate: func(r *domain.TransferRequest) {
				r.ReceiverAccountID = 1 // owned by customer 1
			},
			want: domain.ErrReceiverAccountOwnership,
		},
		{
			name:   "zero amount",
			mutate: func(r *domain.TransferRequest) { r.Amount = decimal.Zero },
			want:   domain.ErrInvalidAmount,
		},
		{
			name:   "negative amount",
			mutate: func(r *domain.TransferRequest) { r.Amount = dec("-5") },
			want:   domain.ErrInvalidAmount,
		},
		{
			name:   "amount below a cent",
			mutate: func(r *domain.TransferRequest) { r.Amount = dec("0.004") },
			want:   domain.ErrInvalidAmount,
		},
		{
			name: "unknown receiver customer before zero amount",
			mutate: func(r *domain.TransferRequest) {
				r.ReceivingCustomerID = 999
				r.Amount = decimal.Zero
			},
			want: domain.ErrInvalidReceiverCustomer,
		},
		{
			name: "unknown sender account before negative amount",
			mutate: func(r *domain.TransferRequest) {
				r.SenderAccountID = 999
				r.Amount = dec("-5")
			},
			want: domain.ErrSenderAccountNotFound,
		},
		{
			name: "receiver ownership before zero amount",
			mutate: func(r *domain.TransferRequest) {
				r.ReceiverAccountID = 1
				r.Amount = decimal.Zero
			},
			want: domain.ErrReceiverAccountOwnership,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st, pub := setupService(t)
			before := takeSnapshot(t, st)

			req := valid
			tt.mutate(&req)

			_, err := svc.Transfer(context.Background(), req)
			require.Error(t, err)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want.Code, verr.Code)
			assert.Equal(t, tt.want.Message, verr.Message)

			assert.Equal(t, before, takeSnapshot(t, st), "rejected transfers change nothing")
			assert.Empty(t, pub.events)
		})
	}
}

func TestTransfer_ExactBalanceDrainsToZero(t *testing.T) {
	svc, st, _ := setupService(t)

	_, err := svc.Transfer(context.Background(), domain.TransferRequest{
		SenderAccountID:     6,
		SendingCustomerID:   5,
		ReceiverAccountID:   3,
		ReceivingCustomerID: 2,
		Amount:              dec("150.00"),
	})
	require.NoError(t, err)

	snap := takeSnapshot(t, st)
	assert.Equal(t, "0.00", snap.balances[6])
	assert.Equal(t, "950.00", snap.balances[3])
}

func TestTransfer_SameAccountNetsToZero(t *testing.T) {
	svc, st, _ := setupService(t)

	txn, err := svc.Transfer(context.Background(), domain.TransferRequest{
		SenderAccountID:     1,
		SendingCustomerID:   1,
		ReceiverAccountID:   1,
		ReceivingCustomerID: 1,
		Amount:              dec("20"),
	})
	require.NoError(t, err)
	assert.Equal(t, "FROM Arisha Barron 20 TO Arisha Barron", txn.Details)

	snap := takeSnapshot(t, st)
	assert.Equal(t, "520.00", snap.balances[1])
	assert.Equal(t, 2, snap.txns)
}

func TestTransfer_SubCentAmountIsRejected(t *testing.T) {
	svc, st, pub := setupService(t)
	before := takeSnapshot(t, st)

	_, err := svc.Transfer(context.Background(), domain.TransferRequest{
		SenderAccountID:     2,
		SendingCustomerID:   1,
		ReceiverAccountID:   3,
		ReceivingCustomerID: 2,
		Amount:              dec("10.125"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, before, takeSnapshot(t, st))
	assert.Empty(t, pub.events)
}

func TestTransfer_KeepsSuppliedAmount(t *testing.T) {
	svc, st, _ := setupService(t)

	txn, err := svc.Transfer(context.Background(), domain.TransferRequest{
		SenderAccountID:     2,
		SendingCustomerID:   1,
		ReceiverAccountID:   3,
		ReceivingCustomerID: 2,
		Amount:              dec("10.50"),
	})
	require.NoError(t, err)
	assert.True(t, txn.Amount.Equal(dec("10.50")))
	assert.Equal(t, "FROM Arisha Barron 10.50 TO Branden Gibson", txn.Details)

	snap := takeSnapshot(t, st)
	assert.Equal(t, "5509.50", snap.balances[2])
	assert.Equal(t, "810.50", snap.balances[3])
}

// An account holding 100 receives 10 concurrent transfers of 20:
// exactly 5 succeed and 5 fail with insufficient funds.
func TestTransfer_ConcurrentOverdraft(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := setupService(t)

	acc, err := svc.CreateAccount(ctx, 2, dec("100"))
	require.NoError(t, err)
	before := takeSnapshot(t, st)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var successCount, failCount int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, domain.TransferRequest{
				SenderAccountID:     acc.ID,
				SendingCustomerID:   2,
				ReceiverAccountID:   3,
				ReceivingCustomerID: 2,
				Amount:              dec("20"),
			})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successCount++
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			failCount++
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, successCount)
	assert.Equal(t, 5, failCount)

	after := takeSnapshot(t, st)
	assert.Equal(t, "0.00", after.balances[acc.ID])
	assert.Equal(t, "900.00", after.balances[3])
	assert.True(t, totalFunds(before).Equal(totalFunds(after)))
}

func TestTransfer_PublisherFailureDoesNotFailTransfer(t *testing.T) {
	svc, _, pub := setupService(t)
	pub.err = errors.New("nats: connection closed")

	_, err := svc.Transfer(context.Background(), domain.TransferRequest{
		SenderAccountID:     5,
		SendingCustomerID:   4,
		ReceiverAccountID:   6,
		ReceivingCustomerID: 5,
		Amount:              dec("1"),
	})
	assert.NoError(t, err)
}

func TestTransfer_DirectoryFailureIsInternal(t *testing.T) {
	st := memory.New(nil, nil)
	_, err := st.Seed(seed.Events())
	require.NoError(t, err)
	svc := ledger.NewService(st, brokenDirectory{}, nil, nil)

	_, err = svc.Transfer(context.Background(), domain.TransferRequest{
		SenderAccountID:     5,
		SendingCustomerID:   4,
		ReceiverAccountID:   6,
		ReceivingCustomerID: 5,
		Amount:              dec("1"),
	})
	require.Error(t, err)

	var verr *domain.ValidationError
	assert.False(t, errors.As(err, &verr))
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	svc, st, pub := setupService(t)

	acc, err := svc.CreateAccount(ctx, 2, dec("3434334"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), acc.ID)

	balances, err := st.BalancesForCustomer(ctx, 2)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "800.00", domain.FormatBalance(balances[0].Amount))
	assert.Equal(t, "3434334.00", domain.FormatBalance(balances[1].Amount))

	require.Len(t, pub.events, 1)
	opened, ok := pub.events[0].(domain.AccountOpened)
	require.True(t, ok)
	assert.Equal(t, acc.ID, opened.AccountID)
}

func TestCreateAccount_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown customer", func(t *testing.T) {
		svc, st, _ := setupService(t)
		before := takeSnapshot(t, st)

		_, err := svc.CreateAccount(ctx, 999, dec("10"))
		assert.ErrorIs(t, err, domain.ErrInvalidCustomer)
		assert.Equal(t, before, takeSnapshot(t, st))
	})

	t.Run("unknown customer is reported before a negative deposit", func(t *testing.T) {
		svc, _, _ := setupService(t)

		_, err := svc.CreateAccount(ctx, 999, dec("-10"))
		assert.ErrorIs(t, err, domain.ErrInvalidCustomer)
	})

	t.Run("negative deposit", func(t *testing.T) {
		svc, st, pub := setupService(t)
		before := takeSnapshot(t, st)

		_, err := svc.CreateAccount(ctx, 2, dec("-0.01"))
		assert.ErrorIs(t, err, domain.ErrInvalidDeposit)
		assert.Equal(t, before, takeSnapshot(t, st))
		assert.Empty(t, pub.events)
	})

	t.Run("zero deposit is allowed", func(t *testing.T) {
		svc, _, _ := setupService(t)

		acc, err := svc.CreateAccount(ctx, 5, decimal.Zero)
		require.NoError(t, err)
		assert.True(t, acc.Balance.IsZero())
	})
}
