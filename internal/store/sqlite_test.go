package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitrecx/my-bill-2/internal/core"
)

func setupTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

var at = time.Date(2024, 3, 1, 12, 0, 0, 0, core.ChinaStandardTime())

func testRecord(orderID, amount string) core.CanonicalRecord {
	balance := decimal.RequireFromString("88.80")
	return core.CanonicalRecord{
		SourceType:      core.ProviderJD,
		TransactionTime: at,
		Amount:          decimal.RequireFromString(amount),
		TransactionType: core.TypeExpense,
		MerchantName:    "京东商城",
		TransactionDesc: "京东商城 - 购买商品",
		OrderID:         orderID,
		Currency:        "CNY",
		Balance:         &balance,
		RawData:         core.NewRawRecord([]string{"交易时间", "金额"}, []string{"2024-03-01 12:00:00", amount}),
	}
}

func TestSQLite_InsertAndFind(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	id, err := tx.InsertBill(ctx, 1, "imp-1", testRecord("A-1", "10.50"))
	require.NoError(t, err)
	assert.Positive(t, id)

	found, err := tx.FindByOrderID(ctx, 1, core.ProviderJD, "A-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)
	assert.True(t, decimal.RequireFromString("10.5").Equal(found.Amount))
	assert.True(t, at.Equal(found.TransactionTime))

	missing, err := tx.FindByOrderID(ctx, 2, core.ProviderJD, "A-1")
	require.NoError(t, err)
	assert.Nil(t, missing, "other family")

	matches, err := tx.FindByContent(ctx, 1, core.ProviderJD, at.Add(-time.Minute), at.Add(time.Minute), decimal.RequireFromString("10.50"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	matches, err = tx.FindByContent(ctx, 1, core.ProviderJD, at.Add(-time.Minute), at.Add(time.Minute), decimal.RequireFromString("10.51"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = tx.FindByContent(ctx, 1, core.ProviderJD, at.Add(time.Second), at.Add(time.Minute), decimal.RequireFromString("10.50"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, tx.Commit(ctx))

	bills, err := s.ListBills(ctx, 1)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	rec := bills[0].Record
	assert.Equal(t, "imp-1", bills[0].ImportID)
	assert.Equal(t, "京东商城 - 购买商品", rec.TransactionDesc)
	assert.Equal(t, "88.8", rec.Balance.String())
	assert.Equal(t, []string{"交易时间", "金额"}, rec.RawData.Keys())
	assert.Equal(t, at.Unix(), rec.TransactionTime.Unix())
}

func TestSQLite_UpdateBill(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	id, err := tx.InsertBill(ctx, 1, "imp-1", testRecord("A-1", "10.50"))
	require.NoError(t, err)

	changed := testRecord("A-1", "7.25")
	changed.Balance = nil
	changed.Remark = "退款: 已退款3.25"
	require.NoError(t, tx.UpdateBill(ctx, id, "imp-2", changed))
	assert.ErrorIs(t, tx.UpdateBill(ctx, id+100, "imp-2", changed), ErrNotFound)
	require.NoError(t, tx.Commit(ctx))

	bills, err := s.ListBills(ctx, 1)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, "7.25", bills[0].Record.Amount.String())
	assert.Nil(t, bills[0].Record.Balance)
	assert.Equal(t, "退款: 已退款3.25", bills[0].Record.Remark)
	assert.Equal(t, "imp-2", bills[0].ImportID)
}

func TestSQLite_SavepointRollback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Savepoint(ctx, "sp_0"))
	_, err = tx.InsertBill(ctx, 1, "", testRecord("A-1", "1.00"))
	require.NoError(t, err)
	require.NoError(t, tx.Release(ctx, "sp_0"))

	require.NoError(t, tx.Savepoint(ctx, "sp_1"))
	_, err = tx.InsertBill(ctx, 1, "", testRecord("A-2", "2.00"))
	require.NoError(t, err)
	require.NoError(t, tx.RollbackTo(ctx, "sp_1"))
	require.NoError(t, tx.Release(ctx, "sp_1"))

	// The unique order id index rejects a second A-1.
	_, err = tx.InsertBill(ctx, 1, "", testRecord("A-1", "3.00"))
	assert.Error(t, err)

	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")

	bills, err := s.ListBills(ctx, 1)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, "A-1", bills[0].Record.OrderID)
}

func TestSQLite_Rollback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.InsertBill(ctx, 1, "", testRecord("", "1.00"))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	bills, err := s.ListBills(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, bills)
}

func TestSQLite_Imports(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetImport(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	rec := ImportRecord{
		ID:           "7d4c3a0e-4a43-4f53-9b8e-111111111111",
		FamilyID:     3,
		FileName:     "jd.csv",
		Source:       core.ProviderJD,
		Status:       StatusPartialSuccess,
		TotalCount:   10,
		SuccessCount: 8,
		FailedCount:  2,
		Created:      7,
		Updated:      1,
		Errors:       []string{"line 9: amount: missing"},
		CreatedAt:    at,
	}
	require.NoError(t, tx.SaveImport(ctx, rec))
	require.NoError(t, tx.Commit(ctx))

	got, err := s.GetImport(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.FileName, got.FileName)
	assert.Equal(t, core.ProviderJD, got.Source)
	assert.Equal(t, StatusPartialSuccess, got.Status)
	assert.Equal(t, 8, got.SuccessCount)
	assert.Equal(t, 7, got.Created)
	assert.Equal(t, rec.Errors, got.Errors)
	assert.True(t, at.Equal(got.CreatedAt))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, "sqlite", ":memory:", PoolOptions{})
	require.NoError(t, err)
	defer st.Close()

	bills, err := st.ListBills(ctx, 1)
	require.NoError(t, err, "schema is migrated")
	assert.Empty(t, bills)

	_, err = Open(ctx, "mysql", "", PoolOptions{})
	assert.EqualError(t, err, `unknown database driver "mysql"`)
}
