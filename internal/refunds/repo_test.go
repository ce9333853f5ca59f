package refunds

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
)

func newRefundsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS refund_records (
  id TEXT PRIMARY KEY,
  stripe_refund_id TEXT NOT NULL UNIQUE,
  stripe_payment_intent_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  reason TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS refund_records`).Error)
	require.NoError(t, db.Exec(ddl).Error)
	return db
}

func refundRecord(refundID, intentID string, amount int64, status enums.RefundStatus) *models.RefundRecord {
	return &models.RefundRecord{
		ID:                    uuid.New(),
		StripeRefundID:        refundID,
		StripePaymentIntentID: intentID,
		AmountCents:           amount,
		Currency:              "usd",
		Reason:                "damaged item",
		Status:                status,
	}
}

func TestRefundsRepo_CreateDedupesOnRefundID(t *testing.T) {
	repo := NewRepository(newRefundsTestDB(t))
	ctx := context.Background()

	first, created, err := repo.Create(ctx, refundRecord("re_dup", "pi_1", 500, enums.RefundStatusSucceeded))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := repo.Create(ctx, refundRecord("re_dup", "pi_1", 500, enums.RefundStatusSucceeded))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, repo.(*repository).db.Model(&models.RefundRecord{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRefundsRepo_SumRefundedCents(t *testing.T) {
	repo := NewRepository(newRefundsTestDB(t))
	ctx := context.Background()

	_, _, err := repo.Create(ctx, refundRecord("re_a", "pi_sum", 500, enums.RefundStatusSucceeded))
	require.NoError(t, err)
	_, _, err = repo.Create(ctx, refundRecord("re_b", "pi_sum", 300, enums.RefundStatusPending))
	require.NoError(t, err)
	// failed refunds never consumed captured money
	_, _, err = repo.Create(ctx, refundRecord("re_c", "pi_sum", 999, enums.RefundStatusFailed))
	require.NoError(t, err)
	_, _, err = repo.Create(ctx, refundRecord("re_d", "pi_other", 100, enums.RefundStatusSucceeded))
	require.NoError(t, err)

	total, err := repo.SumRefundedCents(ctx, "pi_sum")
	require.NoError(t, err)
	require.EqualValues(t, 800, total)

	empty, err := repo.SumRefundedCents(ctx, "pi_none")
	require.NoError(t, err)
	require.EqualValues(t, 0, empty)
}

func TestRefundsRepo_ListByPaymentIntentID(t *testing.T) {
	repo := NewRepository(newRefundsTestDB(t))
	ctx := context.Background()

	_, _, err := repo.Create(ctx, refundRecord("re_l1", "pi_list", 100, enums.RefundStatusSucceeded))
	require.NoError(t, err)
	_, _, err = repo.Create(ctx, refundRecord("re_l2", "pi_list", 200, enums.RefundStatusSucceeded))
	require.NoError(t, err)

	records, err := repo.ListByPaymentIntentID(ctx, "pi_list")
	require.NoError(t, err)
	require.Len(t, records, 2)

	found, err := repo.FindByStripeRefundID(ctx, "re_l2")
	require.NoError(t, err)
	require.EqualValues(t, 200, found.AmountCents)
}
