package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clearlane/rewards/internal/config"
	"github.com/clearlane/rewards/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rewardRowColumns = []string{"id", "name", "description", "point_cost", "category", "value_description",
	"active", "expires_at", "total_available", "redeemed_count", "max_per_user", "created_at", "updated_at"}

var redemptionRowColumns = []string{"id", "user_id", "reward_id", "reward_name", "reward_value", "reward_category",
	"points_spent", "code", "status", "created_at", "expires_at", "fulfilled_at", "fulfillment_notes", "cancelled_at"}

type rewardFixture struct {
	id             string
	cost           int64
	active         bool
	expiresAt      any
	totalAvailable any
	redeemed       int64
	maxPerUser     any
}

func rewardRows(fixtures ...rewardFixture) *sqlmock.Rows {
	rows := sqlmock.NewRows(rewardRowColumns)
	for _, f := range fixtures {
		rows.AddRow(f.id, "Free Coffee", "Any size", f.cost, "food", "One hot drink", f.active,
			f.expiresAt, f.totalAvailable, f.redeemed, f.maxPerUser, fixedNow, fixedNow)
	}
	return rows
}

func redemptionRow(code string, status models.RedemptionStatus, expiresAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(redemptionRowColumns).
		AddRow("red-1", "user-1", "coffee", "Free Coffee", "One hot drink", "food", 50,
			code, string(status), fixedNow.Add(-24*time.Hour), expiresAt, nil, nil, nil)
}

func newTestRedemptionService(t *testing.T, redisClient *redis.Client) (*RedemptionService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ledger := NewLedgerService(db)
	ledger.now = fixedClock
	service := NewRedemptionService(db, redisClient, ledger, nil, config.DefaultRewardsConfig())
	service.now = fixedClock
	return service, mock
}

func expectRewardLock(mock sqlmock.Sqlmock, fixture rewardFixture, userCount int64) {
	mock.ExpectQuery("SELECT (.+) FROM reward_definitions WHERE id = \\$1 FOR UPDATE").
		WithArgs(fixture.id).
		WillReturnRows(rewardRows(fixture))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM redemptions WHERE user_id = \\$1 AND reward_id = \\$2").
		WithArgs("user-1", fixture.id, pq.Array([]string{"PENDING", "APPROVED", "FULFILLED"})).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(userCount))
}

func TestRedemptionService_Redeem(t *testing.T) {
	ctx := context.Background()
	coffee := rewardFixture{id: "coffee", cost: 50, active: true}

	t.Run("spends the whole balance", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectBegin()
		expectRewardLock(mock, coffee, 0)
		mock.ExpectExec("UPDATE accounts SET balance = balance - \\$1").
			WithArgs(int64(50), sqlmock.AnyArg(), "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO redemptions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE reward_definitions SET redeemed_count = redeemed_count \\+ 1").
			WithArgs("coffee", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := service.Redeem(ctx, "user-1", "coffee")
		require.NoError(t, err)
		assert.Equal(t, models.RedemptionPending, result.Status)
		assert.Equal(t, int64(50), result.PointsSpent)
		assert.Regexp(t, RedemptionCodePattern("CL-", 8), result.RedemptionCode)
		assert.Equal(t, fixedNow.Add(90*24*time.Hour), result.ExpiresAt)
		assert.Contains(t, result.Instructions, result.RedemptionCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("out of stock regardless of balance", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		soldOut := rewardFixture{id: "coffee", cost: 50, active: true, totalAvailable: 1, redeemed: 1}
		mock.ExpectBegin()
		expectRewardLock(mock, soldOut, 0)
		mock.ExpectRollback()

		_, err := service.Redeem(ctx, "user-1", "coffee")
		var oos *OutOfStockError
		assert.True(t, errors.As(err, &oos))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance changes nothing", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectBegin()
		expectRewardLock(mock, rewardFixture{id: "coffee", cost: 60, active: true}, 0)
		mock.ExpectExec("UPDATE accounts SET balance = balance - \\$1").
			WithArgs(int64(60), sqlmock.AnyArg(), "user-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT balance FROM accounts").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(40))
		mock.ExpectRollback()

		_, err := service.Redeem(ctx, "user-1", "coffee")
		assert.True(t, errors.Is(err, ErrInsufficientBalance))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("two 60 point redemptions on 100 points", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)
		ticket := rewardFixture{id: "coffee", cost: 60, active: true}

		mock.ExpectBegin()
		expectRewardLock(mock, ticket, 0)
		mock.ExpectExec("UPDATE accounts SET balance = balance - \\$1").
			WithArgs(int64(60), sqlmock.AnyArg(), "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO redemptions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE reward_definitions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		// the conditional debit sees the 40 left by the first redemption
		mock.ExpectBegin()
		expectRewardLock(mock, ticket, 1)
		mock.ExpectExec("UPDATE accounts SET balance = balance - \\$1").
			WithArgs(int64(60), sqlmock.AnyArg(), "user-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT balance FROM accounts").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(40))
		mock.ExpectRollback()

		_, err := service.Redeem(ctx, "user-1", "coffee")
		require.NoError(t, err)
		_, err = service.Redeem(ctx, "user-1", "coffee")
		assert.True(t, errors.Is(err, ErrInsufficientBalance))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown and inactive rewards are not found", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM reward_definitions WHERE id = \\$1 FOR UPDATE").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(rewardRowColumns))
		mock.ExpectRollback()

		mock.ExpectBegin()
		expectRewardLock(mock, rewardFixture{id: "retired", cost: 10, active: false}, 0)
		mock.ExpectRollback()

		_, err := service.Redeem(ctx, "user-1", "missing")
		assert.True(t, IsNotFound(err))
		_, err = service.Redeem(ctx, "user-1", "retired")
		assert.True(t, IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired reward", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectBegin()
		expectRewardLock(mock, rewardFixture{id: "coffee", cost: 10, active: true, expiresAt: fixedNow}, 0)
		mock.ExpectRollback()

		_, err := service.Redeem(ctx, "user-1", "coffee")
		assert.True(t, errors.Is(err, ErrExpired))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("per-user cap counts open and fulfilled redemptions", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectBegin()
		expectRewardLock(mock, rewardFixture{id: "coffee", cost: 10, active: true, maxPerUser: 2}, 2)
		mock.ExpectRollback()

		_, err := service.Redeem(ctx, "user-1", "coffee")
		var limit *UserLimitExceededError
		require.True(t, errors.As(err, &limit))
		assert.Equal(t, int64(2), limit.Limit)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("code collision is retried", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectBegin()
		expectRewardLock(mock, coffee, 0)
		mock.ExpectExec("UPDATE accounts SET balance = balance - \\$1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO redemptions .* ON CONFLICT ON CONSTRAINT uq_redemption_code DO NOTHING").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO redemptions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE reward_definitions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := service.Redeem(ctx, "user-1", "coffee")
		require.NoError(t, err)
		assert.NotEmpty(t, result.RedemptionCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exhausted code attempts roll back the debit", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)
		service.config.CodeAttempts = 2

		mock.ExpectBegin()
		expectRewardLock(mock, coffee, 0)
		mock.ExpectExec("UPDATE accounts SET balance = balance - \\$1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO redemptions").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO redemptions").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := service.Redeem(ctx, "user-1", "coffee")
		assert.ErrorIs(t, err, ErrCodeExhausted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stock taken by a concurrent redemption", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectBegin()
		expectRewardLock(mock, rewardFixture{id: "coffee", cost: 50, active: true, totalAvailable: 5, redeemed: 4}, 0)
		mock.ExpectExec("UPDATE accounts SET balance = balance - \\$1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO redemptions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE reward_definitions").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := service.Redeem(ctx, "user-1", "coffee")
		assert.True(t, errors.Is(err, ErrOutOfStock))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rate limited before touching the ledger", func(t *testing.T) {
		client, redisMock := redismock.NewClientMock()
		service, mock := newTestRedemptionService(t, client)

		redisMock.ExpectIncr("redeem:ratelimit:user-1").SetVal(11)
		redisMock.ExpectExpire("redeem:ratelimit:user-1", time.Minute).SetVal(true)

		_, err := service.Redeem(ctx, "user-1", "coffee")
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.NoError(t, redisMock.ExpectationsWereMet())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("the last allowed attempt in a window goes through", func(t *testing.T) {
		client, redisMock := redismock.NewClientMock()
		service, mock := newTestRedemptionService(t, client)

		redisMock.ExpectIncr("redeem:ratelimit:user-1").SetVal(10)
		redisMock.ExpectExpire("redeem:ratelimit:user-1", time.Minute).SetVal(true)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM reward_definitions").WillReturnRows(sqlmock.NewRows(rewardRowColumns))
		mock.ExpectRollback()

		_, err := service.Redeem(ctx, "user-1", "missing")
		assert.True(t, IsNotFound(err))
		assert.NoError(t, redisMock.ExpectationsWereMet())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing ids are validation errors", func(t *testing.T) {
		service, _ := newTestRedemptionService(t, nil)

		_, err := service.Redeem(ctx, "", "coffee")
		assert.True(t, errors.Is(err, ErrValidation))
		_, err = service.Redeem(ctx, "user-1", "")
		assert.True(t, errors.Is(err, ErrValidation))
	})
}

func TestGenerateRedemptionCode_Unique(t *testing.T) {
	pattern := RedemptionCodePattern("CL-", 8)
	seen := make(map[string]bool)

	for i := 0; i < 2000; i++ {
		code, err := generateRedemptionCode("CL-", 8)
		require.NoError(t, err)
		require.Regexp(t, pattern, code)
		require.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

// transitionRow is what a successful guarded UPDATE ... RETURNING yields: the
// locked pre-update status followed by the updated redemption.
func transitionRow(from, to models.RedemptionStatus, fulfilledAt, notes, cancelledAt any) *sqlmock.Rows {
	return sqlmock.NewRows(append([]string{"prev_status"}, redemptionRowColumns...)).
		AddRow(string(from), "red-1", "user-1", "coffee", "Free Coffee", "One hot drink", "food", 50,
			"CL-ABCD2345", string(to), fixedNow.Add(-24*time.Hour), fixedNow.Add(30*24*time.Hour),
			fulfilledAt, notes, cancelledAt)
}

func noTransition() *sqlmock.Rows {
	return sqlmock.NewRows(append([]string{"prev_status"}, redemptionRowColumns...))
}

func TestRedemptionService_Transitions(t *testing.T) {
	ctx := context.Background()
	open := fixedNow.Add(30 * 24 * time.Hour)
	past := fixedNow.Add(-time.Hour)

	t.Run("fulfill pending", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		notes := "Handed over at kiosk 3"
		mock.ExpectQuery("UPDATE redemptions r SET status = 'FULFILLED'").
			WithArgs("CL-ABCD2345", sqlmock.AnyArg(), notes).
			WillReturnRows(transitionRow(models.RedemptionPending, models.RedemptionFulfilled, fixedNow, notes, nil))

		redemption, err := service.Fulfill(ctx, "CL-ABCD2345", &notes)
		require.NoError(t, err)
		assert.Equal(t, models.RedemptionFulfilled, redemption.Status)
		assert.Equal(t, fixedNow, *redemption.FulfilledAt)
		assert.Equal(t, notes, *redemption.FulfillmentNotes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approve then fulfill without notes", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectQuery("UPDATE redemptions r SET status = 'APPROVED'").
			WithArgs("CL-ABCD2345", sqlmock.AnyArg()).
			WillReturnRows(transitionRow(models.RedemptionPending, models.RedemptionApproved, nil, nil, nil))
		mock.ExpectQuery("UPDATE redemptions r SET status = 'FULFILLED'").
			WithArgs("CL-ABCD2345", sqlmock.AnyArg(), nil).
			WillReturnRows(transitionRow(models.RedemptionApproved, models.RedemptionFulfilled, fixedNow, nil, nil))

		approved, err := service.Approve(ctx, "CL-ABCD2345")
		require.NoError(t, err)
		assert.Equal(t, models.RedemptionApproved, approved.Status)

		fulfilled, err := service.Fulfill(ctx, "CL-ABCD2345", nil)
		require.NoError(t, err)
		assert.Equal(t, models.RedemptionFulfilled, fulfilled.Status)
		assert.Nil(t, fulfilled.FulfillmentNotes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	for _, from := range []models.RedemptionStatus{models.RedemptionPending, models.RedemptionApproved} {
		t.Run("cancel from "+string(from), func(t *testing.T) {
			service, mock := newTestRedemptionService(t, nil)
			logs := captureLog(t)

			// only the redemption row is written; no balance or ledger statement runs
			mock.ExpectQuery("UPDATE redemptions r SET status = 'CANCELLED', cancelled_at = \\$2").
				WithArgs("CL-ABCD2345", sqlmock.AnyArg()).
				WillReturnRows(transitionRow(from, models.RedemptionCancelled, nil, nil, fixedNow))

			redemption, err := service.Cancel(ctx, "CL-ABCD2345")
			require.NoError(t, err)
			assert.Equal(t, models.RedemptionCancelled, redemption.Status)
			require.NotNil(t, redemption.CancelledAt)
			assert.Equal(t, fixedNow, *redemption.CancelledAt)
			assert.Equal(t, int64(50), redemption.PointsSpent)
			assert.Contains(t, logs.String(), `"from":"`+string(from)+`"`)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("audit records the status the update replaced", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)
		logs := captureLog(t)

		// approved by another caller between any earlier read and this update
		mock.ExpectQuery("UPDATE redemptions r SET status = 'FULFILLED'").
			WillReturnRows(transitionRow(models.RedemptionApproved, models.RedemptionFulfilled, fixedNow, nil, nil))

		_, err := service.Fulfill(ctx, "CL-ABCD2345", nil)
		require.NoError(t, err)
		assert.Contains(t, logs.String(), `"from":"APPROVED","to":"FULFILLED"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no transition out of a terminal state", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectQuery("UPDATE redemptions r SET status = 'CANCELLED'").WillReturnRows(noTransition())
		mock.ExpectQuery("SELECT (.+) FROM redemptions WHERE code = \\$1").
			WithArgs("CL-ABCD2345").
			WillReturnRows(redemptionRow("CL-ABCD2345", models.RedemptionFulfilled, open))

		_, err := service.Cancel(ctx, "CL-ABCD2345")
		var te *TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "FULFILLED", te.From)
		assert.Equal(t, "CANCELLED", te.To)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fulfilling an overdue redemption reports expiry", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectQuery("UPDATE redemptions r SET status = 'FULFILLED'").WillReturnRows(noTransition())
		mock.ExpectQuery("SELECT (.+) FROM redemptions WHERE code = \\$1").
			WillReturnRows(redemptionRow("CL-ABCD2345", models.RedemptionApproved, past))

		_, err := service.Fulfill(ctx, "CL-ABCD2345", nil)
		assert.True(t, errors.Is(err, ErrExpired))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approving an overdue pending redemption reports expiry", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectQuery("UPDATE redemptions r SET status = 'APPROVED'").
			WithArgs("CL-ABCD2345", sqlmock.AnyArg()).
			WillReturnRows(noTransition())
		mock.ExpectQuery("SELECT (.+) FROM redemptions WHERE code = \\$1").
			WillReturnRows(redemptionRow("CL-ABCD2345", models.RedemptionPending, past))

		_, err := service.Approve(ctx, "CL-ABCD2345")
		var ee *ExpiredError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, "CL-ABCD2345", ee.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown code", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)

		mock.ExpectQuery("UPDATE redemptions r SET status = 'CANCELLED'").WillReturnRows(noTransition())
		mock.ExpectQuery("SELECT (.+) FROM redemptions WHERE code = \\$1").WillReturnRows(sqlmock.NewRows(redemptionRowColumns))

		_, err := service.Cancel(ctx, "CL-NOPE2345")
		assert.True(t, IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedemptionService_ValidateCode(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		status    models.RedemptionStatus
		expiresAt time.Time
		valid     bool
		reason    string
	}{
		{"pending", models.RedemptionPending, fixedNow.Add(time.Hour), true, ""},
		{"approved", models.RedemptionApproved, fixedNow.Add(time.Hour), true, ""},
		{"overdue", models.RedemptionPending, fixedNow.Add(-time.Second), false, "expired"},
		{"fulfilled", models.RedemptionFulfilled, fixedNow.Add(time.Hour), false, "fulfilled"},
		{"cancelled", models.RedemptionCancelled, fixedNow.Add(time.Hour), false, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, mock := newTestRedemptionService(t, nil)
			mock.ExpectQuery("FROM redemptions WHERE code").WillReturnRows(redemptionRow("CL-ABCD2345", tt.status, tt.expiresAt))

			result, err := service.ValidateCode(ctx, "CL-ABCD2345")
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
			assert.Equal(t, tt.reason, result.Reason)
			if tt.valid {
				require.NotNil(t, result.Redemption)
				assert.Equal(t, "Free Coffee", result.Redemption.RewardName)
			}
		})
	}

	t.Run("unknown code is invalid, not an error", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)
		mock.ExpectQuery("FROM redemptions WHERE code").WillReturnRows(sqlmock.NewRows(redemptionRowColumns))

		result, err := service.ValidateCode(ctx, "CL-NOPE2345")
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, "not_found", result.Reason)
	})
}

func TestRedemptionService_ExpireDue(t *testing.T) {
	service, mock := newTestRedemptionService(t, nil)

	mock.ExpectExec("UPDATE redemptions SET status = 'EXPIRED' WHERE status IN \\('PENDING', 'APPROVED'\\) AND expires_at < \\$1").
		WithArgs(fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 3))

	expired, err := service.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedemptionService_GetRedemptionHistory(t *testing.T) {
	service, mock := newTestRedemptionService(t, nil)

	notes := "Collected"
	mock.ExpectQuery("FROM redemptions WHERE user_id = \\$1 ORDER BY created_at DESC LIMIT \\$2").
		WithArgs("user-1", 10).
		WillReturnRows(sqlmock.NewRows(redemptionRowColumns).
			AddRow("red-2", "user-1", "coffee", "Free Coffee", "One hot drink", "food", 50,
				"CL-ZZZZ2345", "FULFILLED", fixedNow, fixedNow.Add(time.Hour), fixedNow, notes, nil).
			AddRow("red-1", "user-1", "coffee", "Free Coffee", "One hot drink", "food", 50,
				"CL-ABCD2345", "PENDING", fixedNow.Add(-time.Hour), fixedNow.Add(time.Hour), nil, nil, nil))

	history, err := service.GetRedemptionHistory(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RedemptionFulfilled, history[0].Status)
	assert.Equal(t, notes, *history[0].FulfillmentNotes)
	assert.Nil(t, history[1].FulfilledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedemptionService_RedemptionQR(t *testing.T) {
	ctx := context.Background()

	t.Run("renders png for the owner", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)
		mock.ExpectQuery("FROM redemptions WHERE code").
			WillReturnRows(redemptionRow("CL-ABCD2345", models.RedemptionPending, fixedNow.Add(time.Hour)))

		png, err := service.RedemptionQR(ctx, "user-1", "CL-ABCD2345")
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
	})

	t.Run("hidden from other users", func(t *testing.T) {
		service, mock := newTestRedemptionService(t, nil)
		mock.ExpectQuery("FROM redemptions WHERE code").
			WillReturnRows(redemptionRow("CL-ABCD2345", models.RedemptionPending, fixedNow.Add(time.Hour)))

		_, err := service.RedemptionQR(ctx, "user-2", "CL-ABCD2345")
		assert.True(t, IsNotFound(err))
	})
}
