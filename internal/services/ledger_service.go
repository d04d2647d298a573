package services

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/clearlane/rewards/internal/audit"
	"github.com/clearlane/rewards/internal/database"
	"github.com/clearlane/rewards/internal/models"
	"github.com/google/uuid"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// LedgerService owns the append-only ledger and the per-user balance.
// Balance changes are conditional row updates; there is no application-level locking.
type LedgerService struct {
	db    *sql.DB
	audit *audit.Logger
	now   func() time.Time
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:    db,
		audit: audit.NewLogger(),
		now:   time.Now,
	}
}

// Credit appends entry and raises the balance in one transaction. It returns false
// without touching the balance when (user, source event) was already credited.
func (s *LedgerService) Credit(ctx context.Context, entry *models.LedgerEntry) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storageErr("begin credit", err)
	}
	defer tx.Rollback()

	credited, err := s.CreditTx(ctx, tx, entry)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, storageErr("commit credit", err)
	}
	return credited, nil
}

// CreditTx is Credit inside a caller-owned transaction.
func (s *LedgerService) CreditTx(ctx context.Context, tx *sql.Tx, entry *models.LedgerEntry) (bool, error) {
	if entry.UserID == "" {
		return false, &ValidationError{Field: "userId", Reason: "required"}
	}
	if entry.Amount <= 0 {
		return false, &ValidationError{Field: "amount", Reason: "credit must be positive"}
	}

	now := s.now()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = now
	}
	entry.CreatedAt = now

	if err := ensureAccount(ctx, tx, entry.UserID, now); err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, user_id, driver_id, source_event_id, amount, category, base_points, category_multiplier,
		 time_multiplier, vehicle_bonus, distance_bonus, emergency_type, time_saved_seconds, distance_km,
		 occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT ON CONSTRAINT uq_ledger_user_source DO NOTHING`,
		entry.ID, entry.UserID, entry.DriverID, entry.SourceEventID, entry.Amount, string(entry.Category),
		entry.Breakdown.BasePoints, entry.Breakdown.CategoryMultiplier, entry.Breakdown.TimeMultiplier,
		entry.Breakdown.VehicleBonus, entry.Breakdown.DistanceBonus, entry.EmergencyType,
		entry.TimeSavedSeconds, entry.DistanceKm, entry.OccurredAt, entry.CreatedAt)
	if err != nil {
		return false, storageErr("insert ledger entry", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("insert ledger entry", err)
	}
	if inserted == 0 {
		source := ""
		if entry.SourceEventID != nil {
			source = *entry.SourceEventID
		}
		log.Printf("[LEDGER] CreditTx - duplicate source event %s for user %s", source, entry.UserID)
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance + $1, version = version + 1, updated_at = $2
		WHERE user_id = $3`,
		entry.Amount, now, entry.UserID); err != nil {
		return false, storageErr("credit balance", err)
	}

	s.audit.LogCredit(entry.ID, entry.UserID, entry.Amount, string(entry.Category))
	return true, nil
}

// Debit lowers the balance by amount only if the balance covers it.
func (s *LedgerService) Debit(ctx context.Context, userID string, amount int64, reference string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin debit", err)
	}
	defer tx.Rollback()

	if err := s.DebitTx(ctx, tx, userID, amount); err != nil {
		s.audit.LogDebit(reference, userID, amount, "FAILED")
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit debit", err)
	}
	s.audit.LogDebit(reference, userID, amount, "SUCCESS")
	return nil
}

// DebitTx performs the balance check and the decrement as a single statement, so
// concurrent debits against one account can never drive it negative.
func (s *LedgerService) DebitTx(ctx context.Context, tx *sql.Tx, userID string, amount int64) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "debit must be positive"}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance - $1, version = version + 1, updated_at = $2
		WHERE user_id = $3 AND balance >= $1`,
		amount, s.now(), userID)
	if err != nil {
		if database.IsCheckViolation(err) {
			return &InsufficientBalanceError{UserID: userID, Requested: amount}
		}
		return storageErr("debit balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("debit balance", err)
	}
	if rowsAffected == 0 {
		available, err := balanceOf(ctx, tx, userID)
		if err != nil {
			return err
		}
		return &InsufficientBalanceError{UserID: userID, Available: available, Requested: amount}
	}
	return nil
}

func (s *LedgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	return balanceOf(ctx, s.db, userID)
}

// History returns the user's most recent ledger entries, newest first.
func (s *LedgerService) History(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, driver_id, source_event_id, amount, category, base_points,
		       category_multiplier, time_multiplier, vehicle_bonus, distance_bonus,
		       emergency_type, time_saved_seconds, distance_km, occurred_at, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY occurred_at DESC, created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, storageErr("query ledger history", err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var entry models.LedgerEntry
		var category string
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.DriverID, &entry.SourceEventID, &entry.Amount, &category,
			&entry.Breakdown.BasePoints, &entry.Breakdown.CategoryMultiplier, &entry.Breakdown.TimeMultiplier,
			&entry.Breakdown.VehicleBonus, &entry.Breakdown.DistanceBonus,
			&entry.EmergencyType, &entry.TimeSavedSeconds, &entry.DistanceKm, &entry.OccurredAt, &entry.CreatedAt,
		); err != nil {
			return nil, storageErr("scan ledger entry", err)
		}
		entry.Category = models.LedgerCategory(category)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate ledger history", err)
	}
	return entries, nil
}

// Reconcile compares the stored balance with credits minus redemption debits.
func (s *LedgerService) Reconcile(ctx context.Context, userID string) (*models.Reconciliation, error) {
	rec := &models.Reconciliation{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT balance FROM accounts WHERE user_id = $1), 0),
		       COALESCE((SELECT SUM(amount) FROM ledger_entries WHERE user_id = $1), 0),
		       COALESCE((SELECT SUM(points_spent) FROM redemptions WHERE user_id = $1), 0)`,
		userID).Scan(&rec.Balance, &rec.Credits, &rec.Debits)
	if err != nil {
		return nil, storageErr("reconcile balance", err)
	}

	rec.Drift = rec.Balance - (rec.Credits - rec.Debits)
	if rec.Drift != 0 {
		log.Printf("[LEDGER] Reconcile - drift %d for user %s (balance=%d credits=%d debits=%d)",
			rec.Drift, userID, rec.Balance, rec.Credits, rec.Debits)
	}
	return rec, nil
}

func ensureAccount(ctx context.Context, q querier, userID string, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (user_id, balance, version, updated_at)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, now)
	return storageErr("ensure account", err)
}

func balanceOf(ctx context.Context, q querier, userID string) (int64, error) {
	var balance int64
	err := q.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("read balance", err)
	}
	return balance, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
