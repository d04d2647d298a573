package services

import (
	"context"
	"time"

	"github.com/clearlane/rewards/internal/models"
)

// DuplicateGuard looks for an equivalent ledger entry near an event timestamp.
// It is a fast path only: the (user_id, source_event_id) unique constraint on
// ledger_entries is what makes awarding exactly-once.
type DuplicateGuard struct {
	db     querier
	window time.Duration
}

func NewDuplicateGuard(db querier, window time.Duration) *DuplicateGuard {
	return &DuplicateGuard{db: db, window: window}
}

// IsDuplicate reports whether (user, source event) was credited within +/- window of at.
func (g *DuplicateGuard) IsDuplicate(ctx context.Context, userID, sourceEventID string, at time.Time) (bool, error) {
	var exists bool
	err := g.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM ledger_entries
			WHERE user_id = $1 AND source_event_id = $2
			  AND occurred_at BETWEEN $3 AND $4
		)`, userID, sourceEventID, at.Add(-g.window), at.Add(g.window)).Scan(&exists)
	if err != nil {
		return false, storageErr("duplicate check", err)
	}
	return exists, nil
}

// IsRecentUnsourced is the best-effort check for events that carry no source id:
// same user, category and driver within the window. Concurrent submissions can
// both pass it.
func (g *DuplicateGuard) IsRecentUnsourced(ctx context.Context, userID string, category models.LedgerCategory, driverID *string, at time.Time) (bool, error) {
	var exists bool
	err := g.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM ledger_entries
			WHERE user_id = $1 AND category = $2 AND source_event_id IS NULL
			  AND driver_id IS NOT DISTINCT FROM $3
			  AND occurred_at BETWEEN $4 AND $5
		)`, userID, string(category), driverID, at.Add(-g.window), at.Add(g.window)).Scan(&exists)
	if err != nil {
		return false, storageErr("duplicate check", err)
	}
	return exists, nil
}
