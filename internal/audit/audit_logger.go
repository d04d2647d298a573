package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Details   any       `json:"details"`
}

// Logger writes one JSON "AUDIT:" line per ledger-affecting operation.
type Logger struct {
	now func() time.Time
}

func NewLogger() *Logger {
	return &Logger{now: time.Now}
}

func (a *Logger) LogCredit(entryID, userID string, amount int64, category string) {
	a.log(Event{
		EventType: "CREDIT",
		Reference: entryID,
		UserID:    userID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]string{"category": category},
	})
}

func (a *Logger) LogDebit(reference, userID string, amount int64, status string) {
	a.log(Event{
		EventType: "DEBIT",
		Reference: reference,
		UserID:    userID,
		Amount:    amount,
		Status:    status,
	})
}

func (a *Logger) LogDuplicate(sourceEventID, userID string) {
	a.log(Event{
		EventType: "DUPLICATE_SUPPRESSED",
		Reference: sourceEventID,
		UserID:    userID,
		Status:    "SKIPPED",
	})
}

func (a *Logger) LogTransition(redemptionID, userID, from, to string) {
	a.log(Event{
		EventType: "REDEMPTION_TRANSITION",
		Reference: redemptionID,
		UserID:    userID,
		Status:    "SUCCESS",
		Details:   map[string]string{"from": from, "to": to},
	})
}

func (a *Logger) LogUnlock(achievementID, userID string, points int64) {
	a.log(Event{
		EventType: "ACHIEVEMENT_UNLOCKED",
		Reference: achievementID,
		UserID:    userID,
		Amount:    points,
		Status:    "SUCCESS",
	})
}

func (a *Logger) LogError(reference, userID string, err error) {
	a.log(Event{
		EventType: "ERROR",
		Reference: reference,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	if a == nil {
		return
	}
	event.Timestamp = a.now()
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
