package services

import (
	"context"
	"log"
	"sync"
	"time"
)

type expirer interface {
	ExpireDue(ctx context.Context) (int64, error)
}

// ExpiryWorker periodically moves overdue open redemptions to EXPIRED.
type ExpiryWorker struct {
	redemptions expirer
	interval    time.Duration
	timeout     time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewExpiryWorker(redemptions expirer, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpiryWorker{
		redemptions: redemptions,
		interval:    interval,
		timeout:     30 * time.Second,
	}
}

// Start runs one sweep immediately, then one per interval.
func (w *ExpiryWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ticker != nil {
		return
	}
	w.ticker = time.NewTicker(w.interval)
	w.stop = make(chan struct{})
	w.wg.Add(1)

	go w.run(w.ticker, w.stop)

	log.Printf("[ExpiryWorker] Started with interval: %v", w.interval)
}

// Stop halts the worker and waits for an in-flight sweep to finish.
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ticker == nil {
		return
	}
	w.ticker.Stop()
	close(w.stop)
	w.wg.Wait()
	w.ticker = nil
	log.Println("[ExpiryWorker] Stopped")
}

func (w *ExpiryWorker) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer w.wg.Done()

	w.sweep()
	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-stop:
			return
		}
	}
}

func (w *ExpiryWorker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if _, err := w.redemptions.ExpireDue(ctx); err != nil {
		log.Printf("[ExpiryWorker] Sweep failed: %v", err)
	}
}
