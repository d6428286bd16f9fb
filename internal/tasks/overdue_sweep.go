package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/fines"
)

// OverdueLister finds open loans past due and prices them.
type OverdueLister interface {
	ListOverdue(ctx context.Context, asOf time.Time) ([]entities.Loan, error)
	ProvisionalFine(loan entities.Loan, asOf time.Time) fines.Assessment
	Policy() fines.Policy
}

// OverdueNotifier records one overdue notice per loan per day.
type OverdueNotifier interface {
	RecordOverdueNotice(ctx context.Context, loan entities.Loan, assessment fines.Assessment, currency string, asOf time.Time) (bool, error)
}

// OverdueSweepTask records an overdue notice for every open loan past due.
// AsOf defaults to the time the task runs.
type OverdueSweepTask struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// Config returns the queue configuration for overdue sweeps.
func (t OverdueSweepTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "overdue_sweep",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     5 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SweepResult summarizes one overdue sweep.
type SweepResult struct {
	Overdue  int
	Notified int
}

// SweepOverdue walks the overdue loans as of asOf and records a notice for
// each one not yet notified that day. Running it twice on the same day writes
// nothing the second time.
func SweepOverdue(ctx context.Context, lister OverdueLister, notifier OverdueNotifier, asOf time.Time) (SweepResult, error) {
	var result SweepResult

	loans, err := lister.ListOverdue(ctx, asOf)
	if err != nil {
		return result, fmt.Errorf("list overdue loans: %w", err)
	}
	result.Overdue = len(loans)

	currency := lister.Policy().Currency
	for _, loan := range loans {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		written, err := notifier.RecordOverdueNotice(ctx, loan, lister.ProvisionalFine(loan, asOf), currency, asOf)
		if err != nil {
			return result, fmt.Errorf("record notice for loan %d: %w", loan.ID, err)
		}
		if written {
			result.Notified++
		}
	}
	return result, nil
}

// OverdueSweepProcessor creates a processor function for OverdueSweepTask.
func OverdueSweepProcessor(lister OverdueLister, notifier OverdueNotifier) backlite.QueueProcessor[OverdueSweepTask] {
	return func(ctx context.Context, task OverdueSweepTask) error {
		if lister == nil || notifier == nil {
			return fmt.Errorf("overdue sweep not configured")
		}

		asOf := task.AsOf
		if asOf.IsZero() {
			asOf = time.Now().UTC()
		}

		result, err := SweepOverdue(ctx, lister, notifier, asOf)
		if err != nil {
			return fmt.Errorf("overdue sweep: %w", err)
		}

		log.Printf("[TASK] Overdue sweep as of %s: %d overdue, %d new notices",
			asOf.Format(time.RFC3339), result.Overdue, result.Notified)
		return nil
	}
}

// NewOverdueSweepQueue creates a backlite queue for overdue sweeps.
func NewOverdueSweepQueue(lister OverdueLister, notifier OverdueNotifier) backlite.Queue {
	return backlite.NewQueue(OverdueSweepProcessor(lister, notifier))
}
