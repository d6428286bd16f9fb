package books

import (
	"context"
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/liberr"
)

// ReconcileResult lists the category ids touched by a reconciliation.
type ReconcileResult struct {
	Added     []uint `json:"added"`
	Removed   []uint `json:"removed"`
	Unchanged []uint `json:"unchanged"`
}

// Changed reports whether any link was added or removed.
func (r *ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// ReconcileCategories brings the book's category links to exactly
// categoryIDs. Links already present are left untouched, so their CreatedAt
// survives; only the difference is deleted or inserted. The whole change is
// one transaction.
func (r *Repository) ReconcileCategories(ctx context.Context, bookID uint, categoryIDs []uint) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book entities.Book
		if err := tx.Select("id").First(&book, bookID).Error; err != nil {
			return bookNotFound(err)
		}

		now := r.now()
		res, err := reconcileCategories(tx, bookID, categoryIDs, now)
		if err != nil {
			return err
		}
		result = res

		if res.Changed() {
			return tx.Model(&entities.Book{}).Where("id = ?", bookID).Update("updated_at", now).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reconcileCategories runs inside the caller's transaction.
func reconcileCategories(tx *gorm.DB, bookID uint, desired []uint, now time.Time) (*ReconcileResult, error) {
	want := make([]uint, 0, len(desired))
	for _, id := range desired {
		if id == 0 {
			return nil, liberr.ErrInvalidInput.WithMessage("category ids must be positive")
		}
		if !slices.Contains(want, id) {
			want = append(want, id)
		}
	}
	if len(want) == 0 {
		return nil, liberr.ErrCategoryRequired
	}
	slices.Sort(want)

	var existing []uint
	if err := tx.Model(&entities.Category{}).Where("id IN ?", want).Pluck("id", &existing).Error; err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	if missing := difference(want, existing); len(missing) > 0 {
		return nil, liberr.ErrCategoryNotFound.
			WithMessage("categories not found: %v", missing).
			WithDetails(map[string]any{"missing_category_ids": missing})
	}

	var current []uint
	if err := tx.Model(&entities.BookCategory{}).Where("book_id = ?", bookID).Pluck("category_id", &current).Error; err != nil {
		return nil, fmt.Errorf("load category links: %w", err)
	}
	slices.Sort(current)

	result := &ReconcileResult{
		Added:     difference(want, current),
		Removed:   difference(current, want),
		Unchanged: intersection(want, current),
	}

	if len(result.Removed) > 0 {
		err := tx.Where("book_id = ? AND category_id IN ?", bookID, result.Removed).
			Delete(&entities.BookCategory{}).Error
		if err != nil {
			return nil, fmt.Errorf("remove category links: %w", err)
		}
	}

	if len(result.Added) > 0 {
		links := make([]entities.BookCategory, 0, len(result.Added))
		for _, categoryID := range result.Added {
			links = append(links, entities.BookCategory{BookID: bookID, CategoryID: categoryID, CreatedAt: now})
		}
		if err := tx.Create(&links).Error; err != nil {
			return nil, fmt.Errorf("add category links: %w", err)
		}
	}

	return result, nil
}

// difference returns the elements of a that are not in b, in a's order.
func difference(a, b []uint) []uint {
	out := []uint{}
	for _, v := range a {
		if !slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func intersection(a, b []uint) []uint {
	out := []uint{}
	for _, v := range a {
		if slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}
