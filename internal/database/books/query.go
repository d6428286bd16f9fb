package books

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/entities"
)

// SortField names a column the catalog can be ordered by.
type SortField string

const (
	SortByID            SortField = "id"
	SortByTitle         SortField = "title"
	SortByISBN          SortField = "isbn"
	SortByPublishedDate SortField = "publishedDate"
	SortByStock         SortField = "stock"
	SortByAvailable     SortField = "available"
	SortByAuthorName    SortField = "authorName"
	SortByPublisherName SortField = "publisherName"
)

// sortColumns maps each sort field to the column it orders by. Only values
// from this table ever reach ORDER BY.
var sortColumns = map[SortField]string{
	SortByID:            "books.id",
	SortByTitle:         "books.title",
	SortByISBN:          "books.isbn",
	SortByPublishedDate: "books.published_date",
	SortByStock:         "books.stock",
	SortByAvailable:     "books.available",
	SortByAuthorName:    "authors.name",
	SortByPublisherName: "publishers.name",
}

// ParseSortField resolves a client-supplied sort name. It accepts the
// camelCase names as well as snake_case and any letter case.
func ParseSortField(s string) (SortField, bool) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for field := range sortColumns {
		if strings.ToLower(string(field)) == key {
			return field, true
		}
	}
	return SortByID, false
}

// SortDirection is ascending or descending.
type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

// ParseSortDirection treats "desc", "descend" and "descending" as descending
// and anything else as ascending.
func ParseSortDirection(s string) SortDirection {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descend", "descending":
		return Descending
	default:
		return Ascending
	}
}

func (d SortDirection) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// Query describes a catalog search. Empty string filters and nil dates are
// ignored; string filters match case-insensitive substrings.
type Query struct {
	Title         string
	ISBN          string
	Category      string
	Author        string
	Publisher     string
	PublishedFrom *time.Time
	PublishedTo   *time.Time

	Sort      SortField
	Direction SortDirection

	PageIndex int
	PageSize  int
}

// Normalize clamps paging to sane values: a page index below 1 becomes 1, a
// missing page size becomes defaultSize and an oversized one becomes maxSize.
// An unknown sort field falls back to id ascending.
func (q *Query) Normalize(defaultSize, maxSize int) {
	if defaultSize < 1 {
		defaultSize = config.DefaultPageSize
	}
	if maxSize < 1 {
		maxSize = config.MaxPageSize
	}
	if q.PageIndex < 1 {
		q.PageIndex = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultSize
	}
	if q.PageSize > maxSize {
		q.PageSize = maxSize
	}
	if _, ok := sortColumns[q.Sort]; !ok {
		q.Sort = SortByID
		q.Direction = Ascending
	}
}

// Page is one page of search results.
type Page struct {
	PageIndex  int             `json:"page_index"`
	PageSize   int             `json:"page_size"`
	TotalCount int64           `json:"total_count"`
	TotalPages int             `json:"total_pages"`
	Items      []entities.Book `json:"items"`
}

// Search filters, sorts and paginates the catalog. TotalCount is the number of
// rows matching the filters, independent of paging.
func (r *Repository) Search(ctx context.Context, q Query) (*Page, error) {
	q.Normalize(r.defaultPageSize, r.maxPageSize)

	var total int64
	if err := r.filtered(ctx, q).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}

	items := []entities.Book{}
	err := r.filtered(ctx, q).
		Select("books.*").
		Order(sortColumns[q.Sort] + " " + q.Direction.String()).
		Order("books.id ASC").
		Limit(q.PageSize).
		Offset((q.PageIndex - 1) * q.PageSize).
		Preload("Author").
		Preload("Publisher").
		Preload("Categories", func(db *gorm.DB) *gorm.DB {
			return db.Order("categories.name ASC")
		}).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}

	pages := 0
	if total > 0 {
		pages = int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	}

	return &Page{
		PageIndex:  q.PageIndex,
		PageSize:   q.PageSize,
		TotalCount: total,
		TotalPages: pages,
		Items:      items,
	}, nil
}

// filtered builds a fresh statement with the joins and filters of q, so the
// count and the page query never share state.
func (r *Repository) filtered(ctx context.Context, q Query) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&entities.Book{}).
		Joins("LEFT JOIN authors ON authors.id = books.author_id").
		Joins("LEFT JOIN publishers ON publishers.id = books.publisher_id")

	if q.Title != "" {
		tx = tx.Where(`LOWER(books.title) LIKE ? ESCAPE '\'`, containsPattern(q.Title))
	}
	if q.ISBN != "" {
		tx = tx.Where(`LOWER(books.isbn) LIKE ? ESCAPE '\'`, containsPattern(q.ISBN))
	}
	if q.Author != "" {
		tx = tx.Where(`LOWER(authors.name) LIKE ? ESCAPE '\'`, containsPattern(q.Author))
	}
	if q.Publisher != "" {
		tx = tx.Where(`LOWER(publishers.name) LIKE ? ESCAPE '\'`, containsPattern(q.Publisher))
	}
	if q.Category != "" {
		tx = tx.Where(`EXISTS (
			SELECT 1 FROM book_categories bc
			JOIN categories c ON c.id = bc.category_id
			WHERE bc.book_id = books.id AND LOWER(c.name) LIKE ? ESCAPE '\')`, containsPattern(q.Category))
	}
	if q.PublishedFrom != nil {
		tx = tx.Where("books.published_date >= ?", *q.PublishedFrom)
	}
	if q.PublishedTo != nil {
		tx = tx.Where("books.published_date <= ?", *q.PublishedTo)
	}
	return tx
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns user text into a lower-cased LIKE pattern matching it
// anywhere, with the wildcard characters taken literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}
