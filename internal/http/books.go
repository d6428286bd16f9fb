package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/database/books"
)

type bookRequest struct {
	Title         string `json:"title"`
	ISBN          string `json:"isbn"`
	PublishedDate string `json:"published_date"`
	Stock         int    `json:"stock"`
	Available     *int   `json:"available"`
	AuthorID      uint   `json:"author_id"`
	PublisherID   uint   `json:"publisher_id"`
	CategoryIDs   []uint `json:"category_ids"`
}

func (r bookRequest) input() (books.BookInput, error) {
	published, err := parseOptionalDate(r.PublishedDate)
	if err != nil {
		return books.BookInput{}, err
	}
	in := books.BookInput{
		Title:       r.Title,
		ISBN:        r.ISBN,
		Stock:       r.Stock,
		Available:   r.Available,
		AuthorID:    r.AuthorID,
		PublisherID: r.PublisherID,
		CategoryIDs: r.CategoryIDs,
	}
	if published != nil {
		in.PublishedDate = *published
	}
	return in, nil
}

type categoriesRequest struct {
	CategoryIDs []uint `json:"category_ids"`
}

type BooksController struct {
	store   BookStore
	auditor *audit.Service
}

func NewBooksController(store BookStore, auditor *audit.Service) *BooksController {
	return &BooksController{
		store:   store,
		auditor: auditor,
	}
}

// Search lists the catalog filtered, sorted and paginated by query parameters.
func (bc *BooksController) Search(c *gin.Context) {
	q, err := searchQuery(c)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	page, err := bc.store.Search(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func searchQuery(c *gin.Context) (books.Query, error) {
	q := books.Query{
		Title:     c.Query("title"),
		ISBN:      c.Query("isbn"),
		Category:  c.Query("category"),
		Author:    c.Query("author"),
		Publisher: c.Query("publisher"),
		Direction: books.ParseSortDirection(c.Query("order")),
	}
	q.Sort, _ = books.ParseSortField(c.Query("sort"))

	var err error
	if q.PublishedFrom, err = parseOptionalDate(c.Query("published_from")); err != nil {
		return q, fmt.Errorf("published_from: %w", err)
	}
	if q.PublishedTo, err = parseOptionalDate(c.Query("published_to")); err != nil {
		return q, fmt.Errorf("published_to: %w", err)
	}
	if q.PageIndex, err = optionalInt(c.Query("page")); err != nil {
		return q, fmt.Errorf("page: %w", err)
	}
	if q.PageSize, err = optionalInt(c.Query("page_size")); err != nil {
		return q, fmt.Errorf("page_size: %w", err)
	}
	return q, nil
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (bc *BooksController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	book, err := bc.store.GetBookByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (bc *BooksController) Create(c *gin.Context) {
	var req bookRequest
	if !bindJSON(c, &req, false) {
		return
	}
	in, err := req.input()
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	book, err := bc.store.CreateBook(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	bc.auditor.LogCatalog(actor(c), "book_create", "book", book.ID,
		fmt.Sprintf("Book %q created with %d copies", book.Title, book.Stock))
	c.JSON(http.StatusCreated, book)
}

func (bc *BooksController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req bookRequest
	if !bindJSON(c, &req, false) {
		return
	}
	in, err := req.input()
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	book, err := bc.store.UpdateBook(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	bc.auditor.LogCatalog(actor(c), "book_update", "book", book.ID,
		fmt.Sprintf("Book %q updated: stock %d, available %d", book.Title, book.Stock, book.Available))
	c.JSON(http.StatusOK, book)
}

// ReconcileCategories replaces the category set of a book.
func (bc *BooksController) ReconcileCategories(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req categoriesRequest
	if !bindJSON(c, &req, false) {
		return
	}

	res, err := bc.store.ReconcileCategories(c.Request.Context(), id, req.CategoryIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	bc.auditor.LogReconcile(actor(c), id, res)
	c.JSON(http.StatusOK, res)
}

func (bc *BooksController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := bc.store.DeleteBook(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	bc.auditor.LogCatalog(actor(c), "book_delete", "book", id, fmt.Sprintf("Book %d deleted", id))
	c.Status(http.StatusNoContent)
}

// parseTimeQuery is used by endpoints that accept an as_of override.
func parseTimeQuery(c *gin.Context, name string, fallback time.Time) (time.Time, bool) {
	t, err := parseOptionalDate(c.Query(name))
	if err != nil {
		respondBadRequest(c, name+": "+err.Error())
		return time.Time{}, false
	}
	if t == nil {
		return fallback, true
	}
	return *t, true
}
