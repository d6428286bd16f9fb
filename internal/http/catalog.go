package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/entities"
)

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

// referenceResource is the CRUD surface shared by authors, publishers and
// categories.
type referenceResource[T any] struct {
	kind    string
	auditor *audit.Service
	id      func(*T) uint
	create  func(ctx context.Context, name string) (*T, error)
	get     func(ctx context.Context, id uint) (*T, error)
	list    func(ctx context.Context) ([]T, error)
	rename  func(ctx context.Context, id uint, name string) (*T, error)
	remove  func(ctx context.Context, id uint) error
}

func (r *referenceResource[T]) register(router gin.IRouter, path string, requireAdmin gin.HandlerFunc) {
	group := router.Group(path)
	group.GET("", r.List)
	group.GET("/:id", r.Get)
	group.POST("", requireAdmin, r.Create)
	group.PUT("/:id", requireAdmin, r.Rename)
	group.DELETE("/:id", requireAdmin, r.Delete)
}

func (r *referenceResource[T]) List(c *gin.Context) {
	items, err := r.list(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, ListResponse{Data: items, Count: len(items)})
}

func (r *referenceResource[T]) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	item, err := r.get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (r *referenceResource[T]) Create(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req, false) {
		return
	}
	item, err := r.create(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	r.auditor.LogCatalog(actor(c), r.kind+"_create", r.kind, r.id(item),
		fmt.Sprintf("%s %q created", r.kind, req.Name))
	c.JSON(http.StatusCreated, item)
}

func (r *referenceResource[T]) Rename(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req nameRequest
	if !bindJSON(c, &req, false) {
		return
	}
	item, err := r.rename(c.Request.Context(), id, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	r.auditor.LogCatalog(actor(c), r.kind+"_update", r.kind, id,
		fmt.Sprintf("%s %d renamed to %q", r.kind, id, req.Name))
	c.JSON(http.StatusOK, item)
}

func (r *referenceResource[T]) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := r.remove(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	r.auditor.LogCatalog(actor(c), r.kind+"_delete", r.kind, id, fmt.Sprintf("%s %d deleted", r.kind, id))
	c.Status(http.StatusNoContent)
}

// CatalogController serves the author, publisher and category endpoints.
type CatalogController struct {
	authors    *referenceResource[entities.Author]
	publishers *referenceResource[entities.Publisher]
	categories *referenceResource[entities.Category]
}

func NewCatalogController(store CatalogStore, auditor *audit.Service) *CatalogController {
	return &CatalogController{
		authors: &referenceResource[entities.Author]{
			kind:    "author",
			auditor: auditor,
			id:      func(a *entities.Author) uint { return a.ID },
			create:  store.CreateAuthor,
			get:     store.GetAuthorByID,
			list:    store.ListAuthors,
			rename:  store.RenameAuthor,
			remove:  store.DeleteAuthor,
		},
		publishers: &referenceResource[entities.Publisher]{
			kind:    "publisher",
			auditor: auditor,
			id:      func(p *entities.Publisher) uint { return p.ID },
			create:  store.CreatePublisher,
			get:     store.GetPublisherByID,
			list:    store.ListPublishers,
			rename:  store.RenamePublisher,
			remove:  store.DeletePublisher,
		},
		categories: &referenceResource[entities.Category]{
			kind:    "category",
			auditor: auditor,
			id:      func(c *entities.Category) uint { return c.ID },
			create:  store.CreateCategory,
			get:     store.GetCategoryByID,
			list:    store.ListCategories,
			rename:  store.RenameCategory,
			remove:  store.DeleteCategory,
		},
	}
}

// RegisterRoutes mounts the three reference collections under /api.
func (cc *CatalogController) RegisterRoutes(api gin.IRouter, requireAdmin gin.HandlerFunc) {
	cc.authors.register(api, "/authors", requireAdmin)
	cc.publishers.register(api, "/publishers", requireAdmin)
	cc.categories.register(api, "/categories", requireAdmin)
}
