package catalog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"charthub/internal/feed"
)

type Handler struct {
	Repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)        // GET /movies
	rg.GET("/:id", h.getByID) // GET /movies/:id
}

func (h *Handler) list(c *gin.Context) {
	q := ListQuery{
		Q:       c.Query("q"),
		Genre:   c.Query("genre"),
		Country: c.Query("country"),
		Year:    parseInt(c.Query("year"), 0),
		Order:   c.Query("order"),
		Limit:   parseInt(c.Query("limit"), 50),
		Offset:  parseInt(c.Query("offset"), 0),
	}

	total, err := h.Repo.Count(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}

	items, err := h.Repo.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
		"items":  items,
	})
}

func (h *Handler) getByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	m, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// DimensionHandler serves the genre and country lookup endpoints.
func (h *Handler) DimensionHandler(dim Dimension) gin.HandlerFunc {
	return func(c *gin.Context) {
		values, err := h.Repo.ListDimensions(c.Request.Context(), dim)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": values})
	}
}

// AdminHandler exposes the mutating maintenance endpoints. Changes are
// announced on the feed hub.
type AdminHandler struct {
	Repo *Repo
	Hub  *feed.Hub
}

func NewAdminHandler(repo *Repo, hub *feed.Hub) *AdminHandler {
	return &AdminHandler{Repo: repo, Hub: hub}
}

func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reconcile", h.reconcile)
	rg.DELETE("/movies/:id", h.deleteMovie)
}

func (h *AdminHandler) reconcile(c *gin.Context) {
	chunk := parseInt(c.Query("chunk"), 500)

	removed, err := h.Repo.Reconcile(c.Request.Context(), chunk)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile failed"})
		return
	}

	if h.Hub != nil && removed > 0 {
		h.Hub.Publish(feed.Reconciled(removed))
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *AdminHandler) deleteMovie(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	// Fetch first so the feed event can carry the title.
	m, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	if _, err := h.Repo.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}

	if h.Hub != nil {
		h.Hub.Publish(feed.Deleted(id, m.Title))
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
