package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/services"
)

type SearchHandler struct {
	search services.SearchService
}

func NewSearchHandler(search services.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	rd, ok := principal(c)
	if !ok {
		return
	}
	var q services.SearchQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_query", err)
		return
	}
	hits, err := h.search.Search(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, q)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"hits": hits, "count": len(hits)})
}
