package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lumina-knowledge-base/internal/app"
	"lumina-knowledge-base/internal/transport/http/response"
)

type SearchService interface {
	Search(ctx context.Context, input app.SearchInput) (*app.SearchResult, error)
}

type SearchHandler struct {
	search SearchService
}

type SearchRequest struct {
	Query string `json:"query" binding:"required,max=2000"`
	TopK  int    `json:"top_k" binding:"omitempty,min=1,max=100"`
}

func NewSearchHandler(search SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// Search never exposes upstream errors; the service has already logged them.
func (h *SearchHandler) Search(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.search.Search(c.Request.Context(), app.SearchInput{
		UserID: userID,
		Query:  req.Query,
		TopK:   req.TopK,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "query is required")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Search failed.")
		return
	}
	response.OK(c, result)
}
