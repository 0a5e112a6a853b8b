package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gitgrid/gitgrid/internal/auth"
	"github.com/gitgrid/gitgrid/internal/service"
)

type globalSearchQuery struct {
	Query       string `form:"query"`
	Collections string `form:"collections"`
	Page        int    `form:"page" binding:"omitempty,min=1"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (s *Server) handleGlobalSearch(c *gin.Context) {
	var q globalSearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	var names []string
	if q.Collections != "" {
		names = strings.Split(q.Collections, ",")
	}

	res, err := s.svc.GlobalSearch(c.Request.Context(), auth.Owner(c), service.GlobalSearchParams{
		Query:       q.Query,
		Collections: names,
		Page:        q.Page,
		Limit:       q.Limit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		*service.GlobalSearchResult
	}{true, res})
}

type advancedFilterRequest struct {
	Filters   map[string]any      `json:"filters"`
	DateRange *service.DateWindow `json:"dateRange"`
	Search    string              `json:"search" binding:"omitempty,max=100"`
	Page      int                 `json:"page" binding:"omitempty,min=1"`
	Limit     int                 `json:"limit" binding:"omitempty,min=1,max=100"`
	SortBy    string              `json:"sortBy" binding:"omitempty,max=200"`
	SortOrder string              `json:"sortOrder" binding:"omitempty,oneof=asc desc"`
}

func (s *Server) handleAdvancedFilter(c *gin.Context) {
	var req advancedFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	res, err := s.svc.AdvancedFilter(c.Request.Context(), auth.Owner(c), c.Param("name"), service.AdvancedFilterParams{
		Filters:   req.Filters,
		DateRange: req.DateRange,
		Search:    req.Search,
		Page:      req.Page,
		Limit:     req.Limit,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		*service.AdvancedFilterResult
	}{true, res})
}
