package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gitgrid/gitgrid/internal/auth"
	"github.com/gitgrid/gitgrid/internal/export"
	"github.com/gitgrid/gitgrid/internal/facet"
	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/gitgrid/gitgrid/internal/service"
)

type browseQuery struct {
	Page           int    `form:"page" binding:"omitempty,min=1"`
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Search         string `form:"search" binding:"omitempty,max=100"`
	SearchFields   string `form:"searchFields" binding:"omitempty,max=500"`
	SortBy         string `form:"sortBy" binding:"omitempty,max=200"`
	SortOrder      string `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
	ActiveFilterID string `form:"activeFilterId"`
	FacetQuery     string `form:"facetQuery"`
	RepositoryID   string `form:"repositoryId"`
}

func (s *Server) handleCollections(c *gin.Context) {
	infos, err := s.svc.Collections(c.Request.Context(), auth.Owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "collections": infos})
}

func (s *Server) handleBrowse(c *gin.Context) {
	var q browseQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	facets, err := parseFacetQuery(q.FacetQuery)
	if err != nil {
		s.fail(c, err)
		return
	}

	p := service.BrowseParams{
		Page:           q.Page,
		Limit:          q.Limit,
		Search:         q.Search,
		SearchFields:   facet.ParseFields(q.SearchFields),
		SortBy:         q.SortBy,
		SortOrder:      q.SortOrder,
		ActiveFilterID: q.ActiveFilterID,
		FacetQuery:     facets,
	}
	if q.RepositoryID != "" {
		p.RepositoryID = service.RepositoryKey(q.RepositoryID)
	}

	res, err := s.svc.Browse(c.Request.Context(), auth.Owner(c), c.Param("name"), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		*service.BrowseResult
	}{true, res})
}

// parseFacetQuery decodes the facetQuery parameter, a JSON object of
// field constraints.
func parseFacetQuery(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, model.Validationf("facetQuery must be a JSON object")
	}
	return m, nil
}

func (s *Server) handleFields(c *gin.Context) {
	var q struct {
		Sample int `form:"sample" binding:"omitempty,min=1,max=100"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	res, err := s.svc.Fields(c.Request.Context(), auth.Owner(c), c.Param("name"), q.Sample)
	if err != nil {
		s.fail(c, err)
		return
	}
	body := struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
		*service.FieldsResult
	}{Success: true, FieldsResult: res}
	if res.SampleSize == 0 {
		body.Message = "No data available for this collection"
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleStats(c *gin.Context) {
	name := c.Param("name")
	stats, err := s.svc.Stats(c.Request.Context(), auth.Owner(c), name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "collection": name, "stats": stats})
}

func (s *Server) handleExport(c *gin.Context) {
	var q struct {
		Format string `form:"format" binding:"omitempty,oneof=json csv"`
		Limit  int    `form:"limit" binding:"omitempty,min=1"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	name := c.Param("name")
	env, err := s.svc.Export(c.Request.Context(), auth.Owner(c), name, q.Format, q.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}

	if q.Format != export.FormatCSV {
		c.JSON(http.StatusOK, struct {
			Success bool `json:"success"`
			*export.Envelope
		}{true, env})
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, env.Data); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(name)))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) handleFacetedSearch(c *gin.Context) {
	var req struct {
		Facets      map[string]any `json:"facets"`
		FacetFields []string       `json:"facetFields"`
		Search      string         `json:"search" binding:"omitempty,max=100"`
		Page        int            `json:"page" binding:"omitempty,min=1"`
		Limit       int            `json:"limit" binding:"omitempty,min=1,max=100"`
		FacetLimit  int            `json:"facetLimit" binding:"omitempty,min=1,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	res, err := s.svc.FacetedSearch(c.Request.Context(), auth.Owner(c), c.Param("name"), service.FacetedSearchParams{
		Facets:      req.Facets,
		FacetFields: facet.Normalize(req.FacetFields),
		Search:      req.Search,
		Page:        req.Page,
		Limit:       req.Limit,
		FacetLimit:  req.FacetLimit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		*service.FacetedSearchResult
	}{true, res})
}

func (s *Server) handleDeleteRecord(c *gin.Context) {
	if err := s.svc.DeleteRecord(c.Request.Context(), auth.Owner(c), c.Param("name"), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Record deleted successfully"})
}

func (s *Server) handleClear(c *gin.Context) {
	n, err := s.svc.ClearCollection(c.Request.Context(), auth.Owner(c), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      fmt.Sprintf("Cleared %d records", n),
		"deletedCount": n,
	})
}

type overviewQuery struct {
	RepositoryID string `form:"repositoryId"`
	Page         int    `form:"page" binding:"omitempty,min=1"`
	Limit        int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	SortBy       string `form:"sortBy" binding:"omitempty,max=200"`
	SortOrder    string `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
	DateFrom     string `form:"dateFrom"`
	DateTo       string `form:"dateTo"`
	Author       string `form:"author" binding:"omitempty,max=100"`
	Status       string `form:"status" binding:"omitempty,oneof=open closed merged"`
}

func (s *Server) handleRepositoryOverview(c *gin.Context) {
	var q overviewQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	p := service.OverviewParams{
		RepositoryID: q.RepositoryID,
		Page:         q.Page,
		Limit:        q.Limit,
		SortBy:       q.SortBy,
		SortOrder:    q.SortOrder,
		Author:       q.Author,
		Status:       q.Status,
	}
	var err error
	if p.DateFrom, err = parseDate("dateFrom", q.DateFrom); err != nil {
		s.fail(c, err)
		return
	}
	if p.DateTo, err = parseDate("dateTo", q.DateTo); err != nil {
		s.fail(c, err)
		return
	}

	res, err := s.svc.RepositoryOverview(c.Request.Context(), auth.Owner(c), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		*service.OverviewResult
	}{true, res})
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseDate accepts RFC 3339 timestamps and plain dates. Empty is nil.
func parseDate(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, model.Validationf("%s must be an ISO 8601 date", name)
}

func (s *Server) handleFacets(c *gin.Context) {
	var q struct {
		Fields string `form:"fields"`
		Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	name := c.Param("collection")
	res, err := s.svc.Facets(c.Request.Context(), auth.Owner(c), name, facet.ParseFields(q.Fields), q.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"collection": name,
		"facets":     res.Counts,
		"errors":     res.Errors,
	})
}

func (s *Server) handleFacetValues(c *gin.Context) {
	var q struct {
		Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	name, field := c.Param("collection"), c.Param("field")
	values, err := s.svc.FacetValues(c.Request.Context(), auth.Owner(c), name, field, q.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"collection": name,
		"field":      field,
		"values":     values,
	})
}
