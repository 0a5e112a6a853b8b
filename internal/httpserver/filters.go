package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gitgrid/gitgrid/internal/auth"
	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/gitgrid/gitgrid/internal/service"
)

// Filter routes answer with the bare SavedFilter JSON and {"error": ...}
// bodies, matching what the grid frontend expects.

func (s *Server) handleListFilters(c *gin.Context) {
	filters, err := s.svc.ListFilters(c.Request.Context(), auth.Owner(c))
	if err != nil {
		s.filterFail(c, err, "fetch filters")
		return
	}
	c.JSON(http.StatusOK, filters)
}

func (s *Server) handleGetFilter(c *gin.Context) {
	f, err := s.svc.GetFilter(c.Request.Context(), auth.Owner(c), c.Param("id"))
	if err != nil {
		s.filterFail(c, err, "fetch filter")
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) handleCreateFilter(c *gin.Context) {
	var in service.FilterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.filterFail(c, model.Validationf("%v", err), "create filter")
		return
	}
	f, err := s.svc.CreateFilter(c.Request.Context(), auth.Owner(c), in)
	if err != nil {
		s.filterFail(c, err, "create filter")
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (s *Server) handleUpdateFilter(c *gin.Context) {
	var patch model.FilterPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.filterFail(c, model.Validationf("%v", err), "update filter")
		return
	}
	f, err := s.svc.UpdateFilter(c.Request.Context(), auth.Owner(c), c.Param("id"), patch)
	if err != nil {
		s.filterFail(c, err, "update filter")
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) handleDeleteFilter(c *gin.Context) {
	if err := s.svc.DeleteFilter(c.Request.Context(), auth.Owner(c), c.Param("id")); err != nil {
		s.filterFail(c, err, "delete filter")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Filter deleted successfully"})
}

func (s *Server) handleToggleFilter(c *gin.Context) {
	f, err := s.svc.ToggleFilter(c.Request.Context(), auth.Owner(c), c.Param("id"))
	if err != nil {
		s.filterFail(c, err, "toggle filter")
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) handleActiveFilters(c *gin.Context) {
	filters, err := s.svc.ActiveFilters(c.Request.Context(), auth.Owner(c), c.Param("collection"))
	if err != nil {
		s.filterFail(c, err, "fetch active filters")
		return
	}
	c.JSON(http.StatusOK, filters)
}
