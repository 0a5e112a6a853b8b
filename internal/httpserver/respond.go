package httpserver

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gitgrid/gitgrid/internal/model"
)

// classify maps a service error to a status code and a client message.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidCollection):
		return http.StatusBadRequest, "Invalid collection name"
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, model.ErrFilterNotFound):
		return http.StatusNotFound, "Filter not found"
	case errors.Is(err, model.ErrRecordNotFound):
		return http.StatusNotFound, "Record not found"
	case errors.Is(err, model.ErrNoData):
		return http.StatusNotFound, "No data to export"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), model.ErrValidation.Error()+": ")
	if msg == "" || msg == model.ErrValidation.Error() {
		return "Validation failed"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// fail writes the error envelope used by the data, facet and search routes.
func (s *Server) fail(c *gin.Context, err error) {
	status, msg := classify(err)
	body := gin.H{"success": false, "message": msg}
	if status == http.StatusInternalServerError {
		log.Printf("http: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		if s.cfg.Development {
			body["error"] = err.Error()
		}
	}
	c.AbortWithStatusJSON(status, body)
}

// filterFail writes the plain {"error": ...} body of the filter routes.
func (s *Server) filterFail(c *gin.Context, err error, action string) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		log.Printf("http: %s: %v", action, err)
		msg = "Failed to " + action
		if s.cfg.Development {
			msg += ": " + err.Error()
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// badRequest reports a binding failure as a validation error.
func (s *Server) badRequest(c *gin.Context, err error) {
	s.fail(c, model.Validationf("%v", err))
}
