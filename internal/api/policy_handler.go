package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/duplexhq/duplex/internal/policy"
)

// getPolicy returns the owner's effective orchestration policy. Owners who
// never saved one get the defaults.
func (s *Server) getPolicy(c echo.Context) error {
	ownerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid owner id"})
	}

	p, err := s.deps.Policies.Get(c.Request().Context(), ownerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, p)
}

// putPolicy replaces the owner's policy. The stored form is the normalized
// one, and that is also what gets returned.
func (s *Server) putPolicy(c echo.Context) error {
	ownerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid owner id"})
	}

	var p policy.OrchestratorPolicy
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid policy body"})
	}
	p.OwnerID = ownerID

	saved, err := s.deps.Policies.Put(c.Request().Context(), p)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, saved)
}
