package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/duplexhq/duplex/internal/escalation"
)

type acceptEscalationRequest struct {
	Summary string `json:"summary"`
}

func (s *Server) acceptEscalation(c echo.Context) error {
	ticketID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid ticket id"})
	}

	var req acceptEscalationRequest
	_ = c.Bind(&req)

	ticket, err := s.deps.Escalations.Accept(c.Request().Context(), ticketID, req.Summary)
	if err != nil {
		return escalationError(c, err)
	}
	return c.JSON(http.StatusOK, ticket)
}

func (s *Server) declineEscalation(c echo.Context) error {
	ticketID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid ticket id"})
	}

	ticket, err := s.deps.Escalations.Decline(c.Request().Context(), ticketID)
	if err != nil {
		return escalationError(c, err)
	}
	return c.JSON(http.StatusOK, ticket)
}

func (s *Server) resolveEscalation(c echo.Context) error {
	ticketID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid ticket id"})
	}

	ticket, err := s.deps.Escalations.Resolve(c.Request().Context(), ticketID)
	if err != nil {
		return escalationError(c, err)
	}
	return c.JSON(http.StatusOK, ticket)
}

func (s *Server) listEscalations(c echo.Context) error {
	ownerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid owner id"})
	}

	tickets, err := s.deps.Escalations.ListOpen(c.Request().Context(), ownerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"owner_id": ownerID,
		"tickets":  tickets,
	})
}

func escalationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, escalation.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, escalation.ErrBadTransition):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
