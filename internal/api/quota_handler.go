package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/duplexhq/duplex/internal/quota"
)

// QuotaStatus is the owner's escalation budget for the current day.
type QuotaStatus struct {
	OwnerID    int64     `json:"owner_id"`
	Day        quota.Day `json:"day"`
	DailyLimit int       `json:"daily_limit"`
	DailyUsed  int       `json:"daily_used"`
	Remaining  int       `json:"remaining"`
}

// getQuotaStatus returns how much of today's escalation quota is spent.
func (s *Server) getQuotaStatus(c echo.Context) error {
	ownerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid owner id"})
	}

	ctx := c.Request().Context()
	p, err := s.deps.Policies.Get(ctx, ownerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	day := quota.Today()
	used, err := s.deps.Quota.Usage(ctx, ownerID, day)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	remaining := p.DailyEscalationLimit - used
	if remaining < 0 {
		remaining = 0
	}

	return c.JSON(http.StatusOK, QuotaStatus{
		OwnerID:    ownerID,
		Day:        day,
		DailyLimit: p.DailyEscalationLimit,
		DailyUsed:  used,
		Remaining:  remaining,
	})
}
