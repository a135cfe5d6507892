package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type ingestRequest struct {
	Content string `json:"content"`
}

// ingestKnowledge embeds and stores one chunk in the agent's knowledge base.
// The path parameter is the knowledge base id, not the agent id, so a shared
// base can be fed from one place.
func (s *Server) ingestKnowledge(c echo.Context) error {
	knowledgeBaseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid knowledge base id"})
	}

	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	chunkID, err := s.deps.Knowledge.Ingest(c.Request().Context(), knowledgeBaseID, req.Content)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, map[string]int64{
		"chunk_id": chunkID,
	})
}
