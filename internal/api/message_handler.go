package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/duplexhq/duplex/internal/generation"
	"github.com/duplexhq/duplex/internal/router"
)

type postMessageRequest struct {
	SenderID int64  `json:"sender_id"`
	Body     string `json:"body"`
}

type messageResponse struct {
	MessageID int64  `json:"message_id"`
	Handled   bool   `json:"handled"`
	Path      string `json:"path,omitempty"`
	Reason    string `json:"reason,omitempty"`
	ReplyID   int64  `json:"reply_id,omitempty"`
	ReplyBody string `json:"reply_body,omitempty"`
	TicketID  int64  `json:"ticket_id,omitempty"`
}

// postMessage ingests one message. With Accept: text/event-stream the
// auto-answer tokens are forwarded as SSE data events while generation runs,
// followed by a final "done" event carrying the full outcome.
func (s *Server) postMessage(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
	}

	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SenderID == 0 || strings.TrimSpace(req.Body) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sender_id and body are required"})
	}

	wantsStream := strings.Contains(c.Request().Header.Get(echo.HeaderAccept), "text/event-stream")
	if wantsStream {
		return s.postMessageStreaming(c, conversationID, req)
	}

	result, err := s.deps.Router.Route(c.Request().Context(), conversationID, req.SenderID, req.Body, nil)
	if err != nil {
		return routeError(c, err)
	}
	return c.JSON(http.StatusOK, toMessageResponse(result))
}

func (s *Server) postMessageStreaming(c echo.Context, conversationID int64, req postMessageRequest) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	stream := latchedStream(res, res.Flush)

	result, err := s.deps.Router.Route(c.Request().Context(), conversationID, req.SenderID, req.Body, stream)
	if err != nil {
		fmt.Fprintf(res, "event: error\ndata: %s\n\n", err.Error())
		res.Flush()
		return nil
	}

	payload, _ := json.Marshal(toMessageResponse(result))
	fmt.Fprintf(res, "event: done\ndata: %s\n\n", payload)
	res.Flush()
	return nil
}

// latchedStream forwards generation chunks as SSE data events. Returning an
// error from the stream callback aborts the model call, so a failed write
// only latches the stream dead: later chunks are dropped silently and the
// in-flight generation still completes and gets persisted as the answer.
func latchedStream(w io.Writer, flush func()) generation.StreamFunc {
	dead := false
	return func(chunk []byte) error {
		if dead {
			return nil
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", chunk); err != nil {
			dead = true
			log.Warn().Err(err).Msg("Client stream write failed, finishing generation detached")
			return nil
		}
		flush()
		return nil
	}
}

func toMessageResponse(result *router.RouteResult) messageResponse {
	resp := messageResponse{
		MessageID: result.Inbound.ID,
		Handled:   result.Handled,
	}
	if result.Outcome != nil {
		resp.Path = result.Outcome.Path.Code()
		resp.Reason = result.Outcome.Reason
		resp.ReplyID = result.Outcome.ReplyID
		resp.ReplyBody = result.Outcome.Reply.Body
		resp.TicketID = result.Outcome.TicketID
	}
	return resp
}

func routeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, router.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	case errors.Is(err, router.ErrShuttingDown):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// listDecisions returns the conversation's audit trail.
func (s *Server) listDecisions(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
	}

	records, err := s.deps.Messages.ListDecisions(c.Request().Context(), conversationID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"decisions":       records,
	})
}
