package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aescanero/taozen/pkg/taozen"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// RetryRequest represents a retry request
type RetryRequest struct {
	FailedOnly bool `json:"failed_only"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": gin.H{
			"engine":         "ok",
			"running_graphs": s.engine.RunningCount(),
		},
	})
}

// handleListGraphs handles listing graphs
func (s *Server) handleListGraphs(c *gin.Context) {
	graphs := s.engine.Graphs()

	snapshots := make([]interface{}, 0, len(graphs))
	for _, g := range graphs {
		snapshots = append(snapshots, g.Snapshot())
	}

	c.JSON(http.StatusOK, gin.H{
		"graphs": snapshots,
		"total":  len(snapshots),
	})
}

// handleGetGraph handles getting graph details
func (s *Server) handleGetGraph(c *gin.Context) {
	g, ok := s.engine.Graph(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Graph not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, g.Snapshot())
}

// handleGetStatus handles getting graph status
func (s *Server) handleGetStatus(c *gin.Context) {
	g, ok := s.engine.Graph(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Graph not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"graph_id":   g.ID(),
		"status":     string(g.Status()),
		"progress":   g.Progress(),
		"elapsed_ms": g.ExecutionTime().Milliseconds(),
	})
}

// handleGetResult handles getting graph results
func (s *Server) handleGetResult(c *gin.Context) {
	g, ok := s.engine.Graph(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Graph not found",
			},
		})
		return
	}

	status := g.Status()
	if !status.Terminal() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_COMPLETED",
				Message: "Graph run not yet finished",
			},
		})
		return
	}

	errs := g.Errors()
	errStrings := make([]string, 0, len(errs))
	for _, err := range errs {
		errStrings = append(errStrings, err.Error())
	}

	c.JSON(http.StatusOK, gin.H{
		"graph_id": g.ID(),
		"status":   string(status),
		"results":  g.Results(),
		"errors":   errStrings,
	})
}

// handleListEvents handles listing the mirrored event log of a graph
func (s *Server) handleListEvents(c *gin.Context) {
	graphID := c.Param("id")

	events, err := s.engine.Events(c.Request.Context(), graphID)
	if err != nil {
		s.logger.Error("failed to list events",
			zap.String("graph_id", graphID),
			zap.Error(err))
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Event log not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"graph_id": graphID,
		"events":   events,
		"total":    len(events),
	})
}

// handleCancelGraph handles graph cancellation
func (s *Server) handleCancelGraph(c *gin.Context) {
	g, ok := s.engine.Graph(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Graph not found",
			},
		})
		return
	}

	g.Cancel()

	c.JSON(http.StatusOK, gin.H{
		"graph_id": g.ID(),
		"status":   string(g.Status()),
	})
}

// handlePauseGraph handles pausing a running graph
func (s *Server) handlePauseGraph(c *gin.Context) {
	g, ok := s.engine.Graph(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Graph not found",
			},
		})
		return
	}

	g.Pause()

	c.JSON(http.StatusOK, gin.H{
		"graph_id": g.ID(),
		"status":   string(g.Status()),
	})
}

// handleResumeGraph handles resuming a paused graph
func (s *Server) handleResumeGraph(c *gin.Context) {
	g, ok := s.engine.Graph(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Graph not found",
			},
		})
		return
	}

	g.Resume()

	c.JSON(http.StatusOK, gin.H{
		"graph_id": g.ID(),
		"status":   string(g.Status()),
	})
}

// handleRetryGraph handles retrying a failed or cancelled graph. The
// retry runs in the background; poll status or subscribe to the event
// stream for the outcome.
func (s *Server) handleRetryGraph(c *gin.Context) {
	g, ok := s.engine.Graph(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Graph not found",
			},
		})
		return
	}

	// An empty body means default options
	var req RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	status := g.Status()
	if status != taozen.StatusFailed && status != taozen.StatusCancelled {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_STATE",
				Message: taozen.ErrInvalidRetryState.Error(),
			},
		})
		return
	}

	// Detached from the request context so the retry outlives the call
	go func() {
		if _, err := g.Retry(context.Background(), req.FailedOnly); err != nil {
			if !errors.Is(err, taozen.ErrInvalidRetryState) {
				s.logger.Warn("retry finished with error",
					zap.String("graph_id", g.ID()),
					zap.Error(err))
			}
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"graph_id":    g.ID(),
		"status":      "retrying",
		"failed_only": req.FailedOnly,
	})
}
