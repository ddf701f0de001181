package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskagent/pkg/api/middleware"
	"taskagent/pkg/executor"
	"taskagent/pkg/models"
	"taskagent/pkg/storage"
)

// execute handles POST /execute
func (s *Server) execute(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No JSON data provided"})
		return
	}

	req, err := middleware.DecodeExecuteRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": requestErrorMessage(err)})
		return
	}

	if req.ScriptType != "" {
		if _, err := executor.ParseKind(req.ScriptType); err != nil {
			verr := &middleware.ValidationError{Field: "script_type", Message: err.Error()}
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
	}

	if req.ScriptContent == "" {
		content, err := s.store.Read(c.Request.Context(), req.ScriptName)
		switch {
		case err == nil:
			req.ScriptContent = string(content)
		case errors.Is(err, storage.ErrInvalidName):
			verr := &middleware.ValidationError{Field: "script_name", Message: err.Error()}
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		case errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, errorOutcome(req.ExecutionID,
				fmt.Sprintf("Script '%s' not found and no content provided", req.ScriptName)))
			return
		default:
			s.logger.Error("failed to load script",
				zap.String("execution_id", req.ExecutionID),
				zap.String("script", req.ScriptName),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, errorOutcome(req.ExecutionID, err.Error()))
			return
		}
	}

	outcome := s.executor.Execute(c.Request.Context(), req)
	s.publish(c.Request.Context(), outcome)

	c.JSON(http.StatusOK, outcome)
}

// publish hands the outcome to the publisher in the background. The response
// never waits on it and never reflects its failure.
func (s *Server) publish(ctx context.Context, outcome models.ExecutionOutcome) {
	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
		defer cancel()

		if err := s.publisher.Publish(ctx, outcome); err != nil {
			s.logger.Warn("failed to publish outcome",
				zap.String("execution_id", outcome.ExecutionID),
				zap.Error(err),
			)
		}
	}()
}

// errorOutcome is the body for requests rejected before anything ran; it
// carries no output and no duration.
func errorOutcome(executionID, msg string) gin.H {
	return gin.H{
		"execution_id": executionID,
		"status":       models.OutcomeError,
		"error":        msg,
	}
}

func requestErrorMessage(err error) string {
	var missing *middleware.MissingFieldError
	switch {
	case errors.Is(err, middleware.ErrNoJSONData):
		return "No JSON data provided"
	case errors.As(err, &missing):
		return "Missing required field: " + missing.Field
	default:
		return err.Error()
	}
}

// listScripts handles GET /scripts
func (s *Server) listScripts(c *gin.Context) {
	names, err := s.store.List(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list scripts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, names)
}
