package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"edumate/internal/assistant"
	"edumate/internal/domain"
	"edumate/internal/summarizer"
)

type presetResponse struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type summaryResponse struct {
	Preset       string          `json:"preset"`
	Source       string          `json:"source"`
	Result       json.RawMessage `json:"result"`
	Rendered     string          `json:"rendered"`
	Cached       bool            `json:"cached"`
	TotalChunks  int             `json:"totalChunks"`
	FailedChunks []int           `json:"failedChunks"`
	HistoryID    int64           `json:"historyId,omitempty"`
}

type recordResponse struct {
	ID           int64           `json:"id"`
	Source       string          `json:"source"`
	Preset       string          `json:"preset"`
	Status       string          `json:"status"`
	TotalChunks  int             `json:"totalChunks"`
	FailedChunks int             `json:"failedChunks"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type progressEvent struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type credentialsRequest struct {
	BaseURL string `json:"baseUrl" binding:"required"`
	APIKey  string `json:"apiKey"  binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListPresets(c *gin.Context) {
	presets := s.assistant.Presets()

	out := make([]presetResponse, 0, len(presets))
	for _, p := range presets {
		out = append(out, presetResponse{
			Name:        p.Name,
			Title:       p.Title,
			Description: p.Description,
		})
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) handlePutCredentials(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %w", assistant.ErrInvalidRequest, err))
		return
	}

	if err := s.assistant.SetCredentials(c.Request.Context(), assistant.CredentialsRequest{
		BaseURL: req.BaseURL,
		APIKey:  req.APIKey,
	}); err != nil {
		s.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleCreateSummary(c *gin.Context) {
	run, err := s.summaryRun(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		s.streamSummary(c, run)
		return
	}

	outcome, err := run(nil)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSummaryResponse(outcome))
}

type summaryRunFunc func(onProgress summarizer.ProgressFunc) (*assistant.Outcome, error)

// summaryRun picks the source of a summary request: an uploaded file, a
// URL or inline text, in that order.
func (s *Server) summaryRun(c *gin.Context) (summaryRunFunc, error) {
	ctx := c.Request.Context()
	presetName := c.PostForm("preset")

	if header, err := c.FormFile("file"); err == nil {
		return func(onProgress summarizer.ProgressFunc) (*assistant.Outcome, error) {
			f, err := header.Open()
			if err != nil {
				return nil, fmt.Errorf("open uploaded file: %w", err)
			}
			defer func() {
				if err = f.Close(); err != nil {
					s.log.ErrorContext(ctx, "Failed to close uploaded file",
						"error", err,
						"fileName", header.Filename)
				}
			}()

			return s.assistant.SummarizeDocument(ctx, assistant.DocumentRequest{
				Owner:      owner(c),
				Preset:     presetName,
				Name:       header.Filename,
				Body:       f,
				OnProgress: onProgress,
			})
		}, nil
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("%w: %w", assistant.ErrInvalidRequest, err)
	}

	if rawURL := strings.TrimSpace(c.PostForm("url")); rawURL != "" {
		return func(onProgress summarizer.ProgressFunc) (*assistant.Outcome, error) {
			return s.assistant.SummarizeURL(ctx, assistant.URLRequest{
				Owner:      owner(c),
				Preset:     presetName,
				URL:        rawURL,
				OnProgress: onProgress,
			})
		}, nil
	}

	if text := c.PostForm("text"); text != "" {
		return func(onProgress summarizer.ProgressFunc) (*assistant.Outcome, error) {
			return s.assistant.SummarizeText(ctx, assistant.TextRequest{
				Owner:      owner(c),
				Preset:     presetName,
				Source:     c.PostForm("source"),
				Text:       text,
				OnProgress: onProgress,
			})
		}, nil
	}

	return nil, fmt.Errorf("%w: one of file, url or text is required", assistant.ErrInvalidRequest)
}

// streamSummary reports progress as server-sent events and finishes with a
// "result" or an "error" event.
func (s *Server) streamSummary(c *gin.Context, run summaryRunFunc) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	outcome, err := run(func(completed, total int) {
		c.SSEvent("progress", progressEvent{Completed: completed, Total: total})
		c.Writer.Flush()
	})
	if err != nil {
		status, resp := s.errorResponse(c, err)
		s.log.DebugContext(c.Request.Context(), "Streamed summary failed",
			"status", status,
			"kind", resp.Kind)

		c.SSEvent("error", resp)
		c.Writer.Flush()

		return
	}

	c.SSEvent("result", toSummaryResponse(outcome))
	c.Writer.Flush()
}

func (s *Server) handleListSummaries(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(c, fmt.Errorf("%w: limit must be a positive integer", assistant.ErrInvalidRequest))
			return
		}
		limit = n
	}

	records, err := s.assistant.History(c.Request.Context(), owner(c), limit)
	if err != nil {
		s.writeError(c, fmt.Errorf("list summaries: %w", err))
		return
	}

	out := make([]recordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toRecordResponse(r))
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDeleteSummary(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(c, fmt.Errorf("%w: id must be a positive integer", assistant.ErrInvalidRequest))
		return
	}

	deleted, err := s.assistant.Forget(c.Request.Context(), owner(c), id)
	if err != nil {
		s.writeError(c, fmt.Errorf("delete summary: %w", err))
		return
	}

	if !deleted {
		c.JSON(http.StatusNotFound, errorResponse{Error: "summary not found", Kind: "not_found"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, resp := s.errorResponse(c, err)
	c.JSON(status, resp)
}

func (s *Server) errorResponse(c *gin.Context, err error) (int, errorResponse) {
	switch assistant.Classify(err) {
	case assistant.KindBusy:
		return http.StatusConflict, errorResponse{Error: err.Error(), Kind: "busy"}
	case assistant.KindInvalid:
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "invalid"}
	case assistant.KindUpstream:
		return http.StatusBadGateway, errorResponse{Error: err.Error(), Kind: "upstream"}
	case assistant.KindNotFound:
		return http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "not_found"}
	default:
		if errors.Is(err, io.ErrUnexpectedEOF) || c.Request.Context().Err() != nil {
			return http.StatusBadRequest, errorResponse{Error: "request was interrupted", Kind: "invalid"}
		}

		s.log.ErrorContext(c.Request.Context(), "Failed to handle request",
			"error", err,
			"path", c.FullPath(),
			"owner", owner(c))

		return http.StatusInternalServerError, errorResponse{
			Error: http.StatusText(http.StatusInternalServerError),
			Kind:  "internal",
		}
	}
}

func toSummaryResponse(o *assistant.Outcome) summaryResponse {
	failed := o.FailedChunks
	if failed == nil {
		failed = []int{}
	}

	return summaryResponse{
		Preset:       o.Preset,
		Source:       o.Source,
		Result:       o.Result,
		Rendered:     o.Rendered,
		Cached:       o.Cached,
		TotalChunks:  o.TotalChunks,
		FailedChunks: failed,
		HistoryID:    o.HistoryID,
	}
}

func toRecordResponse(r domain.SummaryRecord) recordResponse {
	return recordResponse{
		ID:           r.ID,
		Source:       r.Source,
		Preset:       r.Preset,
		Status:       string(r.Status),
		TotalChunks:  r.TotalChunks,
		FailedChunks: r.FailedChunks,
		Result:       r.Result,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt,
	}
}
