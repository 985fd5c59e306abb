// radiance/controllers/diagnosis.go
package controllers

import (
	"context"
	"errors"
	"io"
	"strings"

	"radiance/radiance/pipeline"
	"radiance/radiance/services/llm"
	"radiance/radiance/sources/storage"
	"radiance/radiance/types"
	"radiance/radiance/utils/logging"

	"go.uber.org/zap"
)

var ErrSessionForbidden = errors.New("session not found or forbidden")

type DiagnosisController struct {
	orchestrator *pipeline.Orchestrator
	reports      *storage.ReportStore // nil when object storage is not configured
}

func NewDiagnosisController(orchestrator *pipeline.Orchestrator, reports *storage.ReportStore) *DiagnosisController {
	return &DiagnosisController{orchestrator: orchestrator, reports: reports}
}

// Start creates a session. The authenticated identity always overrides any
// caller-supplied owner. A report image given as an object key is resolved
// to a presigned URL here, before the pipeline ever sees it.
func (c *DiagnosisController) Start(ctx context.Context, userID int, req types.StartDiagnosisRequest) (*pipeline.Session, error) {
	input := req.UserInput
	if input.Report != nil && input.Report.ImageURL != "" && !strings.HasPrefix(input.Report.ImageURL, "http") {
		if c.reports == nil {
			return nil, errors.New("report image given as object key but no report store is configured")
		}
		url, err := c.reports.PresignedReportURL(ctx, input.Report.ImageURL)
		if err != nil {
			return nil, err
		}
		report := *input.Report
		report.ImageURL = url
		input.Report = &report
	}
	return c.orchestrator.InitializeSession(ctx, userID, input), nil
}

// RunNext advances a stored session by one stage. Chunks stream into sink
// when it is non-nil; the caller owns the channel.
func (c *DiagnosisController) RunNext(ctx context.Context, userID int, sessionID string, sink chan<- llm.StreamChunk) (*pipeline.Session, error) {
	s, err := c.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := c.orchestrator.RunNextStage(ctx, s, sink); err != nil {
		logging.ErrorLogger.Error("stage run failed",
			zap.String("session_id", sessionID), zap.Error(err))
		// The session carries status=error and the partial results; return
		// it alongside the error so the caller can render what exists.
		return s, err
	}
	return s, nil
}

func (c *DiagnosisController) Get(ctx context.Context, userID int, sessionID string) (*pipeline.Session, error) {
	return c.loadOwned(ctx, userID, sessionID)
}

func (c *DiagnosisController) List(ctx context.Context, userID int) ([]*pipeline.Session, error) {
	return c.orchestrator.ListSessions(ctx, userID)
}

// RunSession exposes RunNextStage for sessions held in memory (websocket
// flow keeps the session across frames without a round-trip to the store).
func (c *DiagnosisController) RunSession(ctx context.Context, s *pipeline.Session, sink chan<- llm.StreamChunk) error {
	return c.orchestrator.RunNextStage(ctx, s, sink)
}

func (c *DiagnosisController) UploadReport(ctx context.Context, userID int, name, contentType string, r io.Reader, size int64) (string, error) {
	if c.reports == nil {
		return "", errors.New("report store not configured")
	}
	return c.reports.UploadReportImage(ctx, userID, name, contentType, r, size)
}

func (c *DiagnosisController) loadOwned(ctx context.Context, userID int, sessionID string) (*pipeline.Session, error) {
	s, err := c.orchestrator.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil || s.UserID != userID {
		return nil, ErrSessionForbidden
	}
	return s, nil
}
