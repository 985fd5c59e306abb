// radiance/pipeline/orchestrator.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"radiance/radiance/config"
	"radiance/radiance/prompts"
	"radiance/radiance/services/llm"
	"radiance/radiance/utils/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrChainCompleted  = errors.New("diagnosis chain already completed")
	ErrSessionNotFound = errors.New("diagnosis session not found")
)

// Orchestrator owns session lifecycle and step bookkeeping for the
// eight-stage diagnosis chain. A single session progresses strictly
// sequentially; independent sessions may run concurrently, sharing nothing
// but the store.
type Orchestrator struct {
	LLM    llm.Completions
	Store  SessionStore // nil means memory-only (no persistence configured)
	Models config.StageModels

	// StageTimeout caps one stage's completion call.
	StageTimeout time.Duration
}

func NewOrchestrator(client llm.Completions, store SessionStore, models config.StageModels, stageTimeout time.Duration) *Orchestrator {
	if stageTimeout <= 0 {
		stageTimeout = 120 * time.Second
	}
	return &Orchestrator{
		LLM:          client,
		Store:        store,
		Models:       models,
		StageTimeout: stageTimeout,
	}
}

// InitializeSession creates the session record and applies the one
// conditional in the chain: with no report artifact the Medical Analyst
// stage is skipped outright and current_step starts at 1, its response left
// absent so downstream stages read "no report was available".
func (o *Orchestrator) InitializeSession(ctx context.Context, userID int, input UserInput) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		UserInput: input,
		Status:    StatusInProgress,
		Persisted: o.Store != nil,
	}
	if !input.Report.Present() {
		s.CurrentStep = 1
	}

	if o.Store != nil {
		if err := o.Store.Create(ctx, s); err != nil {
			s.Persisted = false
			logging.ErrorLogger.Error("session create failed; continuing without persistence",
				zap.String("session_id", s.ID), zap.Error(err))
		}
	}

	logging.AppLogger.Info("diagnosis session initialized",
		zap.String("session_id", s.ID),
		zap.Int("user_id", userID),
		zap.Int("current_step", s.CurrentStep),
		zap.Bool("has_report", input.Report.Present()),
	)
	return s
}

// RunNextStage executes the stage indicated by current_step, mutating the
// session in place. When sink is non-nil, streamed deltas are forwarded to
// it; the caller owns (and closes) the channel. Re-running a session whose
// status is error retries the stage that failed.
func (o *Orchestrator) RunNextStage(ctx context.Context, s *Session, sink chan<- llm.StreamChunk) error {
	defer logging.LogDuration(ctx, "pipeline_run_next_stage")()

	if s.Status == StatusCompleted {
		return ErrChainCompleted
	}
	if s.Status == StatusError {
		s.Status = StatusInProgress
		s.ErrorMessage = ""
	}
	if s.CurrentStep >= TotalStages {
		s.Status = StatusCompleted
		o.persist(ctx, s, map[string]interface{}{"status": string(StatusCompleted)})
		return nil
	}

	role := Chain[s.CurrentStep]
	if err := o.runStage(ctx, s, role, sink); err != nil {
		s.Status = StatusError
		s.ErrorMessage = err.Error()
		o.persist(ctx, s, map[string]interface{}{
			"status":        string(StatusError),
			"error_message": s.ErrorMessage,
		})
		return err
	}

	if s.CurrentStep >= TotalStages {
		s.Status = StatusCompleted
		o.persist(ctx, s, map[string]interface{}{"status": string(StatusCompleted)})
	}
	return nil
}

// RunFullChain drives a new session through every remaining stage.
func (o *Orchestrator) RunFullChain(ctx context.Context, userID int, input UserInput) (*Session, error) {
	s := o.InitializeSession(ctx, userID, input)
	for s.Status == StatusInProgress {
		if err := o.RunNextStage(ctx, s, nil); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (o *Orchestrator) runStage(ctx context.Context, s *Session, role prompts.Role, sink chan<- llm.StreamChunk) error {
	system, userMsg, multimodal, err := o.stagePlan(s, role)
	if err != nil {
		return err
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.StageTimeout)
	defer cancel()

	model := o.Models.ModelFor(role)
	raw, err := o.complete(stageCtx, model, system, userMsg, multimodal, sink)
	if err != nil {
		return fmt.Errorf("stage %s failed: %w", role, err)
	}

	fields := applyStageResult(s, role, raw)
	s.CurrentStep++
	fields["current_step"] = s.CurrentStep

	o.persist(ctx, s, fields)

	logging.AppLogger.Info("stage completed",
		zap.String("session_id", s.ID),
		zap.String("role", string(role)),
		zap.Int("current_step", s.CurrentStep),
		zap.Bool("persisted", s.Persisted),
	)
	return nil
}

// persist writes a partial update, downgrading any failure to a warning:
// the in-memory session is already advanced, and a computed diagnosis must
// not be lost to a persistence outage.
func (o *Orchestrator) persist(ctx context.Context, s *Session, fields map[string]interface{}) {
	if o.Store == nil || !s.Persisted {
		return
	}
	if err := o.Store.Update(ctx, s.ID, s.UserID, fields); err != nil {
		s.Persisted = false
		logging.ErrorLogger.Error("session update failed; persistence degraded",
			zap.String("session_id", s.ID), zap.Error(err))
	}
}

// GetSession loads a session from the store.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if o.Store == nil {
		return nil, nil
	}
	return o.Store.GetByID(ctx, sessionID)
}

// ListSessions lists a user's sessions, newest first.
func (o *Orchestrator) ListSessions(ctx context.Context, userID int) ([]*Session, error) {
	if o.Store == nil {
		return nil, nil
	}
	return o.Store.ListByUser(ctx, userID)
}
