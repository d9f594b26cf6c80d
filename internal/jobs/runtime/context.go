package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/services"
)

// Context is the execution handle for one claimed job. Pipelines never
// touch the processing_job row directly: Succeed, Fail, and Progress are
// the only sanctioned ways to report, and the first two route through the
// orchestrator so the document row and the next stage move in the same
// transaction as the job transition.
type Context struct {
	Ctx          context.Context
	DB           *gorm.DB
	Job          *types.ProcessingJob
	Orchestrator services.PipelineOrchestrator
	Notify       services.JobNotifier
	payload      map[string]any
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.ProcessingJob, orchestrator services.PipelineOrchestrator, notify services.JobNotifier) *Context {
	c := &Context{
		Ctx:          ctx,
		DB:           db,
		Job:          job,
		Orchestrator: orchestrator,
		Notify:       notify,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadString(key string) (string, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return "", false
	}
	s := fmt.Sprint(v)
	if s == "" {
		return "", false
	}
	return s, true
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s, ok := c.PayloadString(key)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Progress is advisory: it publishes a live progress event without touching
// the job row.
func (c *Context) Progress(pct int) {
	if c == nil || c.Notify == nil || c.Job == nil {
		return
	}
	c.Notify.JobProgress(c.Ctx, c.Job, pct)
}

// Succeed finishes the stage and hands the pipeline to the orchestrator.
func (c *Context) Succeed(result map[string]any) error {
	return c.Orchestrator.CompleteStage(c.Ctx, c.Job.ID, result)
}

// Fail reports a stage error; the retry policy decides whether the job
// retries or the document fails.
func (c *Context) Fail(err error, details map[string]any) error {
	return c.Orchestrator.FailStage(c.Ctx, c.Job.ID, err, details)
}
