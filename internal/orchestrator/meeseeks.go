package orchestrator

import (
	"context"
	"time"

	"github.com/Iron-Ham/cto/internal/agent"
	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/orchestrator/prompt"
	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/report"
)

// Meeseeks lifecycle actions, shared by the meeseeks log and events.
const (
	MeeseeksSummoned  = "summoned"
	MeeseeksFailed    = "failed"
	MeeseeksEscalated = "escalated"
	MeeseeksCompleted = "completed"
)

// MeeseeksRequest describes a one-shot task that bypasses the ticket board.
type MeeseeksRequest struct {
	Task  string
	Files []string
	// Model defaults to sonnet.
	Model string
	// Timeout defaults to agent.meeseeks_timeout_seconds.
	Timeout time.Duration
	DryRun  bool
}

// MeeseeksResult describes a finished Meeseeks.
type MeeseeksResult struct {
	Model  string
	Prompt string
	Report report.MeeseeksReport
	// Err is the agent failure, if any.
	Err    error
	DryRun bool
}

// Escalated reports whether the Meeseeks refused the task as too complex.
func (r *MeeseeksResult) Escalated() bool {
	return r.Report.Escalated
}

// Meeseeks runs a single small task with a short-lived agent. Agent failures
// are reported in the result; the returned error is for prompt problems.
func (o *Orchestrator) Meeseeks(ctx context.Context, req MeeseeksRequest) (*MeeseeksResult, error) {
	res := &MeeseeksResult{Model: req.Model, DryRun: req.DryRun}
	if res.Model == "" {
		res.Model = agent.ModelSonnet
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = o.cfg.Agent.MeeseeksTimeout()
	}

	text, err := prompt.NewMeeseeksBuilder().Build(&prompt.Context{
		Kind:  prompt.KindMeeseeks,
		Root:  o.root,
		Task:  req.Task,
		Files: req.Files,
	})
	if err != nil {
		return nil, err
	}
	res.Prompt = text
	if req.DryRun {
		return res, nil
	}

	logger := o.logger.With("model", res.Model)
	o.meeseeksLog(progress.MeeseeksEntry{
		Action:      MeeseeksSummoned,
		Task:        req.Task,
		TargetFiles: req.Files,
		Model:       res.Model,
	})
	summoned := event.NewMeeseeksEvent(MeeseeksSummoned, req.Task, req.Files)
	summoned.Model = res.Model
	o.publish(summoned)
	logger.Info("meeseeks summoned", "task", truncate(req.Task, 80))

	output, err := o.exec.Invoke(ctx, agent.Request{
		Prompt:  text,
		Model:   res.Model,
		Timeout: timeout,
		Dir:     o.root,
	})
	if err != nil {
		res.Err = err
		o.meeseeksLog(progress.MeeseeksEntry{
			Action:      MeeseeksFailed,
			Task:        req.Task,
			TargetFiles: req.Files,
			Error:       err.Error(),
		})
		failed := event.NewMeeseeksEvent(MeeseeksFailed, req.Task, req.Files)
		failed.Err = err.Error()
		o.publish(failed)
		logger.Warn("meeseeks failed", "error", err)
		return res, nil
	}

	res.Report = report.ParseMeeseeks(output)
	if res.Report.Escalated {
		o.meeseeksLog(progress.MeeseeksEntry{
			Action:      MeeseeksEscalated,
			Task:        req.Task,
			TargetFiles: req.Files,
			Status:      res.Report.Status,
			Complexity:  res.Report.Complexity,
		})
		o.publish(event.NewMeeseeksEvent(MeeseeksEscalated, req.Task, req.Files))
		logger.Info("meeseeks escalated")
		return res, nil
	}

	o.meeseeksLog(progress.MeeseeksEntry{
		Action:       MeeseeksCompleted,
		Task:         req.Task,
		Status:       res.Report.Status,
		FilesChanged: res.Report.FilesChanged,
		Complexity:   res.Report.Complexity,
	})
	done := event.NewMeeseeksEvent(MeeseeksCompleted, req.Task, req.Files)
	done.Status = res.Report.Status
	done.Files = res.Report.FilesChanged
	done.Description = res.Report.Description
	done.Complexity = res.Report.Complexity
	o.publish(done)
	logger.Info("meeseeks completed", "files", len(res.Report.FilesChanged))
	return res, nil
}

func (o *Orchestrator) meeseeksLog(e progress.MeeseeksEntry) {
	if err := o.progress.AppendMeeseeks(e); err != nil {
		o.logger.Warn("failed to write meeseeks log", "error", err)
	}
}
