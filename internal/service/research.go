package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/agent"
	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
	"github.com/CoolGuy2982/AI-Researcher/internal/hub"
	"github.com/CoolGuy2982/AI-Researcher/internal/workspace"
)

const (
	msgSuperseded    = "Superseded by a newer request"
	msgAborted       = "Research aborted by user"
	msgDisconnected  = "Research aborted: client disconnected"
	msgShuttingDown  = "Research aborted: server shutting down"
	roleUser         = "user"
	roleAssistant    = "assistant"
	spawnErrorPrefix = "failed to start agent: "
)

// run is one agent invocation for an experiment.
type run struct {
	experimentID string
	prompt       string
	// recorded in the conversation file before spawn
	userText    string
	model       string
	resumeToken string
}

// StartResearch begins a new research session for req and attaches sink, if
// non-nil, as its first sink. Any live session for the experiment is
// aborted and its process has exited before the new one is spawned.
func (s *Service) StartResearch(ctx context.Context, req domain.StartRequest, sink hub.Sink) (*hub.Session, error) {
	req.ExperimentID = strings.TrimSpace(req.ExperimentID)
	if req.ExperimentID == "" {
		return nil, fmt.Errorf("%w: experimentId is required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Hypothesis) == "" {
		return nil, fmt.Errorf("%w: hypothesis is required", domain.ErrInvalidRequest)
	}
	if _, err := s.workspace.Dir(req.ExperimentID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	r := run{
		experimentID: req.ExperimentID,
		prompt:       BuildResearchPrompt(req),
		userText:     "Hypothesis: " + strings.TrimSpace(req.Hypothesis),
		model:        req.Model,
	}
	return s.launch(ctx, r, sink)
}

// FollowUp sends message to the experiment's agent, superseding any
// in-flight run. The registry's resume token wins over the caller's.
func (s *Service) FollowUp(ctx context.Context, id string, req domain.ChatRequest, sink hub.Sink) (*hub.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: experiment id is required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidRequest)
	}
	if _, err := s.workspace.Dir(id); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	token := req.ResumeToken
	if sess := s.registry.Get(id); sess != nil {
		if t := sess.AgentToken(); t != "" {
			token = t
		}
	}

	r := run{
		experimentID: id,
		prompt:       BuildFollowUpPrompt(req.Message, token != ""),
		userText:     req.Message,
		model:        req.Model,
		resumeToken:  token,
	}
	return s.launch(ctx, r, sink)
}

func (s *Service) launch(ctx context.Context, r run, sink hub.Sink) (*hub.Session, error) {
	unlock := s.lock(r.experimentID)
	defer unlock()

	if err := s.supersede(ctx, r.experimentID); err != nil {
		return nil, err
	}

	dir, err := s.workspace.Create(r.experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare workspace: %w", err)
	}
	if err := s.workspace.AppendConversation(r.experimentID, roleUser, r.userText); err != nil {
		s.logger.Warn("failed to record user turn", zap.String("experiment_id", r.experimentID), zap.Error(err))
	}

	model := r.model
	if model == "" {
		model = s.config.AgentModel
	}
	proc := s.launcher.NewProcess(agent.Options{
		Prompt:      r.prompt,
		Dir:         dir,
		Model:       model,
		AutoApprove: s.config.AgentAutoApprove,
		Sandbox:     s.config.AgentSandbox,
		ResumeToken: r.resumeToken,
	})

	s.setProcess(r.experimentID, proc)
	sess := s.registry.Create(r.experimentID, proc)
	sess.SetAgentToken(r.resumeToken)

	if sink != nil {
		hub.AttachTo(ctx, sess, sink)
		if s.config.AbortOnDisconnect {
			context.AfterFunc(ctx, func() {
				if s.abortRun(sess, proc, msgDisconnected) {
					s.logger.Info("aborted after client disconnect", zap.String("experiment_id", r.experimentID))
				}
			})
		}
	}

	s.logger.Info("starting agent",
		zap.String("experiment_id", r.experimentID),
		zap.String("dir", dir),
		zap.String("model", model),
		zap.Bool("resume", r.resumeToken != ""))
	proc.Start(s.handler(sess, proc))
	return sess, nil
}

// supersede aborts the live session for id, if any, and waits until the
// last process spawned for id has exited. An aborted run whose session is
// already terminal may still be inside its grace period.
func (s *Service) supersede(ctx context.Context, id string) error {
	superseded := false
	if sess := s.registry.Get(id); sess != nil {
		if held := sess.Process(); held != nil {
			// Finishing first makes any late output from the old process a no-op.
			superseded = sess.Finish(held, hub.Outcome{
				Status: domain.SessionStatusAborted,
				Final:  domain.Error{Message: msgSuperseded},
			})
		}
	}

	if prev := s.lastProcess(id); prev != nil && !exited(prev) {
		if err := prev.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop previous run: %w", err)
		}
	}

	if superseded {
		s.registry.Delete(id)
		s.logger.Info("superseded running session", zap.String("experiment_id", id))
	}
	return nil
}

// abortRun moves sess to aborted if proc still owns it, then cancels proc.
func (s *Service) abortRun(sess *hub.Session, proc AgentProcess, reason string) bool {
	if !sess.Finish(proc, hub.Outcome{
		Status: domain.SessionStatusAborted,
		Final:  domain.Error{Message: reason},
	}) {
		return false
	}
	proc.Cancel()
	return true
}

// handler wires one process's notifications into its session. Handler
// calls never overlap, so reply needs no lock.
func (s *Service) handler(sess *hub.Session, proc AgentProcess) agent.Handler {
	id := sess.ExperimentID
	var reply strings.Builder

	return agent.Funcs{
		Event: func(ev domain.Event) {
			if m, ok := ev.(domain.Message); ok && m.Role == roleAssistant {
				if reply.Len() > 0 && !m.Delta {
					reply.WriteString("\n\n")
				}
				reply.WriteString(m.Content)
			}
			sess.PublishFrom(proc, ev)
		},
		Init: func(ev domain.Init) {
			if sess.Owns(proc) {
				sess.SetAgentToken(ev.SessionID)
			}
		},
		Stderr: func(text string) {
			sess.PublishFrom(proc, domain.Log{Line: text, Stream: domain.StreamStderr})
		},
		Exit: func(res agent.ExitResult) {
			s.finishRun(sess, proc, res, reply.String())
		},
		SpawnError: func(err error) {
			s.logger.Error("agent failed to start", zap.String("experiment_id", id), zap.Error(err))
			sess.Finish(proc, hub.Outcome{
				Status: domain.SessionStatusFailed,
				Final:  domain.Error{Message: spawnErrorPrefix + err.Error()},
			})
		},
	}
}

func (s *Service) finishRun(sess *hub.Session, proc AgentProcess, res agent.ExitResult, reply string) {
	id := sess.ExperimentID
	if !sess.Owns(proc) {
		return
	}

	if reply != "" {
		if err := s.workspace.AppendConversation(id, roleAssistant, reply); err != nil {
			s.logger.Warn("failed to record assistant turn", zap.String("experiment_id", id), zap.Error(err))
		}
	}

	out := hub.Outcome{Signal: res.Signal}
	if res.Signal != "" {
		out.Status = domain.SessionStatusFailed
	} else {
		out.Status = domain.StatusFromExitCode(res.Code)
		out.ExitCode = domain.IntPtr(res.Code)
	}
	if out.Status == domain.SessionStatusCompleted && s.workspace.HasFindings(id) {
		out.Findings = workspace.FindingsFile
	}
	out.Final = domain.Done{
		ExitCode: out.ExitCode,
		Signal:   out.Signal,
		Status:   out.Status,
		Findings: out.Findings,
	}
	sess.Finish(proc, out)
}
