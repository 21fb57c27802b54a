package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
	"github.com/CoolGuy2982/AI-Researcher/internal/hub"
	"github.com/CoolGuy2982/AI-Researcher/internal/workspace"
)

// Attachment is what a reconnecting client receives.
type Attachment struct {
	Session *hub.Session
	// Replay is the full log at attach time, in order.
	Replay []hub.Record
	// Live is true when the sink was registered for further events.
	Live bool
	// Final is the synthetic done record for a session that already ended.
	Final *hub.Record
}

// Attach replays the experiment's log to a new sink and, while the session
// runs, keeps it attached until ctx ends.
func (s *Service) Attach(ctx context.Context, id string, sink hub.Sink) (*Attachment, error) {
	sess, replay, live, err := s.broadcaster.AttachSink(ctx, id, sink)
	if err != nil {
		return nil, err
	}

	att := &Attachment{Session: sess, Replay: replay, Live: live}
	if !live {
		done := sess.TerminalEvent()
		rec := hub.Record{Seq: len(replay), Ts: time.Now().UnixMilli(), Event: done}
		if rec.Data, err = domain.Encode(done, rec.Seq, rec.Ts); err != nil {
			return nil, err
		}
		att.Final = &rec
	}
	return att, nil
}

// Abort cancels the experiment's running session. It fails with
// ErrSessionNotFound when nothing is running, so a second abort is a no-op.
func (s *Service) Abort(id string) (*domain.AbortResponse, error) {
	sess := s.registry.Get(id)
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}
	held := sess.Process()
	proc, ok := held.(AgentProcess)
	if !ok || !s.abortRun(sess, proc, msgAborted) {
		return nil, fmt.Errorf("%w: no running session for %s", domain.ErrSessionNotFound, id)
	}

	s.logger.Info("session aborted", zap.String("experiment_id", id))
	return &domain.AbortResponse{
		ExperimentID: id,
		Status:       domain.SessionStatusAborted,
		Message:      msgAborted,
	}, nil
}

// Status reports the session snapshot, or idle when there is none.
func (s *Service) Status(id string) *domain.StatusResponse {
	sess := s.registry.Get(id)
	if sess == nil {
		return &domain.StatusResponse{ExperimentID: id, Status: domain.SessionStatusIdle}
	}
	info := sess.Info()
	started := info.StartedAt
	return &domain.StatusResponse{
		ExperimentID:      id,
		Status:            info.Status,
		AgentSessionToken: info.AgentToken,
		StartedAt:         &started,
		EventCount:        info.EventCount,
	}
}

// Findings returns the findings report. A positive wait blocks until the
// report appears, capped by the configured maximum.
func (s *Service) Findings(ctx context.Context, id string, wait time.Duration) ([]byte, error) {
	if wait <= 0 {
		return s.workspace.ReadFile(id, workspace.FindingsFile)
	}

	if limit := s.config.FindingsWaitMax; limit > 0 && wait > limit {
		wait = limit
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return s.workspace.WaitForFindings(ctx, id)
}

// Shutdown aborts every running session and waits for every agent process,
// aborted ones still in their grace period included, to exit or ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	for _, sess := range s.registry.Running() {
		if proc, ok := sess.Process().(AgentProcess); ok {
			sess.Finish(proc, hub.Outcome{
				Status: domain.SessionStatusAborted,
				Final:  domain.Error{Message: msgShuttingDown},
			})
		}
	}

	var g errgroup.Group
	for _, proc := range s.processes() {
		if exited(proc) {
			continue
		}
		proc := proc
		g.Go(func() error { return proc.Stop(ctx) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to stop agents: %w", err)
	}
	s.logger.Info("all agents stopped")
	return nil
}
