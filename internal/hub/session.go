package hub

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

// Process is the part of an agent process a session needs to own it.
type Process interface {
	Cancel()
}

// Info is a point-in-time copy of a session's state.
type Info struct {
	ExperimentID string
	Status       domain.SessionStatus
	AgentToken   string
	StartedAt    time.Time
	EndedAt      time.Time
	EventCount   int
	SinkCount    int
	ExitCode     *int
	Signal       string
	Findings     string
}

// Outcome describes a terminal transition.
type Outcome struct {
	Status   domain.SessionStatus
	ExitCode *int
	Signal   string
	Findings string
	// Final is broadcast before the sinks are closed. May be nil.
	Final domain.Event
}

// Session is the record of one experiment's current agent run.
type Session struct {
	ExperimentID string

	mu         sync.Mutex
	status     domain.SessionStatus
	agentToken string
	startedAt  time.Time
	endedAt    time.Time
	exitCode   *int
	signal     string
	findings   string
	process    Process
	log        []Record
	sinks      map[string]Sink
	logger     *zap.Logger
	now        func() time.Time
}

func newSession(id string, proc Process, logger *zap.Logger) *Session {
	return &Session{
		ExperimentID: id,
		status:       domain.SessionStatusRunning,
		startedAt:    time.Now(),
		process:      proc,
		sinks:        make(map[string]Sink),
		logger:       logger,
		now:          time.Now,
	}
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ExperimentID: s.ExperimentID,
		Status:       s.status,
		AgentToken:   s.agentToken,
		StartedAt:    s.startedAt,
		EndedAt:      s.endedAt,
		EventCount:   len(s.log),
		SinkCount:    len(s.sinks),
		ExitCode:     s.exitCode,
		Signal:       s.signal,
		Findings:     s.findings,
	}
}

// Status returns the current status.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Process returns the live process, or nil once the session is terminal.
func (s *Session) Process() Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process
}

// SetProcess hands ownership of the session to proc. It fails once the
// session is terminal.
func (s *Session) SetProcess(proc Process) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.SessionStatusRunning {
		return false
	}
	s.process = proc
	return true
}

// Owns reports whether proc is the session's live process.
func (s *Session) Owns(proc Process) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process != nil && s.process == proc
}

// AgentToken returns the agent's resume token, if known.
func (s *Session) AgentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentToken
}

// SetAgentToken records the agent's resume token.
func (s *Session) SetAgentToken(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentToken = token
}

// Log returns a copy of every record broadcast so far.
func (s *Session) Log() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.log...)
}

// Publish appends ev to the log and writes it to every attached sink.
func (s *Session) Publish(ev domain.Event) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishLocked(ev)
}

// PublishFrom publishes ev only while owner is the session's live
// process, so output from a superseded process never reaches the log.
func (s *Session) PublishFrom(owner Process, ev domain.Event) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.SessionStatusRunning || s.process == nil || s.process != owner {
		return Record{}, false
	}
	return s.publishLocked(ev), true
}

func (s *Session) publishLocked(ev domain.Event) Record {
	rec := Record{Seq: len(s.log), Ts: s.now().UnixMilli(), Event: ev}
	data, err := domain.Encode(ev, rec.Seq, rec.Ts)
	if err != nil {
		s.logger.Error("failed to encode event", zap.String("experiment_id", s.ExperimentID), zap.Error(err))
		rec.Event = domain.Error{Message: err.Error()}
		data, _ = domain.Encode(rec.Event, rec.Seq, rec.Ts)
	}
	rec.Data = data
	s.log = append(s.log, rec)

	for id, sink := range s.sinks {
		if err := sink.Send(rec); err != nil {
			s.logger.Warn("evicting sink",
				zap.String("experiment_id", s.ExperimentID),
				zap.String("sink_id", id),
				zap.Error(err))
			delete(s.sinks, id)
			if ev, ok := sink.(Evicter); ok && errors.Is(err, ErrBufferFull) {
				ev.Evict(s.evictionNotice(rec))
			} else {
				sink.Close()
			}
		}
	}
	return rec
}

// evictionNotice tells a lagging client that it missed events from rec on
// and has to reattach to replay them.
func (s *Session) evictionNotice(rec Record) Record {
	ev := domain.Error{Message: fmt.Sprintf("%s: missed events from seq %d, reattach to replay", ErrBufferFull, rec.Seq)}
	notice := Record{Seq: rec.Seq, Ts: rec.Ts, Event: ev}
	notice.Data, _ = domain.Encode(ev, notice.Seq, notice.Ts)
	return notice
}

// Attach returns the log so far and, if the session is still running,
// registers sink for live delivery in the same critical section. Nothing
// published after the snapshot can be missed, and nothing in the snapshot
// is delivered twice.
func (s *Session) Attach(sink Sink) (replay []Record, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	replay = append([]Record(nil), s.log...)
	if s.status != domain.SessionStatusRunning {
		return replay, false
	}
	s.sinks[sink.ID()] = sink
	return replay, true
}

// Detach removes sink. It reports whether the sink was attached.
func (s *Session) Detach(sink Sink) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sinks[sink.ID()]; !ok {
		return false
	}
	delete(s.sinks, sink.ID())
	return true
}

// CloseSinks closes and removes every attached sink.
func (s *Session) CloseSinks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSinksLocked()
}

func (s *Session) closeSinksLocked() {
	for id, sink := range s.sinks {
		sink.Close()
		delete(s.sinks, id)
	}
}

// Finish moves a running session to a terminal status. owner, if non-nil,
// must still be the live process. It broadcasts out.Final, clears the
// process and closes every sink. Only the first call succeeds.
func (s *Session) Finish(owner Process, out Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.SessionStatusRunning {
		return false
	}
	if owner != nil && s.process != owner {
		return false
	}

	s.status = out.Status
	s.endedAt = s.now()
	s.exitCode = out.ExitCode
	s.signal = out.Signal
	s.findings = out.Findings
	s.process = nil

	if out.Final != nil {
		s.publishLocked(out.Final)
	}
	s.closeSinksLocked()

	s.logger.Info("session finished",
		zap.String("experiment_id", s.ExperimentID),
		zap.String("status", string(out.Status)),
		zap.Int("events", len(s.log)))
	return true
}

// TerminalEvent is the synthetic done event sent to connections that
// attach after the session ended.
func (s *Session) TerminalEvent() domain.Done {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Done{
		ExitCode: s.exitCode,
		Signal:   s.signal,
		Status:   s.status,
		Findings: s.findings,
	}
}
