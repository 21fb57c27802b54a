package agent

import "github.com/CoolGuy2982/AI-Researcher/internal/domain"

// ExitResult describes how the agent process ended.
type ExitResult struct {
	Code   int
	Signal string // set when the process was killed by a signal
}

// Handler receives notifications from a running Process. Calls never
// overlap, and stdout events arrive in the order the agent wrote them.
type Handler interface {
	// OnEvent is called for every stdout line, typed or Log.
	OnEvent(ev domain.Event)
	// OnStderr is called for each non-blank stderr chunk.
	OnStderr(text string)
	// OnExit is called once after the process exits and stdout is drained.
	OnExit(res ExitResult)
	// OnSpawnError is called instead of OnExit when the process never started.
	OnSpawnError(err error)
}

// Funcs adapts plain functions to Handler. Nil fields are skipped. The
// kind-specific callbacks run after Event for the same event.
type Funcs struct {
	Event      func(domain.Event)
	Init       func(domain.Init)
	ToolUse    func(domain.ToolUse)
	ToolResult func(domain.ToolResult)
	Log        func(domain.Log)
	Stderr     func(string)
	Exit       func(ExitResult)
	SpawnError func(error)
}

func (f Funcs) OnEvent(ev domain.Event) {
	if f.Event != nil {
		f.Event(ev)
	}
	switch e := ev.(type) {
	case domain.Init:
		if f.Init != nil {
			f.Init(e)
		}
	case domain.ToolUse:
		if f.ToolUse != nil {
			f.ToolUse(e)
		}
	case domain.ToolResult:
		if f.ToolResult != nil {
			f.ToolResult(e)
		}
	case domain.Log:
		if f.Log != nil {
			f.Log(e)
		}
	}
}

func (f Funcs) OnStderr(text string) {
	if f.Stderr != nil {
		f.Stderr(text)
	}
}

func (f Funcs) OnExit(res ExitResult) {
	if f.Exit != nil {
		f.Exit(res)
	}
}

func (f Funcs) OnSpawnError(err error) {
	if f.SpawnError != nil {
		f.SpawnError(err)
	}
}
