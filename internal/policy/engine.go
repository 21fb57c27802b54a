package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allow  bool
	Reason string
}

// CommandInput is the document a command policy is evaluated against.
type CommandInput struct {
	Command string
	Args    []string
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.command_policy.decision"),
		rego.Module("command_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewDefaultEngine creates an engine with DefaultPolicy.
func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	return NewEngine(ctx, DefaultPolicy)
}

// Evaluate checks a command against the policy.
// The policy must produce an object {allow: bool, reason: string}.
func (e *Engine) Evaluate(ctx context.Context, in CommandInput) (Decision, error) {
	args := make([]interface{}, len(in.Args))
	for i, a := range in.Args {
		args[i] = a
	}
	input := map[string]interface{}{
		"command": in.Command,
		"args":    args,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// Nothing matched and no default: deny.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allow: false, Reason: "no decision"}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}

	var d Decision
	d.Allow, _ = obj["allow"].(bool)
	d.Reason, _ = obj["reason"].(string)
	return d, nil
}

// DefaultPolicy allows interpreters and read-only inspection utilities.
const DefaultPolicy = `
package command_policy

default decision = {"allow": false, "reason": "command not allowed"}

allowed_commands := {
	"python", "python3",
	"ls", "cat", "head", "tail", "wc", "grep", "find", "pwd", "echo",
	"du", "stat", "tree", "diff", "sort", "uniq", "file",
}

read_only_pip := {"list", "show", "freeze"}

# find actions that run programs or remove files
find_actions := {"-exec", "-execdir", "-ok", "-okdir", "-delete"}

unsafe_find {
	input.command == "find"
	find_actions[input.args[_]]
}

decision = {"allow": true, "reason": "allowed"} {
	allowed_commands[input.command]
	not unsafe_find
}

decision = {"allow": false, "reason": "find may not run commands or delete files"} {
	unsafe_find
}

decision = {"allow": true, "reason": "read-only pip"} {
	input.command == "pip"
	read_only_pip[input.args[0]]
}

decision = {"allow": false, "reason": "pip is limited to list, show and freeze"} {
	input.command == "pip"
	not read_only_pip[input.args[0]]
}
`
