package service

import (
	"fmt"
	"strings"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
	"github.com/CoolGuy2982/AI-Researcher/internal/workspace"
)

// BuildResearchPrompt composes the initial instruction for a research run.
func BuildResearchPrompt(req domain.StartRequest) string {
	var b strings.Builder

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled experiment"
	}
	fmt.Fprintf(&b, "You are an autonomous research agent working on: %s\n\n", title)
	fmt.Fprintf(&b, "## Hypothesis\n\n%s\n\n", strings.TrimSpace(req.Hypothesis))

	if summary := strings.TrimSpace(req.ChatSummary); summary != "" {
		fmt.Fprintf(&b, "## Prior discussion\n\n%s\n\n", summary)
	}

	b.WriteString("## Workspace\n\n")
	b.WriteString("Your working directory is the experiment workspace. Use it as follows:\n")
	b.WriteString("- literature/: notes and summaries of related work\n")
	b.WriteString("- experiments/: code and data for each experiment you run\n")
	b.WriteString("- results/: outputs, tables and figures\n")
	fmt.Fprintf(&b, "- %s: the running conversation record, read it for context\n\n", workspace.ContextFile)

	b.WriteString("## Deliverable\n\n")
	fmt.Fprintf(&b, "Test the hypothesis with real experiments. When you are done, write %s "+
		"summarizing the method, the evidence and whether the hypothesis holds.\n", workspace.FindingsFile)

	return b.String()
}

// BuildFollowUpPrompt composes the instruction for a follow-up message.
// Without a resume token the agent has no memory of earlier turns, so it is
// pointed at the conversation record.
func BuildFollowUpPrompt(message string, resuming bool) string {
	message = strings.TrimSpace(message)
	if resuming {
		return message
	}
	return fmt.Sprintf("Read %s for the earlier conversation in this workspace, then respond to:\n\n%s",
		workspace.ContextFile, message)
}
