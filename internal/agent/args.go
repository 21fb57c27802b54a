package agent

// Options describes one agent invocation.
type Options struct {
	Prompt      string
	Dir         string
	Model       string
	AutoApprove bool
	Sandbox     bool
	ResumeToken string

	// Env is appended to the inherited environment.
	Env []string
}

// BuildArgs returns the command-line arguments for opts. The prompt and
// structured output flags are always present.
func BuildArgs(opts Options) []string {
	var args []string
	if opts.ResumeToken != "" {
		args = append(args, "--resume", opts.ResumeToken)
	}
	args = append(args, "--prompt", opts.Prompt, "--output-format", "stream-json")
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.AutoApprove {
		args = append(args, "--yolo")
	}
	if opts.Sandbox {
		args = append(args, "--sandbox")
	}
	return args
}
