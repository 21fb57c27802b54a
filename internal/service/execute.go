package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
	"github.com/CoolGuy2982/AI-Researcher/internal/execstream"
)

// PrepareCommand validates commandLine for the experiment's workspace and
// returns the workspace directory and argv. Nothing is spawned.
func (s *Service) PrepareCommand(ctx context.Context, id, commandLine string) (string, []string, error) {
	if strings.TrimSpace(commandLine) == "" {
		return "", nil, fmt.Errorf("%w: command is required", domain.ErrInvalidRequest)
	}
	dir, err := s.workspace.Create(id)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	argv, err := s.streamer.Validate(ctx, dir, commandLine)
	if err != nil {
		return "", nil, err
	}
	return dir, argv, nil
}

// Execute validates and runs a one-shot command in the experiment's
// workspace, emitting its output. It never touches the session registry.
func (s *Service) Execute(ctx context.Context, id, commandLine string, emit execstream.EmitFunc) error {
	dir, argv, err := s.PrepareCommand(ctx, id, commandLine)
	if err != nil {
		return err
	}
	return s.RunCommand(ctx, dir, argv, emit)
}

// RunCommand runs an argv returned by PrepareCommand.
func (s *Service) RunCommand(ctx context.Context, dir string, argv []string, emit execstream.EmitFunc) error {
	return s.streamer.Run(ctx, dir, argv, emit)
}
