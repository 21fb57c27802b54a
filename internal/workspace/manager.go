// Package workspace manages the per-experiment directories the agent runs in.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	// ContextFile is the running conversation record inside a workspace.
	ContextFile = "research_context.md"
	// FindingsFile is the report the agent writes when it is done.
	FindingsFile = "findings.md"

	maxReadSize = 2 << 20
)

var (
	ErrPathOutsideWorkspace = errors.New("path resolves outside workspace")
	ErrNotFound             = errors.New("workspace file not found")
	ErrInvalidID            = errors.New("invalid experiment id")
)

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

var scaffoldDirs = []string{"literature", "experiments", "results"}

// Entry is one node of a workspace tree listing.
type Entry struct {
	Path  string    `json:"path"`
	Name  string    `json:"name"`
	IsDir bool      `json:"isDir"`
	Size  int64     `json:"size"`
	Mod   time.Time `json:"modified"`
}

// Manager owns the directory tree under Root.
type Manager struct {
	root   string
	logger *zap.Logger

	// Serializes appends to context files.
	mu sync.Mutex
}

// NewManager creates a manager rooted at root. The root is created lazily.
func NewManager(root string, logger *zap.Logger) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{root: abs, logger: logger.Named("workspace")}, nil
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string { return m.root }

// SanitizeID maps an experiment id onto a safe directory name.
func SanitizeID(id string) string {
	return unsafeIDChars.ReplaceAllString(strings.TrimSpace(id), "_")
}

// Dir returns the workspace directory for id without creating it. Only ids
// that SanitizeID leaves unchanged are accepted, so distinct ids never
// share a directory.
func (m *Manager) Dir(id string) (string, error) {
	safe := SanitizeID(id)
	if safe == "" || strings.Trim(safe, "_") == "" {
		return "", ErrInvalidID
	}
	if safe != id {
		return "", fmt.Errorf("%w: %q may only contain letters, digits, '-' and '_'", ErrInvalidID, id)
	}
	return filepath.Join(m.root, safe), nil
}

// Create makes the workspace for id, with its scaffolding, if missing.
func (m *Manager) Create(id string) (string, error) {
	dir, err := m.Dir(id)
	if err != nil {
		return "", err
	}
	for _, sub := range scaffoldDirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("failed to create workspace: %w", err)
		}
	}

	ctxPath := filepath.Join(dir, ContextFile)
	if _, err := os.Stat(ctxPath); errors.Is(err, fs.ErrNotExist) {
		header := fmt.Sprintf("# Research Context: %s\n\n", id)
		if err := os.WriteFile(ctxPath, []byte(header), 0o644); err != nil {
			return "", fmt.Errorf("failed to create context file: %w", err)
		}
		m.logger.Info("workspace created", zap.String("experiment_id", id), zap.String("dir", dir))
	}
	return dir, nil
}

// AppendConversation adds one turn to the workspace's context file.
func (m *Manager) AppendConversation(id, role, text string) error {
	dir, err := m.Create(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(dir, ContextFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open context file: %w", err)
	}
	defer f.Close()

	entry := fmt.Sprintf("## %s (%s)\n\n%s\n\n", role, time.Now().UTC().Format(time.RFC3339), strings.TrimSpace(text))
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("failed to append context: %w", err)
	}
	return nil
}

// Resolve maps a workspace-relative path to an absolute one, refusing
// anything that escapes the workspace.
func Resolve(root, rel string) (string, error) {
	var target string
	if filepath.IsAbs(rel) {
		target = filepath.Clean(rel)
	} else {
		target = filepath.Join(root, rel)
	}
	r, err := filepath.Rel(root, target)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideWorkspace, rel)
	}
	return target, nil
}

// Tree lists every file and directory in the workspace, sorted by path.
func (m *Manager) Tree(id string) ([]Entry, error) {
	dir, err := m.Dir(id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}

	var entries []Entry
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		entries = append(entries, Entry{
			Path:  filepath.ToSlash(rel),
			Name:  d.Name(),
			IsDir: d.IsDir(),
			Size:  info.Size(),
			Mod:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// ReadFile returns a file's contents, capped at 2 MiB.
func (m *Manager) ReadFile(id, rel string) ([]byte, error) {
	dir, err := m.Dir(id)
	if err != nil {
		return nil, err
	}
	path, err := Resolve(dir, rel)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}
	return io.ReadAll(io.LimitReader(f, maxReadSize))
}

// FindingsPath returns where the agent's findings report lives.
func (m *Manager) FindingsPath(id string) (string, error) {
	dir, err := m.Dir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FindingsFile), nil
}

// HasFindings reports whether the findings report exists.
func (m *Manager) HasFindings(id string) bool {
	path, err := m.FindingsPath(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WaitForFindings blocks until the findings report exists or ctx ends.
func (m *Manager) WaitForFindings(ctx context.Context, id string) ([]byte, error) {
	dir, err := m.Create(id)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("failed to watch workspace: %w", err)
	}

	// Check after the watch is in place so a write in between is not missed.
	if m.HasFindings(id) {
		return m.ReadFile(id, FindingsFile)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil, errors.New("watcher closed")
			}
			if filepath.Base(event.Name) != FindingsFile {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				if m.HasFindings(id) {
					return m.ReadFile(id, FindingsFile)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil, errors.New("watcher closed")
			}
			m.logger.Warn("findings watcher error", zap.String("experiment_id", id), zap.Error(err))
		}
	}
}
