package interpreter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/caffeineduck/scriptvm/internal/handle"
)

const inlineScriptName = "<inline>"

// Script is one unit of source code owned by the caller. It refers to the
// interpreter that created it by id only; releasing either never waits on the
// other.
type Script struct {
	id     uuid.UUID
	owner  uuid.UUID
	name   string
	path   string
	handle *handle.Handle[string]

	mu      sync.Mutex
	pending int
}

// NewScript creates a script from inline source.
func (in *Interpreter) NewScript(content string) (*Script, error) {
	if !in.live.Load() {
		return nil, ErrInvalidState
	}
	if err := checkContent(content); err != nil {
		return nil, err
	}
	return newScript(in.id, inlineScriptName, "", content), nil
}

// NewScriptFromFile creates a script whose source is read from path each time
// it executes. A relative path is resolved against the working directory.
func (in *Interpreter) NewScriptFromFile(path string) (*Script, error) {
	if !in.live.Load() {
		return nil, ErrInvalidState
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidScript)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(in.paths.WorkDir, path)
	}
	return newScript(in.id, filepath.Base(path), path, ""), nil
}

func newScript(owner uuid.UUID, name, path, content string) *Script {
	return &Script{
		id:     uuid.New(),
		owner:  owner,
		name:   name,
		path:   path,
		handle: handle.New(content, nil),
	}
}

func checkContent(content string) error {
	if len(content) == 0 {
		return fmt.Errorf("%w: empty source", ErrInvalidScript)
	}
	if len(content) > MaxScriptSize {
		return fmt.Errorf("%w: source is %d bytes, limit is %d", ErrInvalidScript, len(content), MaxScriptSize)
	}
	return nil
}

// ID returns the script's unique id.
func (s *Script) ID() uuid.UUID { return s.id }

// Name is the file name for file scripts and "<inline>" otherwise.
func (s *Script) Name() string { return s.name }

// Path returns the resolved file path, or "" for inline scripts.
func (s *Script) Path() string { return s.path }

// Live reports whether the script has not been released.
func (s *Script) Live() bool { return s.handle.Live() }

// Interpreter returns the interpreter that created the script, if it is
// still alive.
func (s *Script) Interpreter() (*Interpreter, bool) {
	return Lookup(s.owner)
}

// Source returns the script's source code, reading it from disk for file
// scripts. It fails with ErrUseAfterRelease once the script is released.
func (s *Script) Source() (string, error) {
	var src string
	err := s.handle.Use(func(content string) error {
		if s.path == "" {
			src = content
			return nil
		}
		data, err := os.ReadFile(s.path)
		if err != nil {
			return fmt.Errorf("read script %s: %w", s.path, err)
		}
		if err := checkContent(string(data)); err != nil {
			return fmt.Errorf("script %s: %w", s.path, err)
		}
		src = string(data)
		return nil
	})
	if errors.Is(err, handle.ErrReleased) {
		return "", fmt.Errorf("script %s: %w", s.id, ErrUseAfterRelease)
	}
	return src, err
}

// Release frees the script. It is a no-op on a released script and fails
// with ErrScriptBusy while an execution of it is queued or running.
func (s *Script) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.handle.Live() {
		return nil
	}
	if s.pending > 0 {
		return fmt.Errorf("release script %s: %w (%d)", s.id, ErrScriptBusy, s.pending)
	}
	return s.handle.Release()
}

// acquire pins the script for one submission.
func (s *Script) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.handle.Live() {
		return fmt.Errorf("%w: script %s released", ErrInvalidScript, s.id)
	}
	s.pending++
	return nil
}

// unpin undoes one acquire.
func (s *Script) unpin() {
	s.mu.Lock()
	s.pending--
	s.mu.Unlock()
}
