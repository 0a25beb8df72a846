package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Fixture is the on-disk YAML form of a store's content.
type Fixture struct {
	Projects []domain.Project  `yaml:"projects"`
	Issues   []domain.Issue    `yaml:"issues"`
	Views    []domain.View     `yaml:"views"`
	Users    map[string]string `yaml:"users"` // user ID -> display name
}

// LoadFixture reads and validates a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates fixture YAML. Issues are linked to
// their projects and default to the NEW state.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	projects := make(map[string]int, len(f.Projects))
	for i, p := range f.Projects {
		if p.ID == "" {
			return nil, fmt.Errorf("project #%d has no id", i+1)
		}
		if _, dup := projects[p.ID]; dup {
			return nil, fmt.Errorf("duplicate project id %q", p.ID)
		}
		projects[p.ID] = i
	}

	for i := range f.Issues {
		issue := &f.Issues[i]
		if issue.ID == "" {
			return nil, fmt.Errorf("issue #%d has no id", i+1)
		}
		idx, ok := projects[issue.ProjectID]
		if !ok {
			return nil, fmt.Errorf("issue %q: %w: %s", issue.ID, ErrProjectNotFound, issue.ProjectID)
		}
		if issue.State == "" {
			issue.State = domain.StateNew
		}
		if !issue.State.Valid() {
			return nil, fmt.Errorf("issue %q: %w: %s", issue.ID, ErrInvalidState, issue.State)
		}
		p := &f.Projects[idx]
		if !slices.Contains(p.IssueIDs, issue.ID) {
			p.IssueIDs = append(p.IssueIDs, issue.ID)
		}
	}

	for _, v := range f.Views {
		idx, ok := projects[v.ProjectID]
		if !ok {
			return nil, fmt.Errorf("view %q: %w: %s", v.ID, ErrProjectNotFound, v.ProjectID)
		}
		p := &f.Projects[idx]
		if !slices.Contains(p.ViewIDs, v.ID) {
			p.ViewIDs = append(p.ViewIDs, v.ID)
		}
	}

	return &f, nil
}

// Apply replaces the store content with the fixture.
func (s *Store) Apply(f *Fixture) {
	s.Replace(f.Projects, f.Issues, f.Views)
	for id, name := range f.Users {
		s.SetDisplayName(id, name)
	}
}

// Watch reloads the fixture at path into the store whenever the file changes,
// until ctx is cancelled. Invalid intermediate files are logged and skipped.
// The parent directory is watched so editors that replace the file are handled.
func (s *Store) Watch(ctx context.Context, path string, log zerolog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve fixture path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				f, err := LoadFixture(abs)
				if err != nil {
					log.Warn().Err(err).Str("path", abs).Msg("fixture reload failed")
					continue
				}
				s.Apply(f)
				log.Info().Str("path", abs).Int("projects", len(f.Projects)).Int("issues", len(f.Issues)).Msg("fixture reloaded")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("fixture watcher error")
			}
		}
	}()
	return nil
}
