// Package templates persists team blueprints. Resolution order is
// project-local, then user-global, then the compiled-in builtins.
package templates

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/lockfile"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// Source tells where a listed template came from.
const (
	SourceProject = "project"
	SourceUser    = "user"
	SourceBuiltin = "builtin"
)

// Entry pairs a template with its resolution source.
type Entry struct {
	Template state.TeamTemplate `json:"template"`
	Source   string             `json:"source"`
}

// Store reads and writes templates under the project storage dir and
// the user-global config dir.
type Store struct {
	paths   *state.Paths
	userDir string
}

func NewStore(paths *state.Paths) *Store {
	return &Store{paths: paths, userDir: state.UserTemplateDir()}
}

// Get resolves name through project, user, then builtin scopes.
func (s *Store) Get(name string) (*state.TeamTemplate, string, error) {
	if tpl, err := s.load(s.paths.TemplateFile(name)); err == nil {
		return tpl, SourceProject, nil
	} else if !errdefs.IsNotFound(err) {
		return nil, "", err
	}
	if s.userDir != "" {
		if tpl, err := s.load(filepath.Join(s.userDir, name+".json")); err == nil {
			return tpl, SourceUser, nil
		} else if !errdefs.IsNotFound(err) {
			return nil, "", err
		}
	}
	if tpl, ok := builtins[name]; ok {
		cp := tpl
		return &cp, SourceBuiltin, nil
	}
	return nil, "", errdefs.NotFoundf("template %s not found", name)
}

// List merges all three scopes, nearest scope winning on name clashes,
// sorted by name.
func (s *Store) List() ([]Entry, error) {
	seen := map[string]Entry{}
	for name, tpl := range builtins {
		seen[name] = Entry{Template: tpl, Source: SourceBuiltin}
	}
	if s.userDir != "" {
		if err := s.scanDir(s.userDir, SourceUser, seen); err != nil {
			return nil, err
		}
	}
	if err := s.scanDir(s.paths.TemplateDir(), SourceProject, seen); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Template.Name < out[j].Template.Name })
	return out, nil
}

func (s *Store) scanDir(dir, source string, seen map[string]Entry) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		tpl, err := s.load(filepath.Join(dir, e.Name()))
		if err != nil {
			continue // skip corrupt files, they are visible via Get
		}
		seen[tpl.Name] = Entry{Template: *tpl, Source: source}
	}
	return nil
}

func (s *Store) load(path string) (*state.TeamTemplate, error) {
	var tpl state.TeamTemplate
	if err := lockfile.ReadValidated(path, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Save writes a template. Global saves go to the user config dir,
// otherwise the project dir. Builtins can be shadowed but never
// overwritten in place.
func (s *Store) Save(tpl *state.TeamTemplate, global bool) error {
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}
	dir := s.paths.TemplateDir()
	if global {
		if s.userDir == "" {
			return errdefs.Unavailablef("no user config directory available")
		}
		dir = s.userDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return lockfile.WriteAtomic(filepath.Join(dir, tpl.Name+".json"), tpl)
}

// SaveFromTeam snapshots a live team's shape as a reusable template.
func (s *Store) SaveFromTeam(team *state.Team, name, description string, global bool) (*state.TeamTemplate, error) {
	if name == "" {
		name = team.Name
	}
	tpl := &state.TeamTemplate{
		Name:        name,
		Description: description,
		Topology:    team.Topology,
		Roles:       append([]state.RoleDef(nil), team.Roles...),
		CreatedAt:   time.Now().UTC(),
	}
	if team.Workflow != nil {
		wf := *team.Workflow
		wf.LastSuggestionAt = time.Time{}
		tpl.Workflow = &wf
	}
	if err := tpl.Validate(); err != nil {
		return nil, errdefs.Validationf("%v", err)
	}
	return tpl, s.Save(tpl, global)
}

// Delete removes a stored template. Builtins cannot be deleted.
func (s *Store) Delete(name string, global bool) error {
	path := s.paths.TemplateFile(name)
	if global {
		if s.userDir == "" {
			return errdefs.Unavailablef("no user config directory available")
		}
		path = filepath.Join(s.userDir, name+".json")
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			if _, ok := builtins[name]; ok {
				return errdefs.Preconditionf("template %s is built in and cannot be deleted", name)
			}
			return errdefs.NotFoundf("template %s not found", name)
		}
		return err
	}
	return nil
}
