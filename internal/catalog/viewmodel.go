// Package catalog holds the in-memory project catalog: the authoritative list,
// the filtered display list, and the glue that keeps both in step with a Store.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kalambet/projdeck/internal/storage"
)

// ErrProjectNotFound is returned when an id is not in the catalog.
var ErrProjectNotFound = errors.New("project not found")

// ErrNoLauncher is returned by launch actions on a ViewModel built without a Launcher.
var ErrNoLauncher = errors.New("no launcher configured")

// Store persists project records. Update and DeleteByID ignore unknown ids.
type Store interface {
	LoadAll() ([]storage.Project, error)
	Insert(p storage.Project) (int64, error)
	Update(p storage.Project) error
	DeleteByID(id int64) error
	ReplaceAll(projects []storage.Project) ([]int64, error)
}

// Launcher starts OS helpers for a project folder.
type Launcher interface {
	OpenFolder(path string) error
	OpenInEditor(path string) error
	RunProjectScript(path string) error
}

const (
	placeholderName        = "New project"
	placeholderDescription = "Description"
	placeholderStatus      = "New"
)

// Snapshot is a read-only copy of a project plus its formatted timestamp.
type Snapshot struct {
	storage.Project
	LastInteractionDisplay string `json:"last_interaction_display"`
}

// Option configures a ViewModel.
type Option func(*ViewModel)

// WithClock overrides time.Now for LastInteraction stamps.
func WithClock(now func() time.Time) Option {
	return func(vm *ViewModel) { vm.now = now }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(vm *ViewModel) { vm.logger = l }
}

// ViewModel owns the authoritative project list. All methods are serialized by
// one mutex, so callers on different goroutines never race on the list.
type ViewModel struct {
	mu       sync.Mutex
	store    Store
	launcher Launcher
	now      func() time.Time
	logger   *slog.Logger

	all     []*Project
	display []*Project
	filter  LanguageFilter
	query   string
}

// Load reads every record from store and builds the catalog with no filter applied.
// launcher may be nil when no launch actions are needed.
func Load(store Store, launcher Launcher, opts ...Option) (*ViewModel, error) {
	vm := &ViewModel{
		store:    store,
		launcher: launcher,
		now:      time.Now,
		logger:   slog.Default(),
		filter:   AllLanguages(),
	}
	for _, opt := range opts {
		opt(vm)
	}

	records, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	vm.track(records)
	vm.applyFilter()
	return vm, nil
}

func (vm *ViewModel) track(records []storage.Project) {
	vm.all = make([]*Project, 0, len(records))
	for _, rec := range records {
		p := NewProject(rec)
		p.Subscribe(vm.onFieldChanged)
		vm.all = append(vm.all, p)
	}
}

// onFieldChanged persists the full record of p. Callers hold vm.mu.
func (vm *ViewModel) onFieldChanged(p *Project, f Field) error {
	vm.logger.Debug("project field changed", "id", p.ID(), "field", string(f))
	err := vm.store.Update(p.Record())
	if f == FieldLanguage {
		vm.applyFilter()
	}
	return err
}

func (vm *ViewModel) passes(p *Project) bool {
	return vm.filter.Matches(p.Language()) && matchesQuery(vm.query, p.Name(), p.Description())
}

func (vm *ViewModel) applyFilter() {
	display := make([]*Project, 0, len(vm.all))
	for _, p := range vm.all {
		if vm.passes(p) {
			display = append(display, p)
		}
	}
	vm.display = display
}

func (vm *ViewModel) find(id int64) *Project {
	for _, p := range vm.all {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// ApplyFilter recomputes the display list from the current filter state.
func (vm *ViewModel) ApplyFilter() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.applyFilter()
}

// SetLanguageFilter replaces the language filter and recomputes the display list.
func (vm *ViewModel) SetLanguageFilter(f LanguageFilter) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.filter = f
	vm.applyFilter()
	vm.logger.Debug("language filter set", "filter", f.String(), "shown", len(vm.display))
}

// SetSearchQuery replaces the search text and recomputes the display list.
func (vm *ViewModel) SetSearchQuery(q string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.query = q
	vm.applyFilter()
}

// Filter returns the active language filter.
func (vm *ViewModel) Filter() LanguageFilter {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.filter
}

// SearchQuery returns the active search text as set.
func (vm *ViewModel) SearchQuery() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.query
}

func snapshotOf(p *Project) Snapshot {
	return Snapshot{Project: p.Record(), LastInteractionDisplay: p.LastInteractionDisplay()}
}

func snapshots(list []*Project) []Snapshot {
	out := make([]Snapshot, len(list))
	for i, p := range list {
		out[i] = snapshotOf(p)
	}
	return out
}

// Projects returns the whole catalog in list order.
func (vm *ViewModel) Projects() []Snapshot {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return snapshots(vm.all)
}

// Display returns the filtered list in catalog order.
func (vm *ViewModel) Display() []Snapshot {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return snapshots(vm.display)
}

// Get returns one project by id.
func (vm *ViewModel) Get(id int64) (Snapshot, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	p := vm.find(id)
	if p == nil {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrProjectNotFound, id)
	}
	return snapshotOf(p), nil
}

// Languages returns the distinct languages in the catalog, sorted. "" is included
// when some project has no language.
func (vm *ViewModel) Languages() []string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	seen := make(map[string]bool)
	var langs []string
	for _, p := range vm.all {
		if !seen[p.Language()] {
			seen[p.Language()] = true
			langs = append(langs, p.Language())
		}
	}
	sort.Strings(langs)
	return langs
}

// AddNew inserts a placeholder project and tracks it. It joins the display list
// only if it passes the active filter.
func (vm *ViewModel) AddNew() (Snapshot, error) {
	return vm.AddWith(nil)
}

// AddWith inserts a placeholder project with fields applied over it, in one
// Store.Insert. Unknown field names are rejected before anything is stored.
func (vm *ViewModel) AddWith(fields map[string]string) (Snapshot, error) {
	if err := checkFields(fields); err != nil {
		return Snapshot{}, err
	}
	p := NewProject(storage.Project{
		Name:        placeholderName,
		Description: placeholderDescription,
		Status:      placeholderStatus,
	})
	// Not subscribed yet, so these setters only change the record.
	if err := applyFields(p, fields); err != nil {
		return Snapshot{}, err
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	id, err := vm.store.Insert(p.Record())
	if err != nil {
		return Snapshot{}, err
	}
	p.setID(id)
	p.Subscribe(vm.onFieldChanged)
	vm.all = append(vm.all, p)
	if vm.passes(p) {
		vm.display = append(vm.display, p)
	}
	vm.logger.Debug("project added", "id", id)
	return snapshotOf(p), nil
}

// Edit runs fn against the tracked project with the given id. Every setter that
// changes a value persists the whole record before returning. fn must not keep p.
func (vm *ViewModel) Edit(id int64, fn func(p *Project) error) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	p := vm.find(id)
	if p == nil {
		return fmt.Errorf("%w: %d", ErrProjectNotFound, id)
	}
	return fn(p)
}

// SetFields applies name/value pairs to one project in TextFields order, so
// the sequence of persisted updates does not depend on map iteration. Every
// name is checked before anything changes. The returned snapshot is taken
// before the lock is released.
func (vm *ViewModel) SetFields(id int64, fields map[string]string) (Snapshot, error) {
	if err := checkFields(fields); err != nil {
		return Snapshot{}, err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	p := vm.find(id)
	if p == nil {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrProjectNotFound, id)
	}
	if err := applyFields(p, fields); err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(p), nil
}

func applyFields(p *Project, fields map[string]string) error {
	for _, f := range TextFields {
		if v, ok := fields[string(f)]; ok {
			if err := p.SetField(f, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkFields(fields map[string]string) error {
	for name := range fields {
		if _, err := ParseField(name); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the project from the store and from both lists.
func (vm *ViewModel) Remove(id int64) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	p := vm.find(id)
	if p == nil {
		return fmt.Errorf("%w: %d", ErrProjectNotFound, id)
	}
	if err := vm.store.DeleteByID(id); err != nil {
		return err
	}
	p.Unsubscribe()
	vm.all = without(vm.all, p)
	vm.display = without(vm.display, p)
	vm.logger.Debug("project removed", "id", id)
	return nil
}

func without(list []*Project, p *Project) []*Project {
	out := list[:0]
	for _, q := range list {
		if q != p {
			out = append(out, q)
		}
	}
	return out
}

// SaveAll writes the whole catalog through Store.ReplaceAll and adopts the ids
// the store assigned. It is the checkpoint save, not a per-edit path.
func (vm *ViewModel) SaveAll() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	records := make([]storage.Project, len(vm.all))
	for i, p := range vm.all {
		records[i] = p.Record()
	}
	ids, err := vm.store.ReplaceAll(records)
	if err != nil {
		return err
	}
	if len(ids) != len(vm.all) {
		return fmt.Errorf("store returned %d ids for %d projects", len(ids), len(vm.all))
	}
	for i, p := range vm.all {
		p.setID(ids[i])
	}
	vm.logger.Info("catalog saved", "projects", len(ids))
	return nil
}

// ReplaceWith swaps the whole catalog for records, persisting them through
// ReplaceAll. Filter state is kept.
func (vm *ViewModel) ReplaceWith(records []storage.Project) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	ids, err := vm.store.ReplaceAll(records)
	if err != nil {
		return err
	}
	if len(ids) != len(records) {
		return fmt.Errorf("store returned %d ids for %d projects", len(ids), len(records))
	}
	for _, p := range vm.all {
		p.Unsubscribe()
	}
	fresh := make([]storage.Project, len(records))
	for i, rec := range records {
		fresh[i] = rec.Clone()
		fresh[i].ID = ids[i]
	}
	vm.track(fresh)
	vm.applyFilter()
	vm.logger.Info("catalog replaced", "projects", len(fresh))
	return nil
}

// OpenFolder stamps LastInteraction and opens the project folder.
func (vm *ViewModel) OpenFolder(id int64) error {
	return vm.launch(id, "open_folder", Launcher.OpenFolder)
}

// OpenInEditor stamps LastInteraction and opens the folder in a code editor.
func (vm *ViewModel) OpenInEditor(id int64) error {
	return vm.launch(id, "open_editor", Launcher.OpenInEditor)
}

// RunScript stamps LastInteraction and starts the project's run script.
func (vm *ViewModel) RunScript(id int64) error {
	return vm.launch(id, "run_script", Launcher.RunProjectScript)
}

// launch records the attempt before starting anything, so a failed launch still
// moves LastInteraction.
func (vm *ViewModel) launch(id int64, action string, start func(Launcher, string) error) error {
	vm.mu.Lock()
	p := vm.find(id)
	if p == nil {
		vm.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrProjectNotFound, id)
	}
	recordErr := p.SetLastInteraction(vm.now())
	path := p.FolderPath()
	vm.mu.Unlock()

	var launchErr error
	if vm.launcher == nil {
		launchErr = ErrNoLauncher
	} else {
		launchErr = start(vm.launcher, path)
	}
	if launchErr != nil {
		vm.logger.Warn("launch failed", "action", action, "id", id, "path", path, "error", launchErr)
	} else {
		vm.logger.Info("launched", "action", action, "id", id, "path", path)
	}
	return errors.Join(recordErr, launchErr)
}
