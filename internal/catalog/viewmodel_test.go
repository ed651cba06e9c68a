package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/projdeck/internal/storage"
)

// --- mocks ---

// mockStore is an in-memory Store that records every call.
type mockStore struct {
	records []storage.Project
	nextID  int64

	updates    []storage.Project
	deletes    []int64
	replaceErr error
	updateErr  error
	insertErr  error
}

func newMockStore(records ...storage.Project) *mockStore {
	m := &mockStore{}
	for _, r := range records {
		m.nextID++
		r.ID = m.nextID
		m.records = append(m.records, r)
	}
	return m
}

func (m *mockStore) LoadAll() ([]storage.Project, error) {
	out := make([]storage.Project, len(m.records))
	for i, r := range m.records {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *mockStore) Insert(p storage.Project) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.nextID++
	p.ID = m.nextID
	m.records = append(m.records, p.Clone())
	return p.ID, nil
}

func (m *mockStore) Update(p storage.Project) error {
	m.updates = append(m.updates, p.Clone())
	if m.updateErr != nil {
		return m.updateErr
	}
	for i := range m.records {
		if m.records[i].ID == p.ID {
			m.records[i] = p.Clone()
		}
	}
	return nil
}

func (m *mockStore) DeleteByID(id int64) error {
	m.deletes = append(m.deletes, id)
	for i := range m.records {
		if m.records[i].ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockStore) ReplaceAll(projects []storage.Project) ([]int64, error) {
	if m.replaceErr != nil {
		return nil, m.replaceErr
	}
	m.records = nil
	ids := make([]int64, len(projects))
	for i, p := range projects {
		m.nextID++
		p.ID = m.nextID
		m.records = append(m.records, p.Clone())
		ids[i] = p.ID
	}
	return ids, nil
}

type mockLauncher struct {
	calls []string
	err   error
}

func (m *mockLauncher) OpenFolder(path string) error {
	m.calls = append(m.calls, "folder:"+path)
	return m.err
}

func (m *mockLauncher) OpenInEditor(path string) error {
	m.calls = append(m.calls, "editor:"+path)
	return m.err
}

func (m *mockLauncher) RunProjectScript(path string) error {
	m.calls = append(m.calls, "script:"+path)
	return m.err
}

// --- helpers ---

func loadVM(t *testing.T, store *mockStore, launcher Launcher, opts ...Option) *ViewModel {
	t.Helper()
	vm, err := Load(store, launcher, opts...)
	require.NoError(t, err)
	return vm
}

func names(list []Snapshot) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Name
	}
	return out
}

func idOf(t *testing.T, vm *ViewModel, name, lang string) int64 {
	t.Helper()
	for _, p := range vm.Projects() {
		if p.Name == name && p.Language == lang {
			return p.ID
		}
	}
	t.Fatalf("no project %q/%q", name, lang)
	return 0
}

// --- tests ---

// TestFilterConjunction combines a language filter with a case-insensitive search.
func TestFilterConjunction(t *testing.T) {
	store := newMockStore(
		storage.Project{Name: "Foo", Language: "Go"},
		storage.Project{Name: "Bar", Language: "Go"},
		storage.Project{Name: "Foo", Language: "Rust"},
	)
	vm := loadVM(t, store, nil)

	vm.SetLanguageFilter(OnlyLanguage("Go"))
	vm.SetSearchQuery("foo")

	got := vm.Display()
	require.Len(t, got, 1)
	assert.Equal(t, "Foo", got[0].Name)
	assert.Equal(t, "Go", got[0].Language)
}

// TestFilterIdempotent verifies re-applying an unchanged filter yields the same list.
func TestFilterIdempotent(t *testing.T) {
	store := newMockStore(
		storage.Project{Name: "alpha", Language: "Go"},
		storage.Project{Name: "beta", Language: "Go"},
		storage.Project{Name: "gamma", Language: "Python"},
	)
	vm := loadVM(t, store, nil)
	vm.SetLanguageFilter(OnlyLanguage("Go"))
	vm.SetSearchQuery("a")

	first := vm.Display()
	vm.ApplyFilter()
	second := vm.Display()
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"alpha", "beta"}, names(second))
}

// TestEmptyLanguageHandling verifies "" is a distinct language and "all" keeps it.
func TestEmptyLanguageHandling(t *testing.T) {
	store := newMockStore(
		storage.Project{Name: "untyped", Language: ""},
		storage.Project{Name: "typed", Language: "Go"},
	)
	vm := loadVM(t, store, nil)

	vm.SetLanguageFilter(OnlyLanguage("Go"))
	assert.Equal(t, []string{"typed"}, names(vm.Display()))

	vm.SetLanguageFilter(AllLanguages())
	assert.Equal(t, []string{"untyped", "typed"}, names(vm.Display()))

	vm.SetLanguageFilter(OnlyLanguage(""))
	assert.Equal(t, []string{"untyped"}, names(vm.Display()))
}

// TestAllSentinelDoesNotCollideWithLanguageName verifies a language literally named like the sentinel label.
func TestAllSentinelDoesNotCollideWithLanguageName(t *testing.T) {
	store := newMockStore(
		storage.Project{Name: "weird", Language: "(all)"},
		storage.Project{Name: "normal", Language: "Go"},
	)
	vm := loadVM(t, store, nil)

	vm.SetLanguageFilter(OnlyLanguage("(all)"))
	assert.Equal(t, []string{"weird"}, names(vm.Display()))
	assert.False(t, vm.Filter().IsAll())
}

// TestSearchCaseInsensitiveOnDescription verifies "FOO" matches "a foo bar".
func TestSearchCaseInsensitiveOnDescription(t *testing.T) {
	store := newMockStore(
		storage.Project{Name: "one", Description: "a foo bar"},
		storage.Project{Name: "two", Description: "nothing here"},
	)
	vm := loadVM(t, store, nil)

	vm.SetSearchQuery("FOO")
	assert.Equal(t, []string{"one"}, names(vm.Display()))
}

// TestSearchBlankMeansNoConstraint verifies whitespace-only queries match everything.
func TestSearchBlankMeansNoConstraint(t *testing.T) {
	store := newMockStore(
		storage.Project{Name: "one", Description: ""},
		storage.Project{Name: "two", Description: "text"},
	)
	vm := loadVM(t, store, nil)

	vm.SetSearchQuery("   ")
	assert.Equal(t, []string{"one", "two"}, names(vm.Display()))

	vm.SetSearchQuery("  two  ")
	assert.Equal(t, []string{"two"}, names(vm.Display()))
	assert.Equal(t, "  two  ", vm.SearchQuery())
}

// TestFieldEditPersistsFullRecordOnce verifies one Update call carrying every field.
func TestFieldEditPersistsFullRecordOnce(t *testing.T) {
	store := newMockStore(storage.Project{
		Name: "proj", Description: "desc", Status: "todo", FolderPath: "/p", Language: "Go",
	})
	vm := loadVM(t, store, nil)
	id := idOf(t, vm, "proj", "Go")

	require.NoError(t, vm.Edit(id, func(p *Project) error { return p.SetStatus("done") }))

	require.Len(t, store.updates, 1)
	want := storage.Project{
		ID: id, Name: "proj", Description: "desc", Status: "done", FolderPath: "/p", Language: "Go",
	}
	assert.Equal(t, want, store.updates[0])
}

// TestFieldEditUnchangedValueDoesNotPersist verifies setting the same value is silent.
func TestFieldEditUnchangedValueDoesNotPersist(t *testing.T) {
	store := newMockStore(storage.Project{Name: "proj", Status: "todo"})
	vm := loadVM(t, store, nil)
	id := idOf(t, vm, "proj", "")

	require.NoError(t, vm.Edit(id, func(p *Project) error { return p.SetStatus("todo") }))
	assert.Empty(t, store.updates)
}

// TestLanguageChangeLeavesDisplayNotCatalog verifies a project leaving the filter stays tracked.
func TestLanguageChangeLeavesDisplayNotCatalog(t *testing.T) {
	store := newMockStore(
		storage.Project{Name: "a", Language: "Go"},
		storage.Project{Name: "b", Language: "Go"},
	)
	vm := loadVM(t, store, nil)
	vm.SetLanguageFilter(OnlyLanguage("Go"))
	id := idOf(t, vm, "a", "Go")

	require.NoError(t, vm.Edit(id, func(p *Project) error { return p.SetLanguage("Rust") }))

	assert.Equal(t, []string{"b"}, names(vm.Display()))
	assert.Equal(t, []string{"a", "b"}, names(vm.Projects()))
	require.Len(t, store.updates, 1)
	assert.Equal(t, "Rust", store.updates[0].Language)
}

// TestNonLanguageEditDoesNotRefilter verifies only language edits recompute the display list.
func TestNonLanguageEditDoesNotRefilter(t *testing.T) {
	store := newMockStore(storage.Project{Name: "alpha"})
	vm := loadVM(t, store, nil)
	vm.SetSearchQuery("alpha")
	id := idOf(t, vm, "alpha", "")

	require.NoError(t, vm.Edit(id, func(p *Project) error { return p.SetName("beta") }))

	// The name no longer matches, but the list is only recomputed on filter changes.
	assert.Equal(t, []string{"beta"}, names(vm.Display()))
	vm.ApplyFilter()
	assert.Empty(t, vm.Display())
}

// TestEditStorageErrorPropagates verifies store failures reach the Edit caller.
func TestEditStorageErrorPropagates(t *testing.T) {
	store := newMockStore(storage.Project{Name: "x"})
	vm := loadVM(t, store, nil)
	id := idOf(t, vm, "x", "")

	store.updateErr = &storage.StorageError{Op: "update", Err: errors.New("disk full")}
	err := vm.Edit(id, func(p *Project) error { return p.SetDescription("new") })
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorage)
}

// TestEditUnknownID verifies ErrProjectNotFound for ids outside the catalog.
func TestEditUnknownID(t *testing.T) {
	vm := loadVM(t, newMockStore(), nil)
	err := vm.Edit(42, func(p *Project) error { return nil })
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

// TestSetFieldUnknown verifies SetField rejects unknown names without persisting.
func TestSetFieldUnknown(t *testing.T) {
	store := newMockStore(storage.Project{Name: "x"})
	vm := loadVM(t, store, nil)
	id := idOf(t, vm, "x", "")

	err := vm.Edit(id, func(p *Project) error { return p.SetField("id", "7") })
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Empty(t, store.updates)
}

// TestSetFieldsAppliesInFieldOrder verifies one update per changed field, in TextFields order.
func TestSetFieldsAppliesInFieldOrder(t *testing.T) {
	store := newMockStore(storage.Project{Name: "a"})
	vm := loadVM(t, store, nil)

	snap, err := vm.SetFields(1, map[string]string{"language": "Go", "name": "b", "status": ""})
	require.NoError(t, err)
	assert.Equal(t, "b", snap.Name)
	assert.Equal(t, "Go", snap.Language)
	require.Len(t, store.updates, 2, "status was already empty")
	assert.Equal(t, "b", store.updates[0].Name)
	assert.Equal(t, "", store.updates[0].Language)
	assert.Equal(t, "Go", store.updates[1].Language)
}

// TestSetFieldsRejectsBeforeChanging verifies an unknown name leaves the project untouched.
func TestSetFieldsRejectsBeforeChanging(t *testing.T) {
	store := newMockStore(storage.Project{Name: "a"})
	vm := loadVM(t, store, nil)

	_, err := vm.SetFields(1, map[string]string{"name": "b", "colour": "red"})
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Empty(t, store.updates)
	got, _ := vm.Get(1)
	assert.Equal(t, "a", got.Name)
}

// TestAddWithOverridesPlaceholders verifies AddWith keeps placeholders for omitted fields.
func TestAddWithOverridesPlaceholders(t *testing.T) {
	store := newMockStore()
	vm := loadVM(t, store, nil)

	snap, err := vm.AddWith(map[string]string{"name": "deck", "folder_path": "/src/deck"})
	require.NoError(t, err)
	assert.Equal(t, "deck", snap.Name)
	assert.Equal(t, "/src/deck", snap.FolderPath)
	assert.Equal(t, "Description", snap.Description)
	assert.Equal(t, "New", snap.Status)

	assert.Empty(t, store.updates, "fields go into the insert")
	require.Len(t, store.records, 1)
	assert.Equal(t, "deck", store.records[0].Name)

	_, err = vm.AddWith(map[string]string{"id": "7"})
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Len(t, vm.Projects(), 1)
}

// TestAddWithDuringSaveAll verifies adds racing checkpoints never lose a
// project or leave a placeholder behind.
func TestAddWithDuringSaveAll(t *testing.T) {
	s, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	vm, err := Load(s, nil)
	require.NoError(t, err)

	const adds = 300
	stop := make(chan struct{})
	saved := make(chan error, 1)
	go func() {
		for {
			select {
			case <-stop:
				saved <- nil
				return
			default:
			}
			if err := vm.SaveAll(); err != nil {
				saved <- err
				return
			}
		}
	}()

	var addErrs int
	for i := 0; i < adds; i++ {
		snap, err := vm.AddWith(map[string]string{"name": "named"})
		if err != nil || snap.Name != "named" {
			addErrs++
		}
	}
	close(stop)
	require.NoError(t, <-saved)

	assert.Zero(t, addErrs)
	all := vm.Projects()
	require.Len(t, all, adds)
	for _, p := range all {
		assert.Equal(t, "named", p.Name)
	}
}

// TestSetFieldsDuringSaveAll verifies the returned snapshot is the edited
// project even while checkpoints renumber ids.
func TestSetFieldsDuringSaveAll(t *testing.T) {
	s, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	vm, err := Load(s, nil)
	require.NoError(t, err)
	_, err = vm.AddWith(map[string]string{"name": "only"})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			vm.SaveAll()
		}
	}()
	// A single project keeps its position, so SaveAll maps it to one new id each time.
	for i := 0; i < 100; i++ {
		id := vm.Projects()[0].ID
		snap, err := vm.SetFields(id, map[string]string{"status": "s"})
		if err != nil {
			assert.ErrorIs(t, err, ErrProjectNotFound)
			continue
		}
		assert.Equal(t, "only", snap.Name)
		assert.Equal(t, "s", snap.Status)
	}
	<-done
}

// TestParseField verifies only text fields parse.
func TestParseField(t *testing.T) {
	f, err := ParseField("folder_path")
	require.NoError(t, err)
	assert.Equal(t, FieldFolderPath, f)

	_, err = ParseField("last_interaction")
	assert.ErrorIs(t, err, ErrUnknownField)
}

// TestAddNewPlaceholdersAndFilter verifies AddNew persists placeholders and respects the filter.
func TestAddNewPlaceholdersAndFilter(t *testing.T) {
	store := newMockStore(storage.Project{Name: "existing", Language: "Go"})
	vm := loadVM(t, store, nil)

	added, err := vm.AddNew()
	require.NoError(t, err)
	assert.NotZero(t, added.ID)
	assert.Equal(t, "New project", added.Name)
	assert.Equal(t, "Description", added.Description)
	assert.Equal(t, "New", added.Status)
	assert.Equal(t, "", added.FolderPath)
	assert.Equal(t, "", added.Language)
	assert.Len(t, store.records, 2)
	assert.Len(t, vm.Display(), 2)

	// With a Go filter, the language-less placeholder is tracked but not displayed.
	vm.SetLanguageFilter(OnlyLanguage("Go"))
	second, err := vm.AddNew()
	require.NoError(t, err)
	assert.NotEqual(t, added.ID, second.ID)
	assert.Len(t, vm.Projects(), 3)
	assert.Equal(t, []string{"existing"}, names(vm.Display()))

	// The new record is subscribed: editing it persists.
	require.NoError(t, vm.Edit(second.ID, func(p *Project) error { return p.SetLanguage("Go") }))
	assert.Len(t, vm.Display(), 2)
}

// TestAddNewInsertFailure verifies nothing is tracked when Insert fails.
func TestAddNewInsertFailure(t *testing.T) {
	store := newMockStore()
	store.insertErr = &storage.StorageError{Op: "insert", Err: errors.New("read-only")}
	vm := loadVM(t, store, nil)

	_, err := vm.AddNew()
	assert.ErrorIs(t, err, storage.ErrStorage)
	assert.Empty(t, vm.Projects())
}

// TestRemoveDropsFromBothLists verifies Remove updates store, catalog and display.
func TestRemoveDropsFromBothLists(t *testing.T) {
	store := newMockStore(
		storage.Project{Name: "keep"},
		storage.Project{Name: "drop"},
	)
	vm := loadVM(t, store, nil)
	id := idOf(t, vm, "drop", "")

	require.NoError(t, vm.Remove(id))
	assert.Equal(t, []int64{id}, store.deletes)
	assert.Equal(t, []string{"keep"}, names(vm.Projects()))
	assert.Equal(t, []string{"keep"}, names(vm.Display()))

	loaded, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "keep", loaded[0].Name)

	assert.ErrorIs(t, vm.Remove(id), ErrProjectNotFound)
}

// TestSaveAllAdoptsNewIDs verifies checkpoint save reassigns ids usable for later edits.
func TestSaveAllAdoptsNewIDs(t *testing.T) {
	store := newMockStore(
		storage.Project{Name: "a"},
		storage.Project{Name: "b"},
	)
	vm := loadVM(t, store, nil)
	before := vm.Projects()

	require.NoError(t, vm.SaveAll())
	after := vm.Projects()
	require.Len(t, after, 2)
	assert.NotEqual(t, before[0].ID, after[0].ID)
	assert.Equal(t, []string{"a", "b"}, names(after))

	require.NoError(t, vm.Edit(after[1].ID, func(p *Project) error { return p.SetStatus("shipped") }))
	require.Len(t, store.updates, 1)
	assert.Equal(t, after[1].ID, store.updates[0].ID)
	assert.Equal(t, "shipped", store.records[1].Status)
}

// TestSaveAllFailureKeepsIDs verifies a failed checkpoint leaves the catalog unchanged.
func TestSaveAllFailureKeepsIDs(t *testing.T) {
	store := newMockStore(storage.Project{Name: "a"})
	vm := loadVM(t, store, nil)
	before := vm.Projects()

	store.replaceErr = &storage.StorageError{Op: "replace", Err: errors.New("boom")}
	assert.ErrorIs(t, vm.SaveAll(), storage.ErrStorage)
	assert.Equal(t, before, vm.Projects())
}

// TestReplaceWithRebuildsCatalog verifies a bulk import swaps the tracked list.
func TestReplaceWithRebuildsCatalog(t *testing.T) {
	store := newMockStore(storage.Project{Name: "old", Language: "Go"})
	vm := loadVM(t, store, nil)
	vm.SetLanguageFilter(OnlyLanguage("Go"))

	require.NoError(t, vm.ReplaceWith([]storage.Project{
		{Name: "new-go", Language: "Go"},
		{Name: "new-py", Language: "Python"},
	}))
	assert.Equal(t, []string{"new-go", "new-py"}, names(vm.Projects()))
	assert.Equal(t, []string{"new-go"}, names(vm.Display()))

	id := idOf(t, vm, "new-py", "Python")
	require.NoError(t, vm.Edit(id, func(p *Project) error { return p.SetStatus("x") }))
	assert.Equal(t, id, store.updates[0].ID)
}

// TestLaunchStampsLastInteraction verifies each action records the time and calls the launcher.
func TestLaunchStampsLastInteraction(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMockStore(storage.Project{Name: "p", FolderPath: "/work/p"})
	launcher := &mockLauncher{}
	vm := loadVM(t, store, launcher, WithClock(func() time.Time { return now }))
	id := idOf(t, vm, "p", "")

	require.NoError(t, vm.OpenFolder(id))
	require.NoError(t, vm.OpenInEditor(id))
	require.NoError(t, vm.RunScript(id))

	assert.Equal(t, []string{"folder:/work/p", "editor:/work/p", "script:/work/p"}, launcher.calls)
	// Only the first stamp changes the value; the same instant is not re-persisted.
	require.Len(t, store.updates, 1)
	require.NotNil(t, store.updates[0].LastInteraction)
	assert.True(t, now.Equal(*store.updates[0].LastInteraction))

	got, err := vm.Get(id)
	require.NoError(t, err)
	assert.NotEqual(t, "—", got.LastInteractionDisplay)
}

// TestFailedLaunchStillStamps verifies LastInteraction moves even when the launch fails.
func TestFailedLaunchStillStamps(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMockStore(storage.Project{Name: "p", FolderPath: "/missing"})
	launchErr := errors.New("folder not found")
	launcher := &mockLauncher{err: launchErr}
	vm := loadVM(t, store, launcher, WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	id := idOf(t, vm, "p", "")

	err := vm.RunScript(id)
	assert.ErrorIs(t, err, launchErr)
	require.Len(t, store.updates, 1)
	assert.True(t, clock.Equal(*store.updates[0].LastInteraction))

	err = vm.OpenFolder(id)
	assert.ErrorIs(t, err, launchErr)
	require.Len(t, store.updates, 2, "each attempt replaces the timestamp")
}

// TestLaunchWithoutLauncher verifies ErrNoLauncher still stamps the attempt.
func TestLaunchWithoutLauncher(t *testing.T) {
	store := newMockStore(storage.Project{Name: "p"})
	vm := loadVM(t, store, nil)
	id := idOf(t, vm, "p", "")

	assert.ErrorIs(t, vm.OpenFolder(id), ErrNoLauncher)
	assert.Len(t, store.updates, 1)
	assert.ErrorIs(t, vm.OpenFolder(id+100), ErrProjectNotFound)
}

// TestLanguagesDistinctSorted verifies the language picker source.
func TestLanguagesDistinctSorted(t *testing.T) {
	store := newMockStore(
		storage.Project{Name: "a", Language: "Rust"},
		storage.Project{Name: "b", Language: "Go"},
		storage.Project{Name: "c", Language: ""},
		storage.Project{Name: "d", Language: "Go"},
	)
	vm := loadVM(t, store, nil)
	assert.Equal(t, []string{"", "Go", "Rust"}, vm.Languages())
}

// TestViewModelAgainstSQLite runs add/edit/remove/save against a real store.
func TestViewModelAgainstSQLite(t *testing.T) {
	s, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	vm, err := Load(s, nil)
	require.NoError(t, err)

	a, err := vm.AddNew()
	require.NoError(t, err)
	b, err := vm.AddNew()
	require.NoError(t, err)
	require.NoError(t, vm.Edit(a.ID, func(p *Project) error {
		if err := p.SetName("Alpha"); err != nil {
			return err
		}
		return p.SetLanguage("Go")
	}))
	require.NoError(t, vm.Remove(b.ID))
	require.NoError(t, vm.SaveAll())

	loaded, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "Alpha", loaded[0].Name)
	assert.Equal(t, "Go", loaded[0].Language)
	assert.Equal(t, vm.Projects()[0].ID, loaded[0].ID)
}
