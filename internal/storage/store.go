package storage

import "fmt"

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Store is the full surface shared by both backends.
type Store interface {
	LoadAll() ([]Project, error)
	Insert(p Project) (int64, error)
	Update(p Project) error
	DeleteByID(id int64) error
	ReplaceAll(projects []Project) ([]int64, error)
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*JSONStore)(nil)
)

// Open returns the store for backend rooted at dataDir. An empty backend means sqlite.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case "", BackendSQLite:
		s, err := OpenSQLite(dataDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendJSON:
		s, err := OpenJSON(dataDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want %q or %q)", backend, BackendSQLite, BackendJSON)
	}
}
