package storage

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const sqliteFileName = "projects.db"

// SQLiteStore keeps the catalog in a single Projects table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) projects.db in dataDir and creates the table if missing.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func OpenSQLite(dataDir string) (*SQLiteStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fail("open", fmt.Errorf("creating data directory: %w", err))
		}
		dsn = filepath.Join(dataDir, sqliteFileName)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fail("open", fmt.Errorf("opening database: %w", err))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fail("open", fmt.Errorf("pinging database: %w", err))
	}

	// One connection: ":memory:" databases are per-connection, and a single writer
	// avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fail("open", fmt.Errorf("setting busy timeout: %w", err))
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fail("open", fmt.Errorf("setting journal mode: %w", err))
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fail("open", fmt.Errorf("creating Projects table: %w", err))
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadAll() ([]Project, error) {
	rows, err := s.db.Query(`
		SELECT Id, Name, Description, Status, FolderPath, Language, LastInteraction
		FROM Projects ORDER BY Id ASC`)
	if err != nil {
		return nil, fail("load", err)
	}
	defer rows.Close()

	var results []Project
	for rows.Next() {
		var p Project
		var desc, status, folder, lang, last sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &desc, &status, &folder, &lang, &last); err != nil {
			return nil, fail("load", err)
		}
		p.Description = desc.String
		p.Status = status.String
		p.FolderPath = folder.String
		p.Language = lang.String
		p.LastInteraction = parseTimestamp(last)
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("load", err)
	}
	return results, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertProject(e execer, p Project) (int64, error) {
	res, err := e.Exec(`
		INSERT INTO Projects (Name, Description, Status, FolderPath, Language, LastInteraction)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.Status, p.FolderPath, p.Language, formatTimestamp(p.LastInteraction),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) Insert(p Project) (int64, error) {
	id, err := insertProject(s.db, p)
	if err != nil {
		return 0, fail("insert", err)
	}
	return id, nil
}

// Update writes every field of p. An unknown id matches no row and is not an error.
func (s *SQLiteStore) Update(p Project) error {
	_, err := s.db.Exec(`
		UPDATE Projects
		SET Name = ?, Description = ?, Status = ?, FolderPath = ?, Language = ?, LastInteraction = ?
		WHERE Id = ?`,
		p.Name, p.Description, p.Status, p.FolderPath, p.Language, formatTimestamp(p.LastInteraction), p.ID,
	)
	return fail("update", err)
}

func (s *SQLiteStore) DeleteByID(id int64) error {
	_, err := s.db.Exec(`DELETE FROM Projects WHERE Id = ?`, id)
	return fail("delete", err)
}

// ReplaceAll deletes every row and inserts projects in order inside one transaction.
// The returned ids line up with projects. On error nothing is changed.
func (s *SQLiteStore) ReplaceAll(projects []Project) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fail("replace", fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM Projects`); err != nil {
		return nil, fail("replace", fmt.Errorf("clearing Projects: %w", err))
	}

	ids := make([]int64, len(projects))
	for i, p := range projects {
		id, err := insertProject(tx, p)
		if err != nil {
			return nil, fail("replace", fmt.Errorf("inserting %q: %w", p.Name, err))
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fail("replace", fmt.Errorf("committing: %w", err))
	}
	return ids, nil
}

func formatTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// parseTimestamp treats NULL and unparsable text as "never".
func parseTimestamp(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}
