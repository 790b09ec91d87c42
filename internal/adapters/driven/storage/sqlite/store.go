package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/cartloop-labs/cartloop-cli/internal/adapters/driven/storage"
	"github.com/cartloop-labs/cartloop-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.DocumentStore = (*Store)(nil)

// Store is the SQLite-backed document store. Documents are stored as opaque
// JSON bodies with the fields the store indexes (type, list) and the
// replication metadata (rev, deleted, seq) broken out into columns.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.cartloop/data/shopping.db.
// Migrations run before the store is returned, so the type and type+list
// indexes exist before any query is possible.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".cartloop", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "shopping.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Opener returns a StoreOpener the model can call during Initialize.
func Opener(dataDir string) driven.StoreOpener {
	return func(context.Context) (driven.DocumentStore, error) {
		return NewStore(dataDir)
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// Get retrieves a live document by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT body, rev, deleted FROM documents WHERE id = ?
	`, id)

	var body, rev string
	var deleted bool
	if err := row.Scan(&body, &rev, &deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if deleted {
		return nil, domain.ErrNotFound
	}

	var doc domain.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document: %w", err)
	}
	doc.Rev = rev
	return &doc, nil
}

// Put creates or updates a document under the revision check.
func (s *Store) Put(ctx context.Context, doc *domain.Document) (string, string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	id, rev, err := putInTx(ctx, tx, *doc)
	if err != nil {
		return "", "", err
	}

	if err := tx.Commit(); err != nil {
		return "", "", fmt.Errorf("committing transaction: %w", err)
	}
	return id, rev, nil
}

// RemoveByRev tombstones a document, authorised by its current revision.
func (s *Store) RemoveByRev(ctx context.Context, id, rev string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var body, currentRev string
	var deleted bool
	row := tx.QueryRowContext(ctx, "SELECT body, rev, deleted FROM documents WHERE id = ?", id)
	if err := row.Scan(&body, &currentRev, &deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("scanning document: %w", err)
	}
	if deleted {
		return domain.ErrNotFound
	}
	if currentRev != rev {
		return fmt.Errorf("%w: stale revision for %s", domain.ErrConflict, id)
	}

	var doc domain.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return fmt.Errorf("unmarshaling document: %w", err)
	}
	doc.Deleted = true
	doc.Rev = storage.NextRev(rev)
	doc.UpdatedAt = domain.Timestamp()

	if err := upsertInTx(ctx, tx, doc); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// BulkWrite applies each document with Put semantics inside one transaction.
// Failures are reported per document; the successful writes still commit.
func (s *Store) BulkWrite(ctx context.Context, docs []domain.Document) ([]driven.BulkResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	results := make([]driven.BulkResult, 0, len(docs))
	for _, doc := range docs {
		id, rev, err := putInTx(ctx, tx, doc)
		if err != nil {
			results = append(results, driven.BulkResult{ID: doc.ID, Err: err})
			continue
		}
		results = append(results, driven.BulkResult{ID: id, Rev: rev})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return results, nil
}

// FindByIndex returns live documents matching the selector, using the type
// (or type+list) index.
func (s *Store) FindByIndex(ctx context.Context, sel driven.Selector) ([]domain.Document, error) {
	if sel.Type == "" {
		return nil, fmt.Errorf("%w: selector requires a type", domain.ErrValidation)
	}

	query := "SELECT body, rev FROM documents WHERE deleted = 0 AND type = ?"
	args := []any{sel.Type}
	if sel.List != "" {
		query += " AND list_id = ?"
		args = append(args, sel.List)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		var body, rev string
		if err := rows.Scan(&body, &rev); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		var doc domain.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("unmarshaling document: %w", err)
		}
		doc.Rev = rev
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// Changes returns feed entries with seq > since, in order, tombstones
// included.
func (s *Store) Changes(ctx context.Context, since int64) ([]driven.Change, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body, rev, seq FROM documents WHERE seq > ? ORDER BY seq
	`, since)
	if err != nil {
		return nil, 0, fmt.Errorf("querying changes: %w", err)
	}
	defer rows.Close()

	last := since
	var changes []driven.Change //nolint:prealloc // size unknown from query
	for rows.Next() {
		var body, rev string
		var seq int64
		if err := rows.Scan(&body, &rev, &seq); err != nil {
			return nil, 0, fmt.Errorf("scanning change: %w", err)
		}
		var doc domain.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, 0, fmt.Errorf("unmarshaling change: %w", err)
		}
		doc.Rev = rev
		changes = append(changes, driven.Change{Seq: seq, Doc: doc})
		last = seq
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating changes: %w", err)
	}
	return changes, last, nil
}

// ApplyReplicated upserts inbound documents last-writer-wins, bypassing the
// revision check. Each document still gets a fresh local sequence so it
// propagates to any peer replicating from this store.
func (s *Store) ApplyReplicated(ctx context.Context, docs []domain.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, doc := range docs {
		if doc.Rev == "" {
			doc.Rev = storage.NextRev("")
		}
		if err := upsertInTx(ctx, tx, doc); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetLocal reads a local-only document.
func (s *Store) GetLocal(ctx context.Context, id string) ([]byte, string, error) {
	row := s.db.QueryRowContext(ctx, "SELECT body, rev FROM local_documents WHERE id = ?", id)

	var body, rev string
	if err := row.Scan(&body, &rev); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", fmt.Errorf("scanning local document: %w", err)
	}
	return []byte(body), rev, nil
}

// PutLocal writes a local-only document under the revision check.
func (s *Store) PutLocal(ctx context.Context, id, rev string, body []byte) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var currentRev string
	row := tx.QueryRowContext(ctx, "SELECT rev FROM local_documents WHERE id = ?", id)
	err = row.Scan(&currentRev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if rev != "" {
			return "", fmt.Errorf("%w: stale revision for %s", domain.ErrConflict, id)
		}
	case err != nil:
		return "", fmt.Errorf("scanning local document: %w", err)
	case currentRev != rev:
		return "", fmt.Errorf("%w: stale revision for %s", domain.ErrConflict, id)
	}

	newRev := storage.NextRev(rev)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO local_documents (id, rev, body) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET rev = excluded.rev, body = excluded.body
	`, id, newRev, string(body))
	if err != nil {
		return "", fmt.Errorf("saving local document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing transaction: %w", err)
	}
	return newRev, nil
}

// ==================== Helper Functions ====================

// putInTx applies one document with Put semantics inside tx.
func putInTx(ctx context.Context, tx *sql.Tx, doc domain.Document) (string, string, error) {
	var currentRev string
	row := tx.QueryRowContext(ctx, "SELECT rev FROM documents WHERE id = ?", doc.ID)
	err := row.Scan(&currentRev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if doc.Rev != "" {
			return "", "", fmt.Errorf("%w: %s", domain.ErrNotFound, doc.ID)
		}
	case err != nil:
		return "", "", fmt.Errorf("scanning document: %w", err)
	case currentRev != doc.Rev:
		return "", "", fmt.Errorf("%w: stale revision for %s", domain.ErrConflict, doc.ID)
	}

	doc.Rev = storage.NextRev(doc.Rev)
	if err := upsertInTx(ctx, tx, doc); err != nil {
		return "", "", err
	}
	return doc.ID, doc.Rev, nil
}

// upsertInTx writes a document row with a freshly allocated sequence.
// Caller is responsible for the revision on the document.
func upsertInTx(ctx context.Context, tx *sql.Tx, doc domain.Document) error {
	var seq int64
	row := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM documents")
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("allocating sequence: %w", err)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling document: %w", err)
	}

	deleted := 0
	if doc.Deleted {
		deleted = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, rev, type, list_id, deleted, seq, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rev = excluded.rev,
			type = excluded.type,
			list_id = excluded.list_id,
			deleted = excluded.deleted,
			seq = excluded.seq,
			body = excluded.body
	`, doc.ID, doc.Rev, doc.Type, doc.List, deleted, seq, string(body))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}
