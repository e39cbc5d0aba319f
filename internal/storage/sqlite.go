package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for user facts and the
// interaction log. The knowledge_entries table is accessed through
// corpus.SQLiteStore via DB().
type Store struct {
	db *sql.DB
}

// dbFile is the database file name inside the data directory.
const dbFile = "supportqa.db"

// Open opens (or creates) the database in dataDir and applies pending
// migrations. ":memory:" gives a private in-memory database.
func Open(dataDir string) (*Store, error) {
	dsn := ":memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		// modernc applies _pragma parameters on every new connection.
		dsn = "file:" + filepath.Join(dataDir, dbFile) +
			"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer; also keeps an in-memory database from splitting across
	// connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for table-specific stores.
func (s *Store) DB() *sql.DB {
	return s.db
}

type migration struct {
	version int
	name    string
}

// pendingMigrations lists embedded migrations newer than the applied set,
// in version order.
func pendingMigrations(applied map[int]bool) ([]migration, error) {
	entries, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	var pending []migration
	for _, name := range entries {
		var v int
		if _, err := fmt.Sscanf(path.Base(name), "%d_", &v); err != nil {
			return nil, fmt.Errorf("migration %s: file name must start with a version: %w", name, err)
		}
		if !applied[v] {
			pending = append(pending, migration{version: v, name: name})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })
	return pending, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}

	versions, err := s.AppliedMigrations()
	if err != nil {
		return fmt.Errorf("reading schema_version: %w", err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	pending, err := pendingMigrations(applied)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		slog.Debug("applied migration", "version", m.version)
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	script, err := migrationsFS.ReadFile(m.name)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query(`SELECT version FROM schema_version ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- User facts ---

// AppendFact adds a fact to the end of the user's list. The sequence number
// is assigned inside the insert transaction so concurrent appends for the
// same user never collide or overwrite.
func (s *Store) AppendFact(ctx context.Context, userID string, f Fact) error {
	if f.AddedAt.IsZero() {
		f.AddedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning fact transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM user_facts WHERE user_id = ?`, userID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("reading fact sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_facts (id, user_id, key, value, source, added_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, userID, f.Key, f.Value, f.Source, f.AddedAt.UTC().Format(time.RFC3339Nano), seq,
	); err != nil {
		return fmt.Errorf("inserting fact: %w", err)
	}

	return tx.Commit()
}

// GetFacts returns all of the user's facts, oldest first.
func (s *Store) GetFacts(ctx context.Context, userID string) ([]Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, value, source, added_at
		FROM user_facts WHERE user_id = ? ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var addedAt string
		if err := rows.Scan(&f.ID, &f.Key, &f.Value, &f.Source, &addedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, addedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing added_at for fact %s: %w", f.ID, err)
		}
		f.AddedAt = t
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// ResetFacts deletes every fact for the user and reports how many were removed.
func (s *Store) ResetFacts(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_facts WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Interactions ---

func (s *Store) SaveInteraction(ctx context.Context, i Interaction) error {
	sourceIDs := i.SourceIDs
	if sourceIDs == "" {
		sourceIDs = "[]"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, created_at, session_key, user_id, user_query, reply, intent, status, source_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.CreatedAt.UTC().Format(time.RFC3339), i.SessionKey, i.UserID, i.UserQuery,
		i.Reply, i.Intent, i.Status, sourceIDs,
	)
	return err
}

func (s *Store) GetInteraction(ctx context.Context, id string) (Interaction, error) {
	var i Interaction
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, session_key, user_id, user_query, reply, intent, status, source_ids
		FROM interactions WHERE id = ?`, id,
	).Scan(&i.ID, &createdAt, &i.SessionKey, &i.UserID, &i.UserQuery, &i.Reply, &i.Intent, &i.Status, &i.SourceIDs)
	if errors.Is(err, sql.ErrNoRows) {
		return Interaction{}, ErrNotFound
	}
	if err != nil {
		return Interaction{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Interaction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	i.CreatedAt = t
	return i, nil
}

func (s *Store) ListInteractions(ctx context.Context, limit, offset int) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, session_key, user_id, user_query, reply, intent, status, source_ids
		FROM interactions ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		var i Interaction
		var createdAt string
		if err := rows.Scan(&i.ID, &createdAt, &i.SessionKey, &i.UserID, &i.UserQuery, &i.Reply, &i.Intent, &i.Status, &i.SourceIDs); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		i.CreatedAt = t
		results = append(results, i)
	}
	return results, rows.Err()
}
