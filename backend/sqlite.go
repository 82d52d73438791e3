package backend

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // database/sql driver

	"github.com/gozephyr/pcache/errors"
	"github.com/gozephyr/pcache/sandbox"
)

// Schema kept bit-compatible with existing cache databases. Changing it
// requires a product version bump so the factory provisions a fresh
// directory instead of reinterpreting old bytes.
const sqliteSchema = `CREATE TABLE IF NOT EXISTS entries(key TEXT PRIMARY KEY UNIQUE NOT NULL, content BLOB NOT NULL, input_signature INTEGER, write_timestamp INTEGER)`

const (
	sqliteFindQuery   = `SELECT content, input_signature, write_timestamp FROM entries WHERE key = ?`
	sqliteInsertQuery = `REPLACE INTO entries(key, content, input_signature, write_timestamp) VALUES(?, ?, ?, unixepoch())`
)

// Journaling stays in memory because the engine must never open paths by
// name inside the sandbox. The physical journal file still travels with the
// params for transfer and footprint accounting.
const sqlitePragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(MEMORY)&_pragma=synchronous(NORMAL)"

// SQLiteBackend stores entries in one SQLite database reached through a
// pre-opened descriptor. Safe for concurrent use; every public method holds
// the backend lock for the duration of the SQL call, so calls from multiple
// goroutines serialize onto the single underlying connection.
type SQLiteBackend struct {
	mu           sync.Mutex
	params       *Params
	registry     *sandbox.Registry
	registration *sandbox.Registration
	db           *sql.DB
	findStmt     *sql.Stmt
	insertStmt   *sql.Stmt
	initialized  bool
	closed       bool
}

// NewSQLiteBackend wraps params in an uninitialized backend. The backend
// takes ownership of the params' handles. A nil registry selects the
// process-wide default. Initialize must be called exactly once before use.
func NewSQLiteBackend(params *Params, registry *sandbox.Registry) *SQLiteBackend {
	if params == nil || params.DB == nil {
		panic("pcache: sqlite backend requires an open database file")
	}
	if registry == nil {
		registry = sandbox.Default()
	}
	return &SQLiteBackend{params: params, registry: registry}
}

// Initialize registers the file set in the sandbox registry, opens the
// database through the descriptor path and creates the schema idempotently.
// Calling it twice is misuse and panics.
func (b *SQLiteBackend) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		panic("pcache: sqlite backend initialized twice")
	}
	if b.closed {
		return errors.Wrap("Initialize", "", "", errors.ErrBackendClosed)
	}

	files := []*sandbox.File{b.params.DB}
	if b.params.Journal != nil {
		files = append(files, b.params.Journal)
	}
	reg, err := b.registry.Register(files...)
	if err != nil {
		return err
	}

	dsn := b.params.DB.ReopenPath() + sqlitePragmas
	if !b.params.DBWritable {
		dsn += "&_pragma=query_only(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		reg.Unregister()
		return errors.Wrap("Initialize", "", "", fmt.Errorf("open database: %w", err))
	}
	// One connection only: the pool reopening the descriptor path would
	// race the handle it was derived from.
	db.SetMaxOpenConns(1)

	fail := func(err error) error {
		_ = db.Close()
		reg.Unregister()
		return errors.Wrap("Initialize", "", "", err)
	}

	if b.params.DBWritable {
		if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
			return fail(fmt.Errorf("create schema: %w", err))
		}
	}

	findStmt, err := db.PrepareContext(ctx, sqliteFindQuery)
	if err != nil {
		return fail(fmt.Errorf("prepare select: %w", err))
	}

	var insertStmt *sql.Stmt
	if b.params.DBWritable {
		insertStmt, err = db.PrepareContext(ctx, sqliteInsertQuery)
		if err != nil {
			_ = findStmt.Close()
			return fail(fmt.Errorf("prepare replace: %w", err))
		}
	}

	b.registration = reg
	b.db = db
	b.findStmt = findStmt
	b.insertStmt = insertStmt
	b.initialized = true
	return nil
}

// Find returns the entry stored under key, or ErrEntryNotFound when the row
// is absent. A miss is not a failure; anything else is.
func (b *SQLiteBackend) Find(ctx context.Context, key string) (*Entry, error) {
	if key == "" {
		panic("pcache: Find called with empty key")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.Wrap("Find", "", key, errors.ErrBackendClosed)
	}
	b.checkInitialized()

	var (
		content        []byte
		inputSignature sql.NullInt64
		writeTimestamp sql.NullInt64
	)
	err := b.findStmt.QueryRowContext(ctx, key).Scan(&content, &inputSignature, &writeTimestamp)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrEntryNotFound
	}
	if err != nil {
		return nil, errors.Wrap("Find", "", key, err)
	}
	return &Entry{
		Content: content,
		Metadata: EntryMetadata{
			InputSignature: inputSignature.Int64,
			WriteTimestamp: writeTimestamp.Int64,
		},
	}, nil
}

// Insert stores content under key with last-writer-wins semantics. The
// write timestamp comes from the engine's own clock.
func (b *SQLiteBackend) Insert(ctx context.Context, key string, content []byte, meta EntryMetadata) error {
	if key == "" {
		panic("pcache: Insert called with empty key")
	}
	if meta.WriteTimestamp != 0 {
		panic("pcache: write timestamp is engine-generated, callers must leave it zero")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.Wrap("Insert", "", key, errors.ErrBackendClosed)
	}
	b.checkInitialized()
	if !b.params.DBWritable {
		return errors.Wrap("Insert", "", key, errors.ErrReadOnlyBackend)
	}

	if _, err := b.insertStmt.ExecContext(ctx, key, content, meta.InputSignature); err != nil {
		return errors.Wrap("Insert", "", key, err)
	}
	return nil
}

// Type identifies the implementation
func (b *SQLiteBackend) Type() Type {
	return TypeSQLite
}

// ReadOnly reports whether the database handle was provisioned without
// write access.
func (b *SQLiteBackend) ReadOnly() bool {
	return !b.params.DBWritable
}

// ExportReadOnlyParams duplicates the file set with write access stripped.
// A failed duplication surfaces as an error, never a panic.
func (b *SQLiteBackend) ExportReadOnlyParams() (*Params, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.Wrap("ExportReadOnlyParams", "", "", errors.ErrBackendClosed)
	}
	return b.params.DuplicateReadOnly()
}

// ExportReadWriteParams duplicates the file set at full fidelity. A
// read-only backend cannot mint write access and refuses.
func (b *SQLiteBackend) ExportReadWriteParams() (*Params, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.Wrap("ExportReadWriteParams", "", "", errors.ErrBackendClosed)
	}
	if !b.params.DBWritable {
		return nil, errors.Wrap("ExportReadWriteParams", "", "", errors.ErrReadOnlyBackend)
	}
	return b.params.Duplicate()
}

// Close releases the statements, the database handle, the registration and
// the params' descriptors. Data on disk is untouched. Closing twice is
// harmless.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var first error
	if b.findStmt != nil {
		if err := b.findStmt.Close(); err != nil && first == nil {
			first = err
		}
	}
	if b.insertStmt != nil {
		if err := b.insertStmt.Close(); err != nil && first == nil {
			first = err
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil && first == nil {
			first = err
		}
	}
	if b.registration != nil {
		b.registration.Unregister()
		b.registration = nil
	}
	if err := b.params.Close(); err != nil && first == nil {
		first = err
	}
	if first != nil {
		return errors.Wrap("Close", "", "", first)
	}
	return nil
}

// checkInitialized panics when the backend is used before Initialize.
func (b *SQLiteBackend) checkInitialized() {
	if !b.initialized {
		panic("pcache: sqlite backend used before Initialize")
	}
}

var _ Backend = (*SQLiteBackend)(nil)
