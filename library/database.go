package library

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Database provides high-level helpers around a SQLite connection.
type Database struct {
	db     *sqlx.DB
	logger *slog.Logger

	insertBookStmt   *sqlx.Stmt
	insertPersonStmt *sqlx.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// txlock=immediate makes every transaction take the write lock at BEGIN.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db, logger: logger}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("database ready", "path", dbPath, "schema_version", schemaVersion)
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.insertBookStmt != nil {
		d.insertBookStmt.Close()
	}
	if d.insertPersonStmt != nil {
		d.insertPersonStmt.Close()
	}
	return d.db.Close()
}

// withTx runs fn inside a single transaction. Any error from fn rolls back.
func (d *Database) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sqlx.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            uid TEXT PRIMARY KEY,
            name TEXT NOT NULL CHECK (trim(name) <> ''),
            sex TEXT NOT NULL DEFAULT '',
            age INTEGER NOT NULL CHECK (age > 0),
            college TEXT NOT NULL DEFAULT '',
            join_year INTEGER,
            password TEXT NOT NULL,
            role TEXT NOT NULL CHECK (role IN ('TEA','STU'))
        );`,
		`CREATE TABLE IF NOT EXISTS classes (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS enrollments (
            student_uid TEXT PRIMARY KEY REFERENCES users(uid),
            class_id TEXT NOT NULL REFERENCES classes(id)
        );`,
		`CREATE TABLE IF NOT EXISTS teacher_classes (
            teacher_uid TEXT NOT NULL REFERENCES users(uid),
            class_id TEXT NOT NULL REFERENCES classes(id),
            PRIMARY KEY (teacher_uid, class_id)
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            isbn TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            category TEXT NOT NULL CHECK (category IN ('CS','MATH','PHY','LIT')),
            authors TEXT NOT NULL DEFAULT '',
            publisher TEXT NOT NULL DEFAULT '',
            keywords TEXT NOT NULL DEFAULT '',
            remaining INTEGER NOT NULL DEFAULT 0 CHECK (remaining >= 0)
        );`,
		`CREATE TABLE IF NOT EXISTS loans (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            uid TEXT NOT NULL REFERENCES users(uid),
            isbn TEXT NOT NULL REFERENCES books(isbn),
            borrow_date DATE NOT NULL,
            due_date DATE NOT NULL,
            returned INTEGER NOT NULL DEFAULT 0
        );`,
		// At most one open loan per (borrower, isbn).
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_open ON loans(uid, isbn) WHERE returned = 0;`,
		`CREATE INDEX IF NOT EXISTS idx_loans_uid_due ON loans(uid, returned, due_date);`,
		`CREATE TRIGGER IF NOT EXISTS trg_users_role_immutable BEFORE UPDATE OF role ON users
            WHEN old.role <> new.role
        BEGIN
            SELECT RAISE(ABORT, 'role is immutable');
        END;`,
		`CREATE TRIGGER IF NOT EXISTS trg_loans_returned_one_way BEFORE UPDATE OF returned ON loans
            WHEN old.returned = 1 AND new.returned = 0
        BEGIN
            SELECT RAISE(ABORT, 'loan already returned');
        END;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.insertBookStmt, err = d.db.Preparex(`INSERT INTO books(isbn,title,category,authors,publisher,keywords,remaining) VALUES(?,?,?,?,?,?,?)`); err != nil {
		return err
	}
	if d.insertPersonStmt, err = d.db.Preparex(`INSERT INTO users(uid,name,sex,age,college,join_year,password,role) VALUES(?,?,?,?,?,?,?,?)`); err != nil {
		return err
	}
	return nil
}
