package bucket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQL flavor of a database backed bucket.
type Dialect struct {
	driver      string
	blobType    string
	placeholder func(n int) string
}

var (
	SQLite = Dialect{
		driver:      "sqlite3",
		blobType:    "BLOB",
		placeholder: func(int) string { return "?" },
	}
	Postgres = Dialect{
		driver:      "postgres",
		blobType:    "BYTEA",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
)

// Objects stored as rows of a single table. Useful where no object
// store is at hand, and for sharing outputs between machines through
// an existing database.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// Opens the database and creates the objects table if missing. For
// SQLite, dsn is a file path or ":memory:".
func NewSQL(dialect Dialect, dsn string) (*SQL, error) {
	db, err := sql.Open(dialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if dialect.driver == SQLite.driver {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	_, err = db.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS bucket_objects (
    object_key TEXT NOT NULL PRIMARY KEY,
    data %s NOT NULL
);`, dialect.blobType))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating objects table: %w", err)
	}

	return &SQL{db: db, dialect: dialect}, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT data FROM bucket_objects WHERE object_key = %s`,
		s.dialect.placeholder(1),
	), key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", key, err)
	}
	return data, nil
}

func (s *SQL) Put(ctx context.Context, key string, data []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO bucket_objects (object_key, data) VALUES (%s, %s)
ON CONFLICT (object_key) DO UPDATE SET data = excluded.data`,
		s.dialect.placeholder(1), s.dialect.placeholder(2),
	), key, data)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *SQL) List(ctx context.Context, prefix string) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT object_key FROM bucket_objects WHERE object_key LIKE %s ESCAPE '\'`,
		s.dialect.placeholder(1),
	), escaped+"%")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		// SQLite's LIKE ignores ASCII case.
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}

	// Postgres orders by locale collation.
	sort.Strings(keys)
	return keys, nil
}
