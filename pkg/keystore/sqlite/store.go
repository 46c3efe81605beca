// Package sqlite provides a keys.Store backed by a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/keys"
	"github.com/Sternrassler/keyfetch/pkg/keystore"
	"github.com/Sternrassler/keyfetch/pkg/keystore/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const backend = "sqlite"

// Store persists keys in the encryption_keys table.
type Store struct {
	sqlDB *sql.DB
	clock keys.Clock
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	return OpenWithClock(ctx, path, keys.SystemClock{})
}

// OpenWithClock is Open with an explicit clock for expiry decisions.
func OpenWithClock(ctx context.Context, path string, clock keys.Clock) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, clock: clock}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Insert upserts key by its identifier.
func (s *Store) Insert(ctx context.Context, key keys.EncryptionKey) (err error) {
	defer keystore.Observe(backend, "insert", time.Now(), &err)

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO encryption_keys (
	key_identifier,
	public_key,
	key_type,
	creation_time,
	expiry_time
) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (key_identifier) DO UPDATE SET
	public_key = excluded.public_key,
	key_type = excluded.key_type,
	creation_time = excluded.creation_time,
	expiry_time = excluded.expiry_time
`,
		key.KeyIdentifier,
		key.PublicKey,
		int(key.KeyType),
		key.CreationTime.UnixMilli(),
		key.ExpiryTime.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert key %s: %w", key.KeyIdentifier, err)
	}
	return nil
}

// LatestExpiryNKeys returns at most n active keys, furthest expiry first.
func (s *Store) LatestExpiryNKeys(ctx context.Context, n int) (_ []keys.EncryptionKey, err error) {
	defer keystore.Observe(backend, "latest", time.Now(), &err)

	if n <= 0 {
		return []keys.EncryptionKey{}, nil
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT key_identifier, public_key, key_type, creation_time, expiry_time
FROM encryption_keys
WHERE expiry_time > ?
ORDER BY expiry_time DESC, key_identifier ASC
LIMIT ?
`, s.clock.Now().UnixMilli(), n)
	if err != nil {
		return nil, fmt.Errorf("query latest keys: %w", err)
	}
	defer rows.Close()

	out := make([]keys.EncryptionKey, 0, n)
	for rows.Next() {
		var (
			key                  keys.EncryptionKey
			keyType              int
			creation, expiration int64
		)
		if err := rows.Scan(&key.KeyIdentifier, &key.PublicKey, &keyType, &creation, &expiration); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		key.KeyType = keys.KeyType(keyType)
		key.CreationTime = time.UnixMilli(creation)
		key.ExpiryTime = time.UnixMilli(expiration)
		out = append(out, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return out, nil
}

// DeleteExpiredKeys removes keys whose expiry is before now.
func (s *Store) DeleteExpiredKeys(ctx context.Context) (_ int, err error) {
	defer keystore.Observe(backend, "delete_expired", time.Now(), &err)

	res, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM encryption_keys WHERE expiry_time < ?", s.clock.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired keys: %w", err)
	}
	return rowsAffected(res)
}

// DeleteAllKeys empties the table.
func (s *Store) DeleteAllKeys(ctx context.Context) (_ int, err error) {
	defer keystore.Observe(backend, "delete_all", time.Now(), &err)

	res, err := s.sqlDB.ExecContext(ctx, "DELETE FROM encryption_keys")
	if err != nil {
		return 0, fmt.Errorf("delete all keys: %w", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
