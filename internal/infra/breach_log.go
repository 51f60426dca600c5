package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"
	"github.com/pkg/errors"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const breachDBName = "breaches.db"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EncryptedBreachLog implements domain.BreachLog using a SQLCipher encrypted
// SQLite database.
type EncryptedBreachLog struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedBreachLog opens (or creates) the breach database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedBreachLog(dataDir string, key []byte) (*EncryptedBreachLog, error) {
	if err := EnsureDir(dataDir); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, breachDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open encrypted database")
	}

	// A wrong key only surfaces on first access.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect to encrypted database")
	}

	bl := &EncryptedBreachLog{db: db, dbPath: dbPath}
	if err := bl.createTables(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create tables")
	}
	return bl, nil
}

func (l *EncryptedBreachLog) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS breaches (
		id TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		at INTEGER NOT NULL,
		snapshot_path TEXT NOT NULL DEFAULT '',
		closed TEXT NOT NULL DEFAULT '[]',
		minimized TEXT NOT NULL DEFAULT '[]',
		failures INTEGER NOT NULL DEFAULT 0,
		companion_ok INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_breaches_at ON breaches (at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Record appends one breach. Recording the same ID twice replaces it.
func (l *EncryptedBreachLog) Record(ctx context.Context, rec domain.BreachRecord) error {
	closed, err := json.Marshal(nonNil(rec.Closed))
	if err != nil {
		return errors.Wrap(err, "encode closed list")
	}
	minimized, err := json.Marshal(nonNil(rec.Minimized))
	if err != nil {
		return errors.Wrap(err, "encode minimized list")
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO breaches (id, count, at, snapshot_path, closed, minimized, failures, companion_ok)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Count, rec.At.UnixNano(), rec.SnapshotPath,
		string(closed), string(minimized), rec.Failures, boolToInt(rec.CompanionOK),
	)
	return errors.Wrapf(err, "insert breach %s", rec.ID)
}

// Recent returns up to limit records, newest first. A non-positive limit
// returns everything.
func (l *EncryptedBreachLog) Recent(ctx context.Context, limit int) ([]domain.BreachRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, count, at, snapshot_path, closed, minimized, failures, companion_ok
		FROM breaches ORDER BY at DESC, count DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query breaches")
	}
	defer rows.Close()

	var out []domain.BreachRecord
	for rows.Next() {
		var (
			rec               domain.BreachRecord
			at                int64
			closed, minimized string
			companion         int
		)
		if err := rows.Scan(&rec.ID, &rec.Count, &at, &rec.SnapshotPath,
			&closed, &minimized, &rec.Failures, &companion); err != nil {
			return nil, errors.Wrap(err, "scan breach")
		}
		rec.At = time.Unix(0, at)
		rec.CompanionOK = companion != 0
		if err := json.Unmarshal([]byte(closed), &rec.Closed); err != nil {
			return nil, errors.Wrapf(err, "decode closed list of %s", rec.ID)
		}
		if err := json.Unmarshal([]byte(minimized), &rec.Minimized); err != nil {
			return nil, errors.Wrapf(err, "decode minimized list of %s", rec.ID)
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate breaches")
}

// Count returns the number of stored breaches.
func (l *EncryptedBreachLog) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM breaches`).Scan(&n)
	return n, errors.Wrap(err, "count breaches")
}

// Path returns the database file path.
func (l *EncryptedBreachLog) Path() string {
	return l.dbPath
}

// Close releases the database connection.
func (l *EncryptedBreachLog) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// OpenBreachLog ensures a key exists in dataDir and opens the log with it.
func OpenBreachLog(dataDir string) (*EncryptedBreachLog, error) {
	key, err := EnsureBreachKey(NewKeyFile(dataDir))
	if err != nil {
		return nil, err
	}
	return NewEncryptedBreachLog(dataDir, key)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure EncryptedBreachLog implements domain.BreachLog.
var _ domain.BreachLog = (*EncryptedBreachLog)(nil)
