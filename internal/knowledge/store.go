package knowledge

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"gig-copilot/internal/attachment"
)

// ErrNotFound is returned when no entry matches a name.
var ErrNotFound = errors.New("knowledge entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS knowledge (
	name         TEXT PRIMARY KEY,
	uri          TEXT NOT NULL,
	mime_type    TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	size_bytes   INTEGER NOT NULL DEFAULT 0,
	sha256       TEXT NOT NULL DEFAULT '',
	local_path   TEXT NOT NULL DEFAULT '',
	uploaded_at  INTEGER NOT NULL DEFAULT 0,
	expires_at   INTEGER NOT NULL DEFAULT 0,
	added_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS knowledge_sha256 ON knowledge(sha256);
`

const columns = "name, uri, mime_type, display_name, size_bytes, sha256, local_path, uploaded_at, expires_at, added_at"

// Entry is a named, previously uploaded file.
type Entry struct {
	Name      string
	Ref       attachment.FileRef
	SHA256    string
	LocalPath string
	AddedAt   time.Time
}

// Store is the local catalogue of uploaded files, keyed by a short name
// that templates and commands refer to.
type Store struct {
	db        *sql.DB
	validator *attachment.Validator
	log       *slog.Logger
	now       func() time.Time
}

// Open opens (creating if needed) the store at path. ":memory:" gives a
// throwaway store.
func Open(path string, v *attachment.Validator, log *slog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "create knowledge directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open knowledge database")
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "knowledge database ping failed")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate knowledge database")
	}

	if v == nil {
		v = attachment.NewValidator()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, validator: v, log: log, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces the entry named e.Name.
func (s *Store) Put(ctx context.Context, e Entry) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return errors.New("knowledge entry needs a name")
	}
	if e.Ref.URI == "" {
		return errors.Wrapf(attachment.ErrMissingURI, "entry %q", e.Name)
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO knowledge (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Name, e.Ref.URI, e.Ref.MimeType, e.Ref.DisplayName, e.Ref.SizeBytes,
		e.SHA256, e.LocalPath, millis(e.Ref.UploadedAt), millis(e.Ref.ExpiresAt), millis(e.AddedAt),
	)
	return errors.Wrapf(err, "store knowledge entry %q", e.Name)
}

// Get returns the entry called name.
func (s *Store) Get(ctx context.Context, name string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM knowledge WHERE name = ?`, name)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, errors.Wrapf(ErrNotFound, "%q", name)
	}
	return e, errors.Wrapf(err, "get knowledge entry %q", name)
}

// All returns every entry ordered by name.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, `SELECT `+columns+` FROM knowledge ORDER BY name`)
}

// Live returns the refs of entries that have not expired, ordered by name.
// These are the knowledge-store attachment candidates.
func (s *Store) Live(ctx context.Context) ([]attachment.FileRef, error) {
	entries, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var refs []attachment.FileRef
	for _, e := range entries {
		if s.validator.Expired(e.Ref) {
			continue
		}
		refs = append(refs, e.Ref)
	}
	return refs, nil
}

// Resolve maps names to refs. Unknown names are returned in missing rather
// than failing the whole lookup.
func (s *Store) Resolve(ctx context.Context, names []string) (refs []attachment.FileRef, missing []string, err error) {
	for _, name := range names {
		e, err := s.Get(ctx, name)
		if errors.Is(err, ErrNotFound) {
			missing = append(missing, name)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, e.Ref)
	}
	if len(missing) > 0 {
		s.log.Warn("unknown knowledge entries", "names", missing)
	}
	return refs, missing, nil
}

// Forget removes the entry called key, or every entry whose file id is
// key. It returns the number of entries removed.
func (s *Store) Forget(ctx context.Context, key string) (int, error) {
	suffix := "files/" + key
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge WHERE name = ? OR substr(uri, -length(?)) = ?`, key, suffix, suffix)
	if err != nil {
		return 0, errors.Wrapf(err, "forget %q", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "forget rows affected")
	}
	return int(n), nil
}

// byHash returns the newest entry with the given content hash that has not
// expired.
func (s *Store) byHash(ctx context.Context, hash string) (Entry, bool, error) {
	entries, err := s.query(ctx,
		`SELECT `+columns+` FROM knowledge WHERE sha256 = ? ORDER BY uploaded_at DESC`, hash)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if !s.validator.Expired(e.Ref) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query knowledge")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan knowledge entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows iteration error")
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e                          Entry
		uploaded, expires, addedAt int64
	)
	err := sc.Scan(&e.Name, &e.Ref.URI, &e.Ref.MimeType, &e.Ref.DisplayName, &e.Ref.SizeBytes,
		&e.SHA256, &e.LocalPath, &uploaded, &expires, &addedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Ref.UploadedAt = fromMillis(uploaded)
	e.Ref.ExpiresAt = fromMillis(expires)
	e.AddedAt = fromMillis(addedAt)
	return e, nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
