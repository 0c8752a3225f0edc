// Package history provides a durable archive of message payloads backed
// by SQLite. Puppets whose platform keeps no server-side history (IRC)
// archive traffic here so payload fetch and search still work.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/warble-im/warble/internal/logging"
	"github.com/warble-im/warble/puppet"
)

// Store is a SQLite-backed message archive with full-text search.
type Store struct {
	sql *sql.DB
	log *logging.Logger
}

// Open opens (or creates) the archive at the given path and runs
// migrations. Use ":memory:" for an in-memory archive (useful for tests).
func Open(path string, log *logging.Logger) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	s := &Store{sql: sqlDB, log: log.Sub("history")}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.log.Info().Str("path", path).Msg("archive opened")
	return s, nil
}

// Close closes the archive.
func (s *Store) Close() error {
	s.log.Info().Msg("closing archive")
	return s.sql.Close()
}

// Put stores a message payload, replacing any previous record with the
// same id.
func (s *Store) Put(m *puppet.MessagePayload) error {
	var mentions sql.NullString
	if len(m.MentionIDs) > 0 {
		raw, err := json.Marshal(m.MentionIDs)
		if err != nil {
			return fmt.Errorf("encoding mentions: %w", err)
		}
		mentions = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.sql.Exec(
		`INSERT INTO messages (id, talker_id, listener_id, room_id, type, text, timestamp, mention_ids)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   talker_id = excluded.talker_id,
		   listener_id = excluded.listener_id,
		   room_id = excluded.room_id,
		   type = excluded.type,
		   text = excluded.text,
		   timestamp = excluded.timestamp,
		   mention_ids = excluded.mention_ids`,
		m.ID, m.TalkerID, m.ListenerID, m.RoomID, string(m.Type),
		m.Text, m.Timestamp.UTC().Format(time.RFC3339Nano), mentions,
	)
	if err != nil {
		return fmt.Errorf("storing message %s: %w", m.ID, err)
	}
	return nil
}

// Get fetches a message payload by id. Misses return puppet.ErrNotFound.
func (s *Store) Get(id string) (*puppet.MessagePayload, error) {
	row := s.sql.QueryRow(
		`SELECT id, talker_id, listener_id, room_id, type, text, timestamp, mention_ids
		 FROM messages WHERE id = ?`, id)

	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %s: %w", id, puppet.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading message %s: %w", id, err)
	}
	return m, nil
}

// Search returns ids of messages matching the query, oldest first.
// Limit of 0 defaults to 50. The query is matched as an FTS5 phrase so
// arbitrary user text cannot break the match syntax.
func (s *Store) Search(query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`

	rows, err := s.sql.Query(
		`SELECT m.id
		 FROM messages_fts
		 JOIN messages m ON m.rowid = messages_fts.rowid
		 WHERE messages_fts MATCH ?
		 ORDER BY m.timestamp, m.rowid
		 LIMIT ?`,
		phrase, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of archived messages.
func (s *Store) Count() (int, error) {
	var n int
	err := s.sql.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*puppet.MessagePayload, error) {
	var m puppet.MessagePayload
	var typ, timestamp string
	var mentions sql.NullString

	if err := row.Scan(
		&m.ID, &m.TalkerID, &m.ListenerID, &m.RoomID,
		&typ, &m.Text, &timestamp, &mentions,
	); err != nil {
		return nil, err
	}

	m.Type = puppet.MessageType(typ)
	m.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
	if mentions.Valid {
		if err := json.Unmarshal([]byte(mentions.String), &m.MentionIDs); err != nil {
			return nil, fmt.Errorf("decoding mentions: %w", err)
		}
	}
	return &m, nil
}

// migrate runs all pending migrations.
func (s *Store) migrate() error {
	if _, err := s.sql.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := s.isMigrationApplied(m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		s.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := s.sql.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (s *Store) isMigrationApplied(version int) (bool, error) {
	var count int
	err := s.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %d: %w", version, err)
	}
	return count > 0, nil
}

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create messages with FTS5",
		SQL: `
			CREATE TABLE messages (
				id          TEXT PRIMARY KEY,
				talker_id   TEXT NOT NULL,
				listener_id TEXT NOT NULL DEFAULT '',
				room_id     TEXT NOT NULL DEFAULT '',
				type        TEXT NOT NULL DEFAULT 'text',
				text        TEXT NOT NULL DEFAULT '',
				timestamp   TEXT NOT NULL,
				mention_ids TEXT
			);

			CREATE INDEX idx_messages_room ON messages (room_id, timestamp);
			CREATE INDEX idx_messages_talker ON messages (talker_id, timestamp);

			CREATE VIRTUAL TABLE messages_fts USING fts5(
				text,
				content='messages',
				content_rowid='rowid'
			);

			CREATE TRIGGER messages_ai AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, text)
				VALUES (new.rowid, new.text);
			END;

			CREATE TRIGGER messages_ad AFTER DELETE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, text)
				VALUES ('delete', old.rowid, old.text);
			END;

			CREATE TRIGGER messages_au AFTER UPDATE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, text)
				VALUES ('delete', old.rowid, old.text);
				INSERT INTO messages_fts(rowid, text)
				VALUES (new.rowid, new.text);
			END;
		`,
	},
}
