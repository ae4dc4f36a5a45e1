package logsink

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Spool is a PendingQueue persisted in SQLite so that undelivered records
// survive a restart of the host process.
type Spool struct {
	db      *sql.DB
	options queueOptions
}

var _ PendingQueue = (*Spool)(nil)

func OpenSpool(path string, opts ...QueueOption) (*Spool, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS pending_log_records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		record TEXT NOT NULL,
		queued_at TIMESTAMP NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize spool schema: %w", err)
	}

	return &Spool{db: db, options: newQueueOptions(opts)}, nil
}

func (s *Spool) Close() error { return s.db.Close() }

func (s *Spool) Push(record LogRecord) error {
	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM pending_log_records WHERE event_id = ?)`, record.EventID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check spooled record: %w", err)
	}
	if exists {
		return nil
	}

	if s.options.limit > 0 && s.Len() >= s.options.limit {
		switch s.options.overflow {
		case OverflowRejectNew:
			return ErrQueueFull
		default:
			if _, err := s.db.Exec(`DELETE FROM pending_log_records WHERE seq = (SELECT MIN(seq) FROM pending_log_records)`); err != nil {
				return fmt.Errorf("failed to drop oldest spooled record: %w", err)
			}
		}
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO pending_log_records (event_id, record, queued_at) VALUES (?, ?, ?)`,
		record.EventID, string(encoded), time.Now()); err != nil {
		return fmt.Errorf("failed to spool record: %w", err)
	}
	return nil
}

func (s *Spool) Peek() (LogRecord, bool, error) {
	var encoded string
	err := s.db.QueryRow(`SELECT record FROM pending_log_records ORDER BY seq LIMIT 1`).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return LogRecord{}, false, nil
	}
	if err != nil {
		return LogRecord{}, false, fmt.Errorf("failed to read spooled record: %w", err)
	}

	var record LogRecord
	if err := json.Unmarshal([]byte(encoded), &record); err != nil {
		return LogRecord{}, false, fmt.Errorf("failed to decode spooled record: %w", err)
	}
	return record, true, nil
}

func (s *Spool) Remove(eventID string) error {
	if _, err := s.db.Exec(`DELETE FROM pending_log_records WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("failed to remove spooled record: %w", err)
	}
	return nil
}

func (s *Spool) Len() int {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_log_records`).Scan(&count); err != nil {
		logger.Warn("failed to count spooled records", "error", err)
		return 0
	}
	return count
}
