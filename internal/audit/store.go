package audit

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS verifications (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	request_id TEXT,
	address TEXT NOT NULL,
	domain TEXT NOT NULL,
	payload_type TEXT NOT NULL,
	signed_at INTEGER NOT NULL,
	digest TEXT,
	verified INTEGER NOT NULL,
	pubkey_fingerprint TEXT,
	decision TEXT NOT NULL,
	latency_ms INTEGER
);

CREATE INDEX IF NOT EXISTS idx_verifications_decision ON verifications(decision);
CREATE INDEX IF NOT EXISTS idx_verifications_address ON verifications(address);
CREATE INDEX IF NOT EXISTS idx_verifications_timestamp ON verifications(timestamp);

CREATE TABLE IF NOT EXISTS revoked_keys (
	fingerprint TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	revoked_at TEXT NOT NULL,
	reason TEXT
);
`

// write is either an entry to insert or a flush marker.
type write struct {
	entry Entry
	flush chan struct{}
}

// Store manages the SQLite verification log.
type Store struct {
	db            *sql.DB
	writes        chan write
	done          chan struct{}
	logger        *slog.Logger
	retentionDays int
}

// NewStore opens (or creates) the SQLite audit database. When retentionDays
// is positive, entries older than that are purged on open.
func NewStore(dbPath string, logger *slog.Logger, retentionDays int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{
		db:            db,
		writes:        make(chan write, 256),
		done:          make(chan struct{}),
		logger:        logger,
		retentionDays: retentionDays,
	}

	if retentionDays > 0 {
		if n, err := s.Purge(); err != nil {
			logger.Warn("audit retention purge failed", "error", err)
		} else if n > 0 {
			logger.Info("audit retention purge", "deleted", n, "retention_days", retentionDays)
		}
	}

	go s.writeLoop()
	return s, nil
}

// Log enqueues an audit entry for async writing.
func (s *Store) Log(entry Entry) {
	select {
	case s.writes <- write{entry: entry}:
	default:
		s.logger.Warn("audit write buffer full, dropping entry", "id", entry.ID)
	}
}

// Flush blocks until every entry logged before the call has been written.
func (s *Store) Flush() {
	marker := make(chan struct{})
	s.writes <- write{flush: marker}
	<-marker
}

// Query returns audit entries matching the given filters, newest first.
func (s *Store) Query(opts QueryOpts) ([]Entry, error) {
	query := "SELECT id, timestamp, request_id, address, domain, payload_type, signed_at, digest, verified, pubkey_fingerprint, decision, latency_ms FROM verifications WHERE 1=1"
	var args []any

	if opts.Decision != "" {
		query += " AND decision = ?"
		args = append(args, opts.Decision)
	}
	if opts.Address != "" {
		query += " AND address = ?"
		args = append(args, opts.Address)
	}
	if opts.Domain != "" {
		query += " AND domain = ?"
		args = append(args, opts.Domain)
	}
	if opts.Unverified {
		query += " AND verified = 0"
	}
	if opts.Since != "" {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since)
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 50"
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var reqID, digest, fp sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &reqID, &e.Address, &e.Domain, &e.PayloadType,
			&e.SignedAt, &digest, &e.Verified, &fp, &e.Decision, &e.LatencyMs); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.RequestID = reqID.String
		e.Digest = digest.String
		e.PubkeyFingerprint = fp.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats counts all logged outcomes by decision.
func (s *Store) Stats() (*Stats, error) {
	rows, err := s.db.Query("SELECT decision, verified, COUNT(*) FROM verifications GROUP BY decision, verified")
	if err != nil {
		return nil, fmt.Errorf("querying audit stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	st := &Stats{ByDecision: make(map[string]int)}
	for rows.Next() {
		var (
			decision string
			verified bool
			n        int
		)
		if err := rows.Scan(&decision, &verified, &n); err != nil {
			return nil, fmt.Errorf("scanning stats: %w", err)
		}
		st.ByDecision[decision] += n
		st.Total += n
		if verified {
			st.Verified += n
		} else {
			st.Rejected += n
		}
	}
	return st, rows.Err()
}

// Purge deletes entries older than the store's retention period and returns
// how many were removed. It is a no-op when retention is disabled.
func (s *Store) Purge() (int64, error) {
	return s.PurgeOlderThan(s.retentionDays)
}

// PurgeOlderThan deletes entries older than days. days <= 0 deletes nothing.
func (s *Store) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	res, err := s.db.Exec("DELETE FROM verifications WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging audit log: %w", err)
	}
	return res.RowsAffected()
}

// RevokeKey marks a public key fingerprint as revoked. Revoking twice keeps
// the first record.
func (s *Store) RevokeKey(fingerprint, name, reason string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO revoked_keys (fingerprint, name, revoked_at, reason) VALUES (?, ?, ?, ?)",
		fingerprint, name, time.Now().UTC().Format(time.RFC3339), reason,
	)
	if err != nil {
		return fmt.Errorf("revoking key: %w", err)
	}
	return nil
}

// IsRevoked reports whether fingerprint has been revoked.
func (s *Store) IsRevoked(fingerprint string) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM revoked_keys WHERE fingerprint = ?", fingerprint).Scan(&n); err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return n > 0, nil
}

// ListRevoked returns all revoked keys, most recent first.
func (s *Store) ListRevoked() ([]RevokedKey, error) {
	rows, err := s.db.Query("SELECT fingerprint, name, revoked_at, reason FROM revoked_keys ORDER BY revoked_at DESC, fingerprint")
	if err != nil {
		return nil, fmt.Errorf("listing revoked keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []RevokedKey
	for rows.Next() {
		var k RevokedKey
		var reason sql.NullString
		if err := rows.Scan(&k.Fingerprint, &k.Name, &k.RevokedAt, &reason); err != nil {
			return nil, fmt.Errorf("scanning revoked key: %w", err)
		}
		k.Reason = reason.String
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	close(s.writes)
	<-s.done
	return s.db.Close()
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for w := range s.writes {
		if w.flush != nil {
			close(w.flush)
			continue
		}
		e := w.entry
		_, err := s.db.Exec(
			`INSERT INTO verifications (id, timestamp, request_id, address, domain, payload_type, signed_at, digest, verified, pubkey_fingerprint, decision, latency_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Timestamp, e.RequestID, e.Address, e.Domain, e.PayloadType,
			e.SignedAt, e.Digest, e.Verified, e.PubkeyFingerprint, e.Decision, e.LatencyMs,
		)
		if err != nil {
			s.logger.Error("audit write failed", "id", e.ID, "error", err)
		}
	}
}
