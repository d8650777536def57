package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// timeFormat is fixed width so that text order in SQLite is time order.
// Times are always stored in UTC.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository stores the journal in SQLite.
//
// Thread Safety: safe for concurrent use; the current boot ID is guarded.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time

	mu     sync.RWMutex
	bootID string
}

// NewSQLiteRepository creates a journal repository on an open database.
// The journal migrations must already be applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// StartBoot opens a new boot and makes it current for subsequent records.
func (r *SQLiteRepository) StartBoot(ctx context.Context, thingName, version string) (Boot, error) {
	boot := Boot{
		ID:        uuid.NewString(),
		ThingName: thingName,
		Version:   version,
		StartedAt: r.now(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO boots (id, thing_name, version, started_at) VALUES (?, ?, ?, ?)`,
		boot.ID, boot.ThingName, boot.Version, boot.StartedAt.Format(timeFormat),
	)
	if err != nil {
		return Boot{}, fmt.Errorf("inserting boot: %w", err)
	}

	r.mu.Lock()
	r.bootID = boot.ID
	r.mu.Unlock()

	return boot, nil
}

// EndBoot stamps the current boot with an end time and reason.
func (r *SQLiteRepository) EndBoot(ctx context.Context, reason string) error {
	bootID := r.BootID()
	if bootID == "" {
		return ErrNoBoot
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE boots SET ended_at = ?, end_reason = ? WHERE id = ?`,
		r.now().Format(timeFormat), reason, bootID,
	)
	if err != nil {
		return fmt.Errorf("ending boot: %w", err)
	}
	return nil
}

// BootID returns the current boot, or "" before StartBoot.
func (r *SQLiteRepository) BootID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bootID
}

// RecordEvent journals a lifecycle event against the current boot.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, kind EventKind, detail string, attempt int) error {
	bootID := r.BootID()
	if bootID == "" {
		return ErrNoBoot
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (boot_id, kind, detail, attempt, created_at) VALUES (?, ?, ?, ?, ?)`,
		bootID, string(kind), detail, attempt, r.now().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// RecordMessage journals a message published or received during the current boot.
func (r *SQLiteRepository) RecordMessage(ctx context.Context, dir Direction, topic string, payload []byte) error {
	bootID := r.BootID()
	if bootID == "" {
		return ErrNoBoot
	}
	if payload == nil {
		payload = []byte{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (boot_id, direction, topic, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		bootID, string(dir), topic, payload, r.now().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListBoots returns the most recent boots, newest first.
func (r *SQLiteRepository) ListBoots(ctx context.Context, limit int) ([]Boot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, thing_name, version, started_at, ended_at, end_reason
		 FROM boots ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		Filter{Limit: limit}.limit(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying boots: %w", err)
	}
	defer rows.Close()

	var boots []Boot
	for rows.Next() {
		var (
			b         Boot
			startedAt string
			endedAt   sql.NullString
			reason    sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.ThingName, &b.Version, &startedAt, &endedAt, &reason); err != nil {
			return nil, fmt.Errorf("scanning boot: %w", err)
		}
		b.StartedAt = parseTime(startedAt)
		if endedAt.Valid {
			t := parseTime(endedAt.String)
			b.EndedAt = &t
		}
		b.EndReason = reason.String
		boots = append(boots, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating boots: %w", err)
	}
	return boots, nil
}

// ListEvents returns events matching the filter, newest first.
func (r *SQLiteRepository) ListEvents(ctx context.Context, filter Filter) ([]Event, error) {
	var conditions []string
	var args []any

	if filter.BootID != "" {
		conditions = append(conditions, "boot_id = ?")
		args = append(args, filter.BootID)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	args = append(args, filter.limit())

	// WHERE is assembled from fixed conditions with ? placeholders only.
	query := `SELECT id, boot_id, kind, detail, attempt, created_at FROM events ` +
		where(conditions) + ` ORDER BY id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e         Event
			kind      string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.BootID, &kind, &e.Detail, &e.Attempt, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Kind = EventKind(kind)
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// ListMessages returns messages matching the filter, newest first.
// Filter.Kind is ignored.
func (r *SQLiteRepository) ListMessages(ctx context.Context, filter Filter) ([]Message, error) {
	var conditions []string
	var args []any

	if filter.BootID != "" {
		conditions = append(conditions, "boot_id = ?")
		args = append(args, filter.BootID)
	}
	args = append(args, filter.limit())

	query := `SELECT id, boot_id, direction, topic, payload, created_at FROM messages ` +
		where(conditions) + ` ORDER BY id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m         Message
			dir       string
			payload   []byte
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.BootID, &dir, &m.Topic, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Direction = Direction(dir)
		m.Payload = string(payload)
		m.CreatedAt = parseTime(createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// PruneBoots deletes all but the newest keep boots along with their events
// and messages. The current boot is never deleted.
func (r *SQLiteRepository) PruneBoots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM boots
		 WHERE id != ?
		   AND id NOT IN (SELECT id FROM boots ORDER BY started_at DESC, rowid DESC LIMIT ?)`,
		r.BootID(), keep,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning boots: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning boots: %w", err)
	}
	return n, nil
}

func where(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}

// parseTime ignores errors; every stored timestamp is written by this package.
func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s) //nolint:errcheck // format is controlled
	return t
}
