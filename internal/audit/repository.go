// Package audit provides access to the comm_events table, the queryable
// history of link transitions, problem reports, and delivered events.
//
// The audit trail is observational. Losing it loses history only; the
// at-least-once delivery guarantee lives in the persister's file store.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommEvent is a single audit trail entry.
type CommEvent struct {
	ID        string         `json:"id"`
	Link      string         `json:"link,omitempty"`
	Kind      string         `json:"kind"`
	MessageID string         `json:"message_id,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which audit entries to return.
type Filter struct {
	Link   string    // optional: filter by link name
	Kind   string    // optional: filter by event kind (comm.mqtt.connect, problem, ...)
	Since  time.Time // optional: entries at or after this instant
	Limit  int       // default 50, max 200
	Offset int       // pagination offset
}

// ListResult contains paginated audit results.
type ListResult struct {
	Events []CommEvent `json:"events"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// Repository defines audit trail operations.
type Repository interface {
	Create(ctx context.Context, ev *CommEvent) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores the audit trail in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a comm-event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an audit entry. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, ev *CommEvent) error {
	if ev.ID == "" {
		ev.ID = "aud-" + uuid.NewString()[:8]
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if ev.Details != nil {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comm_events (id, link, kind, message_id, summary, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, nullableString(ev.Link), ev.Kind,
		nullableString(ev.MessageID), nullableString(ev.Summary),
		detailsJSON,
		ev.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings, for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns audit entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit // dynamic query builder: WHERE clause assembly from filter fields
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for audit queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.Link != "" {
		conditions = append(conditions, "link = ?")
		args = append(args, filter.Link)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM comm_events %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, link, kind, message_id, summary, details, created_at FROM comm_events %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var events []CommEvent
	for rows.Next() {
		ev, err := scanCommEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	if events == nil {
		events = []CommEvent{}
	}
	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func scanCommEvent(rows *sql.Rows) (CommEvent, error) {
	var ev CommEvent
	var link, messageID, summary, detailsJSON sql.NullString
	var createdAt string

	if err := rows.Scan(&ev.ID, &link, &ev.Kind,
		&messageID, &summary, &detailsJSON, &createdAt); err != nil {
		return CommEvent{}, fmt.Errorf("scanning audit entry: %w", err)
	}

	if link.Valid {
		ev.Link = link.String
	}
	if messageID.Valid {
		ev.MessageID = messageID.String
	}
	if summary.Valid {
		ev.Summary = summary.String
	}
	if detailsJSON.Valid && detailsJSON.String != "" {
		var details map[string]any
		if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
			ev.Details = details
		}
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return CommEvent{}, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
	}
	ev.CreatedAt = t

	return ev, nil
}
