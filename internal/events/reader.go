package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one stored row of a stream.
type Event struct {
	ID      int64           `json:"id"`
	TS      time.Time       `json:"ts"`
	Stream  string          `json:"stream"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Reader struct {
	DB *sql.DB
}

// Stream returns the events of stream in append order.
func (r Reader) Stream(ctx context.Context, stream string) ([]Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,stream,type,payload_json FROM events WHERE stream=? ORDER BY id`, stream)
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", stream, err)
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var (
			e       Event
			ts      string
			payload string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Stream, &e.Type, &payload); err != nil {
			return nil, err
		}
		if e.TS, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("event %d: %w", e.ID, err)
		}
		e.Payload = json.RawMessage(payload)
		res = append(res, e)
	}
	return res, rows.Err()
}

// LastID returns the id of the newest event of stream, 0 when empty.
func (r Reader) LastID(ctx context.Context, stream string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE stream=?`, stream).Scan(&id)
	return id, err
}
