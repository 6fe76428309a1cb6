package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrStreamAdvanced means another writer appended to the stream after the
// caller read it.
var ErrStreamAdvanced = errors.New("event stream advanced concurrently")

// AnyPosition disables the position check of Append.
const AnyPosition int64 = -1

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append adds one event to stream. Unless expected is AnyPosition, the append
// only happens when the last event id of the stream still equals expected
// (0 for an empty stream). It returns the id of the new event.
func (w Writer) Append(ctx context.Context, ex Execer, stream string, expected int64, evtType string, payload any) (int64, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	if ex == nil {
		ex = w.DB
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	var res sql.Result
	if expected == AnyPosition {
		res, err = ex.ExecContext(ctx, `INSERT INTO events(ts,stream,type,payload_json) VALUES (?,?,?,?)`,
			ts, stream, evtType, string(data))
	} else {
		res, err = ex.ExecContext(ctx, `INSERT INTO events(ts,stream,type,payload_json)
SELECT ?,?,?,? WHERE (SELECT COALESCE(MAX(id),0) FROM events WHERE stream=?) = ?`,
			ts, stream, evtType, string(data), stream, expected)
	}
	if err != nil {
		return 0, fmt.Errorf("append %s to %s: %w", evtType, stream, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrStreamAdvanced
	}
	return res.LastInsertId()
}
