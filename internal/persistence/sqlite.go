package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SQLStore keeps documents in the migrated documents table of a SQLite
// database.
type SQLStore struct {
	DB *sql.DB
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

var sqliteDialect = dialect{
	field: func(name string, _ any) string {
		return fmt.Sprintf("json_extract(data, '$.%s')", name)
	},
	placeholder: func(int) string { return "?" },
	in: func(field string, values []string, _ int) (string, []any) {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		args := make([]any, len(values))
		for i, v := range values {
			args[i] = v
		}
		return fmt.Sprintf("%s IN (%s)", field, marks), args
	},
}

func (s *SQLStore) GetByID(ctx context.Context, collection, id string) (Record, bool, error) {
	return s.one(ctx, `SELECT id,version,data FROM documents WHERE collection=? AND id=?`, collection, id)
}

func (s *SQLStore) GetByField(ctx context.Context, collection string, q Query) (Record, bool, error) {
	where, args, err := buildWhere(sqliteDialect, q, 1)
	if err != nil {
		return Record{}, false, err
	}
	query := `SELECT id,version,data FROM documents WHERE collection=?` + where + ` ORDER BY seq ASC LIMIT 1`
	return s.one(ctx, query, append([]any{collection}, args...)...)
}

func (s *SQLStore) one(ctx context.Context, query string, args ...any) (Record, bool, error) {
	var (
		rec  Record
		data string
	)
	err := s.DB.QueryRowContext(ctx, query, args...).Scan(&rec.ID, &rec.Version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load document: %w", err)
	}
	rec.Data = []byte(data)
	return rec, true, nil
}

func (s *SQLStore) ListByField(ctx context.Context, collection string, q Query, sorts ...Sort) ([]Record, error) {
	where, args, err := buildWhere(sqliteDialect, q, 1)
	if err != nil {
		return nil, err
	}
	order, err := buildOrder(func(f string) string { return sqliteDialect.field(f, nil) }, sorts)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id,version,data FROM documents WHERE collection=?`+where+order, append([]any{collection}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var (
			rec  Record
			data string
		)
		if err := rows.Scan(&rec.ID, &rec.Version, &data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		rec.Data = []byte(data)
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *SQLStore) Save(ctx context.Context, collection string, doc Document) error {
	id := doc.DocumentID()
	if id == "" {
		return ErrMissingID
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO documents(collection,id,version,data) VALUES (?,?,?,?)
ON CONFLICT(collection,id) DO UPDATE SET version=excluded.version, data=excluded.data`, collection, id, versionOf(doc), string(data))
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *SQLStore) SaveWithVersion(ctx context.Context, collection string, doc Versioned) error {
	id := doc.DocumentID()
	if id == "" {
		return ErrMissingID
	}
	prev := doc.Version()
	doc.SetVersion(prev + 1)
	data, err := json.Marshal(doc)
	if err != nil {
		doc.SetVersion(prev)
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, exists, err := s.GetByID(ctx, collection, id)
	if err != nil {
		doc.SetVersion(prev)
		return err
	}
	if !exists {
		_, err := s.DB.ExecContext(ctx, `INSERT INTO documents(collection,id,version,data) VALUES (?,?,?,?)`, collection, id, prev+1, string(data))
		if err != nil {
			doc.SetVersion(prev)
			if isSQLiteUniqueViolation(err) {
				return ErrConflictingVersions
			}
			return fmt.Errorf("insert %s/%s: %w", collection, id, err)
		}
		return nil
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE documents SET version=?, data=? WHERE collection=? AND id=? AND version=?`,
		prev+1, string(data), collection, id, prev)
	if err != nil {
		doc.SetVersion(prev)
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		doc.SetVersion(prev)
		return ErrConflictingVersions
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.DB.Close()
}

func isSQLiteUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
