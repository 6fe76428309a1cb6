package persistence

import (
	"fmt"
	"strings"
)

type dialect struct {
	// field renders access to a top-level JSON field compared with v.
	field       func(name string, v any) string
	placeholder func(n int) string
	// in renders field IN values; it returns the fragment and its arguments.
	in func(field string, values []string, next int) (string, []any)
}

func buildWhere(d dialect, q Query, next int) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	for _, c := range q {
		if err := validateField(c.Field); err != nil {
			return "", nil, err
		}
		switch c.Op {
		case In:
			values, ok := c.Value.([]string)
			if !ok {
				return "", nil, fmt.Errorf("field %s: in requires []string, got %T", c.Field, c.Value)
			}
			if len(values) == 0 {
				clauses = append(clauses, "1=0")
				continue
			}
			frag, a := d.in(d.field(c.Field, ""), values, next)
			clauses = append(clauses, frag)
			args = append(args, a...)
			next += len(a)
		case Eq, Gt, Gte, Lt, Lte:
			clauses = append(clauses, fmt.Sprintf("%s %s %s", d.field(c.Field, c.Value), c.Op, d.placeholder(next)))
			args = append(args, c.Value)
			next++
		default:
			return "", nil, fmt.Errorf("field %s: unsupported operator %q", c.Field, c.Op)
		}
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " AND " + strings.Join(clauses, " AND "), args, nil
}

func buildOrder(sortField func(string) string, sorts []Sort) (string, error) {
	var parts []string
	for _, s := range sorts {
		if err := validateField(s.Field); err != nil {
			return "", err
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, sortField(s.Field)+" "+dir)
	}
	parts = append(parts, "seq ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
