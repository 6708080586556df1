package tablestore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported drivers.
type Dialect struct {
	Name        string
	Placeholder func(n int) string
}

var (
	SQLite   = Dialect{Name: "sqlite3", Placeholder: func(int) string { return "?" }}
	Postgres = Dialect{Name: "pgx", Placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
)

// SQL keeps each table in a relational table of TEXT columns plus a row_no
// column preserving insertion order. Save rewrites the table in a single
// transaction, matching the whole-document semantics of the file backends.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQL wraps an open database handle.
func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

func (s *SQL) Initialize(ctx context.Context, t Table) error {
	defs := make([]string, 0, len(t.Columns)+1)
	defs = append(defs, "row_no INTEGER NOT NULL")
	for _, c := range t.Columns {
		defs = append(defs, quote(c)+" TEXT NOT NULL DEFAULT ''")
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(t.Name), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return unavailable("initialize", t, err)
	}
	return nil
}

func (s *SQL) Load(ctx context.Context, t Table) ([]Row, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY row_no", columnList(t), quote(t.Name))
	rs, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("load", t, err)
	}
	defer rs.Close()

	var rows []Row
	cells := make([]sql.NullString, len(t.Columns))
	dest := make([]any, len(cells))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rs.Next() {
		if err := rs.Scan(dest...); err != nil {
			return nil, unavailable("load", t, err)
		}
		row := make(Row, len(cells))
		for i, c := range cells {
			row[i] = c.String
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, unavailable("load", t, err)
	}
	return rows, nil
}

func (s *SQL) Save(ctx context.Context, t Table, rows []Row) error {
	if err := checkWidth(t, rows); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("save", t, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+quote(t.Name)); err != nil {
		return unavailable("save", t, err)
	}

	marks := make([]string, len(t.Columns)+1)
	for i := range marks {
		marks[i] = s.dialect.Placeholder(i + 1)
	}
	insert := fmt.Sprintf("INSERT INTO %s (row_no, %s) VALUES (%s)",
		quote(t.Name), columnList(t), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return unavailable("save", t, err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns)+1)
	for i, r := range rows {
		args[0] = i + 1
		for j, c := range r {
			args[j+1] = c
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return unavailable("save", t, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("save", t, err)
	}
	return nil
}

func columnList(t Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quote(c)
	}
	return strings.Join(cols, ", ")
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
