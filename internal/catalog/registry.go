// Package catalog holds the entities that describe archived soundings (sites,
// sounding types and locations) and the registries that deduplicate them against
// their natural keys in the relational index.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// DBTX is the subset of *sql.DB and *sql.Tx used by the registries.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Scanner is implemented by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Mapping binds a record type R with natural key K and settable subset U to a table.
//
// Scan receives columns in the order: id, KeyColumns..., DataColumns...
type Mapping[R any, K comparable, U any] struct {
	Table         string
	Entity        string // used in error messages
	KeyColumns    []string
	DataColumns   []string // inserted along with the key
	UpdateColumns []string // the settable subset, in UpdateArgs order

	Key          func(R) K
	NormalizeKey func(K) K     // optional
	CheckKey     func(K) error // optional, applied before inserting
	KeyArgs      func(K) []any
	InsertArgs   func(R) []any
	UpdateArgs   func(U) []any
	Scan         func(Scanner) (R, error)
	ID           func(R) int64
}

// Registry implements the validate / validate-or-add / update protocol once for every
// entity table.
type Registry[R any, K comparable, U any] struct {
	m Mapping[R, K, U]

	columns   string
	selectAll string
	byKey     string
	byID      string
	insert    string
	update    string
}

// NewRegistry prepares the SQL for a mapping.
func NewRegistry[R any, K comparable, U any](m Mapping[R, K, U]) *Registry[R, K, U] {
	cols := []string{m.Table + ".id"}
	for _, c := range m.KeyColumns {
		cols = append(cols, m.Table+"."+c)
	}
	for _, c := range m.DataColumns {
		cols = append(cols, m.Table+"."+c)
	}
	columns := strings.Join(cols, ", ")

	keyWhere := make([]string, len(m.KeyColumns))
	for i, c := range m.KeyColumns {
		keyWhere[i] = m.Table + "." + c + " = ?"
	}
	where := strings.Join(keyWhere, " AND ")

	insertCols := append(append([]string{}, m.KeyColumns...), m.DataColumns...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(insertCols)), ", ")

	sets := make([]string, len(m.UpdateColumns))
	for i, c := range m.UpdateColumns {
		sets[i] = c + " = ?"
	}
	updateWhere := make([]string, len(m.KeyColumns))
	for i, c := range m.KeyColumns {
		updateWhere[i] = c + " = ?"
	}

	return &Registry[R, K, U]{
		m:         m,
		columns:   columns,
		selectAll: fmt.Sprintf("SELECT %s FROM %s ORDER BY %s.id", columns, m.Table, m.Table),
		byKey:     fmt.Sprintf("SELECT %s FROM %s WHERE %s", columns, m.Table, where),
		byID:      fmt.Sprintf("SELECT %s FROM %s WHERE %s.id = ?", columns, m.Table, m.Table),
		insert: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			m.Table, strings.Join(insertCols, ", "), placeholders),
		update: fmt.Sprintf("UPDATE %s SET %s WHERE %s",
			m.Table, strings.Join(sets, ", "), strings.Join(updateWhere, " AND ")),
	}
}

func (r *Registry[R, K, U]) normalize(k K) K {
	if r.m.NormalizeKey != nil {
		return r.m.NormalizeKey(k)
	}
	return k
}

func (r *Registry[R, K, U]) notFound(k K) error {
	return fmt.Errorf("%s %v: %w", r.m.Entity, k, ErrNotFound)
}

// ByKey looks up a record by its natural key. The boolean is false if no row matches.
func (r *Registry[R, K, U]) ByKey(ctx context.Context, db DBTX, key K) (R, bool, error) {
	key = r.normalize(key)
	rec, err := r.m.Scan(db.QueryRowContext(ctx, r.byKey, r.m.KeyArgs(key)...))
	if errors.Is(err, sql.ErrNoRows) {
		var zero R
		return zero, false, nil
	}
	if err != nil {
		var zero R
		return zero, false, fmt.Errorf("select %s: %w", r.m.Entity, err)
	}
	return rec, true, nil
}

// ByID looks up a record by its row id.
func (r *Registry[R, K, U]) ByID(ctx context.Context, db DBTX, id int64) (R, error) {
	rec, err := r.m.Scan(db.QueryRowContext(ctx, r.byID, id))
	if errors.Is(err, sql.ErrNoRows) {
		var zero R
		return zero, fmt.Errorf("%s id %d: %w", r.m.Entity, id, ErrNotFound)
	}
	if err != nil {
		var zero R
		return zero, fmt.Errorf("select %s: %w", r.m.Entity, err)
	}
	return rec, nil
}

// Validate returns rec unchanged if it already carries an id. Otherwise it returns the
// stored version of the record with the same natural key, or ErrNotFound.
func (r *Registry[R, K, U]) Validate(ctx context.Context, db DBTX, rec R) (R, error) {
	if r.m.ID(rec) > 0 {
		return rec, nil
	}
	key := r.m.Key(rec)
	stored, ok, err := r.ByKey(ctx, db, key)
	if err != nil {
		return stored, err
	}
	if !ok {
		return stored, r.notFound(key)
	}
	return stored, nil
}

// ValidateOrAdd is like Validate but inserts a new row when the natural key is not in
// the index. Stored values win over those carried by rec. A key the mapping refuses to
// store fails with ErrInvalidEntity.
//
// Two concurrent writers inserting the same unseen key both miss the lookup; the
// uniqueness constraint on the key turns the second insert into an error.
func (r *Registry[R, K, U]) ValidateOrAdd(ctx context.Context, db DBTX, rec R) (R, error) {
	if r.m.ID(rec) > 0 {
		return rec, nil
	}
	key := r.normalize(r.m.Key(rec))
	if r.m.CheckKey != nil {
		if err := r.m.CheckKey(key); err != nil {
			var zero R
			return zero, fmt.Errorf("%s %v: %v: %w", r.m.Entity, key, err, ErrInvalidEntity)
		}
	}
	stored, ok, err := r.ByKey(ctx, db, key)
	if err != nil || ok {
		return stored, err
	}

	args := append(r.m.KeyArgs(key), r.m.InsertArgs(rec)...)
	res, err := db.ExecContext(ctx, r.insert, args...)
	if err != nil {
		return stored, fmt.Errorf("insert %s %v: %w", r.m.Entity, key, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return stored, fmt.Errorf("insert %s %v: %w", r.m.Entity, key, err)
	}
	return r.ByID(ctx, db, id)
}

// Update overwrites the settable fields of the row with the given natural key and
// returns the refreshed record. It fails with ErrNotFound if no row matches.
func (r *Registry[R, K, U]) Update(ctx context.Context, db DBTX, key K, upd U) (R, error) {
	key = r.normalize(key)
	args := append(r.m.UpdateArgs(upd), r.m.KeyArgs(key)...)
	res, err := db.ExecContext(ctx, r.update, args...)
	if err != nil {
		var zero R
		return zero, fmt.Errorf("update %s %v: %w", r.m.Entity, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		var zero R
		return zero, fmt.Errorf("update %s %v: %w", r.m.Entity, key, err)
	}
	if n == 0 {
		var zero R
		return zero, r.notFound(key)
	}

	stored, ok, err := r.ByKey(ctx, db, key)
	if err != nil {
		return stored, err
	}
	if !ok {
		return stored, r.notFound(key)
	}
	return stored, nil
}

// All returns every record in id order.
func (r *Registry[R, K, U]) All(ctx context.Context, db DBTX) ([]R, error) {
	return r.query(ctx, db, r.selectAll)
}

// Where returns the distinct records selected by a clause appended after
// "SELECT DISTINCT <columns> FROM <table>". Columns are qualified with the table name,
// so the clause may join other tables.
func (r *Registry[R, K, U]) Where(ctx context.Context, db DBTX, clause string, args ...any) ([]R, error) {
	q := fmt.Sprintf("SELECT DISTINCT %s FROM %s %s", r.columns, r.m.Table, clause)
	return r.query(ctx, db, q, args...)
}

func (r *Registry[R, K, U]) query(ctx context.Context, db DBTX, q string, args ...any) ([]R, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.m.Entity, err)
	}
	defer func() { _ = rows.Close() }()

	var out []R
	for rows.Next() {
		rec, err := r.m.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.m.Entity, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
