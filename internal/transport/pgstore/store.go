// Package pgstore implements the query service and row-change stream over
// Postgres. Row-change notifications ride LISTEN/NOTIFY: the backend is
// expected to NOTIFY "storge_<collection>" with a JSON payload of
// {"action": ..., "record": {...}} on every change.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nfrund/storge/internal/transport"
)

// Store is a Postgres-backed transport.Querier and transport.RowStream.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens the connection pool and verifies it.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("Connected to Postgres")
	return &Store{
		pool:   pool,
		logger: slog.Default().With("component", "pgstore"),
	}, nil
}

// Close releases the pool.
func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// Select implements transport.Querier. Rows come back as JSON objects so
// the boundary sees the same record shape from every backend.
func (s *Store) Select(ctx context.Context, collection string, filter map[string]any, order transport.Order) ([]transport.Record, error) {
	query := fmt.Sprintf("SELECT row_to_json(t) FROM %s t", collection)

	where, args := buildWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}
	if order.Field != "" {
		dir := "DESC"
		if order.Ascending {
			dir = "ASC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", order.Field, dir)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", collection, err)
	}
	defer rows.Close()

	var out []transport.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", collection, err)
		}
		var rec transport.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", collection, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", collection, err)
	}
	return out, nil
}

// Insert implements transport.Querier.
func (s *Store) Insert(ctx context.Context, collection string, record transport.Record) (transport.Record, error) {
	cols := make([]string, 0, len(record))
	for k := range record {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = record[c]
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING row_to_json(%s)",
		collection, strings.Join(cols, ", "), strings.Join(placeholders, ", "), collection)

	var raw []byte
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	var rec transport.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode inserted %s row: %w", collection, err)
	}
	return rec, nil
}

// Update implements transport.Querier.
func (s *Store) Update(ctx context.Context, collection string, filter map[string]any, patch transport.Record) (transport.Record, error) {
	setCols := make([]string, 0, len(patch))
	for k := range patch {
		setCols = append(setCols, k)
	}
	sort.Strings(setCols)

	var (
		sets []string
		args []any
	)
	for _, c := range setCols {
		args = append(args, patch[c])
		sets = append(sets, fmt.Sprintf("%s = $%d", c, len(args)))
	}

	where, whereArgs := buildWhereOffset(filter, len(args))
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s", collection, strings.Join(sets, ", "))
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" RETURNING row_to_json(%s)", collection)

	var raw []byte
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("update %s: %w", collection, err)
	}
	var rec transport.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode updated %s row: %w", collection, err)
	}
	return rec, nil
}

// buildWhere renders equality constraints with $1.. placeholders. Filter
// keys are column names owned by this codebase, never user input.
func buildWhere(filter map[string]any) (string, []any) {
	return buildWhereOffset(filter, 0)
}

func buildWhereOffset(filter map[string]any, offset int) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, filter[k])
		clauses = append(clauses, fmt.Sprintf("%s = $%d", k, offset+len(args)))
	}
	return strings.Join(clauses, " AND "), args
}
