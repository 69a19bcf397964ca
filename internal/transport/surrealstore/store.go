// Package surrealstore implements the query service and row-change stream
// over SurrealDB. Live queries provide the row-change notifications.
package surrealstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/nfrund/storge/internal/config"
	"github.com/nfrund/storge/internal/transport"
)

// Store is a SurrealDB-backed transport.Querier and transport.RowStream.
type Store struct {
	db     *surrealdb.DB
	ns     string
	dbName string
	logger *slog.Logger
}

// Connect opens and authenticates the SurrealDB connection described by
// the configuration.
func Connect(ctx context.Context, cfg config.Provider) (*Store, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.SurrealURL())
	if err != nil {
		return nil, fmt.Errorf("connect to surrealdb: %w", err)
	}

	if cfg.SurrealUser() != "" {
		authData := &surrealdb.Auth{
			Username: cfg.SurrealUser(),
			Password: cfg.SurrealPass(),
		}
		if _, err = db.SignIn(ctx, authData); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("sign in to surrealdb: %w", err)
		}
	}

	if err = db.Use(ctx, cfg.SurrealNS(), cfg.SurrealDB()); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("use namespace/db: %w", err)
	}

	slog.Info("Connected to SurrealDB", "ns", cfg.SurrealNS(), "db", cfg.SurrealDB())
	return New(db, cfg.SurrealNS(), cfg.SurrealDB()), nil
}

// New wraps an already connected SurrealDB handle.
func New(db *surrealdb.DB, ns, dbName string) *Store {
	return &Store{
		db:     db,
		ns:     ns,
		dbName: dbName,
		logger: slog.Default().With("component", "surrealstore"),
	}
}

// Close releases the underlying connection.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

// Select implements transport.Querier.
func (s *Store) Select(ctx context.Context, collection string, filter map[string]any, order transport.Order) ([]transport.Record, error) {
	query := "SELECT *, type::string(id) AS id FROM type::table($table)"
	params := map[string]any{"table": collection}

	if where, whereParams := buildWhere(filter); where != "" {
		query += " WHERE " + where
		for k, v := range whereParams {
			params[k] = v
		}
	}
	if order.Field != "" {
		dir := "DESC"
		if order.Ascending {
			dir = "ASC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", order.Field, dir)
	}

	rows, err := queryAll[transport.Record](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", collection, err)
	}
	for i := range rows {
		rows[i] = normalizeRecord(rows[i])
	}
	return rows, nil
}

// Insert implements transport.Querier.
func (s *Store) Insert(ctx context.Context, collection string, record transport.Record) (transport.Record, error) {
	query := "CREATE type::table($table) CONTENT $data RETURN AFTER"
	params := map[string]any{"table": collection, "data": record}

	created, err := queryOne[transport.Record](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	if created == nil {
		return nil, fmt.Errorf("insert into %s: record was not created", collection)
	}
	return normalizeRecord(*created), nil
}

// Update implements transport.Querier.
func (s *Store) Update(ctx context.Context, collection string, filter map[string]any, patch transport.Record) (transport.Record, error) {
	query := "UPDATE type::table($table) MERGE $data"
	params := map[string]any{"table": collection, "data": patch}

	if where, whereParams := buildWhere(filter); where != "" {
		query += " WHERE " + where
		for k, v := range whereParams {
			params[k] = v
		}
	}
	query += " RETURN AFTER"

	updated, err := queryOne[transport.Record](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", collection, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("update %s: no matching record", collection)
	}
	return normalizeRecord(*updated), nil
}

// buildWhere renders equality constraints into a WHERE clause with bound
// parameters. Filter keys are column names owned by this codebase, never
// user input.
func buildWhere(filter map[string]any) (string, map[string]any) {
	if len(filter) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	params := make(map[string]any, len(keys))
	for _, k := range keys {
		param := "w_" + k
		clauses = append(clauses, fmt.Sprintf("%s = $%s", k, param))
		params[param] = filter[k]
	}
	return strings.Join(clauses, " AND "), params
}

// queryAll executes a query and unmarshals the first statement's results.
func queryAll[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, query, params)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// queryOne executes a query expected to produce at most one record.
func queryOne[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) (*T, error) {
	rows, err := queryAll[T](ctx, db, query, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// normalizeRecord converts driver-specific value types (record IDs,
// timestamps) into the plain JSON-friendly forms the boundary expects.
func normalizeRecord(rec transport.Record) transport.Record {
	for k, v := range rec {
		switch id := v.(type) {
		case models.RecordID:
			rec[k] = id.String()
		case *models.RecordID:
			if id != nil {
				rec[k] = id.String()
			}
		case models.CustomDateTime:
			rec[k] = id.Format("2006-01-02T15:04:05.999999999Z07:00")
		}
	}
	return rec
}
