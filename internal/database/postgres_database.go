package database

import (
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB interface {
	QueryRowStruct(ctx context.Context, dest any, sql string, args ...any) error
	QueryStruct(ctx context.Context, dest any, sql string, args ...any) error
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresDB is a pooled connection, safe for the concurrent handlers the
// bot runs per update.
type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.pool.Close()
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// QueryRowStruct scans exactly one row into dest. NotFound reports the
// empty result.
func (db *PostgresDB) QueryRowStruct(ctx context.Context, dest any, sql string, args ...any) error {
	return pgxscan.Get(ctx, db.pool, dest, sql, args...)
}

func (db *PostgresDB) QueryStruct(ctx context.Context, dest any, sql string, args ...any) error {
	return pgxscan.Select(ctx, db.pool, dest, sql, args...)
}

func (db *PostgresDB) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := db.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// NotFound reports whether err means the query returned no rows
func NotFound(err error) bool {
	return pgxscan.NotFound(err)
}
