// Package postgres replicates collections into a PostgreSQL system of record.
//
// The remote owns its schema. This package expects:
//
//	CREATE TABLE replica_rows (
//	    entity    text        NOT NULL,
//	    payload   jsonb       NOT NULL,
//	    pushed_at timestamptz NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"vendinha/internal/replication"
)

type Remote struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Remote, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Remote{db: db}, nil
}

func (r *Remote) Close() error {
	return r.db.Close()
}

func (r *Remote) Append(ctx context.Context, entity replication.Entity, rows []json.RawMessage) error {
	if len(rows) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return insertRows(ctx, tx, entity, rows)
	})
}

func (r *Remote) Overwrite(ctx context.Context, entity replication.Entity, rows []json.RawMessage) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM replica_rows WHERE entity = $1`, string(entity)); err != nil {
			return fmt.Errorf("clear %s: %w", entity, err)
		}
		return insertRows(ctx, tx, entity, rows)
	})
}

func (r *Remote) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertRows(ctx context.Context, tx *sql.Tx, entity replication.Entity, rows []json.RawMessage) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO replica_rows (entity, payload, pushed_at) VALUES ($1, $2, now())`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, string(entity), []byte(row)); err != nil {
			return fmt.Errorf("insert %s row: %w", entity, err)
		}
	}
	return nil
}
