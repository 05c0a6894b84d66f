package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using the PostgreSQL COPY protocol.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// ReplaceSet atomically swaps the rows of table where keyColumn = key for
// the given rows: a DELETE followed by COPY inside one transaction.
type ReplaceSet struct {
	Table     string
	KeyColumn string
	Key       any
	Columns   []string
}

// Replace runs the delete-then-copy for set. Returns rows copied.
func Replace(ctx context.Context, pool Pool, set ReplaceSet, rows [][]any) (int64, error) {
	if len(set.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		pgx.Identifier{set.Table}.Sanitize(),
		pgx.Identifier{set.KeyColumn}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, del, set.Key); err != nil {
		_ = tx.Rollback(ctx)
		return 0, eris.Wrapf(err, "db: replace: delete from %s", set.Table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, pgx.Identifier{set.Table}, set.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, eris.Wrapf(err, "db: replace: COPY INTO %s", set.Table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}
	return n, nil
}
