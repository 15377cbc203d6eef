package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
)

// execTx wraps body in a single transaction: body's error rolls back,
// success commits. Used by RegisterVault so a registration's commitment,
// notification and trigger rows commit together; the other Store
// methods each run a single statement.
func execTx(ctx context.Context, db *sql.DB, body func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = body(tx)
	return err
}
