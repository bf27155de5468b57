package storage

import (
	"context"
	"fmt"
	"time"
)

// AcquireJobLock takes the named scheduler lock until lockUntil. Returns
// false when another holder's lease is still live. The upsert races safely:
// the WHERE on the conflict arm only steals expired leases.
func (db *DB) AcquireJobLock(ctx context.Context, name, holder string, now, lockUntil time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO scheduler_locks (name, lock_until, locked_at, locked_by)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO UPDATE SET
		   lock_until = EXCLUDED.lock_until,
		   locked_at = EXCLUDED.locked_at,
		   locked_by = EXCLUDED.locked_by
		 WHERE scheduler_locks.lock_until < $3`,
		name, lockUntil, now, holder,
	)
	if err != nil {
		return false, fmt.Errorf("storage: acquire job lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseJobLock drops the lease early if we still hold it.
func (db *DB) ReleaseJobLock(ctx context.Context, name, holder string) error {
	if _, err := db.pool.Exec(ctx,
		`UPDATE scheduler_locks SET lock_until = now() WHERE name = $1 AND locked_by = $2`,
		name, holder); err != nil {
		return fmt.Errorf("storage: release job lock: %w", err)
	}
	return nil
}
