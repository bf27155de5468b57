package storage

import (
	"context"
	"fmt"
	"time"
)

// AnonRateDecision is the outcome of one anonymous-start admission check.
type AnonRateDecision struct {
	Allowed      bool
	Remaining    int
	BlockedUntil *time.Time
}

// CheckAnonRate admits or refuses an anonymous session start from ip.
// One row per IP: the counter resets when the window has elapsed, and
// crossing the limit sets blocked_until so repeat offenders stay blocked
// without re-counting. The whole read-modify-write runs in one transaction
// with the row locked, so concurrent starts from the same IP serialise.
func (db *DB) CheckAnonRate(ctx context.Context, ip string, limit int, window, blockFor time.Duration, now time.Time) (AnonRateDecision, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return AnonRateDecision{}, fmt.Errorf("storage: begin rate check: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO anon_rate_limits (ip, window_start, count)
		 VALUES ($1, $2, 0)
		 ON CONFLICT (ip) DO NOTHING`, ip, now); err != nil {
		return AnonRateDecision{}, fmt.Errorf("storage: seed rate row: %w", err)
	}

	var (
		windowStart  time.Time
		count        int
		blockedUntil *time.Time
	)
	if err := tx.QueryRow(ctx,
		`SELECT window_start, count, blocked_until FROM anon_rate_limits WHERE ip = $1 FOR UPDATE`,
		ip).Scan(&windowStart, &count, &blockedUntil); err != nil {
		return AnonRateDecision{}, fmt.Errorf("storage: lock rate row: %w", err)
	}

	if blockedUntil != nil && blockedUntil.After(now) {
		if err := tx.Commit(ctx); err != nil {
			return AnonRateDecision{}, fmt.Errorf("storage: commit rate check: %w", err)
		}
		return AnonRateDecision{Allowed: false, BlockedUntil: blockedUntil}, nil
	}

	if now.Sub(windowStart) >= window {
		windowStart = now
		count = 0
	}

	count++
	if count > limit {
		until := now.Add(blockFor)
		if _, err := tx.Exec(ctx,
			`UPDATE anon_rate_limits SET window_start = $2, count = $3, blocked_until = $4, updated_at = now()
			 WHERE ip = $1`, ip, windowStart, count, until); err != nil {
			return AnonRateDecision{}, fmt.Errorf("storage: block rate row: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return AnonRateDecision{}, fmt.Errorf("storage: commit rate check: %w", err)
		}
		return AnonRateDecision{Allowed: false, BlockedUntil: &until}, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE anon_rate_limits SET window_start = $2, count = $3, blocked_until = NULL, updated_at = now()
		 WHERE ip = $1`, ip, windowStart, count); err != nil {
		return AnonRateDecision{}, fmt.Errorf("storage: update rate row: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return AnonRateDecision{}, fmt.Errorf("storage: commit rate check: %w", err)
	}
	return AnonRateDecision{Allowed: true, Remaining: limit - count}, nil
}

// PruneAnonRates deletes rows idle since before cutoff. Run by the sweep job.
func (db *DB) PruneAnonRates(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM anon_rate_limits
		 WHERE updated_at < $1 AND (blocked_until IS NULL OR blocked_until < $1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("storage: prune rate rows: %w", err)
	}
	return tag.RowsAffected(), nil
}
